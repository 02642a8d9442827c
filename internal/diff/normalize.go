package diff

import "strings"

// Normalize collapses every run of whitespace into a single space and trims
// both ends. It never fails; an empty input yields an empty string.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
