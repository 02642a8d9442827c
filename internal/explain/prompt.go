package explain

import (
	"strings"
	"unicode/utf8"
)

const emptyPlaceholder = "(empty)"

// Truncate cuts text to at most max characters. It works on raw text and cuts
// on a rune boundary.
func Truncate(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	n := 0
	for i := range text {
		if n == max {
			return text[:i]
		}
		n++
	}
	return text
}

// BuildPrompt renders the user prompt holding the OLD and NEW page texts.
func BuildPrompt(oldText, newText string) string {
	if oldText == "" {
		oldText = emptyPlaceholder
	}
	if newText == "" {
		newText = emptyPlaceholder
	}

	var b strings.Builder
	b.WriteString("You are a helpful assistant that explains changes between two versions of a web page.\n\n")
	b.WriteString("Given the previous text and the new text, describe the main changes in a concise way.\n")
	b.WriteString("Focus on sections added, removed, or significantly modified.\n\n")
	b.WriteString("Return 3-6 bullet points, in plain text, no markdown syntax.\n\n")
	b.WriteString("OLD:\n---\n")
	b.WriteString(oldText)
	b.WriteString("\n\nNEW:\n---\n")
	b.WriteString(newText)
	b.WriteString("\n")
	return b.String()
}
