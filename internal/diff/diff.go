// Package diff classifies how much the extracted text of a page changed
// between two crawls. It is a length heuristic, not a structural diff: a
// rearrangement that keeps the length identical but changes the text is still
// reported as a change, but its size is judged by length alone.
package diff

import (
	"fmt"
	"math"
	"unicode/utf8"
)

const (
	SummaryInitial   = "Initial snapshot created for this page."
	SummaryUnchanged = "No significant textual changes detected."
)

// ChangeSize buckets a change ratio.
type ChangeSize string

const (
	SizeVerySmall ChangeSize = "very small"
	SizeSmall     ChangeSize = "small"
	SizeModerate  ChangeSize = "moderate"
	SizeLarge     ChangeSize = "large"
)

// Meta carries the raw numbers behind a Result. ChangeRatio is nil when the
// old text was empty.
type Meta struct {
	OldLength   int      `json:"oldLength"`
	NewLength   int      `json:"newLength"`
	LengthDiff  int      `json:"lengthDiff"`
	ChangeRatio *float64 `json:"changeRatio,omitempty"`
}

// Result is the outcome of comparing two texts.
type Result struct {
	HasChanges bool   `json:"hasChanges"`
	Summary    string `json:"summary"`
	Meta       Meta   `json:"meta"`
}

// Classify maps a change ratio onto its size band. Upper bounds are exclusive,
// so 0.02 is already "small".
func Classify(ratio float64) ChangeSize {
	switch {
	case ratio < 0.02:
		return SizeVerySmall
	case ratio < 0.10:
		return SizeSmall
	case ratio < 0.30:
		return SizeModerate
	default:
		return SizeLarge
	}
}

// Texts compares oldText with newText after normalizing both. Lengths are
// counted in characters (runes), not bytes.
func Texts(oldText, newText string) Result {
	oldNorm := Normalize(oldText)
	newNorm := Normalize(newText)
	oldLen := utf8.RuneCountInString(oldNorm)
	newLen := utf8.RuneCountInString(newNorm)

	if oldNorm == "" && newNorm != "" {
		return Result{
			HasChanges: true,
			Summary:    SummaryInitial,
			Meta: Meta{
				OldLength:  0,
				NewLength:  newLen,
				LengthDiff: newLen,
			},
		}
	}

	if oldNorm == newNorm {
		return Result{
			HasChanges: false,
			Summary:    SummaryUnchanged,
			Meta: Meta{
				OldLength:  oldLen,
				NewLength:  newLen,
				LengthDiff: 0,
			},
		}
	}

	lengthDiff := newLen - oldLen
	ratio := 1.0
	if oldLen > 0 {
		ratio = math.Abs(float64(lengthDiff)) / float64(oldLen)
	}

	return Result{
		HasChanges: true,
		Summary: fmt.Sprintf("Text content changed (%s change, length diff: %d characters).",
			Classify(ratio), lengthDiff),
		Meta: Meta{
			OldLength:   oldLen,
			NewLength:   newLen,
			LengthDiff:  lengthDiff,
			ChangeRatio: &ratio,
		},
	}
}
