package redaction

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrSpanOutOfRange means a span does not fit the text it targets.
	ErrSpanOutOfRange = errors.New("redaction: span out of range")
	// ErrOverlappingSpans means two spans for the same text intersect.
	ErrOverlappingSpans = errors.New("redaction: overlapping spans")
)

// Span replaces runes [Start, End) with Replacement.
type Span struct {
	Start       int
	End         int
	Replacement string
}

// ApplySpans rewrites text, replacing each span. Spans must lie within the
// text and must not overlap; otherwise nothing is rewritten and an error is
// returned. The spans slice is not modified.
//
// Replacements run from the highest start offset down, so each rewrite only
// touches text after every span still to be applied.
func ApplySpans(text string, spans []Span) (string, error) {
	if len(spans) == 0 {
		return text, nil
	}
	runes := []rune(text)

	ordered := make([]Span, len(spans))
	copy(ordered, spans)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	for i, sp := range ordered {
		if sp.Start < 0 || sp.Start >= sp.End || sp.End > len(runes) {
			return "", fmt.Errorf("%w: [%d,%d) in text of length %d", ErrSpanOutOfRange, sp.Start, sp.End, len(runes))
		}
		if i > 0 && sp.Start < ordered[i-1].End {
			return "", fmt.Errorf("%w: [%d,%d) and [%d,%d)", ErrOverlappingSpans,
				ordered[i-1].Start, ordered[i-1].End, sp.Start, sp.End)
		}
	}

	for i := len(ordered) - 1; i >= 0; i-- {
		sp := ordered[i]
		rewritten := make([]rune, 0, len(runes)-(sp.End-sp.Start)+len(sp.Replacement))
		rewritten = append(rewritten, runes[:sp.Start]...)
		rewritten = append(rewritten, []rune(sp.Replacement)...)
		rewritten = append(rewritten, runes[sp.End:]...)
		runes = rewritten
	}
	return string(runes), nil
}
