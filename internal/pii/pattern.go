package pii

import (
	"context"
	"regexp"
)

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}\b`)
)

// PatternDetector recognises structurally verifiable PII (emails and phone
// numbers) with regular expressions. Matches score 1.0.
type PatternDetector struct{}

// NewPatternDetector returns the built-in rule-based recogniser.
func NewPatternDetector() *PatternDetector {
	return &PatternDetector{}
}

// Detect implements Detector.
func (p *PatternDetector) Detect(_ context.Context, text string) ([]Entity, error) {
	var out []Entity
	emails := emailRe.FindAllStringIndex(text, -1)
	for _, loc := range emails {
		start, end := runeSpan(text, loc[0], loc[1])
		out = append(out, Entity{Type: TypeEmail, Start: start, End: end, Score: 1.0})
	}
	for _, loc := range phoneRe.FindAllStringIndex(text, -1) {
		if overlapsAny(loc, emails) {
			continue
		}
		start, end := runeSpan(text, loc[0], loc[1])
		out = append(out, Entity{Type: TypePhone, Start: start, End: end, Score: 1.0})
	}
	return out, nil
}

func overlapsAny(loc []int, others [][]int) bool {
	for _, o := range others {
		if loc[0] < o[1] && o[0] < loc[1] {
			return true
		}
	}
	return false
}
