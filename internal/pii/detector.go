// Package pii provides injectable PII recognisers for transcript text.
//
// A Detector returns typed entity spans with confidence scores. Offsets are
// character (rune) offsets into the scanned text, half-open. Detectors are
// constructed by the caller and passed to whatever needs them; nothing here
// keeps process-wide state.
package pii

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// Entity categories understood by the redaction engine.
const (
	TypePerson       = "PERSON"
	TypeEmail        = "EMAIL_ADDRESS"
	TypePhone        = "PHONE_NUMBER"
	TypeLocation     = "LOCATION"
	TypeOrganization = "ORGANIZATION"
	TypeOrg          = "ORG"
)

// DefaultEntityTypes is the set requested from model-backed recognisers.
var DefaultEntityTypes = []string{
	TypePerson,
	TypeEmail,
	TypePhone,
	TypeLocation,
	TypeOrganization,
}

// Entity is one detected span.
type Entity struct {
	Type  string  `json:"type"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Score float64 `json:"score"`
}

// Detector finds PII spans in a piece of text.
// Implementations must be safe for concurrent use.
type Detector interface {
	Detect(ctx context.Context, text string) ([]Entity, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, text string) ([]Entity, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, text string) ([]Entity, error) {
	return f(ctx, text)
}

// Chain runs detectors in order and concatenates their results. The first
// error aborts the scan so a transcript is never reported clean because one
// recogniser was down.
type Chain []Detector

// Detect implements Detector.
func (c Chain) Detect(ctx context.Context, text string) ([]Entity, error) {
	var all []Entity
	for i, d := range c {
		if d == nil {
			continue
		}
		found, err := d.Detect(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("pii: detector %d: %w", i, err)
		}
		all = append(all, found...)
	}
	return all, nil
}

// runeSpan converts a byte range of text into rune offsets.
func runeSpan(text string, byteStart, byteEnd int) (int, int) {
	start := utf8.RuneCountInString(text[:byteStart])
	return start, start + utf8.RuneCountInString(text[byteStart:byteEnd])
}
