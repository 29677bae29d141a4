package redaction

import (
	"errors"
	"fmt"

	"github.com/wolfman30/insight-tool/internal/transcript"
)

var (
	// ErrUnknownTurn means a redacted detection names a turn that is not in
	// the transcript.
	ErrUnknownTurn = errors.New("redaction: detection references unknown turn")
	// ErrUnknownStatus means a detection carries a status outside the
	// pending/redacted/kept/excluded set.
	ErrUnknownStatus = errors.New("redaction: unknown detection status")
)

// Apply rewrites turns using the detections whose status is redacted and
// returns the new turns plus a fresh log holding every detection.
//
// The input slices are not modified. Any malformed detection fails the whole
// call; there is no partial result.
func Apply(turns []transcript.Turn, detections []Detection) ([]transcript.Turn, Log, error) {
	known := make(map[int]bool, len(turns))
	for _, t := range turns {
		known[t.TurnIndex] = true
	}

	byTurn := make(map[int][]Span)
	for i, d := range detections {
		if !d.Status.Valid() {
			return nil, Log{}, fmt.Errorf("%w: detection %d has status %q", ErrUnknownStatus, i, d.Status)
		}
		if d.Status.Normalize() != StatusRedacted {
			continue
		}
		if !known[d.TurnIndex] {
			return nil, Log{}, fmt.Errorf("%w: detection %d targets turn %d", ErrUnknownTurn, i, d.TurnIndex)
		}
		byTurn[d.TurnIndex] = append(byTurn[d.TurnIndex], Span{
			Start:       d.StartOffset,
			End:         d.EndOffset,
			Replacement: d.ReplacementToken,
		})
	}

	log := Tally(detections)
	log.AutoRedacted = 0

	out := make([]transcript.Turn, len(turns))
	for i, turn := range turns {
		out[i] = turn
		spans := byTurn[turn.TurnIndex]
		if len(spans) == 0 {
			continue
		}
		text, err := ApplySpans(turn.Text, spans)
		if err != nil {
			return nil, Log{}, fmt.Errorf("turn %d: %w", turn.TurnIndex, err)
		}
		out[i].Text = text
		log.AutoRedacted += len(spans)
	}

	return out, log, nil
}

// IsContractViolation reports whether err was caused by malformed detections
// rather than an internal failure.
func IsContractViolation(err error) bool {
	return errors.Is(err, ErrSpanOutOfRange) ||
		errors.Is(err, ErrOverlappingSpans) ||
		errors.Is(err, ErrUnknownTurn) ||
		errors.Is(err, ErrUnknownStatus)
}
