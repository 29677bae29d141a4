package redaction

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/wolfman30/insight-tool/internal/pii"
	"github.com/wolfman30/insight-tool/internal/transcript"
	"github.com/wolfman30/insight-tool/pkg/logging"
)

// Replacement tokens.
const (
	TokenParticipant = "[PARTICIPANT]"
	TokenInterviewer = "[INTERVIEWER]"
	TokenName        = "[NAME]"
	TokenEmail       = "[EMAIL]"
	TokenPhone       = "[PHONE]"
	TokenLocation    = "[LOCATION]"
	TokenCompany     = "[COMPANY]"
	TokenRedacted    = "[REDACTED]"
)

// DefaultAutoRedactThreshold is the confidence at or above which a detection
// starts out redacted.
const DefaultAutoRedactThreshold = 0.85

var categoryTokens = map[string]string{
	pii.TypePerson:       TokenName,
	pii.TypeEmail:        TokenEmail,
	pii.TypePhone:        TokenPhone,
	pii.TypeLocation:     TokenLocation,
	pii.TypeOrganization: TokenCompany,
	pii.TypeOrg:          TokenCompany,
}

// Categories with structurally verifiable patterns are always auto-redacted.
var autoRedactTypes = map[string]bool{
	pii.TypeEmail: true,
	pii.TypePhone: true,
}

// Names are the known real names of the session's participant and
// interviewer, used to pick role placeholders.
type Names struct {
	Participant string `json:"participant_name,omitempty"`
	Interviewer string `json:"interviewer_name,omitempty"`
}

// ReplacementToken picks the placeholder for matched text. A participant
// name match wins over an interviewer name match, which wins over the
// category mapping.
func ReplacementToken(matched, piiType string, names Names) string {
	if names.Participant != "" && strings.EqualFold(matched, names.Participant) {
		return TokenParticipant
	}
	if names.Interviewer != "" && strings.EqualFold(matched, names.Interviewer) {
		return TokenInterviewer
	}
	if tok, ok := categoryTokens[piiType]; ok {
		return tok
	}
	return TokenRedacted
}

// Scanner runs a PII detector over transcript turns and proposes detections.
type Scanner struct {
	detector  pii.Detector
	threshold float64
	logger    *logging.Logger
}

// ScannerOption customises a Scanner.
type ScannerOption func(*Scanner)

// WithThreshold overrides the auto-redact confidence threshold.
func WithThreshold(threshold float64) ScannerOption {
	return func(s *Scanner) {
		if threshold > 0 && threshold <= 1 {
			s.threshold = threshold
		}
	}
}

// WithLogger sets the scanner logger.
func WithLogger(logger *logging.Logger) ScannerOption {
	return func(s *Scanner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewScanner creates a Scanner around an explicitly constructed detector.
func NewScanner(detector pii.Detector, opts ...ScannerOption) *Scanner {
	if detector == nil {
		panic("redaction: scanner requires a detector")
	}
	s := &Scanner{
		detector:  detector,
		threshold: DefaultAutoRedactThreshold,
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitialStatus returns redacted for auto-redact categories or confident
// detections, pending otherwise.
func (s *Scanner) InitialStatus(piiType string, confidence float64) Status {
	if autoRedactTypes[piiType] || confidence >= s.threshold {
		return StatusRedacted
	}
	return StatusPending
}

// Scan detects PII in each turn independently. Offsets refer to the turn
// text as passed in. Detections within a turn never overlap.
func (s *Scanner) Scan(ctx context.Context, turns []transcript.Turn, names Names) ([]Detection, error) {
	detections := make([]Detection, 0)
	for _, turn := range turns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entities, err := s.detector.Detect(ctx, turn.Text)
		if err != nil {
			return nil, fmt.Errorf("redaction: scan turn %d: %w", turn.TurnIndex, err)
		}

		runes := []rune(turn.Text)
		for _, e := range resolveOverlaps(s.validEntities(turn, runes, entities)) {
			original := string(runes[e.Start:e.End])
			detections = append(detections, Detection{
				OriginalText:     original,
				ReplacementToken: ReplacementToken(original, e.Type, names),
				PIIType:          e.Type,
				Confidence:       e.Score,
				StartOffset:      e.Start,
				EndOffset:        e.End,
				TurnIndex:        turn.TurnIndex,
				Status:           s.InitialStatus(e.Type, e.Score),
			})
		}
	}
	return detections, nil
}

func (s *Scanner) validEntities(turn transcript.Turn, runes []rune, entities []pii.Entity) []pii.Entity {
	out := make([]pii.Entity, 0, len(entities))
	for _, e := range entities {
		if e.Start < 0 || e.Start >= e.End || e.End > len(runes) {
			s.logger.Warn("redaction: dropping out-of-range entity",
				"turn_index", turn.TurnIndex,
				"type", e.Type,
				"start", e.Start,
				"end", e.End,
			)
			continue
		}
		out = append(out, e)
	}
	return out
}

// resolveOverlaps keeps the highest-scoring entity (then the longest) out of
// every overlapping group and returns the survivors in text order.
func resolveOverlaps(entities []pii.Entity) []pii.Entity {
	ranked := make([]pii.Entity, len(entities))
	copy(ranked, entities)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		li, lj := ranked[i].End-ranked[i].Start, ranked[j].End-ranked[j].Start
		if li != lj {
			return li > lj
		}
		return ranked[i].Start < ranked[j].Start
	})

	kept := make([]pii.Entity, 0, len(ranked))
	for _, e := range ranked {
		clash := false
		for _, k := range kept {
			if e.Start < k.End && k.Start < e.End {
				clash = true
				break
			}
		}
		if !clash {
			kept = append(kept, e)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}
