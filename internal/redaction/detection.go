// Package redaction decides which detected PII spans to replace and rewrites
// transcript turns accordingly.
//
// The flow is two-phase. Scanner.Scan proposes detections (some already
// marked redacted by policy); a reviewer then edits statuses; Apply rewrites
// the turns using only the detections that ended up redacted and produces
// the anonymisation log.
package redaction

// Status is the review state of a detection.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRedacted Status = "redacted"
	StatusKept     Status = "kept"
	StatusExcluded Status = "excluded"
)

// Normalize maps the zero value to pending.
func (s Status) Normalize() Status {
	if s == "" {
		return StatusPending
	}
	return s
}

// Valid reports whether s is a known status (the zero value counts as pending).
func (s Status) Valid() bool {
	switch s.Normalize() {
	case StatusPending, StatusRedacted, StatusKept, StatusExcluded:
		return true
	}
	return false
}

// Detection is one candidate PII span inside one turn. Offsets are rune
// offsets into the turn text as it was when scanned, half-open.
type Detection struct {
	OriginalText     string  `json:"original_text"`
	ReplacementToken string  `json:"replacement_token"`
	PIIType          string  `json:"pii_type"`
	Confidence       float64 `json:"confidence"`
	StartOffset      int     `json:"start_offset"`
	EndOffset        int     `json:"end_offset"`
	TurnIndex        int     `json:"turn_index"`
	Status           Status  `json:"status"`
}

// Log summarises one redaction pass and keeps every detection for audit.
//
// Pending counts detections nobody decided on. It is reported separately
// and is not folded into any of the other tallies.
type Log struct {
	AutoRedacted       int         `json:"auto_redacted"`
	ResearcherReviewed int         `json:"researcher_reviewed"`
	Exclusions         int         `json:"exclusions"`
	Pending            int         `json:"pending"`
	Detections         []Detection `json:"detections"`
}

// Tally counts reviewer decisions over detections. AutoRedacted is the number
// of detections marked redacted; Apply overwrites it with the number of spans
// it actually replaced.
func Tally(detections []Detection) Log {
	log := Log{Detections: make([]Detection, len(detections))}
	copy(log.Detections, detections)
	for _, d := range detections {
		switch d.Status.Normalize() {
		case StatusRedacted:
			log.AutoRedacted++
		case StatusKept:
			log.ResearcherReviewed++
		case StatusExcluded:
			log.Exclusions++
		case StatusPending:
			log.Pending++
		}
	}
	return log
}
