// Package transcript turns raw interview transcripts into ordered speaker
// turns.
//
// Supported line shapes:
//
//	**Speaker Name:** text
//	Speaker Name: text
//	[00:12:34] Speaker Name: text
//	0:05            (standalone timestamp, applies to the next speaker line)
package transcript

import "strings"

// Turn is one utterance attributed to one speaker.
type Turn struct {
	TurnIndex     int    `json:"turn_index"`
	Speaker       string `json:"speaker"`
	Text          string `json:"text"`
	Timestamp     string `json:"timestamp"`
	IsInterviewer bool   `json:"is_interviewer"`
}

var interviewerIndicators = []string{
	"interviewer",
	"moderator",
	"researcher",
	"facilitator",
	"host",
}

// IsInterviewer reports whether a speaker label looks like the person running
// the session. Substring match, so "Cohost Jane" counts.
func IsInterviewer(label string) bool {
	lower := strings.ToLower(strings.TrimSpace(label))
	for _, ind := range interviewerIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

// NormalizeTimestamp rewrites M:SS, MM:SS and H:MM:SS into HH:MM:SS. Values
// are padded, never range-checked.
func NormalizeTimestamp(ts string) string {
	parts := strings.Split(strings.TrimSpace(ts), ":")
	switch len(parts) {
	case 2:
		return "00:" + pad2(parts[0]) + ":" + pad2(parts[1])
	case 3:
		return pad2(parts[0]) + ":" + pad2(parts[1]) + ":" + pad2(parts[2])
	default:
		return ts
	}
}

func pad2(s string) string {
	if len(s) >= 2 {
		return s
	}
	return strings.Repeat("0", 2-len(s)) + s
}
