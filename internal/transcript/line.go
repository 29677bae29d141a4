package transcript

import (
	"regexp"
	"strings"
)

// LineKind tags how a physical transcript line was classified.
type LineKind int

const (
	LineBlank LineKind = iota
	LineHeading
	LineRule
	LineTimestamp
	LineSpeaker
	LineContinuation
)

func (k LineKind) String() string {
	switch k {
	case LineBlank:
		return "blank"
	case LineHeading:
		return "heading"
	case LineRule:
		return "rule"
	case LineTimestamp:
		return "timestamp"
	case LineSpeaker:
		return "speaker"
	case LineContinuation:
		return "continuation"
	default:
		return "unknown"
	}
}

// Line is the classified form of one trimmed input line. Timestamp is already
// normalized; Speaker and Text are only set for speaker lines (Text also
// carries the content of continuation lines).
type Line struct {
	Kind      LineKind
	Timestamp string
	Speaker   string
	Text      string
}

// Ignored reports whether the line neither contributes text nor changes
// segmenter state.
func (l Line) Ignored() bool {
	return l.Kind == LineBlank || l.Kind == LineHeading || l.Kind == LineRule
}

const timestampToken = `\[?(\d{1,2}:\d{2}(?::\d{2})?)\]?`

var (
	standaloneTimestampRe = regexp.MustCompile(`^` + timestampToken + `$`)

	// speakerLineRe: [ts] **Label**: text. Bold markers may sit on either
	// side of the colon ("**Name:**" and "**Name**:" are both common).
	// Markers after the colon only close the label when followed by
	// whitespace, so "Name:**Really** good" keeps its emphasis.
	speakerLineRe = regexp.MustCompile(
		`^(?:` + timestampToken + `\s+)?` +
			`\*{0,2}` +
			`([A-Za-z][A-Za-z0-9 .'_-]*?)` +
			`\*{0,2}` +
			`\s*:(?:\*{1,2}\s+|\s*)` +
			`(.+)$`,
	)
)

type lineClassifier func(trimmed string) (Line, bool)

// lineClassifiers are tried in order; the first match wins.
var lineClassifiers = []lineClassifier{
	classifyBlank,
	classifyHeading,
	classifyRule,
	classifyTimestamp,
	classifySpeaker,
}

// ClassifyLine classifies a single physical line of transcript text.
func ClassifyLine(raw string) Line {
	trimmed := strings.TrimSpace(raw)
	for _, classify := range lineClassifiers {
		if line, ok := classify(trimmed); ok {
			return line
		}
	}
	return Line{Kind: LineContinuation, Text: trimmed}
}

func classifyBlank(s string) (Line, bool) {
	return Line{Kind: LineBlank}, s == ""
}

func classifyHeading(s string) (Line, bool) {
	return Line{Kind: LineHeading}, strings.HasPrefix(s, "#")
}

func classifyRule(s string) (Line, bool) {
	return Line{Kind: LineRule}, s == "---"
}

func classifyTimestamp(s string) (Line, bool) {
	m := standaloneTimestampRe.FindStringSubmatch(s)
	if m == nil {
		return Line{}, false
	}
	return Line{Kind: LineTimestamp, Timestamp: NormalizeTimestamp(m[1])}, true
}

func classifySpeaker(s string) (Line, bool) {
	m := speakerLineRe.FindStringSubmatch(s)
	if m == nil {
		return Line{}, false
	}
	text := strings.TrimSpace(m[3])
	if strings.Trim(text, "*") == "" {
		// "**Name:**" with the utterance on the following lines.
		text = ""
	}
	line := Line{
		Kind:    LineSpeaker,
		Speaker: strings.TrimSpace(m[2]),
		Text:    text,
	}
	if m[1] != "" {
		line.Timestamp = NormalizeTimestamp(m[1])
	}
	return line, true
}
