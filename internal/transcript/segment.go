package transcript

import "strings"

// accumulator holds the turn currently being built.
type accumulator struct {
	open      bool
	speaker   string
	timestamp string
	parts     []string
}

func (a *accumulator) start(speaker, timestamp, text string) {
	a.open = true
	a.speaker = speaker
	a.timestamp = timestamp
	a.parts = append(a.parts[:0], text)
}

func (a *accumulator) appendText(text string) {
	if a.open {
		a.parts = append(a.parts, text)
	}
}

// flush returns the finished turn, if any, and resets the accumulator.
func (a *accumulator) flush(index int) (Turn, bool) {
	if !a.open || a.speaker == "" {
		return Turn{}, false
	}
	text := strings.TrimSpace(strings.Join(a.parts, " "))
	a.open = false
	a.parts = a.parts[:0]
	if text == "" {
		return Turn{}, false
	}
	return Turn{
		TurnIndex:     index,
		Speaker:       a.speaker,
		Text:          text,
		Timestamp:     a.timestamp,
		IsInterviewer: IsInterviewer(a.speaker),
	}, true
}

// Segment parses a raw transcript into turns. Text after a speaker line is
// accumulated until the next speaker line. Unrecognised text before the first
// speaker is dropped. It never fails; input with no speaker lines yields an
// empty slice.
func Segment(raw string) []Turn {
	turns := make([]Turn, 0)
	var (
		acc     accumulator
		pending string
	)

	emit := func() {
		if turn, ok := acc.flush(len(turns)); ok {
			turns = append(turns, turn)
		}
	}

	for _, rawLine := range strings.Split(raw, "\n") {
		line := ClassifyLine(rawLine)
		switch line.Kind {
		case LineTimestamp:
			pending = line.Timestamp
		case LineSpeaker:
			emit()
			ts := line.Timestamp
			if ts == "" {
				ts = pending
			}
			pending = ""
			acc.start(line.Speaker, ts, line.Text)
		case LineContinuation:
			acc.appendText(line.Text)
		}
	}
	emit()

	return turns
}
