package voice

import (
	"strings"

	"github.com/zhouzirui/euonia-ta/backend/internal/model/speech"
)

// Transcript reconciles incremental recognizer results into display text.
// Finals accumulate; the interim hypothesis is replaced on every event.
type Transcript struct {
	final   string
	interim string
}

// Apply folds one recognizer event into the transcript. Results before the
// event's ResultIndex were handled by earlier events and are skipped.
func (t *Transcript) Apply(event speech.RecognitionEvent) {
	start := event.ResultIndex
	if start < 0 {
		start = 0
	}

	var finalChunk, interim strings.Builder
	for i := start; i < len(event.Results); i++ {
		result := event.Results[i]
		if result.IsFinal {
			finalChunk.WriteString(result.Transcript)
		} else {
			interim.WriteString(result.Transcript)
		}
	}

	if finalChunk.Len() > 0 {
		if t.final != "" {
			t.final += " "
		}
		t.final += finalChunk.String()
	}
	t.interim = interim.String()
}

// Reset clears both the finals and the interim hypothesis.
func (t *Transcript) Reset() {
	t.final = ""
	t.interim = ""
}

// Final returns only the finalized text, unnormalized.
func (t *Transcript) Final() string {
	return t.final
}

// Text joins finals and interim with all whitespace runs collapsed to one space.
func (t *Transcript) Text() string {
	return strings.Join(strings.Fields(t.final+" "+t.interim), " ")
}
