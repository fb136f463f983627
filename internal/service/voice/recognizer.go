package voice

import (
	"sync"

	"github.com/zhouzirui/euonia-ta/backend/internal/model/speech"
)

// Recognizer is the speech-to-text strategy attached to one recording.
type Recognizer interface {
	// Feed applies an event and returns the current draft.
	Feed(event speech.RecognitionEvent) string
	// End marks that the recognizer will deliver no further results.
	End()
	// Ended is closed once End has been called.
	Ended() <-chan struct{}
	// Live reports whether finalization has to wait for late results.
	Live() bool
	Text() string
}

// NewRecognizer returns a live recognizer when the runtime offers speech
// recognition and a no-op one otherwise.
func NewRecognizer(caps speech.Capabilities) Recognizer {
	if caps.Recognition {
		return newLiveRecognizer()
	}
	return noopRecognizer{}
}

type liveRecognizer struct {
	mu         sync.Mutex
	transcript Transcript
	ended      chan struct{}
	endOnce    sync.Once
}

func newLiveRecognizer() *liveRecognizer {
	return &liveRecognizer{ended: make(chan struct{})}
}

func (r *liveRecognizer) Feed(event speech.RecognitionEvent) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcript.Apply(event)
	return r.transcript.Text()
}

func (r *liveRecognizer) End() {
	r.endOnce.Do(func() { close(r.ended) })
}

func (r *liveRecognizer) Ended() <-chan struct{} { return r.ended }

func (r *liveRecognizer) Live() bool { return true }

func (r *liveRecognizer) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transcript.Text()
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// noopRecognizer backs runtimes without speech recognition: the transcript stays empty.
type noopRecognizer struct{}

func (noopRecognizer) Feed(speech.RecognitionEvent) string { return "" }
func (noopRecognizer) End()                                {}
func (noopRecognizer) Ended() <-chan struct{}              { return closedChan }
func (noopRecognizer) Live() bool                          { return false }
func (noopRecognizer) Text() string                        { return "" }
