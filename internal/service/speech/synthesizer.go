package speech

import (
	"context"

	"github.com/zhouzirui/euonia-ta/backend/internal/model/speech"
)

// Event names used by the client synthesizer.
const (
	EventSpeak  = "speak"
	EventCancel = "speech_cancel"
)

// Synthesizer is the text-to-speech strategy for one conversation.
type Synthesizer interface {
	Speak(ctx context.Context, utterance speech.Utterance) error
	Cancel(ctx context.Context) error
	// Available reports whether anything is actually read aloud.
	Available() bool
}

// Emitter delivers a named event to the client that owns the conversation.
type Emitter interface {
	Emit(event string, payload any) error
}

// ClientSynthesizer asks the connected client to use its own speech engine.
type ClientSynthesizer struct {
	emitter Emitter
}

// NewClientSynthesizer returns a synthesizer that forwards utterances as events.
func NewClientSynthesizer(emitter Emitter) *ClientSynthesizer {
	return &ClientSynthesizer{emitter: emitter}
}

func (s *ClientSynthesizer) Speak(_ context.Context, utterance speech.Utterance) error {
	return s.emitter.Emit(EventSpeak, utterance)
}

func (s *ClientSynthesizer) Cancel(context.Context) error {
	return s.emitter.Emit(EventCancel, struct{}{})
}

func (s *ClientSynthesizer) Available() bool { return true }

// NopSynthesizer is used when the client has no speech synthesis; playback is skipped silently.
type NopSynthesizer struct{}

func (NopSynthesizer) Speak(context.Context, speech.Utterance) error { return nil }
func (NopSynthesizer) Cancel(context.Context) error                  { return nil }
func (NopSynthesizer) Available() bool                               { return false }
