package speech

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/euonia-ta/backend/internal/logging"
	"github.com/zhouzirui/euonia-ta/backend/internal/model/speech"
)

// Speaker reads model replies aloud. At most one utterance is active; a new
// one always cancels the previous.
type Speaker struct {
	cfg    speech.PlaybackConfig
	logger *zap.Logger

	mu      sync.Mutex
	synth   Synthesizer
	voices  []speech.Voice
	current string
}

// NewSpeaker creates a speaker. A nil synthesizer means playback is unavailable.
func NewSpeaker(cfg speech.PlaybackConfig, synth Synthesizer, logger *zap.Logger) *Speaker {
	if synth == nil {
		synth = NopSynthesizer{}
	}
	return &Speaker{
		cfg:    cfg,
		synth:  synth,
		logger: logging.OrNop(logger).Named("speech"),
	}
}

// SetSynthesizer swaps the playback strategy, cancelling anything in progress.
func (s *Speaker) SetSynthesizer(synth Synthesizer) {
	if synth == nil {
		synth = NopSynthesizer{}
	}
	s.Cancel(context.Background())

	s.mu.Lock()
	s.synth = synth
	s.mu.Unlock()
}

// SetVoices records the voices the client runtime currently offers.
func (s *Speaker) SetVoices(voices []speech.Voice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voices = append([]speech.Voice(nil), voices...)
}

// Voice returns the voice the next utterance will use.
func (s *Speaker) Voice() (speech.Voice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SelectVoice(s.voices, s.preference())
}

// Speak cancels current playback and starts reading text. It returns false
// when no synthesizer is available.
func (s *Speaker) Speak(ctx context.Context, text string) (speech.Utterance, bool) {
	s.Cancel(ctx)

	s.mu.Lock()
	synth := s.synth
	if !synth.Available() {
		s.mu.Unlock()
		return speech.Utterance{}, false
	}

	utterance := speech.Utterance{
		ID:    uuid.NewString(),
		Text:  CleanForSpeech(text),
		Lang:  s.cfg.Lang,
		Rate:  s.cfg.Rate,
		Pitch: s.cfg.Pitch,
	}
	if voice, ok := SelectVoice(s.voices, s.preference()); ok {
		utterance.Voice = voice.Name
		if voice.Lang != "" {
			utterance.Lang = voice.Lang
		}
	}
	s.current = utterance.ID
	s.mu.Unlock()

	if err := synth.Speak(ctx, utterance); err != nil {
		s.logger.Warn("speak failed", zap.Error(err))
		s.mu.Lock()
		if s.current == utterance.ID {
			s.current = ""
		}
		s.mu.Unlock()
		return speech.Utterance{}, false
	}

	s.logger.Debug("utterance started", zap.String("utteranceId", utterance.ID), zap.String("voice", utterance.Voice))
	return utterance, true
}

// Cancel stops any current playback. Cancelling while silent is a no-op.
func (s *Speaker) Cancel(ctx context.Context) {
	s.mu.Lock()
	synth := s.synth
	active := s.current != ""
	s.current = ""
	s.mu.Unlock()

	if !active {
		return
	}
	if err := synth.Cancel(ctx); err != nil {
		s.logger.Warn("cancel speech failed", zap.Error(err))
	}
}

// Speaking reports whether an utterance was started and not yet cancelled.
func (s *Speaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != ""
}

// Finished clears the active utterance once the client reports playback ended.
func (s *Speaker) Finished(utteranceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == utteranceID {
		s.current = ""
	}
}

func (s *Speaker) preference() VoicePreference {
	pref := VoicePreference{Name: s.cfg.PreferredName, PlatformLabel: s.cfg.PlatformLabel}
	if pref.Name == "" && pref.PlatformLabel == "" {
		return DefaultVoicePreference
	}
	return pref
}
