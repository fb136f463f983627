package ai

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/euonia-ta/backend/internal/config"
	"github.com/zhouzirui/euonia-ta/backend/internal/logging"
	"github.com/zhouzirui/euonia-ta/backend/internal/model/course"
)

// ErrMissingCredential is returned for every remote call when no API key is configured.
var ErrMissingCredential = errors.New("API_KEY environment variable is missing.")

// InlineAudio is a base64 audio payload tagged with its media type.
type InlineAudio struct {
	Data     string
	MIMEType string
}

// Part is one element of a user message: either text or inline audio.
type Part struct {
	Text  string
	Audio *InlineAudio
}

// TextPart wraps plain text.
func TextPart(text string) Part {
	return Part{Text: text}
}

// PartsForTurn builds the payload for one send: the audio blob first, then the
// text when present. A text-only turn is a single text part.
func PartsForTurn(text, audioBase64, mimeType string) []Part {
	if audioBase64 == "" {
		return []Part{TextPart(text)}
	}
	parts := []Part{{Audio: &InlineAudio{Data: audioBase64, MIMEType: mimeType}}}
	if text != "" {
		parts = append(parts, TextPart(text))
	}
	return parts
}

// ChatSession is a remote conversation that keeps turn history on its side.
type ChatSession interface {
	Send(ctx context.Context, parts ...Part) (string, error)
}

// SessionFactory opens chat sessions carrying the fixed system instruction and temperature.
type SessionFactory interface {
	NewSession(ctx context.Context) (ChatSession, error)
}

// NewSessionFactory selects the provider configured in cfg. A missing credential
// does not fail here: every NewSession call reports ErrMissingCredential instead.
func NewSessionFactory(ctx context.Context, cfg config.AIConfig, profile course.Profile, logger *zap.Logger) (SessionFactory, error) {
	logger = logging.OrNop(logger).Named("ai")
	instruction := BuildSystemInstruction(profile)

	if !cfg.HasCredential() {
		logger.Warn("no model credential configured; every turn will fail", zap.String("provider", cfg.Provider))
		return missingCredentialFactory{}, nil
	}

	switch cfg.Provider {
	case config.ProviderArk:
		return newArkFactory(ctx, cfg, instruction, logger)
	case config.ProviderGemini, "":
		return newGeminiFactory(ctx, cfg, instruction, logger)
	default:
		return nil, fmt.Errorf("unsupported AI provider %q", cfg.Provider)
	}
}

type missingCredentialFactory struct{}

func (missingCredentialFactory) NewSession(context.Context) (ChatSession, error) {
	return nil, ErrMissingCredential
}
