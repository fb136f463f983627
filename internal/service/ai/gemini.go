package ai

import (
	"context"
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/zhouzirui/euonia-ta/backend/internal/config"
)

type geminiFactory struct {
	client    *genai.Client
	model     string
	genConfig *genai.GenerateContentConfig
	logger    *zap.Logger
}

func newGeminiFactory(ctx context.Context, cfg config.AIConfig, instruction string, logger *zap.Logger) (*geminiFactory, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	temperature := cfg.Temperature
	return &geminiFactory{
		client: client,
		model:  cfg.Model,
		genConfig: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(instruction, genai.RoleUser),
			Temperature:       &temperature,
		},
		logger: logger.With(zap.String("provider", config.ProviderGemini), zap.String("model", cfg.Model)),
	}, nil
}

func (f *geminiFactory) NewSession(ctx context.Context) (ChatSession, error) {
	chat, err := f.client.Chats.Create(ctx, f.model, f.genConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("create gemini chat: %w", err)
	}
	f.logger.Debug("chat session created")
	return &geminiSession{chat: chat, logger: f.logger}, nil
}

type geminiSession struct {
	chat   *genai.Chat
	logger *zap.Logger
}

func (s *geminiSession) Send(ctx context.Context, parts ...Part) (string, error) {
	payload, err := toGenaiParts(parts)
	if err != nil {
		return "", err
	}

	resp, err := s.chat.Send(ctx, payload...)
	if err != nil {
		return "", fmt.Errorf("gemini send message: %w", err)
	}

	text := resp.Text()
	s.logger.Debug("response received", zap.Int("length", len(text)))
	return text, nil
}

func toGenaiParts(parts []Part) ([]*genai.Part, error) {
	out := make([]*genai.Part, 0, len(parts))
	for _, part := range parts {
		if part.Audio != nil {
			data, err := base64.StdEncoding.DecodeString(part.Audio.Data)
			if err != nil {
				return nil, fmt.Errorf("decode inline audio: %w", err)
			}
			out = append(out, genai.NewPartFromBytes(data, part.Audio.MIMEType))
			continue
		}
		out = append(out, genai.NewPartFromText(part.Text))
	}
	return out, nil
}
