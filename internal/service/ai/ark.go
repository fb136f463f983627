package ai

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/euonia-ta/backend/internal/config"
)

type arkFactory struct {
	chatModel   model.ChatModel
	instruction string
	logger      *zap.Logger
}

func newArkFactory(ctx context.Context, cfg config.AIConfig, instruction string, logger *zap.Logger) (*arkFactory, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return &arkFactory{
		chatModel:   chatModel,
		instruction: instruction,
		logger:      logger.With(zap.String("provider", config.ProviderArk), zap.String("model", cfg.Model)),
	}, nil
}

func (f *arkFactory) NewSession(context.Context) (ChatSession, error) {
	return newModelSession(f.chatModel, f.instruction, f.logger), nil
}

// modelSession keeps the turn history for chat models that are stateless on
// the wire, so it behaves like a remote chat session.
type modelSession struct {
	chatModel model.ChatModel
	system    *schema.Message
	logger    *zap.Logger

	mu      sync.Mutex
	history []*schema.Message
}

func newModelSession(chatModel model.ChatModel, instruction string, logger *zap.Logger) *modelSession {
	return &modelSession{
		chatModel: chatModel,
		system:    schema.SystemMessage(instruction),
		logger:    logger,
	}
}

func (s *modelSession) Send(ctx context.Context, parts ...Part) (string, error) {
	input := toSchemaMessage(parts)

	s.mu.Lock()
	messages := make([]*schema.Message, 0, len(s.history)+2)
	messages = append(messages, s.system)
	messages = append(messages, s.history...)
	messages = append(messages, input)
	s.mu.Unlock()

	resp, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("AI generation failed: %w", err)
	}

	s.mu.Lock()
	s.history = append(s.history, input, schema.AssistantMessage(resp.Content, nil))
	s.mu.Unlock()

	s.logger.Debug("response received", zap.Int("length", len(resp.Content)))
	return resp.Content, nil
}

func toSchemaMessage(parts []Part) *schema.Message {
	if len(parts) == 1 && parts[0].Audio == nil {
		return schema.UserMessage(parts[0].Text)
	}

	content := make([]schema.ChatMessagePart, 0, len(parts))
	for _, part := range parts {
		if part.Audio != nil {
			content = append(content, schema.ChatMessagePart{
				Type: schema.ChatMessagePartTypeAudioURL,
				AudioURL: &schema.ChatMessageAudioURL{
					URL:      "data:" + part.Audio.MIMEType + ";base64," + part.Audio.Data,
					MIMEType: part.Audio.MIMEType,
				},
			})
			continue
		}
		content = append(content, schema.ChatMessagePart{
			Type: schema.ChatMessagePartTypeText,
			Text: part.Text,
		})
	}
	return &schema.Message{Role: schema.User, MultiContent: content}
}
