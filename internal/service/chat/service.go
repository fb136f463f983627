package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/euonia-ta/backend/internal/logging"
	"github.com/zhouzirui/euonia-ta/backend/internal/model/chat"
	"github.com/zhouzirui/euonia-ta/backend/internal/model/course"
	"github.com/zhouzirui/euonia-ta/backend/internal/model/speech"
	"github.com/zhouzirui/euonia-ta/backend/internal/render"
	"github.com/zhouzirui/euonia-ta/backend/internal/service/ai"
	"github.com/zhouzirui/euonia-ta/backend/internal/service/analytics"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrEmptyTurn            = errors.New("turn has neither text nor audio")
	ErrTurnInFlight         = errors.New("a turn is already in flight")
	ErrUnknownSuggestion    = errors.New("suggested question not found")
	ErrShuttingDown         = errors.New("service is shutting down")
)

// Service owns the in-memory conversations, one per page load.
type Service struct {
	sessions  ai.SessionFactory
	profile   course.Profile
	publisher Publisher
	playback  speech.PlaybackConfig
	parser    *analytics.Parser
	markdown  *render.Markdown
	logger    *zap.Logger

	mu            sync.RWMutex
	conversations map[string]*Conversation
	closed        bool

	turns sync.WaitGroup
}

// NewService wires the orchestrator. A nil publisher drops events.
func NewService(sessions ai.SessionFactory, profile course.Profile, publisher Publisher, playback speech.PlaybackConfig, logger *zap.Logger) *Service {
	logger = logging.OrNop(logger).Named("chat")
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &Service{
		sessions:      sessions,
		profile:       profile,
		publisher:     publisher,
		playback:      playback,
		parser:        analytics.NewParser(logger),
		markdown:      render.NewMarkdown(),
		logger:        logger,
		conversations: make(map[string]*Conversation),
	}
}

// Profile returns the course the assistant is bound to.
func (s *Service) Profile() course.Profile {
	return s.profile
}

// CreateConversation opens a conversation seeded with the welcome message.
func (s *Service) CreateConversation(_ context.Context) (*Conversation, error) {
	info := chat.Session{
		ID:        uuid.NewString(),
		CourseID:  s.profile.ID,
		CreatedAt: time.Now().UTC(),
	}

	conv := newConversation(s, info)

	s.mu.Lock()
	s.conversations[info.ID] = conv
	s.mu.Unlock()

	s.logger.Info("conversation created", zap.String("conversation", info.ID))
	return conv, nil
}

// Get retrieves a conversation by identifier.
func (s *Service) Get(id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

// Remove forgets a conversation when its page goes away. In-flight turns still finish.
func (s *Service) Remove(id string) error {
	s.mu.Lock()
	conv, ok := s.conversations[id]
	delete(s.conversations, id)
	s.mu.Unlock()

	if !ok {
		return ErrConversationNotFound
	}
	conv.speaker.Cancel(context.Background())
	s.logger.Info("conversation removed", zap.String("conversation", id))
	return nil
}

// acquireTurn registers a turn with the shutdown wait group.
func (s *Service) acquireTurn() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrShuttingDown
	}
	s.turns.Add(1)
	return nil
}

// Wait blocks until running turns finish or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.turns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown rejects new turns with ErrShuttingDown, then waits like Wait.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Wait(ctx)
}
