package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tmaxmax/go-sse"
	"go.uber.org/zap"

	"github.com/zhouzirui/euonia-ta/backend/internal/logging"
	chatservice "github.com/zhouzirui/euonia-ta/backend/internal/service/chat"
	"github.com/zhouzirui/euonia-ta/backend/pkg/utils"
)

// Broker publishes conversation events to SSE subscribers. Each conversation
// has its own topic; every subscriber also listens on sse.DefaultTopic for
// server-wide events such as close.
type Broker struct {
	srv    *sse.Server
	logger *zap.Logger
}

// NewBroker creates a broker backed by a go-sse server.
func NewBroker(logger *zap.Logger) *Broker {
	b := &Broker{logger: logging.OrNop(logger).Named("events")}
	b.srv = &sse.Server{
		OnSession: func(s *sse.Session) (sse.Subscription, bool) {
			id := chi.URLParam(s.Req, "conversationID")
			return sse.Subscription{
				Client:      s,
				LastEventID: s.LastEventID,
				Topics:      []string{sse.DefaultTopic, topic(id)},
			}, true
		},
	}
	return b
}

// EventClose tells subscribers the server is going away.
const EventClose = "close"

func topic(conversationID string) string {
	return fmt.Sprintf("conversation-%s", conversationID)
}

// Publish sends payload as JSON under the given event name.
func (b *Broker) Publish(conversationID, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}

	msg := &sse.Message{Type: sse.Type(event)}
	msg.AppendData(string(data))

	if err := b.srv.Publish(msg, topic(conversationID)); err != nil {
		return fmt.Errorf("publish %s event: %w", event, err)
	}
	return nil
}

// Shutdown tells subscribers the stream is closing and waits up to five seconds for them to leave.
func (b *Broker) Shutdown(ctx context.Context) error {
	e := &sse.Message{Type: sse.Type(EventClose)}
	e.AppendData("bye")
	if err := b.srv.Publish(e, sse.DefaultTopic); err != nil {
		b.logger.Debug("publish close event", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return b.srv.Shutdown(ctx)
}

// Handler exposes the subscription endpoint.
type Handler struct {
	broker *Broker
	chats  *chatservice.Service
}

// New creates the events handler.
func New(broker *Broker, chats *chatservice.Service) *Handler {
	return &Handler{broker: broker, chats: chats}
}

// RegisterRoutes 注册事件订阅路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/conversations/{conversationID}/events", h.handleEvents)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	if _, err := h.chats.Get(id); err != nil {
		utils.RespondError(w, h.broker.logger, http.StatusNotFound, err.Error())
		return
	}

	h.broker.logger.Debug("subscriber connected", zap.String("conversation", id))
	h.broker.srv.ServeHTTP(w, r)
}
