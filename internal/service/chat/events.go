package chat

import (
	speechsvc "github.com/zhouzirui/euonia-ta/backend/internal/service/speech"
)

// Event names published on a conversation's topic.
const (
	EventMessage      = "message"
	EventLoading      = "loading"
	EventDraft        = "draft"
	EventNotice       = "notice"
	EventSpeak        = speechsvc.EventSpeak
	EventSpeechCancel = speechsvc.EventCancel
)

// Publisher fans conversation events out to connected clients.
type Publisher interface {
	Publish(conversationID, event string, payload any) error
}

// LoadingPayload is sent when a remote call starts or finishes.
type LoadingPayload struct {
	Loading bool `json:"loading"`
}

// DraftPayload carries the live transcript shown in the input box.
type DraftPayload struct {
	Text string `json:"text"`
}

// NoticePayload is a user-facing notice such as a microphone denial.
type NoticePayload struct {
	Message string `json:"message"`
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, string, any) error { return nil }

// conversationEmitter binds a Publisher to one conversation topic.
type conversationEmitter struct {
	id        string
	publisher Publisher
}

func (e conversationEmitter) Emit(event string, payload any) error {
	return e.publisher.Publish(e.id, event, payload)
}
