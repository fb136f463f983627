package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/euonia-ta/backend/internal/model/chat"
	"github.com/zhouzirui/euonia-ta/backend/internal/model/speech"
	"github.com/zhouzirui/euonia-ta/backend/internal/render"
	"github.com/zhouzirui/euonia-ta/backend/internal/service/ai"
	speechsvc "github.com/zhouzirui/euonia-ta/backend/internal/service/speech"
)

// ApologyText replaces the model reply when a remote call fails.
const ApologyText = "I apologize, but I encountered an error connecting to the service. Please try again."

// Audio sent without a type is labelled as WAV.
const fallbackTurnMIMEType = "audio/wav"

// Conversation is one append-only chat with the teaching assistant. At most one
// remote call is outstanding at any time.
type Conversation struct {
	svc     *Service
	info    chat.Session
	emitter conversationEmitter
	speaker *speechsvc.Speaker
	logger  *zap.Logger

	mu       sync.Mutex
	messages []chat.Message
	inFlight bool
	draft    string
	session  ai.ChatSession
}

func newConversation(svc *Service, info chat.Session) *Conversation {
	emitter := conversationEmitter{id: info.ID, publisher: svc.publisher}
	logger := svc.logger.With(zap.String("conversation", info.ID))

	c := &Conversation{
		svc:      svc,
		info:     info,
		emitter:  emitter,
		speaker:  speechsvc.NewSpeaker(svc.playback, speechsvc.NewClientSynthesizer(emitter), logger),
		logger:   logger,
		messages: make([]chat.Message, 0, 16),
	}
	c.messages = append(c.messages, c.newModelMessage(svc.profile.WelcomeLine, nil))
	return c
}

// ID returns the conversation identifier.
func (c *Conversation) ID() string {
	return c.info.ID
}

// Info returns the conversation metadata.
func (c *Conversation) Info() chat.Session {
	return c.info
}

// Messages returns a copy of the transcript in display order.
func (c *Conversation) Messages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	copied := make([]chat.Message, len(c.messages))
	copy(copied, c.messages)
	return copied
}

// Loading reports whether a remote call is outstanding.
func (c *Conversation) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Draft returns the text currently shown in the input box.
func (c *Conversation) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// SetDraft replaces the input box text, e.g. with a live transcript.
func (c *Conversation) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
	c.publish(EventDraft, DraftPayload{Text: text})
}

// Notify shows a user-facing notice.
func (c *Conversation) Notify(message string) {
	c.publish(EventNotice, NoticePayload{Message: message})
}

// StopSpeaking cancels playback, e.g. when the input box gains focus.
func (c *Conversation) StopSpeaking(ctx context.Context) {
	c.speaker.Cancel(ctx)
}

// BeginRecording stops playback and clears the draft before a voice capture starts.
func (c *Conversation) BeginRecording(ctx context.Context) {
	c.speaker.Cancel(ctx)
	c.SetDraft("")
}

// SetVoices stores the client's voice list and whether it can synthesize speech at all.
func (c *Conversation) SetVoices(voices []speech.Voice, synthesis bool) {
	if synthesis {
		c.speaker.SetSynthesizer(speechsvc.NewClientSynthesizer(c.emitter))
	} else {
		c.speaker.SetSynthesizer(speechsvc.NopSynthesizer{})
	}
	c.speaker.SetVoices(voices)
}

// SelectedVoice returns the voice playback will use.
func (c *Conversation) SelectedVoice() (speech.Voice, bool) {
	return c.speaker.Voice()
}

// SpeechFinished records that the client finished reading an utterance.
func (c *Conversation) SpeechFinished(utteranceID string) {
	c.speaker.Finished(utteranceID)
}

// SendTurn runs a full turn synchronously and returns the model's message.
func (c *Conversation) SendTurn(ctx context.Context, input chat.TurnInput) (chat.Message, error) {
	if _, err := c.begin(ctx, input); err != nil {
		return chat.Message{}, err
	}
	defer c.svc.turns.Done()
	return c.complete(ctx, input), nil
}

// Submit starts a turn and returns the user message right away. The reply is
// published when the remote call finishes.
func (c *Conversation) Submit(ctx context.Context, input chat.TurnInput) (chat.Message, error) {
	user, err := c.begin(ctx, input)
	if err != nil {
		return chat.Message{}, err
	}

	turnCtx := context.WithoutCancel(ctx)
	go func() {
		defer c.svc.turns.Done()
		c.complete(turnCtx, input)
	}()
	return user, nil
}

// SubmitSuggestion stops playback and sends the suggested question at index as a text turn.
func (c *Conversation) SubmitSuggestion(ctx context.Context, index int) (chat.Message, error) {
	question, ok := c.svc.profile.Suggestion(index)
	if !ok {
		return chat.Message{}, ErrUnknownSuggestion
	}
	c.speaker.Cancel(ctx)
	return c.Submit(ctx, chat.TurnInput{Text: question})
}

func (c *Conversation) begin(ctx context.Context, input chat.TurnInput) (chat.Message, error) {
	if input.Empty() {
		return chat.Message{}, ErrEmptyTurn
	}
	if err := c.svc.acquireTurn(); err != nil {
		return chat.Message{}, err
	}

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		c.svc.turns.Done()
		return chat.Message{}, ErrTurnInFlight
	}
	c.inFlight = true
	c.mu.Unlock()

	c.speaker.Cancel(ctx)

	user := chat.Message{
		ID:        uuid.NewString(),
		Role:      chat.RoleUser,
		Text:      input.DisplayText(),
		CreatedAt: time.Now().UTC(),
	}
	user.HTML = render.Plain(user.Text)

	c.mu.Lock()
	c.messages = append(c.messages, user)
	c.draft = ""
	c.mu.Unlock()

	c.publish(EventMessage, user)
	c.publish(EventDraft, DraftPayload{})
	c.publish(EventLoading, LoadingPayload{Loading: true})

	c.logger.Info("turn started", zap.String("origin", string(input.Origin())))
	return user, nil
}

func (c *Conversation) complete(ctx context.Context, input chat.TurnInput) chat.Message {
	raw, err := c.send(ctx, input)

	var reply chat.Message
	if err != nil {
		c.logger.Error("turn failed", zap.Error(err))
		reply = c.newModelMessage(apologyFor(err), nil)
	} else {
		result := c.svc.parser.Parse(raw)
		reply = c.newModelMessage(result.Text, result.Analytics)
	}

	c.mu.Lock()
	c.messages = append(c.messages, reply)
	c.mu.Unlock()

	c.publish(EventMessage, reply)

	// Playback must start before inFlight clears.
	if err == nil {
		if input.Origin() == chat.OriginVoice {
			c.speaker.Speak(ctx, reply.Text)
		}
		c.svc.parser.Log(c.info.ID, reply.Analytics)
	}

	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()

	c.publish(EventLoading, LoadingPayload{Loading: false})
	return reply
}

func (c *Conversation) send(ctx context.Context, input chat.TurnInput) (string, error) {
	session, err := c.chatSession(ctx)
	if err != nil {
		return "", err
	}

	mimeType := input.MIMEType
	if input.AudioBase64 != "" && mimeType == "" {
		mimeType = fallbackTurnMIMEType
	}
	return session.Send(ctx, ai.PartsForTurn(input.Text, input.AudioBase64, mimeType)...)
}

// chatSession creates the remote session on first use. A failed attempt is
// retried on the next turn.
func (c *Conversation) chatSession(ctx context.Context) (ai.ChatSession, error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session != nil {
		return session, nil
	}

	session, err := c.svc.sessions.NewSession(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	return session, nil
}

func (c *Conversation) newModelMessage(text string, data *chat.AnalyticsData) chat.Message {
	msg := chat.Message{
		ID:        uuid.NewString(),
		Role:      chat.RoleModel,
		Text:      text,
		Analytics: data,
		CreatedAt: time.Now().UTC(),
	}
	html, err := c.svc.markdown.Render(text)
	if err != nil {
		c.logger.Warn("render markdown", zap.Error(err))
		html = render.Plain(text)
	}
	msg.HTML = html
	return msg
}

func (c *Conversation) publish(event string, payload any) {
	if err := c.emitter.Emit(event, payload); err != nil {
		c.logger.Debug("publish event", zap.String("event", event), zap.Error(err))
	}
}

// apologyFor builds the apology text, appending the error for credential and
// request failures so they can be diagnosed from the UI.
func apologyFor(err error) string {
	msg := err.Error()
	if strings.Contains(msg, "API_KEY") || strings.Contains(msg, "400") || strings.Contains(msg, "403") {
		return ApologyText + " (System Error: " + msg + ")"
	}
	return ApologyText
}
