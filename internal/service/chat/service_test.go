package chat_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhouzirui/euonia-ta/backend/internal/model/chat"
	"github.com/zhouzirui/euonia-ta/backend/internal/model/course"
	"github.com/zhouzirui/euonia-ta/backend/internal/model/speech"
	"github.com/zhouzirui/euonia-ta/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/euonia-ta/backend/internal/service/chat"
)

type published struct {
	conversation string
	event        string
	payload      any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(conversationID, event string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{conversation: conversationID, event: event, payload: payload})
	return nil
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.events))
	for _, e := range p.events {
		names = append(names, e.event)
	}
	return names
}

func (p *recordingPublisher) count(event string) int {
	n := 0
	for _, name := range p.names() {
		if name == event {
			n++
		}
	}
	return n
}

type fakeSession struct {
	mu      sync.Mutex
	replies []string
	err     error
	sent    [][]ai.Part
	gate    chan struct{}
}

func (s *fakeSession) Send(ctx context.Context, parts ...ai.Part) (string, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, parts)
	if s.err != nil {
		return "", s.err
	}
	reply := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return reply, nil
}

type fakeFactory struct {
	session *fakeSession
	err     error
	created int
}

func (f *fakeFactory) NewSession(context.Context) (ai.ChatSession, error) {
	f.created++
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func playback() speech.PlaybackConfig {
	return speech.PlaybackConfig{Rate: 1.05, Pitch: 1.0, Lang: "en-US", PreferredName: "Samantha", PlatformLabel: "Google US English"}
}

func newService(t *testing.T, factory ai.SessionFactory) (*chatservice.Service, *chatservice.Conversation, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	svc := chatservice.NewService(factory, course.Seed(), pub, playback(), zap.NewNop())
	conv, err := svc.CreateConversation(context.Background())
	require.NoError(t, err)
	return svc, conv, pub
}

func TestConversationStartsWithWelcome(t *testing.T) {
	svc, conv, _ := newService(t, &fakeFactory{session: &fakeSession{replies: []string{"ok"}}})

	messages := conv.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, chat.RoleModel, messages[0].Role)
	assert.Equal(t, course.Seed().WelcomeLine, messages[0].Text)
	assert.NotEmpty(t, messages[0].HTML)

	got, err := svc.Get(conv.ID())
	require.NoError(t, err)
	assert.Same(t, conv, got)

	_, err = svc.Get("missing")
	assert.ErrorIs(t, err, chatservice.ErrConversationNotFound)
}

func TestTextTurnAppendsInOrderWithoutPlayback(t *testing.T) {
	session := &fakeSession{replies: []string{
		`**AIDA** stands for Attention, Interest, Desire, Action. [[ANALYTICS: {"concept": "AIDA", "level": "intro", "useCase": "concept clarification", "outcome": "resolved"}]]`,
	}}
	factory := &fakeFactory{session: session}
	_, conv, pub := newService(t, factory)

	reply, err := conv.SendTurn(context.Background(), chat.TurnInput{Text: "What is AIDA?"})
	require.NoError(t, err)

	messages := conv.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, chat.RoleUser, messages[1].Role)
	assert.Equal(t, "What is AIDA?", messages[1].Text)
	assert.Equal(t, chat.RoleModel, messages[2].Role)
	assert.Equal(t, reply.ID, messages[2].ID)
	assert.Equal(t, "**AIDA** stands for Attention, Interest, Desire, Action. ", reply.Text)
	assert.Contains(t, reply.HTML, "<strong>AIDA</strong>")
	require.NotNil(t, reply.Analytics)
	assert.Equal(t, "AIDA", reply.Analytics.Concept)

	require.Len(t, session.sent, 1)
	require.Len(t, session.sent[0], 1)
	assert.Equal(t, "What is AIDA?", session.sent[0][0].Text)

	assert.False(t, conv.Loading())
	assert.Zero(t, pub.count(chatservice.EventSpeak))
	assert.Equal(t, 2, pub.count(chatservice.EventMessage))
	assert.Equal(t, 2, pub.count(chatservice.EventLoading))
	assert.Equal(t, 1, factory.created)

	_, err = conv.SendTurn(context.Background(), chat.TurnInput{Text: "And DAGMAR?"})
	require.NoError(t, err)
	assert.Equal(t, 1, factory.created, "session is created once and reused")
}

func TestVoiceTurnShowsTranscriptAndSpeaks(t *testing.T) {
	session := &fakeSession{replies: []string{"DAGMAR sets **measurable** goals."}}
	_, conv, pub := newService(t, &fakeFactory{session: session})
	conv.SetVoices([]speech.Voice{{Name: "A"}, {Name: "Samantha"}, {Name: "B"}}, true)

	_, err := conv.SendTurn(context.Background(), chat.TurnInput{
		AudioBase64: "QUJD",
		MIMEType:    "audio/webm",
		Transcript:  "  The DAGMAR model is used  ",
	})
	require.NoError(t, err)

	messages := conv.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, "The DAGMAR model is used", messages[1].Text)

	require.Len(t, session.sent[0], 1)
	require.NotNil(t, session.sent[0][0].Audio)
	assert.Equal(t, "audio/webm", session.sent[0][0].Audio.MIMEType)

	var utterance speech.Utterance
	for _, e := range pub.events {
		if e.event == chatservice.EventSpeak {
			utterance = e.payload.(speech.Utterance)
		}
	}
	assert.Equal(t, "DAGMAR sets measurable goals.", utterance.Text)
	assert.Equal(t, "Samantha", utterance.Voice)
}

func TestVoiceTurnWithoutTranscriptUsesPlaceholder(t *testing.T) {
	session := &fakeSession{replies: []string{"ok"}}
	_, conv, pub := newService(t, &fakeFactory{session: session})
	conv.SetVoices(nil, false)

	_, err := conv.SendTurn(context.Background(), chat.TurnInput{AudioBase64: "QUJD"})
	require.NoError(t, err)

	messages := conv.Messages()
	assert.Equal(t, chat.AudioPlaceholder, messages[1].Text)
	assert.Equal(t, "audio/wav", session.sent[0][0].Audio.MIMEType)
	assert.Zero(t, pub.count(chatservice.EventSpeak))
}

func TestEmptyTurnRejected(t *testing.T) {
	_, conv, _ := newService(t, &fakeFactory{session: &fakeSession{replies: []string{"ok"}}})

	_, err := conv.SendTurn(context.Background(), chat.TurnInput{Text: "   "})
	assert.ErrorIs(t, err, chatservice.ErrEmptyTurn)
	assert.Len(t, conv.Messages(), 1)
}

func TestTurnInFlightRejected(t *testing.T) {
	session := &fakeSession{replies: []string{"first answer"}, gate: make(chan struct{})}
	svc, conv, _ := newService(t, &fakeFactory{session: session})

	_, err := conv.Submit(context.Background(), chat.TurnInput{Text: "first"})
	require.NoError(t, err)
	assert.True(t, conv.Loading())

	_, err = conv.Submit(context.Background(), chat.TurnInput{Text: "second"})
	assert.ErrorIs(t, err, chatservice.ErrTurnInFlight)
	assert.Len(t, conv.Messages(), 2)

	close(session.gate)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Wait(ctx))

	messages := conv.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, "first answer", messages[2].Text)
	assert.False(t, conv.Loading())
}

func TestFailedTurnAppendsApology(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "generic failure",
			err:  errors.New("connection reset"),
			want: chatservice.ApologyText,
		},
		{
			name: "bad request",
			err:  errors.New("Error 400: invalid argument"),
			want: chatservice.ApologyText + " (System Error: Error 400: invalid argument)",
		},
		{
			name: "forbidden",
			err:  errors.New("status 403"),
			want: chatservice.ApologyText + " (System Error: status 403)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, conv, _ := newService(t, &fakeFactory{session: &fakeSession{err: tt.err}})

			reply, err := conv.SendTurn(context.Background(), chat.TurnInput{Text: "hello"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, reply.Text)
			assert.Nil(t, reply.Analytics)
			assert.False(t, conv.Loading())
		})
	}
}

func TestMissingCredentialApologyAndRetry(t *testing.T) {
	factory := &fakeFactory{err: ai.ErrMissingCredential}
	_, conv, _ := newService(t, factory)

	reply, err := conv.SendTurn(context.Background(), chat.TurnInput{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, chatservice.ApologyText+" (System Error: API_KEY environment variable is missing.)", reply.Text)

	_, err = conv.SendTurn(context.Background(), chat.TurnInput{Text: "again"})
	require.NoError(t, err)
	assert.Equal(t, 2, factory.created)
	assert.Len(t, conv.Messages(), 5)
}

func TestNewSendCancelsPlayback(t *testing.T) {
	session := &fakeSession{replies: []string{"spoken answer"}}
	_, conv, pub := newService(t, &fakeFactory{session: session})

	_, err := conv.SendTurn(context.Background(), chat.TurnInput{AudioBase64: "QUJD", MIMEType: "audio/webm"})
	require.NoError(t, err)
	require.Equal(t, 1, pub.count(chatservice.EventSpeak))

	_, err = conv.SendTurn(context.Background(), chat.TurnInput{Text: "typed"})
	require.NoError(t, err)
	assert.Equal(t, 1, pub.count(chatservice.EventSpeechCancel))

	conv.StopSpeaking(context.Background())
	assert.Equal(t, 1, pub.count(chatservice.EventSpeechCancel))
}

func TestBeginRecordingStopsSpeechAndClearsDraft(t *testing.T) {
	session := &fakeSession{replies: []string{"spoken answer"}}
	_, conv, pub := newService(t, &fakeFactory{session: session})

	_, err := conv.SendTurn(context.Background(), chat.TurnInput{AudioBase64: "QUJD", MIMEType: "audio/webm"})
	require.NoError(t, err)

	conv.SetDraft("partial words")
	conv.BeginRecording(context.Background())
	assert.Empty(t, conv.Draft())
	assert.Equal(t, 1, pub.count(chatservice.EventSpeechCancel))
}

func TestSubmitSuggestion(t *testing.T) {
	session := &fakeSession{replies: []string{"The FCB grid..."}}
	svc, conv, _ := newService(t, &fakeFactory{session: session})

	user, err := conv.SubmitSuggestion(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "How does the FCB grid classify products?", user.Text)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Wait(ctx))
	assert.Len(t, conv.Messages(), 3)

	_, err = conv.SubmitSuggestion(context.Background(), 99)
	assert.ErrorIs(t, err, chatservice.ErrUnknownSuggestion)
}

// resubmittingPublisher sends a follow-up question as soon as the first turn
// reports loading=false, the earliest moment a client may send again.
type resubmittingPublisher struct {
	recordingPublisher
	conv *chatservice.Conversation
	once sync.Once
	err  error
}

func (p *resubmittingPublisher) Publish(conversationID, event string, payload any) error {
	_ = p.recordingPublisher.Publish(conversationID, event, payload)
	if loading, ok := payload.(chatservice.LoadingPayload); ok && !loading.Loading {
		p.once.Do(func() {
			_, p.err = p.conv.Submit(context.Background(), chat.TurnInput{Text: "next question"})
		})
	}
	return nil
}

func TestNextSendAfterLoadingClearsCancelsReplyPlayback(t *testing.T) {
	pub := &resubmittingPublisher{}
	session := &fakeSession{replies: []string{"spoken answer", "typed answer"}}
	svc := chatservice.NewService(&fakeFactory{session: session}, course.Seed(), pub, playback(), zap.NewNop())
	conv, err := svc.CreateConversation(context.Background())
	require.NoError(t, err)
	pub.conv = conv

	_, err = conv.SendTurn(context.Background(), chat.TurnInput{AudioBase64: "QUJD", MIMEType: "audio/webm"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Wait(ctx))
	require.NoError(t, pub.err)

	names := pub.names()
	speakAt, cancelAt, secondStart := -1, -1, -1
	loadingSeen := 0
	for i, name := range names {
		switch name {
		case chatservice.EventSpeak:
			speakAt = i
		case chatservice.EventSpeechCancel:
			cancelAt = i
		case chatservice.EventLoading:
			loadingSeen++
			if loadingSeen == 3 {
				secondStart = i
			}
		}
	}

	require.Equal(t, 1, pub.count(chatservice.EventSpeak), "events: %v", names)
	require.NotEqual(t, -1, secondStart, "events: %v", names)
	assert.Less(t, speakAt, secondStart, "reply playback must start before the next turn")
	assert.Greater(t, cancelAt, speakAt, "the next turn cancels the reply playback")
	assert.Less(t, cancelAt, secondStart)
	assert.Len(t, conv.Messages(), 5)
}

func TestShutdownRejectsNewTurns(t *testing.T) {
	session := &fakeSession{replies: []string{"answer"}, gate: make(chan struct{})}
	svc, conv, _ := newService(t, &fakeFactory{session: session})

	_, err := conv.Submit(context.Background(), chat.TurnInput{Text: "first"})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- svc.Shutdown(ctx)
	}()

	other, err := svc.CreateConversation(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, err := other.Submit(context.Background(), chat.TurnInput{Text: "late"})
		return errors.Is(err, chatservice.ErrShuttingDown)
	}, time.Second, 10*time.Millisecond)

	close(session.gate)
	require.NoError(t, <-done)
	assert.Len(t, conv.Messages(), 3, "the running turn still completes")
}

func TestRemoveConversation(t *testing.T) {
	svc, conv, pub := newService(t, &fakeFactory{session: &fakeSession{replies: []string{"spoken answer"}}})

	_, err := conv.SendTurn(context.Background(), chat.TurnInput{AudioBase64: "QUJD"})
	require.NoError(t, err)

	require.NoError(t, svc.Remove(conv.ID()))
	assert.Equal(t, 1, pub.count(chatservice.EventSpeechCancel), "removal stops playback")

	_, err = svc.Get(conv.ID())
	assert.ErrorIs(t, err, chatservice.ErrConversationNotFound)
	assert.ErrorIs(t, svc.Remove(conv.ID()), chatservice.ErrConversationNotFound)
}
