package voice

import (
	"context"
	"encoding/base64"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/euonia-ta/backend/internal/config"
	"github.com/zhouzirui/euonia-ta/backend/internal/model/course"
	"github.com/zhouzirui/euonia-ta/backend/internal/model/speech"
	"github.com/zhouzirui/euonia-ta/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/euonia-ta/backend/internal/service/chat"
	voicesvc "github.com/zhouzirui/euonia-ta/backend/internal/service/voice"
)

type echoSession struct {
	parts chan []ai.Part
}

func (s *echoSession) Send(_ context.Context, parts ...ai.Part) (string, error) {
	s.parts <- parts
	return "Heard you.", nil
}

type echoFactory struct{ session *echoSession }

func (f echoFactory) NewSession(context.Context) (ai.ChatSession, error) { return f.session, nil }

type testMessage struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

type noticePublisher struct {
	mu      sync.Mutex
	notices []string
}

func (p *noticePublisher) Publish(_, event string, payload any) error {
	if n, ok := payload.(chatservice.NoticePayload); ok && event == chatservice.EventNotice {
		p.mu.Lock()
		p.notices = append(p.notices, n.Message)
		p.mu.Unlock()
	}
	return nil
}

func (p *noticePublisher) all() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.notices...)
}

func setup(t *testing.T) (*websocket.Conn, *chatservice.Service, *chatservice.Conversation, *echoSession) {
	t.Helper()
	conn, chatSvc, conv, session, _ := setupWithPublisher(t)
	return conn, chatSvc, conv, session
}

func setupWithPublisher(t *testing.T) (*websocket.Conn, *chatservice.Service, *chatservice.Conversation, *echoSession, *noticePublisher) {
	t.Helper()
	session := &echoSession{parts: make(chan []ai.Part, 1)}
	pub := &noticePublisher{}
	chatSvc := chatservice.NewService(echoFactory{session: session}, course.Seed(), pub, speech.PlaybackConfig{}, zap.NewNop())
	conv, err := chatSvc.CreateConversation(context.Background())
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	r := chi.NewRouter()
	NewWebSocketHandler(chatSvc, config.VoiceConfig{SettleDelay: 50 * time.Millisecond, Language: "en-US"}, zap.NewNop()).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/conversations/" + conv.ID() + "/voice/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	first := readUntil(t, conn, "state")
	if first.Data["state"] != "idle" || first.Data["language"] != "en-US" {
		t.Fatalf("unexpected initial state %+v", first)
	}
	return conn, chatSvc, conv, session, pub
}

func readUntil(t *testing.T, conn *websocket.Conn, kind string) testMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg testMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %q: %v", kind, err)
		}
		if msg.Type == kind {
			return msg
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, kind string, data any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": kind, "data": data}); err != nil {
		t.Fatalf("write %s: %v", kind, err)
	}
}

func TestMicrophoneDeniedNotice(t *testing.T) {
	conn, _, _, _, pub := setupWithPublisher(t)

	send(t, conn, "start", StartMessage{Permission: "denied"})
	// stop is rejected because nothing is recording; its error marks the end
	// of everything the start produced on the socket.
	send(t, conn, "stop", nil)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg testMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for stop error: %v", err)
		}
		if msg.Type == "notice" {
			t.Fatalf("notice must only be published on the event stream, got %+v", msg)
		}
		if msg.Type == "error" {
			break
		}
	}

	notices := pub.all()
	if len(notices) != 1 || notices[0] != voicesvc.MicrophoneDeniedNotice {
		t.Fatalf("expected exactly one microphone notice, got %v", notices)
	}
}

func TestVoiceTurnRoundTrip(t *testing.T) {
	conn, chatSvc, conv, session := setup(t)

	send(t, conn, "start", StartMessage{
		Permission:   "granted",
		Capabilities: speech.Capabilities{Recognition: true, MIMETypes: []string{"audio/webm"}},
	})
	if msg := readUntil(t, conn, "state"); msg.Data["state"] != "recording" {
		t.Fatalf("expected recording, got %+v", msg.Data)
	}

	send(t, conn, "audio", AudioMessage{Data: base64.StdEncoding.EncodeToString([]byte("opus-bytes"))})
	send(t, conn, "recognition", speech.RecognitionEvent{Results: []speech.RecognitionResult{
		{Transcript: "The DAGMAR", IsFinal: true},
		{Transcript: "model", IsFinal: false},
	}})
	if msg := readUntil(t, conn, "draft"); msg.Data["text"] != "The DAGMAR model" {
		t.Fatalf("unexpected draft %+v", msg.Data)
	}

	send(t, conn, "stop", StopMessage{})
	send(t, conn, "recognition_end", nil)

	captured := readUntil(t, conn, "captured")
	if captured.Data["mimeType"] != "audio/webm" || captured.Data["transcript"] != "The DAGMAR model" {
		t.Fatalf("unexpected capture %+v", captured.Data)
	}

	select {
	case parts := <-session.parts:
		if len(parts) != 1 || parts[0].Audio == nil || parts[0].Audio.MIMEType != "audio/webm" {
			t.Fatalf("unexpected parts %+v", parts)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("voice turn was not sent")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := chatSvc.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	messages := conv.Messages()
	if len(messages) != 3 || messages[1].Text != "The DAGMAR model" || messages[2].Text != "Heard you." {
		t.Fatalf("unexpected transcript %+v", messages)
	}
}

func TestStopWithoutRecording(t *testing.T) {
	conn, _, _, _ := setup(t)

	send(t, conn, "stop", nil)
	msg := readUntil(t, conn, "error")
	if msg.Data["message"] != voicesvc.ErrNotRecording.Error() {
		t.Fatalf("unexpected error %+v", msg.Data)
	}
}
