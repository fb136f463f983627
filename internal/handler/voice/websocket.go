package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/euonia-ta/backend/internal/config"
	"github.com/zhouzirui/euonia-ta/backend/internal/logging"
	"github.com/zhouzirui/euonia-ta/backend/internal/model/chat"
	"github.com/zhouzirui/euonia-ta/backend/internal/model/speech"
	chatservice "github.com/zhouzirui/euonia-ta/backend/internal/service/chat"
	voicesvc "github.com/zhouzirui/euonia-ta/backend/internal/service/voice"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// WebSocketHandler 语音采集的WebSocket处理器
type WebSocketHandler struct {
	chatSvc  *chatservice.Service
	cfg      config.VoiceConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(chatSvc *chatservice.Service, cfg config.VoiceConfig, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		chatSvc: chatSvc,
		cfg:     cfg,
		logger:  logging.OrNop(logger).Named("voice-ws"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/conversations/{conversationID}/voice/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// StartMessage opens a recording.
type StartMessage struct {
	Permission   string              `json:"permission"`
	Capabilities speech.Capabilities `json:"capabilities"`
}

// AudioMessage carries one recorded chunk, base64 encoded.
type AudioMessage struct {
	Data string `json:"data"`
}

// StopMessage ends the recording. MIMEType is what the recorder reported.
type StopMessage struct {
	MIMEType string `json:"mimeType"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// wsWriter serializes writes; finalization runs beside the read loop.
type wsWriter struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	logger *zap.Logger
}

func (w *wsWriter) send(kind string, data any) {
	w.mu.Lock()
	defer w.mu.Unlock()

	_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	msg := outgoingMessage{Type: kind, Data: data, Timestamp: time.Now().Unix()}
	if err := w.conn.WriteJSON(msg); err != nil {
		w.logger.Debug("write message failed", zap.String("type", kind), zap.Error(err))
	}
}

func (w *wsWriter) sendError(message string) {
	w.send("error", map[string]string{"message": message})
}

func (w *wsWriter) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// captureListener mirrors capture progress to the socket and the conversation draft.
type captureListener struct {
	out  *wsWriter
	conv *chatservice.Conversation
}

func (l captureListener) Draft(text string) {
	l.out.send("draft", map[string]string{"text": text})
	l.conv.SetDraft(text)
}

func (l captureListener) State(state voicesvc.State) {
	l.out.send("state", map[string]string{"state": string(state)})
}

type connectionState struct {
	conv    *chatservice.Conversation
	capture *voicesvc.Capture
	out     *wsWriter
	logger  *zap.Logger

	finalizing sync.WaitGroup
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	conv, err := h.chatSvc.Get(conversationID)
	if err != nil {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := h.logger.With(zap.String("conversation", conversationID))
	logger.Info("voice channel opened")

	out := &wsWriter{conn: conn, logger: logger}
	state := &connectionState{
		conv:    conv,
		capture: voicesvc.NewCapture(h.cfg.SettleDelay, captureListener{out: out, conv: conv}, logger),
		out:     out,
		logger:  logger,
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		state.finalizing.Wait()
		state.capture.Abort()
		logger.Info("voice channel closed")
	}()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go h.pingLoop(ctx, out)

	// 客户端按该语言启动语音识别
	out.send("state", map[string]string{
		"state":    string(voicesvc.StateIdle),
		"language": h.cfg.Language,
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("read error", zap.Error(err))
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		h.handleMessage(ctx, state, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, state *connectionState, msg *inboundMessage) {
	switch msg.Type {
	case "start":
		h.handleStart(ctx, state, msg.Data)
	case "audio":
		h.handleAudio(state, msg.Data)
	case "recognition":
		var event speech.RecognitionEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			state.out.sendError("invalid recognition payload")
			return
		}
		state.capture.Recognize(event)
	case "recognition_end":
		state.capture.EndRecognition()
	case "stop":
		h.handleStop(ctx, state, msg.Data)
	default:
		state.out.sendError("unsupported message type: " + msg.Type)
	}
}

func (h *WebSocketHandler) handleStart(ctx context.Context, state *connectionState, raw json.RawMessage) {
	var start StartMessage
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &start); err != nil {
			state.out.sendError("invalid start payload")
			return
		}
	}

	if state.conv.Loading() {
		state.out.sendError(chatservice.ErrTurnInFlight.Error())
		return
	}

	state.conv.BeginRecording(ctx)

	media := voicesvc.ClientMedia{
		Permission: start.Permission,
		Release: func() {
			state.logger.Debug("microphone released")
		},
	}
	err := state.capture.Start(ctx, media, start.Capabilities)
	switch {
	case err == nil:
	case errors.Is(err, voicesvc.ErrMicrophoneDenied):
		state.conv.Notify(voicesvc.MicrophoneDeniedNotice)
	default:
		state.out.sendError(err.Error())
	}
}

func (h *WebSocketHandler) handleAudio(state *connectionState, raw json.RawMessage) {
	var audio AudioMessage
	if err := json.Unmarshal(raw, &audio); err != nil {
		state.out.sendError("invalid audio payload")
		return
	}

	chunk, err := base64.StdEncoding.DecodeString(audio.Data)
	if err != nil {
		state.out.sendError("invalid audio encoding")
		return
	}

	if err := state.capture.AppendAudio(chunk); err != nil {
		state.out.sendError(err.Error())
	}
}

// handleStop finalizes in the background so recognition results that arrive
// during the settle window are still read.
func (h *WebSocketHandler) handleStop(ctx context.Context, state *connectionState, raw json.RawMessage) {
	var stop StopMessage
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &stop); err != nil {
			state.out.sendError("invalid stop payload")
			return
		}
	}

	if state.capture.State() != voicesvc.StateRecording {
		state.out.sendError(voicesvc.ErrNotRecording.Error())
		return
	}

	state.finalizing.Add(1)
	go func() {
		defer state.finalizing.Done()
		h.finalize(ctx, state, stop.MIMEType)
	}()
}

func (h *WebSocketHandler) finalize(ctx context.Context, state *connectionState, recorderMIME string) {
	result, err := state.capture.Stop(ctx, recorderMIME)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			state.out.sendError(err.Error())
		}
		return
	}

	if h.cfg.DumpAudio {
		h.dumpAudioDebug(state, result)
	}

	state.out.send("captured", map[string]any{
		"mimeType":   result.MIMEType,
		"transcript": result.Transcript,
		"bytes":      base64.StdEncoding.DecodedLen(len(result.AudioBase64)),
	})

	_, err = state.conv.Submit(ctx, chat.TurnInput{
		AudioBase64: result.AudioBase64,
		MIMEType:    result.MIMEType,
		Transcript:  result.Transcript,
	})
	if err != nil {
		state.logger.Warn("voice turn rejected", zap.Error(err))
		state.out.sendError(err.Error())
	}
}

func (h *WebSocketHandler) dumpAudioDebug(state *connectionState, result speech.CaptureResult) {
	data, err := base64.StdEncoding.DecodeString(result.AudioBase64)
	if err != nil || len(data) == 0 {
		return
	}

	ext := strings.TrimPrefix(strings.SplitN(result.MIMEType, ";", 2)[0], "audio/")
	fileName := fmt.Sprintf("voice-%s-%d.%s", state.conv.ID(), time.Now().UnixNano(), ext)
	path := filepath.Join(os.TempDir(), fileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		state.logger.Warn("failed to write debug audio", zap.Error(err))
		return
	}
	state.logger.Info("wrote debug audio", zap.String("path", path))
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, out *wsWriter) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := out.ping(); err != nil {
				return
			}
		}
	}
}
