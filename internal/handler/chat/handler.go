package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/euonia-ta/backend/internal/logging"
	"github.com/zhouzirui/euonia-ta/backend/internal/model/chat"
	"github.com/zhouzirui/euonia-ta/backend/internal/model/speech"
	chatService "github.com/zhouzirui/euonia-ta/backend/internal/service/chat"
	"github.com/zhouzirui/euonia-ta/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	logger  *zap.Logger
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, logger *zap.Logger) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		logger:  logging.OrNop(logger).Named("chat-handler"),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/conversations", h.handleCreateConversation)
	r.Route("/conversations/{conversationID}", func(r chi.Router) {
		r.Delete("/", h.handleDeleteConversation)
		r.Get("/messages", h.handleListMessages)
		r.Post("/turns", h.handleSendTurn)
		r.Post("/suggestions/{index}", h.handleSuggestion)
		r.Post("/voices", h.handleVoices)
		r.Post("/speech/stop", h.handleStopSpeaking)
		r.Post("/speech/finished", h.handleSpeechFinished)
	})
}

type conversationResponse struct {
	Conversation chat.Session   `json:"conversation"`
	Messages     []chat.Message `json:"messages"`
	Loading      bool           `json:"loading"`
	Draft        string         `json:"draft"`
}

// handleCreateConversation 每次页面加载创建一个新会话
func (h *Handler) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.chatSvc.CreateConversation(r.Context())
	if err != nil {
		utils.RespondError(w, h.logger, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, h.logger, http.StatusCreated, conversationResponse{
		Conversation: conv.Info(),
		Messages:     conv.Messages(),
	})
}

// handleDeleteConversation 页面关闭时释放会话
func (h *Handler) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.Remove(chi.URLParam(r, "conversationID")); err != nil {
		utils.RespondError(w, h.logger, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}

	utils.RespondJSON(w, h.logger, http.StatusOK, conversationResponse{
		Conversation: conv.Info(),
		Messages:     conv.Messages(),
		Loading:      conv.Loading(),
		Draft:        conv.Draft(),
	})
}

// handleSendTurn 接收一次用户输入，模型回复通过事件流返回
func (h *Handler) handleSendTurn(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}

	var input chat.TurnInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.RespondError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := conv.Submit(r.Context(), input)
	if err != nil {
		h.respondTurnError(w, err)
		return
	}

	utils.RespondJSON(w, h.logger, http.StatusAccepted, map[string]any{"message": msg})
}

func (h *Handler) handleSuggestion(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		utils.RespondError(w, h.logger, http.StatusBadRequest, "invalid suggestion index")
		return
	}

	msg, err := conv.SubmitSuggestion(r.Context(), index)
	if err != nil {
		h.respondTurnError(w, err)
		return
	}

	utils.RespondJSON(w, h.logger, http.StatusAccepted, map[string]any{"message": msg})
}

// handleVoices 记录客户端可用的语音列表
func (h *Handler) handleVoices(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}

	var payload struct {
		Synthesis bool           `json:"synthesis"`
		Voices    []speech.Voice `json:"voices"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	conv.SetVoices(payload.Voices, payload.Synthesis)

	resp := map[string]any{"synthesis": payload.Synthesis}
	if voice, ok := conv.SelectedVoice(); ok && payload.Synthesis {
		resp["selected"] = voice
	}
	utils.RespondJSON(w, h.logger, http.StatusOK, resp)
}

func (h *Handler) handleStopSpeaking(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}
	conv.StopSpeaking(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSpeechFinished(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}

	var payload struct {
		UtteranceID string `json:"utteranceId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.UtteranceID == "" {
		utils.RespondError(w, h.logger, http.StatusBadRequest, "utteranceId is required")
		return
	}

	conv.SpeechFinished(payload.UtteranceID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) conversation(w http.ResponseWriter, r *http.Request) (*chatService.Conversation, bool) {
	conv, err := h.chatSvc.Get(chi.URLParam(r, "conversationID"))
	if err != nil {
		utils.RespondError(w, h.logger, http.StatusNotFound, err.Error())
		return nil, false
	}
	return conv, true
}

func (h *Handler) respondTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrEmptyTurn):
		utils.RespondError(w, h.logger, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatService.ErrTurnInFlight):
		utils.RespondError(w, h.logger, http.StatusConflict, err.Error())
	case errors.Is(err, chatService.ErrUnknownSuggestion):
		utils.RespondError(w, h.logger, http.StatusNotFound, err.Error())
	case errors.Is(err, chatService.ErrShuttingDown):
		utils.RespondError(w, h.logger, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("turn rejected", zap.Error(err))
		utils.RespondError(w, h.logger, http.StatusInternalServerError, "turn failed")
	}
}
