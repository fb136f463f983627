package handler

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/euonia-ta/backend/internal/config"
	"github.com/zhouzirui/euonia-ta/backend/internal/handler/chat"
	"github.com/zhouzirui/euonia-ta/backend/internal/handler/course"
	"github.com/zhouzirui/euonia-ta/backend/internal/handler/events"
	"github.com/zhouzirui/euonia-ta/backend/internal/handler/voice"
	middlewarePkg "github.com/zhouzirui/euonia-ta/backend/internal/middleware"
	courseModel "github.com/zhouzirui/euonia-ta/backend/internal/model/course"
	chatService "github.com/zhouzirui/euonia-ta/backend/internal/service/chat"
	"github.com/zhouzirui/euonia-ta/backend/pkg/utils"
)

// Dependencies groups what the HTTP layer needs.
type Dependencies struct {
	Courses courseModel.Store
	Chats   *chatService.Service
	Broker  *events.Broker
	Voice   config.VoiceConfig
	// Static serves the browser client at "/". Optional.
	Static fs.FS
	Logger *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, deps.Logger, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Create handlers
	courseHandler := course.New(deps.Courses, deps.Logger)
	chatHandler := chat.New(deps.Chats, deps.Logger)
	eventsHandler := events.New(deps.Broker, deps.Chats)
	voiceHandler := voice.NewWebSocketHandler(deps.Chats, deps.Voice, deps.Logger)

	r.Route("/api", func(api chi.Router) {
		courseHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		eventsHandler.RegisterRoutes(api)
		voiceHandler.RegisterRoutes(api)
	})

	if deps.Static != nil {
		r.Handle("/*", http.FileServer(http.FS(deps.Static)))
	}

	return r
}
