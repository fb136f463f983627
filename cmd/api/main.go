package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	euonia "github.com/zhouzirui/euonia-ta/backend"
	"github.com/zhouzirui/euonia-ta/backend/internal/config"
	"github.com/zhouzirui/euonia-ta/backend/internal/handler"
	"github.com/zhouzirui/euonia-ta/backend/internal/handler/events"
	"github.com/zhouzirui/euonia-ta/backend/internal/logging"
	"github.com/zhouzirui/euonia-ta/backend/internal/model/course"
	speechModel "github.com/zhouzirui/euonia-ta/backend/internal/model/speech"
	"github.com/zhouzirui/euonia-ta/backend/internal/service/ai"
	"github.com/zhouzirui/euonia-ta/backend/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	profile, err := loadCourse(cfg.Course)
	if err != nil {
		logger.Fatal("failed to load course profile", zap.Error(err))
	}
	courses := course.NewMemoryStore(profile)

	sessions, err := ai.NewSessionFactory(ctx, cfg.AI, profile, logger)
	if err != nil {
		logger.Fatal("failed to initialize AI provider", zap.Error(err))
	}
	logger.Info("AI provider ready",
		zap.String("provider", cfg.AI.Provider),
		zap.String("model", cfg.AI.Model),
		zap.Bool("credential", cfg.AI.HasCredential()),
	)

	broker := events.NewBroker(logger)
	chatService := chat.NewService(sessions, profile, broker, speechModel.PlaybackConfig{
		Rate:          cfg.Voice.SpeechRate,
		Pitch:         cfg.Voice.SpeechPitch,
		Lang:          cfg.Voice.Language,
		PreferredName: cfg.Voice.PreferredName,
		PlatformLabel: cfg.Voice.PlatformLabel,
	}, logger)

	static, err := fs.Sub(euonia.StaticFS, "static")
	if err != nil {
		logger.Fatal("failed to open static assets", zap.Error(err))
	}

	router := handler.NewRouter(handler.Dependencies{
		Courses: courses,
		Chats:   chatService,
		Broker:  broker,
		Voice:   cfg.Voice,
		Static:  static,
		Logger:  logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv.RegisterOnShutdown(func() {
		if err := broker.Shutdown(context.Background()); err != nil {
			logger.Warn("failed to shutdown sse server", zap.Error(err))
		}
	})

	logger.Info("Euonia TA backend listening", zap.String("addr", cfg.Server.Addr), zap.String("course", profile.ID))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := chatService.Shutdown(waitCtx); err != nil {
		logger.Warn("turns still running at exit", zap.Error(err))
	}
}

func loadCourse(cfg config.CourseConfig) (course.Profile, error) {
	if cfg.File == "" {
		return course.Seed(), nil
	}
	return course.LoadFile(cfg.File)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
