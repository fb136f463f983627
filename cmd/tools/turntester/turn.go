package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/euonia-ta/backend/internal/config"
	"github.com/zhouzirui/euonia-ta/backend/internal/logging"
	"github.com/zhouzirui/euonia-ta/backend/internal/model/chat"
	"github.com/zhouzirui/euonia-ta/backend/internal/model/course"
	"github.com/zhouzirui/euonia-ta/backend/internal/service/ai"
	"github.com/zhouzirui/euonia-ta/backend/internal/service/analytics"
	"github.com/zhouzirui/euonia-ta/backend/internal/service/voice"
)

var (
	turnTimeout time.Duration
	audioMIME   string
	rawOutput   bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Send a text turn",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		return runTurn(cmd.Context(), ai.PartsForTurn(text, "", ""))
	},
}

var voiceCmd = &cobra.Command{
	Use:   "voice <audio-file> [question]",
	Short: "Send a recorded audio turn, optionally with text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read audio: %w", err)
		}
		mimeType := audioMIME
		if mimeType == "" {
			mimeType = mimeFromExt(args[0])
		}
		text := strings.Join(args[1:], " ")
		return runTurn(cmd.Context(), ai.PartsForTurn(text, base64.StdEncoding.EncodeToString(data), mimeType))
	},
}

func init() {
	for _, c := range []*cobra.Command{askCmd, voiceCmd} {
		c.Flags().DurationVar(&turnTimeout, "timeout", 60*time.Second, "request timeout")
		c.Flags().BoolVar(&rawOutput, "raw", false, "print the raw model text including the analytics tag")
	}
	voiceCmd.Flags().StringVar(&audioMIME, "mime", "", "audio media type (derived from the file extension when empty)")
}

func runTurn(parent context.Context, parts []ai.Part) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, turnTimeout)
	defer cancel()

	logger, err := logging.New(logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	profile, err := loadProfile()
	if err != nil {
		return err
	}

	factory, err := ai.NewSessionFactory(ctx, cfg.AI, profile, logger)
	if err != nil {
		return err
	}
	session, err := factory.NewSession(ctx)
	if err != nil {
		return err
	}

	started := time.Now()
	raw, err := session.Send(ctx, parts...)
	if err != nil {
		return err
	}
	logger.Info("turn complete", zap.Duration("elapsed", time.Since(started)))

	if rawOutput {
		fmt.Println(raw)
		return nil
	}

	result := analytics.NewParser(logger).Parse(raw)
	return printAnswer(result.Text, result.Analytics)
}

func printAnswer(text string, data *chat.AnalyticsData) error {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return fmt.Errorf("create renderer: %w", err)
	}

	out, err := renderer.Render(text)
	if err != nil {
		return fmt.Errorf("render answer: %w", err)
	}
	fmt.Print(out)

	if data == nil {
		fmt.Println("(no analytics tag)")
		return nil
	}
	fmt.Println(strings.Repeat("─", 40))
	fmt.Printf("Concept:  %s\n", data.Concept)
	fmt.Printf("Level:    %s\n", data.Level)
	fmt.Printf("Use Case: %s\n", data.UseCase)
	fmt.Printf("Outcome:  %s\n", data.Outcome)
	return nil
}

func loadProfile() (course.Profile, error) {
	if courseFile == "" {
		return course.Seed(), nil
	}
	return course.LoadFile(courseFile)
}

func mimeFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".webm":
		return "audio/webm"
	case ".mp4", ".m4a":
		return "audio/mp4"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".aac":
		return "audio/aac"
	case ".wav":
		return "audio/wav"
	default:
		return voice.DefaultMIMEType
	}
}
