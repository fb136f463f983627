package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Provider names accepted by AI_PROVIDER.
const (
	ProviderGemini = "gemini"
	ProviderArk    = "ark"
)

const (
	defaultGeminiModel = "gemini-3-flash-preview"
	defaultTemperature = 0.7
	defaultSettleDelay = 800 * time.Millisecond
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	AI     AIConfig
	Voice  VoiceConfig
	Course CourseConfig
	Log    LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	voice, err := loadVoiceConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		AI:     ai,
		Voice:  voice,
		Course: CourseConfig{File: strings.TrimSpace(os.Getenv("COURSE_FILE"))},
		Log:    LogConfig{Level: getEnvOrDefault("LOG_LEVEL", "info")},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider    string
	APIKey      string
	Model       string
	Temperature float32

	// Ark only.
	AccessKey string
	SecretKey string
	BaseURL   string
	Region    string
}

// HasCredential reports whether a remote call can be authorised at all.
func (c AIConfig) HasCredential() bool {
	if c.APIKey != "" {
		return true
	}
	return c.Provider == ProviderArk && c.AccessKey != "" && c.SecretKey != ""
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.HasCredential() || c.Model == "" {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + AI_MODEL 或 AK/SK 组合")
	}

	temperature := c.Temperature
	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		Temperature: &temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderGemini))
	if provider != ProviderGemini && provider != ProviderArk {
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", provider)
	}

	temperature, err := parseOptionalFloat32Env("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	temp := float32(defaultTemperature)
	if temperature != nil {
		temp = *temperature
	}

	cfg := AIConfig{
		Provider:    provider,
		Temperature: temp,
	}

	switch provider {
	case ProviderArk:
		cfg.APIKey = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
		cfg.AccessKey = strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY"))
		cfg.SecretKey = strings.TrimSpace(os.Getenv("ARK_SECRET_KEY"))
		cfg.Model = strings.TrimSpace(os.Getenv("AI_MODEL"))
		cfg.BaseURL = getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3")
		cfg.Region = getEnvOrDefault("ARK_REGION", "cn-beijing")
	default:
		cfg.APIKey = strings.TrimSpace(os.Getenv("API_KEY"))
		if cfg.APIKey == "" {
			cfg.APIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
		}
		cfg.Model = getEnvOrDefault("AI_MODEL", defaultGeminiModel)
	}

	return cfg, nil
}

// VoiceConfig 描述语音采集与播报配置。
type VoiceConfig struct {
	SettleDelay   time.Duration
	Language      string
	SpeechRate    float32
	SpeechPitch   float32
	PreferredName string
	PlatformLabel string
	DumpAudio     bool
}

func loadVoiceConfig() (VoiceConfig, error) {
	settle := defaultSettleDelay
	if raw := strings.TrimSpace(os.Getenv("VOICE_SETTLE_DELAY")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return VoiceConfig{}, fmt.Errorf("invalid VOICE_SETTLE_DELAY value %q: %w", raw, err)
		}
		if d < 0 {
			return VoiceConfig{}, fmt.Errorf("invalid VOICE_SETTLE_DELAY value %q: must not be negative", raw)
		}
		settle = d
	}

	rate, err := parseOptionalFloat32Env("SPEECH_RATE")
	if err != nil {
		return VoiceConfig{}, err
	}
	speechRate := float32(1.05)
	if rate != nil {
		speechRate = *rate
	}

	pitch, err := parseOptionalFloat32Env("SPEECH_PITCH")
	if err != nil {
		return VoiceConfig{}, err
	}
	speechPitch := float32(1.0)
	if pitch != nil {
		speechPitch = *pitch
	}

	dump, err := parseBoolEnv("VOICE_DUMP_AUDIO", false)
	if err != nil {
		return VoiceConfig{}, err
	}

	return VoiceConfig{
		DumpAudio:     dump,
		SettleDelay:   settle,
		Language:      getEnvOrDefault("VOICE_LANGUAGE", "en-US"),
		SpeechRate:    speechRate,
		SpeechPitch:   speechPitch,
		PreferredName: getEnvOrDefault("SPEECH_VOICE", "Samantha"),
		PlatformLabel: getEnvOrDefault("SPEECH_PLATFORM_VOICE", "Google US English"),
	}, nil
}

// CourseConfig points at an optional course profile override.
type CourseConfig struct {
	File string
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
