package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultSystemPrompt = "You are AlatauLLM, an AI assistant for Kazakh students. Answer in Kazakh."

	defaultWorkers       = 4
	defaultGenTimeout    = 60 * time.Second
	defaultSTTTimeout    = 120 * time.Second
	defaultStoreTimeout  = 5 * time.Second
	defaultMaxVoiceBytes = 10 << 20 // 10 MB
)

// Config is the read-once process configuration. All fields are loaded at
// startup and never mutated afterwards.
type Config struct {
	BotToken     string
	LLMAPIKey    string
	Model        string
	SystemPrompt string

	RedisAddr string
	RedisDB   int

	WhisperModel string
	Language     string
	WorkDir      string

	Workers       int
	GenTimeout    time.Duration
	STTTimeout    time.Duration
	StoreTimeout  time.Duration
	MaxVoiceBytes int64
}

// Load reads .env (when present) and the process environment.
func Load() (Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load(".env")

	cfg := Config{
		BotToken:     os.Getenv("BOT_TOKEN"),
		LLMAPIKey:    os.Getenv("LLM_API_KEY"),
		Model:        os.Getenv("MODEL"),
		SystemPrompt: envString("SYSTEM_PROMPT", defaultSystemPrompt),

		RedisAddr: envString("REDIS_HOST", "localhost") + ":" + envString("REDIS_PORT", "6379"),
		RedisDB:   envInt("REDIS_DB", 0),

		WhisperModel: os.Getenv("WHISPER_MODEL"),
		Language:     envString("BOT_LANGUAGE", "kk"),
		WorkDir:      envString("WORK_DIR", os.TempDir()),

		Workers:       envInt("WORKERS", defaultWorkers),
		GenTimeout:    envDuration("GEN_TIMEOUT", defaultGenTimeout),
		STTTimeout:    envDuration("STT_TIMEOUT", defaultSTTTimeout),
		StoreTimeout:  envDuration("STORE_TIMEOUT", defaultStoreTimeout),
		MaxVoiceBytes: int64(envInt("MAX_VOICE_BYTES", defaultMaxVoiceBytes)),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.BotToken == "" {
		return errors.New("config: BOT_TOKEN is required")
	}
	if c.LLMAPIKey == "" {
		return errors.New("config: LLM_API_KEY is required")
	}
	if c.Model == "" {
		return errors.New("config: MODEL is required")
	}
	if c.WhisperModel == "" {
		return errors.New("config: WHISPER_MODEL is required")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config: WORKERS must be positive, got %d", c.Workers)
	}
	if c.MaxVoiceBytes <= 0 {
		return fmt.Errorf("config: MAX_VOICE_BYTES must be positive, got %d", c.MaxVoiceBytes)
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
