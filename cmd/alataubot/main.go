package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"

	"github.com/Flamme-VRM/KazakhBot/internal/audio"
	"github.com/Flamme-VRM/KazakhBot/internal/bot"
	"github.com/Flamme-VRM/KazakhBot/internal/config"
	"github.com/Flamme-VRM/KazakhBot/internal/integrations/gemini"
	"github.com/Flamme-VRM/KazakhBot/internal/integrations/stt"
	"github.com/Flamme-VRM/KazakhBot/internal/store"
	"github.com/Flamme-VRM/KazakhBot/internal/usecase"
	"github.com/Flamme-VRM/KazakhBot/internal/voice"
	"github.com/Flamme-VRM/KazakhBot/internal/worker"
)

const banner = `
 _____ _                                   __     ______  __  __
|  ___| | __ _ _ __ ___  _ __ ___   ___    \ \   / /  _ \|  \/  |
| |_  | |/ _` + "`" + ` | '_ ` + "`" + ` _ \| '_ ` + "`" + ` _ \ / _ \____\ \ / /| |_) | |\/| |
|  _| | | (_| | | | | | | | | | | |  __/_____\ V / |  _ <| |  | |
|_|   |_|\__,_|_| |_| |_|_| |_| |_|\___|      \_/  |_| \_\_|  |_|
`

func main() {
	fmt.Print(banner)
	slog.Info("AlatauLLM bot starting up...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	// ---- Context store (required for operation, not merely advisory) ----
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	contextStore, err := store.New(redisClient, slog.Default(), cfg.StoreTimeout)
	if err != nil {
		slog.Error("failed to create context store", "err", err)
		os.Exit(1)
	}
	if err := contextStore.Ping(ctx); err != nil {
		slog.Error("Redis connection failed! Bot cannot start without Redis.", "err", err)
		os.Exit(1)
	}
	slog.Info("Redis connection successful")

	// ---- Workers and backends ----
	pool, err := worker.NewPool(cfg.Workers)
	if err != nil {
		slog.Error("failed to create worker pool", "err", err)
		os.Exit(1)
	}

	llm, err := gemini.NewClient(cfg.LLMAPIKey, cfg.Model)
	if err != nil {
		slog.Error("failed to create generation client", "err", err)
		os.Exit(1)
	}

	recognizer, err := stt.New(cfg.WhisperModel)
	if err != nil {
		slog.Error("failed to load speech model", "err", err)
		os.Exit(1)
	}
	defer recognizer.Close()

	normalizer, err := audio.NewNormalizer(cfg.WorkDir, slog.Default())
	if err != nil {
		slog.Error("failed to create audio normalizer", "err", err)
		os.Exit(1)
	}

	pipeline, err := voice.NewPipeline(normalizer, recognizer, pool, cfg.Language, cfg.STTTimeout, slog.Default())
	if err != nil {
		slog.Error("failed to create transcription pipeline", "err", err)
		os.Exit(1)
	}

	responder, err := usecase.NewRespondService(llm, contextStore, pool, cfg.SystemPrompt, cfg.GenTimeout, slog.Default())
	if err != nil {
		slog.Error("failed to create respond service", "err", err)
		os.Exit(1)
	}

	// ---- Transport ----
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		slog.Error("failed to connect to Telegram", "err", err)
		os.Exit(1)
	}

	router, err := bot.NewRouter(api, responder, pipeline, contextStore, bot.Options{
		WorkDir:       cfg.WorkDir,
		Language:      cfg.Language,
		MaxVoiceBytes: cfg.MaxVoiceBytes,
	}, slog.Default())
	if err != nil {
		slog.Error("failed to create router", "err", err)
		os.Exit(1)
	}

	slog.Info("Bot is ready and polling for messages...")
	if err := router.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("router stopped", "err", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}
