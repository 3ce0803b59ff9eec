package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/Flamme-VRM/KazakhBot/internal/domain"
	"github.com/Flamme-VRM/KazakhBot/internal/usecase"
)

const updateTimeoutSeconds = 30

// errVoiceTooLarge reports a voice payload over the size ceiling, whether
// caught from Telegram metadata or from the downloaded body itself.
var errVoiceTooLarge = errors.New("bot: voice note exceeds size limit")

// BotAPI is the slice of the Telegram API the router uses.
// *tgbotapi.BotAPI satisfies this interface.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Responder is the generation orchestrator as seen by the router.
type Responder interface {
	Respond(ctx context.Context, userID int64, text string) (string, error)
}

// Transcriber is the voice pipeline as seen by the router. An empty result
// means "not recognized".
type Transcriber interface {
	Transcribe(ctx context.Context, rawPath string) string
}

// SessionStore is the slice of the context store the router uses for
// commands.
type SessionStore interface {
	SetSession(ctx context.Context, userID int64, s domain.Session)
	ClearHistory(ctx context.Context, userID int64)
}

// Router dispatches inbound Telegram updates to the orchestrator and the
// voice pipeline, and formats outbound replies with a three-tier fallback.
type Router struct {
	api         BotAPI
	responder   Responder
	transcriber Transcriber
	store       SessionStore
	httpClient  *http.Client

	workDir       string
	language      string
	maxVoiceBytes int64
	log           *slog.Logger
}

type Options struct {
	WorkDir       string
	Language      string
	MaxVoiceBytes int64
	HTTPClient    *http.Client
}

func NewRouter(api BotAPI, responder Responder, transcriber Transcriber, store SessionStore, opts Options, log *slog.Logger) (*Router, error) {
	if api == nil {
		return nil, errors.New("bot: api must not be nil")
	}
	if responder == nil {
		return nil, errors.New("bot: responder must not be nil")
	}
	if transcriber == nil {
		return nil, errors.New("bot: transcriber must not be nil")
	}
	if store == nil {
		return nil, errors.New("bot: session store must not be nil")
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	if opts.MaxVoiceBytes <= 0 {
		return nil, errors.New("bot: max voice bytes must be positive")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		api:           api,
		responder:     responder,
		transcriber:   transcriber,
		store:         store,
		httpClient:    opts.HTTPClient,
		workDir:       opts.WorkDir,
		language:      opts.Language,
		maxVoiceBytes: opts.MaxVoiceBytes,
		log:           log,
	}, nil
}

// Run consumes the long-poll update channel until ctx is done. Each update is
// handled on its own goroutine so users' messages interleave freely.
func (r *Router) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = updateTimeoutSeconds
	updates := r.api.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			r.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			go r.handle(ctx, update.Message)
		}
	}
}

func (r *Router) handle(ctx context.Context, msg *tgbotapi.Message) {
	switch {
	case msg.IsCommand() && msg.Command() == "start":
		r.handleStart(ctx, msg)
	case msg.IsCommand() && msg.Command() == "clear":
		r.handleClear(ctx, msg)
	case msg.Voice != nil:
		r.handleVoice(ctx, msg)
	case msg.Text != "":
		r.handleText(ctx, msg, msg.Text)
	}
}

// handleStart overwrites the user session wholesale and greets.
func (r *Router) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	r.store.SetSession(ctx, msg.From.ID, domain.Session{
		FirstName: msg.From.FirstName,
		Username:  msg.From.UserName,
		StartedAt: msg.Time(),
		Language:  r.language,
	})
	r.log.Info("session started", "user_id", msg.From.ID)
	r.reply(msg.Chat.ID, msgGreeting)
}

// handleClear deletes the history key only; session and cache survive.
func (r *Router) handleClear(ctx context.Context, msg *tgbotapi.Message) {
	r.store.ClearHistory(ctx, msg.From.ID)
	r.log.Info("history cleared", "user_id", msg.From.ID)
	r.reply(msg.Chat.ID, msgHistoryCleared)
}

func (r *Router) handleText(ctx context.Context, msg *tgbotapi.Message, text string) {
	out, err := r.responder.Respond(ctx, msg.From.ID, text)
	if err != nil {
		r.reply(msg.Chat.ID, messageForError(err))
		return
	}
	r.reply(msg.Chat.ID, out)
}

// handleVoice rejects oversized notes before any download or filesystem work,
// then runs the transcription pipeline and feeds recognized text into the
// ordinary text path.
func (r *Router) handleVoice(ctx context.Context, msg *tgbotapi.Message) {
	if int64(msg.Voice.FileSize) > r.maxVoiceBytes {
		r.log.Info("voice note rejected: too large", "user_id", msg.From.ID, "size", msg.Voice.FileSize)
		r.reply(msg.Chat.ID, msgVoiceTooLarge)
		return
	}

	rawPath, err := r.downloadVoice(ctx, msg.Voice.FileID)
	if err != nil {
		if errors.Is(err, errVoiceTooLarge) {
			r.log.Info("voice note rejected: body over limit", "user_id", msg.From.ID)
			r.reply(msg.Chat.ID, msgVoiceTooLarge)
			return
		}
		r.log.Error("voice download failed", "user_id", msg.From.ID, "err", err)
		r.reply(msg.Chat.ID, msgVoiceNotRecognized)
		return
	}

	text := r.transcriber.Transcribe(ctx, rawPath)
	if text == "" {
		r.reply(msg.Chat.ID, msgVoiceNotRecognized)
		return
	}
	r.log.Info("voice note transcribed", "user_id", msg.From.ID)
	r.handleText(ctx, msg, text)
}

// downloadVoice fetches the voice attachment into the work directory. The
// file becomes the property of the transcription pipeline, which deletes it.
func (r *Router) downloadVoice(ctx context.Context, fileID string) (string, error) {
	url, err := r.api.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("bot: resolve file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("bot: build download request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("bot: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bot: download: unexpected status %d", resp.StatusCode)
	}

	path := filepath.Join(r.workDir, uuid.NewString()+".oga")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("bot: create voice file: %w", err)
	}
	// Telegram metadata can under-report; cap the copy and re-check the
	// actual byte count so an oversized body never reaches the pipeline.
	n, err := io.Copy(f, io.LimitReader(resp.Body, r.maxVoiceBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("bot: save voice file: %w", err)
	}
	if n > r.maxVoiceBytes {
		os.Remove(path)
		return "", errVoiceTooLarge
	}
	return path, nil
}

// reply sends with Markdown formatting, retries as plain text on failure, and
// falls back to a fixed delivery-failure notice. A formatting error never
// escapes the handler.
func (r *Router) reply(chatID int64, text string) {
	m := tgbotapi.NewMessage(chatID, text)
	m.ParseMode = tgbotapi.ModeMarkdown
	_, err := r.api.Send(m)
	if err == nil {
		return
	}
	r.log.Error("markdown send failed, retrying plain", "chat_id", chatID, "err", err)

	m.ParseMode = ""
	if _, err = r.api.Send(m); err == nil {
		return
	}
	r.log.Error("plain send failed", "chat_id", chatID, "err", err)

	if _, err := r.api.Send(tgbotapi.NewMessage(chatID, msgDeliveryFailed)); err != nil {
		r.log.Error("delivery-failure notice failed", "chat_id", chatID, "err", err)
	}
}

func messageForError(err error) string {
	var uerr *usecase.Error
	if errors.As(err, &uerr) {
		return messageForCode(uerr.Code)
	}
	return msgInternalError
}
