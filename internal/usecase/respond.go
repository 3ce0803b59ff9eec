package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Flamme-VRM/KazakhBot/internal/domain"
	"github.com/Flamme-VRM/KazakhBot/internal/worker"
)

const defaultGenTimeout = 60 * time.Second

// GenerationClient is the generation backend as seen by the orchestrator.
type GenerationClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ContextStore is the slice of the context store the orchestrator needs.
// Reads return empty results on store failure; writes are best-effort.
type ContextStore interface {
	GetHistory(ctx context.Context, userID int64) []domain.Utterance
	SaveHistory(ctx context.Context, userID int64, history []domain.Utterance)
	GetCachedResponse(ctx context.Context, fingerprint string) (string, bool)
	CacheResponse(ctx context.Context, fingerprint, text string)
}

// generationFaulter is satisfied by the gemini client's typed generation
// errors without importing its package here.
type generationFaulter interface {
	GenerationKind() string
}

// RespondService assembles bounded-context prompts, consults the response
// cache and invokes the generation backend.
type RespondService struct {
	llm          GenerationClient
	store        ContextStore
	pool         *worker.Pool
	systemPrompt string
	timeout      time.Duration
	log          *slog.Logger

	// userLocks serializes the per-user load→append→generate→save sequence so
	// concurrent messages from one user cannot lose each other's turns.
	// Cross-user requests stay fully parallel.
	mu        sync.Mutex
	userLocks map[int64]*sync.Mutex
}

func NewRespondService(llm GenerationClient, store ContextStore, pool *worker.Pool, systemPrompt string, timeout time.Duration, log *slog.Logger) (*RespondService, error) {
	if llm == nil {
		return nil, errors.New("usecase: generation client must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: context store must not be nil")
	}
	if pool == nil {
		return nil, errors.New("usecase: worker pool must not be nil")
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, errors.New("usecase: system prompt must not be empty")
	}
	if timeout <= 0 {
		timeout = defaultGenTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &RespondService{
		llm:          llm,
		store:        store,
		pool:         pool,
		systemPrompt: systemPrompt,
		timeout:      timeout,
		log:          log,
		userLocks:    make(map[int64]*sync.Mutex),
	}, nil
}

// Respond produces the assistant reply for one inbound user message. Failures
// are returned as *Error with a closed code set; the user's own turn is
// persisted even on failure, an assistant turn only on success or cache hit.
func (s *RespondService) Respond(ctx context.Context, userID int64, text string) (string, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	history := s.store.GetHistory(ctx, userID)
	history = append(history, domain.Utterance{Role: domain.RoleUser, Text: text})

	prompt := buildPrompt(s.systemPrompt, contextWindow(history, contextWindowSize))
	fingerprint := Fingerprint(prompt)

	if cached, ok := s.store.GetCachedResponse(ctx, fingerprint); ok {
		s.log.Info("serving cached response", "user_id", userID)
		history = append(history, domain.Utterance{Role: domain.RoleAssistant, Text: cached})
		s.store.SaveHistory(ctx, userID, history)
		return cached, nil
	}

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var reply string
	err := s.pool.Do(genCtx, func(ctx context.Context) error {
		out, err := s.llm.Generate(ctx, prompt)
		if err != nil {
			return err
		}
		reply = out
		return nil
	})
	if err != nil {
		// Keep the user's turn, no assistant turn, no cache write.
		s.store.SaveHistory(ctx, userID, history)
		return "", s.classify(userID, err)
	}
	if strings.TrimSpace(reply) == "" {
		s.store.SaveHistory(ctx, userID, history)
		s.log.Error("empty response from generation backend", "user_id", userID)
		return "", newError(ErrorEmptyResponse, "empty_reply", nil)
	}

	history = append(history, domain.Utterance{Role: domain.RoleAssistant, Text: reply})
	s.store.SaveHistory(ctx, userID, history)
	s.store.CacheResponse(ctx, fingerprint, reply)
	return reply, nil
}

func (s *RespondService) userLock(userID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[userID] = lock
	}
	return lock
}

// classify maps backend failures to the closed error-code set, logging the
// triggering user identity and error detail.
func (s *RespondService) classify(userID int64, err error) error {
	var fault generationFaulter
	if errors.As(err, &fault) {
		switch fault.GenerationKind() {
		case "blocked":
			s.log.Error("content blocked by safety policy", "user_id", userID, "err", err)
			return newError(ErrorBlockedContent, "generation_blocked", err)
		case "stopped":
			s.log.Error("generation stopped", "user_id", userID, "err", err)
			return newError(ErrorGenerationStopped, "generation_stopped", err)
		case "empty":
			s.log.Error("empty response from generation backend", "user_id", userID, "err", err)
			return newError(ErrorEmptyResponse, "empty_reply", err)
		}
	}
	s.log.Error("unexpected generation failure", "user_id", userID, "err", err)
	return newError(ErrorInternal, "generation_error", err)
}
