package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Flamme-VRM/KazakhBot/internal/domain"
)

const (
	historyKeyPrefix = "user_history:"
	sessionKeyPrefix = "user_session:"
	cacheKeyPrefix   = "ai_cache:"

	historyTTL = 7 * 24 * time.Hour
	sessionTTL = 24 * time.Hour
	cacheTTL   = time.Hour

	// maxHistoryLen bounds the persisted history; oldest entries are evicted
	// before every save.
	maxHistoryLen = 50

	defaultOpTimeout = 5 * time.Second
)

// redisAPI is the minimal Redis interface required by Client.
// *redis.Client from go-redis/v9 satisfies this interface.
type redisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Client is the TTL-scoped context store: conversation history, user session
// and the generation response cache. It is a best-effort accelerator, not a
// source of truth — every operation degrades to a no-op or an empty result on
// connectivity failure and never surfaces an error to the reply path. The one
// exception is Ping, which callers use to refuse startup without persistence.
type Client struct {
	api       redisAPI
	log       *slog.Logger
	opTimeout time.Duration
}

// New creates a store Client around a Redis API implementation.
func New(api redisAPI, log *slog.Logger, opTimeout time.Duration) (*Client, error) {
	if api == nil {
		return nil, errors.New("store: redis api must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &Client{api: api, log: log, opTimeout: opTimeout}, nil
}

// Ping verifies connectivity. Unlike every other operation this reports the
// failure, so main can refuse to serve traffic without persistence.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	if err := c.api.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// GetHistory returns the persisted conversation history for a user, or an
// empty slice on miss or store failure.
func (c *Client) GetHistory(ctx context.Context, userID int64) []domain.Utterance {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	raw, err := c.api.Get(ctx, historyKey(userID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		c.log.Debug("history read failed", "user_id", userID, "err", err)
		return nil
	}

	var history []domain.Utterance
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		c.log.Debug("history decode failed", "user_id", userID, "err", err)
		return nil
	}
	return history
}

// SaveHistory persists the history under the 7-day TTL, truncated to the most
// recent maxHistoryLen entries.
func (c *Client) SaveHistory(ctx context.Context, userID int64, history []domain.Utterance) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	if len(history) > maxHistoryLen {
		history = history[len(history)-maxHistoryLen:]
	}
	val, err := json.Marshal(history)
	if err != nil {
		c.log.Debug("history encode failed", "user_id", userID, "err", err)
		return
	}
	if err := c.api.Set(ctx, historyKey(userID), val, historyTTL).Err(); err != nil {
		c.log.Debug("history write failed", "user_id", userID, "err", err)
	}
}

// ClearHistory deletes the history key only; session and cache entries for the
// same user are untouched.
func (c *Client) ClearHistory(ctx context.Context, userID int64) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	if err := c.api.Del(ctx, historyKey(userID)).Err(); err != nil {
		c.log.Debug("history delete failed", "user_id", userID, "err", err)
	}
}

// GetSession returns the stored session for a user. The second return value
// reports whether a session was found.
func (c *Client) GetSession(ctx context.Context, userID int64) (domain.Session, bool) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	raw, err := c.api.Get(ctx, sessionKey(userID)).Result()
	if err == redis.Nil {
		return domain.Session{}, false
	}
	if err != nil {
		c.log.Debug("session read failed", "user_id", userID, "err", err)
		return domain.Session{}, false
	}

	var s domain.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		c.log.Debug("session decode failed", "user_id", userID, "err", err)
		return domain.Session{}, false
	}
	return s, true
}

// SetSession overwrites the user session wholesale under the 24-hour TTL.
func (c *Client) SetSession(ctx context.Context, userID int64, s domain.Session) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	val, err := json.Marshal(s)
	if err != nil {
		c.log.Debug("session encode failed", "user_id", userID, "err", err)
		return
	}
	if err := c.api.Set(ctx, sessionKey(userID), val, sessionTTL).Err(); err != nil {
		c.log.Debug("session write failed", "user_id", userID, "err", err)
	}
}

// GetCachedResponse looks up a previously generated reply by prompt
// fingerprint.
func (c *Client) GetCachedResponse(ctx context.Context, fingerprint string) (string, bool) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	raw, err := c.api.Get(ctx, cacheKey(fingerprint)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.log.Debug("cache read failed", "fingerprint", fingerprint, "err", err)
		return "", false
	}
	return raw, true
}

// CacheResponse stores a generated reply under the 1-hour TTL.
func (c *Client) CacheResponse(ctx context.Context, fingerprint, text string) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	if err := c.api.Set(ctx, cacheKey(fingerprint), text, cacheTTL).Err(); err != nil {
		c.log.Debug("cache write failed", "fingerprint", fingerprint, "err", err)
	}
}

func (c *Client) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opTimeout)
}

func historyKey(userID int64) string {
	return historyKeyPrefix + strconv.FormatInt(userID, 10)
}

func sessionKey(userID int64) string {
	return sessionKeyPrefix + strconv.FormatInt(userID, 10)
}

func cacheKey(fingerprint string) string {
	return cacheKeyPrefix + fingerprint
}
