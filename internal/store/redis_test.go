package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Flamme-VRM/KazakhBot/internal/domain"
)

type mockRedis struct {
	data    map[string]string
	ttls    map[string]time.Duration
	deleted []string

	getErr  error
	setErr  error
	delErr  error
	pingErr error
}

func newMockRedis() *mockRedis {
	return &mockRedis{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

func (m *mockRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if m.getErr != nil {
		return redis.NewStringResult("", m.getErr)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if m.setErr != nil {
		return redis.NewStatusResult("", m.setErr)
	}
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	default:
		return redis.NewStatusResult("", fmt.Errorf("unexpected value type %T", value))
	}
	m.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (m *mockRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	if m.delErr != nil {
		return redis.NewIntResult(0, m.delErr)
	}
	var n int64
	for _, k := range keys {
		m.deleted = append(m.deleted, k)
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (m *mockRedis) Ping(_ context.Context) *redis.StatusCmd {
	if m.pingErr != nil {
		return redis.NewStatusResult("", m.pingErr)
	}
	return redis.NewStatusResult("PONG", nil)
}

func newTestClient(t *testing.T, api redisAPI) *Client {
	t.Helper()
	c, err := New(api, slog.Default(), time.Second)
	require.NoError(t, err)
	return c
}

func utterances(n int) []domain.Utterance {
	out := make([]domain.Utterance, n)
	for i := range out {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		out[i] = domain.Utterance{Role: role, Text: fmt.Sprintf("msg-%02d", i)}
	}
	return out
}

func TestNew_ValidatesAPI(t *testing.T) {
	_, err := New(nil, slog.Default(), time.Second)
	require.Error(t, err)
}

func TestHistory_RoundTrip(t *testing.T) {
	api := newMockRedis()
	c := newTestClient(t, api)
	ctx := context.Background()

	history := utterances(3)
	c.SaveHistory(ctx, 42, history)

	got := c.GetHistory(ctx, 42)
	require.Equal(t, history, got)
	require.Equal(t, historyTTL, api.ttls["user_history:42"])
}

func TestSaveHistory_TruncatesToMostRecent(t *testing.T) {
	api := newMockRedis()
	c := newTestClient(t, api)
	ctx := context.Background()

	c.SaveHistory(ctx, 42, utterances(60))

	got := c.GetHistory(ctx, 42)
	require.Len(t, got, maxHistoryLen)
	// Oldest entries evicted, newest preserved.
	require.Equal(t, "msg-10", got[0].Text)
	require.Equal(t, "msg-59", got[len(got)-1].Text)
}

func TestGetHistory_MissAndFailureReturnEmpty(t *testing.T) {
	c := newTestClient(t, newMockRedis())
	require.Empty(t, c.GetHistory(context.Background(), 7))

	api := newMockRedis()
	api.getErr = errors.New("connection refused")
	c = newTestClient(t, api)
	require.Empty(t, c.GetHistory(context.Background(), 7))
}

func TestGetHistory_CorruptPayloadReturnsEmpty(t *testing.T) {
	api := newMockRedis()
	api.data["user_history:7"] = "{not json"
	c := newTestClient(t, api)
	require.Empty(t, c.GetHistory(context.Background(), 7))
}

func TestSaveHistory_FailureIsSilent(t *testing.T) {
	api := newMockRedis()
	api.setErr = errors.New("connection refused")
	c := newTestClient(t, api)
	// Must not panic or surface the error.
	c.SaveHistory(context.Background(), 42, utterances(2))
	require.Empty(t, api.data)
}

func TestClearHistory_DeletesOnlyHistoryKey(t *testing.T) {
	api := newMockRedis()
	c := newTestClient(t, api)
	ctx := context.Background()

	c.SaveHistory(ctx, 42, utterances(2))
	c.SetSession(ctx, 42, domain.Session{FirstName: "Aruzhan"})
	c.CacheResponse(ctx, "fp-1", "cached reply")

	c.ClearHistory(ctx, 42)

	require.Equal(t, []string{"user_history:42"}, api.deleted)
	require.Empty(t, c.GetHistory(ctx, 42))

	s, ok := c.GetSession(ctx, 42)
	require.True(t, ok)
	require.Equal(t, "Aruzhan", s.FirstName)

	cached, ok := c.GetCachedResponse(ctx, "fp-1")
	require.True(t, ok)
	require.Equal(t, "cached reply", cached)
}

func TestSession_RoundTripAndTTL(t *testing.T) {
	api := newMockRedis()
	c := newTestClient(t, api)
	ctx := context.Background()

	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c.SetSession(ctx, 42, domain.Session{
		FirstName: "Aruzhan",
		Username:  "aruzhan01",
		StartedAt: started,
		Language:  "kk",
	})

	s, ok := c.GetSession(ctx, 42)
	require.True(t, ok)
	require.Equal(t, "Aruzhan", s.FirstName)
	require.Equal(t, "aruzhan01", s.Username)
	require.True(t, started.Equal(s.StartedAt))
	require.Equal(t, "kk", s.Language)
	require.Equal(t, sessionTTL, api.ttls["user_session:42"])
}

func TestSession_OverwrittenWholesale(t *testing.T) {
	api := newMockRedis()
	c := newTestClient(t, api)
	ctx := context.Background()

	c.SetSession(ctx, 42, domain.Session{FirstName: "Aruzhan", Username: "aruzhan01"})
	c.SetSession(ctx, 42, domain.Session{FirstName: "Aruzhan"})

	var stored domain.Session
	require.NoError(t, json.Unmarshal([]byte(api.data["user_session:42"]), &stored))
	require.Empty(t, stored.Username)
}

func TestGetSession_Miss(t *testing.T) {
	c := newTestClient(t, newMockRedis())
	_, ok := c.GetSession(context.Background(), 42)
	require.False(t, ok)
}

func TestCache_RoundTripAndTTL(t *testing.T) {
	api := newMockRedis()
	c := newTestClient(t, api)
	ctx := context.Background()

	c.CacheResponse(ctx, "fp-1", "generated text")

	got, ok := c.GetCachedResponse(ctx, "fp-1")
	require.True(t, ok)
	require.Equal(t, "generated text", got)
	require.Equal(t, cacheTTL, api.ttls["ai_cache:fp-1"])

	_, ok = c.GetCachedResponse(ctx, "fp-2")
	require.False(t, ok)
}

func TestPing_ReportsFailure(t *testing.T) {
	api := newMockRedis()
	c := newTestClient(t, api)
	require.NoError(t, c.Ping(context.Background()))

	api.pingErr = errors.New("connection refused")
	require.Error(t, c.Ping(context.Background()))
}
