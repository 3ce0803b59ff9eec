package voice

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"

	"github.com/Flamme-VRM/KazakhBot/internal/audio"
	"github.com/Flamme-VRM/KazakhBot/internal/worker"
)

// writeCanonicalWAV writes a short mono 16 kHz tone.
func writeCanonicalWAV(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	data := make([]int, 800)
	for i := range data {
		data[i] = int(10000 * math.Sin(2*math.Pi*440*float64(i)/float64(audio.TargetSampleRate)))
	}
	enc := wav.NewEncoder(f, audio.TargetSampleRate, 16, 1, 1)
	require.NoError(t, enc.Write(&gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: audio.TargetSampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
}

type fakeNormalizer struct {
	t       *testing.T
	dir     string
	err     error
	wavPath string
}

func (f *fakeNormalizer) Normalize(_ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.wavPath = filepath.Join(f.dir, "normalized.wav")
	writeCanonicalWAV(f.t, f.wavPath)
	return f.wavPath, nil
}

type fakeRecognizer struct {
	mu         sync.Mutex
	text       string
	err        error
	sampleLens []int
}

func (f *fakeRecognizer) Transcribe(_ context.Context, samples []float32, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sampleLens = append(f.sampleLens, len(samples))
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func newTestPipeline(t *testing.T, n Normalizer, r Recognizer, timeout time.Duration) (*Pipeline, *worker.Pool) {
	t.Helper()
	pool, err := worker.NewPool(1)
	require.NoError(t, err)
	p, err := NewPipeline(n, r, pool, "kk", timeout, nil)
	require.NoError(t, err)
	return p, pool
}

func writeRawPayload(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raw.oga")
	require.NoError(t, os.WriteFile(path, []byte("opus bytes"), 0o644))
	return path
}

func requireGone(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err), "expected %s to be deleted", path)
}

func TestNewPipeline_Validation(t *testing.T) {
	pool, err := worker.NewPool(1)
	require.NoError(t, err)
	norm := &fakeNormalizer{t: t, dir: t.TempDir()}
	rec := &fakeRecognizer{}

	_, err = NewPipeline(nil, rec, pool, "kk", time.Second, nil)
	require.Error(t, err)
	_, err = NewPipeline(norm, nil, pool, "kk", time.Second, nil)
	require.Error(t, err)
	_, err = NewPipeline(norm, rec, nil, "kk", time.Second, nil)
	require.Error(t, err)
}

func TestTranscribe_Success_CleansUpBothFiles(t *testing.T) {
	norm := &fakeNormalizer{t: t, dir: t.TempDir()}
	rec := &fakeRecognizer{text: "  сәлем қалайсың  "}
	p, _ := newTestPipeline(t, norm, rec, time.Second)

	raw := writeRawPayload(t)
	out := p.Transcribe(context.Background(), raw)

	require.Equal(t, "сәлем қалайсың", out)
	require.Len(t, rec.sampleLens, 1)
	require.Equal(t, 800, rec.sampleLens[0])

	requireGone(t, raw)
	requireGone(t, norm.wavPath)
}

func TestTranscribe_NormalizeFailure(t *testing.T) {
	norm := &fakeNormalizer{t: t, dir: t.TempDir(), err: errors.New("unsupported format")}
	rec := &fakeRecognizer{text: "unused"}
	p, _ := newTestPipeline(t, norm, rec, time.Second)

	raw := writeRawPayload(t)
	out := p.Transcribe(context.Background(), raw)

	require.Empty(t, out)
	require.Empty(t, rec.sampleLens)
	requireGone(t, raw)
}

func TestTranscribe_RecognizerFailure_CleansUpBothFiles(t *testing.T) {
	norm := &fakeNormalizer{t: t, dir: t.TempDir()}
	rec := &fakeRecognizer{err: errors.New("inference failed")}
	p, _ := newTestPipeline(t, norm, rec, time.Second)

	raw := writeRawPayload(t)
	out := p.Transcribe(context.Background(), raw)

	require.Empty(t, out)
	requireGone(t, raw)
	requireGone(t, norm.wavPath)
}

func TestTranscribe_PoolBusyTimeout(t *testing.T) {
	norm := &fakeNormalizer{t: t, dir: t.TempDir()}
	rec := &fakeRecognizer{text: "unused"}
	p, pool := newTestPipeline(t, norm, rec, 50*time.Millisecond)

	// Occupy the single slot so acquisition must time out.
	release := make(chan struct{})
	busy := make(chan struct{})
	go func() {
		_ = pool.Do(context.Background(), func(context.Context) error {
			close(busy)
			<-release
			return nil
		})
	}()
	<-busy
	defer close(release)

	raw := writeRawPayload(t)
	out := p.Transcribe(context.Background(), raw)

	require.Empty(t, out)
	require.Empty(t, rec.sampleLens)
	requireGone(t, raw)
}
