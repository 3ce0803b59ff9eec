package voice

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Flamme-VRM/KazakhBot/internal/audio"
	"github.com/Flamme-VRM/KazakhBot/internal/worker"
)

const defaultTimeout = 120 * time.Second

// Normalizer converts a raw voice payload into a canonical mono 16 kHz WAV.
type Normalizer interface {
	Normalize(path string) (wavPath string, err error)
}

// Recognizer turns normalized samples into text.
type Recognizer interface {
	Transcribe(ctx context.Context, samples []float32, language string) (string, error)
}

// Pipeline runs normalization and speech recognition for one voice note.
// It never reports an error to its caller: any internal failure degrades to
// an empty result, which the router treats as "not recognized".
type Pipeline struct {
	normalizer Normalizer
	recognizer Recognizer
	pool       *worker.Pool
	language   string
	timeout    time.Duration
	log        *slog.Logger
}

func NewPipeline(normalizer Normalizer, recognizer Recognizer, pool *worker.Pool, language string, timeout time.Duration, log *slog.Logger) (*Pipeline, error) {
	if normalizer == nil {
		return nil, errors.New("voice: normalizer must not be nil")
	}
	if recognizer == nil {
		return nil, errors.New("voice: recognizer must not be nil")
	}
	if pool == nil {
		return nil, errors.New("voice: worker pool must not be nil")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		normalizer: normalizer,
		recognizer: recognizer,
		pool:       pool,
		language:   language,
		timeout:    timeout,
		log:        log,
	}, nil
}

// Transcribe returns the recognized text for the voice payload at rawPath, or
// an empty string on any failure. Both the raw payload and the normalized WAV
// are deleted before returning, on every path including panics; the files are
// owned exclusively by this invocation.
func (p *Pipeline) Transcribe(ctx context.Context, rawPath string) string {
	var wavPath string
	defer func() {
		removeQuiet(rawPath)
		if wavPath != "" {
			removeQuiet(wavPath)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var text string
	err := p.pool.Do(ctx, func(ctx context.Context) error {
		wp, err := p.normalizer.Normalize(rawPath)
		if err != nil {
			p.log.Error("voice normalization failed", "path", rawPath, "err", err)
			return err
		}
		wavPath = wp

		samples, _, err := audio.ReadWAVSamples(wavPath)
		if err != nil {
			p.log.Error("normalized waveform unreadable", "path", wavPath, "err", err)
			return err
		}

		out, err := p.recognizer.Transcribe(ctx, samples, p.language)
		if err != nil {
			p.log.Error("speech recognition failed", "path", rawPath, "err", err)
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		// Already logged with its cause; callers only see "not recognized".
		return ""
	}
	return strings.TrimSpace(text)
}

func removeQuiet(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Debug("temp audio cleanup failed", "path", path, "err", err)
	}
}
