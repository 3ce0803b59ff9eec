package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Recognizer wraps a loaded whisper.cpp model. A single Recognizer is shared
// by all transcription invocations; each call gets its own whisper context.
type Recognizer struct {
	model whisper.Model
}

// New loads the ggml model at modelPath.
func New(modelPath string) (*Recognizer, error) {
	if modelPath == "" {
		return nil, errors.New("stt: model path must not be empty")
	}
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("stt: load model: %w", err)
	}
	return &Recognizer{model: model}, nil
}

func (r *Recognizer) Close() error {
	if r.model == nil {
		return nil
	}
	return r.model.Close()
}

// Transcribe runs speech recognition over mono 16 kHz samples with a
// transcription task configured for the given language.
func (r *Recognizer) Transcribe(ctx context.Context, samples []float32, language string) (string, error) {
	if r.model == nil {
		return "", errors.New("stt: model not loaded")
	}
	if len(samples) == 0 {
		return "", errors.New("stt: no samples provided")
	}

	wctx, err := r.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("stt: new context: %w", err)
	}
	if language == "" {
		language = "auto"
	}
	if err := wctx.SetLanguage(language); err != nil {
		return "", fmt.Errorf("stt: set language: %w", err)
	}
	wctx.SetTranslate(false)
	wctx.SetThreads(uint(runtime.NumCPU()))

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("stt: process: %w", err)
	}

	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		seg, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("stt: next segment: %w", err)
		}
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(strings.TrimSpace(seg.Text))
	}
	return sb.String(), nil
}
