// This file contains the Native engine backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Compile-time assertion that Native implements Engine.
var _ Engine = (*Native)(nil)

// NativeConfig contains native engine configuration
type NativeConfig struct {
	ModelPath   string
	Language    string
	Temperature float32
}

// Native is an Engine that runs whisper.cpp in-process. The model is loaded
// once and shared across all sessions; each Transcribe call creates its own
// whisper context because contexts are not thread-safe.
type Native struct {
	config NativeConfig
	model  whisperlib.Model

	mu     sync.Mutex
	closed bool
}

// NewNative loads the whisper.cpp model from the configured file path.
// The caller must call Close when the engine is no longer needed.
func NewNative(config NativeConfig) (*Native, error) {
	if config.ModelPath == "" {
		return nil, errors.New("model_path cannot be empty")
	}

	model, err := whisperlib.New(config.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load whisper model %q: %w", config.ModelPath, err)
	}

	return &Native{
		config: config,
		model:  model,
	}, nil
}

// Transcribe runs whisper.cpp inference on the given samples and returns the
// recognized segments with window-relative offsets in seconds.
func (n *Native) Transcribe(ctx context.Context, samples []float32, prompt string) ([]Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, errors.New("engine is closed")
	}
	n.mu.Unlock()

	wctx, err := n.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create whisper context: %w", err)
	}

	if n.config.Language != "" {
		if err := wctx.SetLanguage(n.config.Language); err != nil {
			return nil, fmt.Errorf("failed to set language %q: %w", n.config.Language, err)
		}
	}

	if prompt != "" {
		wctx.SetInitialPrompt(prompt)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper inference failed: %w", err)
	}

	var segments []Segment
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read segment: %w", err)
		}

		segments = append(segments, Segment{
			Text:  seg.Text,
			Start: seg.Start.Seconds(),
			End:   seg.End.Seconds(),
		})
	}

	return segments, nil
}

// Close releases the whisper model. Transcribe must not be called afterwards.
func (n *Native) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true

	return n.model.Close()
}
