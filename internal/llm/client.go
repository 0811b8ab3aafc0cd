package llm

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultTemperature     = 0.5
	DefaultMaxOutputTokens = 4096
)

// Client produces one text completion for a prompt. Implementations are long-lived
// and safe to share; they never retry, cache or stream.
type Client interface {
	Generate(ctx context.Context, prompt string, opts GenerationOptions) (string, error)
}

// ClientFunc adapts an ordinary function to Client.
type ClientFunc func(ctx context.Context, prompt string, opts GenerationOptions) (string, error)

func (fn ClientFunc) Generate(ctx context.Context, prompt string, opts GenerationOptions) (string, error) {
	return fn(ctx, prompt, opts)
}

// GenerationOptions are passed through verbatim to the backend.
type GenerationOptions struct {
	Temperature     float64
	Terminators     []string
	MaxOutputTokens int
	Seed            *int64
	// Timeout bounds a single Generate call. Zero means no limit.
	Timeout time.Duration
}

func DefaultOptions() GenerationOptions {
	return GenerationOptions{
		Temperature:     DefaultTemperature,
		MaxOutputTokens: DefaultMaxOutputTokens,
	}
}

// GenerationError reports any backend failure: transport, timeout, bad status or an
// unusable response body.
type GenerationError struct {
	Backend string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("generation failed: %v", e.Err)
	}
	return fmt.Sprintf("%s generation failed: %v", e.Backend, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func generationError(backend string, format string, args ...any) error {
	return &GenerationError{Backend: backend, Err: fmt.Errorf(format, args...)}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
