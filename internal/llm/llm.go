// Package llm adapts hosted language models to a common generate/stream
// contract so callers can treat every backend the same way.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/panics"
)

var (
	// ErrEmptyResponse is returned when a backend answers without any text.
	ErrEmptyResponse = errors.New("empty response from model")
	// ErrUnknownBackend is returned by Registry lookups for unregistered ids.
	ErrUnknownBackend = errors.New("unknown backend")
)

// DefaultTimeout bounds a single backend call when none is configured.
const DefaultTimeout = 60 * time.Second

// Options are the generation parameters sent with each request.
// A nil Temperature and zero MaxTokens leave the model defaults in place.
type Options struct {
	Temperature *float64
	MaxTokens   int
}

// Generator produces a whole response for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// Streamer produces a response as ordered text increments sent on out.
// Implementations must not close out.
type Streamer interface {
	GenerateStream(ctx context.Context, prompt string, opts Options, out chan<- string) error
}

// Backend is a named model with its generation options. It hides whether the
// underlying client streams natively.
type Backend struct {
	ID          string
	DisplayName string
	Options     Options
	Timeout     time.Duration

	gen Generator
}

// NewBackend wraps g. If g also implements Streamer, Stream uses it directly.
func NewBackend(id, displayName string, g Generator, opts Options, timeout time.Duration) *Backend {
	if displayName == "" {
		displayName = id
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Backend{
		ID:          id,
		DisplayName: displayName,
		Options:     opts,
		Timeout:     timeout,
		gen:         g,
	}
}

// Streams reports whether the backend emits incremental output.
func (b *Backend) Streams() bool {
	_, ok := b.gen.(Streamer)
	return ok
}

// Generate returns the full response text.
func (b *Backend) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	text, err := b.gen.Generate(ctx, prompt, b.Options)
	if err != nil {
		return "", fmt.Errorf("%s: %w", b.ID, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s: %w", b.ID, ErrEmptyResponse)
	}
	return text, nil
}

// Stream sends the response as increments on out and closes out when done.
// Backends without native streaming deliver their whole response as one
// increment.
func (b *Backend) Stream(ctx context.Context, prompt string, out chan<- string) error {
	defer close(out)

	ctx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	if s, ok := b.gen.(Streamer); ok {
		if err := b.relay(ctx, s, prompt, out); err != nil {
			log.WithFields(log.Fields{
				"event":   "stream_failed",
				"backend": b.ID,
			}).WithError(err).Debug("model stream ended with error")
			return fmt.Errorf("%s: %w", b.ID, err)
		}
		return nil
	}

	text, err := b.gen.Generate(ctx, prompt, b.Options)
	if err != nil {
		return fmt.Errorf("%s: %w", b.ID, err)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%s: %w", b.ID, ErrEmptyResponse)
	}
	return send(ctx, out, text)
}

// relay forwards a native stream to out. A stream that ends cleanly without
// any text is reported as ErrEmptyResponse, and a panic in the adapter is
// returned as an error since it happens on another goroutine.
func (b *Backend) relay(ctx context.Context, s Streamer, prompt string, out chan<- string) error {
	in := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		defer close(in)
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() {
			err = s.GenerateStream(ctx, prompt, b.Options, in)
		})
		if r := catcher.Recovered(); r != nil {
			err = fmt.Errorf("backend panicked: %w", r.AsError())
		}
		errCh <- err
	}()

	var (
		hasText bool
		sendErr error
	)
	for delta := range in {
		if sendErr != nil {
			continue
		}
		if strings.TrimSpace(delta) != "" {
			hasText = true
		}
		sendErr = send(ctx, out, delta)
	}

	if err := <-errCh; err != nil {
		return err
	}
	if sendErr != nil {
		return sendErr
	}
	if !hasText {
		return ErrEmptyResponse
	}
	return nil
}

// send delivers one increment unless ctx is done first.
func send(ctx context.Context, out chan<- string, s string) error {
	select {
	case out <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
