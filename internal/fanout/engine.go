// Package fanout runs one prompt against several model backends at once and
// delivers each backend's output as ordered increments.
package fanout

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/i474232898/weather-chat/internal/conversation"
	"github.com/i474232898/weather-chat/internal/llm"
)

// Increment is one piece of output from one backend. Text is the full
// accumulated output so far, so consumers can render with replace semantics.
type Increment struct {
	BackendID string
	Variant   conversation.Variant
	Delta     string
	Text      string
	Status    Status
}

// Batch is one prompt sent to a set of backends.
type Batch struct {
	Variant  conversation.Variant
	Prompt   string
	Backends []*llm.Backend
}

// Result holds the finished tasks of a batch in backend order.
type Result struct {
	Variant conversation.Variant
	Tasks   []*Task
}

// Texts maps backend id to its final text.
func (r *Result) Texts() map[string]string {
	out := make(map[string]string, len(r.Tasks))
	for _, t := range r.Tasks {
		out[t.BackendID] = t.Text()
	}
	return out
}

// Text returns the final text of one backend, or "" if it was not in the batch.
func (r *Result) Text(backendID string) string {
	for _, t := range r.Tasks {
		if t.BackendID == backendID {
			return t.Text()
		}
	}
	return ""
}

// Policy controls how the two batches of a dual-mode turn are scheduled.
type Policy string

const (
	Sequential Policy = "sequential"
	Concurrent Policy = "concurrent"
)

// ParsePolicy accepts "sequential" or "concurrent"; empty means Sequential.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", Sequential:
		return Sequential, nil
	case Concurrent:
		return Concurrent, nil
	default:
		return "", fmt.Errorf("unknown fan-out policy %q", s)
	}
}

// DeliverFunc receives increments. Calls are serialized; increments of one
// backend arrive in generation order.
type DeliverFunc func(Increment)

// Engine launches every backend of a batch concurrently.
type Engine struct {
	// buffer is the per-backend channel capacity between producer and consumer.
	buffer int
}

func NewEngine() *Engine {
	return &Engine{buffer: 16}
}

// Run executes the batch and blocks until every task is DONE or FAILED. A
// failing or panicking backend never affects its siblings.
func (e *Engine) Run(ctx context.Context, batch Batch, deliver DeliverFunc) *Result {
	return e.run(ctx, batch, serialize(deliver))
}

// RunAll executes several batches under policy. Deliveries across all
// batches are serialized. Results are returned in batch order.
func (e *Engine) RunAll(ctx context.Context, policy Policy, batches []Batch, deliver DeliverFunc) []*Result {
	serialized := serialize(deliver)
	results := make([]*Result, len(batches))
	if policy != Concurrent {
		for i, b := range batches {
			results[i] = e.run(ctx, b, serialized)
		}
		return results
	}

	var wg conc.WaitGroup
	for i, b := range batches {
		wg.Go(func() {
			results[i] = e.run(ctx, b, serialized)
		})
	}
	wg.Wait()
	return results
}

func serialize(deliver DeliverFunc) DeliverFunc {
	var mu sync.Mutex
	return func(inc Increment) {
		if deliver == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		deliver(inc)
	}
}

func (e *Engine) run(ctx context.Context, batch Batch, deliver DeliverFunc) *Result {
	result := &Result{Variant: batch.Variant, Tasks: make([]*Task, len(batch.Backends))}

	var wg conc.WaitGroup
	for i, backend := range batch.Backends {
		task := newTask(backend.ID, backend.DisplayName, batch.Prompt)
		result.Tasks[i] = task

		raw := make(chan string, e.buffer)
		errCh := make(chan error, 1)

		go produce(ctx, backend, batch.Prompt, raw, errCh)

		wg.Go(func() {
			consume(task, batch.Variant, raw, errCh, deliver)
		})
	}
	wg.Wait()

	return result
}

// produce streams one backend into raw and reports its outcome on errCh.
// Backend.Stream closes raw on every path, including a panic in the adapter.
func produce(ctx context.Context, backend *llm.Backend, prompt string, raw chan<- string, errCh chan<- error) {
	var (
		catcher panics.Catcher
		err     error
	)
	catcher.Try(func() {
		err = backend.Stream(ctx, prompt, raw)
	})
	if r := catcher.Recovered(); r != nil {
		err = fmt.Errorf("backend panicked: %w", r.AsError())
		log.WithFields(log.Fields{
			"event":   "backend_panic",
			"backend": backend.ID,
		}).Error(r.String())
	}
	errCh <- err
}

func consume(task *Task, variant conversation.Variant, raw <-chan string, errCh <-chan error, deliver DeliverFunc) {
	for delta := range raw {
		text, err := task.appendDelta(delta)
		if err != nil {
			log.WithField("backend", task.BackendID).WithError(err).Warn("dropping increment")
			continue
		}
		deliver(Increment{
			BackendID: task.BackendID,
			Variant:   variant,
			Delta:     delta,
			Text:      text,
			Status:    StatusStreaming,
		})
	}

	err := <-errCh
	if err == nil {
		if cerr := task.complete(); cerr != nil {
			log.WithField("backend", task.BackendID).WithError(cerr).Warn("cannot complete task")
		}
		return
	}

	notice, text, ferr := task.fail(err)
	if ferr != nil {
		log.WithField("backend", task.BackendID).WithError(ferr).Warn("cannot fail task")
		return
	}
	log.WithFields(log.Fields{
		"event":   "backend_failed",
		"backend": task.BackendID,
	}).WithError(err).Warn("generation failed")

	deliver(Increment{
		BackendID: task.BackendID,
		Variant:   variant,
		Delta:     notice,
		Text:      text,
		Status:    StatusFailed,
	})
}
