// Package chat drives one conversational turn: intent, location, weather
// data, prompt assembly and the multi-backend fan-out.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/i474232898/weather-chat/internal/conversation"
	"github.com/i474232898/weather-chat/internal/events"
	"github.com/i474232898/weather-chat/internal/fanout"
	"github.com/i474232898/weather-chat/internal/intent"
	"github.com/i474232898/weather-chat/internal/llm"
	"github.com/i474232898/weather-chat/internal/prompt"
	"github.com/i474232898/weather-chat/internal/render"
	"github.com/i474232898/weather-chat/internal/store"
	"github.com/i474232898/weather-chat/internal/weather"
)

// ErrEmptyMessage is returned for blank user input.
var ErrEmptyMessage = errors.New("message must not be empty")

// Notices rendered to render.NoticeSlot when a weather turn degrades.
const (
	NoticeUnknownLocation = "Lokasi tidak dapat ditentukan, menjawab tanpa data cuaca."
	NoticeResolveFailed   = "Gagal menentukan lokasi, menjawab tanpa data cuaca."
)

// WeatherFetchError stops a turn when the forecast for a resolved city
// cannot be retrieved.
type WeatherFetchError struct {
	City string
	Err  error
}

func (e *WeatherFetchError) Error() string {
	return fmt.Sprintf("fetch weather for %q: %v", e.City, e.Err)
}

func (e *WeatherFetchError) Unwrap() error {
	return e.Err
}

// Classifier labels a message.
type Classifier interface {
	Classify(ctx context.Context, history, text string) intent.Kind
}

// Resolver extracts the city a message refers to.
type Resolver interface {
	Resolve(ctx context.Context, history, text string) (string, error)
}

// WeatherFetcher returns a normalized forecast for a city.
type WeatherFetcher interface {
	Fetch(ctx context.Context, city string) (weather.Snapshot, error)
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Classifier Classifier
	Resolver   Resolver
	Weather    WeatherFetcher
	Engine     *fanout.Engine
	Publisher  events.Publisher

	// Backends receive every prompt, in display order.
	Backends []*llm.Backend
	// Primary is the backend whose reply is folded back into the context.
	// Empty means the first backend.
	Primary string
	// Policy schedules the two batches of a dual-mode turn.
	Policy fanout.Policy
	// ContextTurns is the number of context entries rendered into prompts.
	ContextTurns int
}

// Orchestrator runs turns. It holds no per-session state.
type Orchestrator struct {
	opts Options
	now  func() time.Time
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Classifier == nil || opts.Resolver == nil || opts.Weather == nil {
		return nil, errors.New("classifier, resolver and weather fetcher are required")
	}
	if len(opts.Backends) == 0 {
		return nil, errors.New("at least one backend is required")
	}
	if opts.Engine == nil {
		opts.Engine = fanout.NewEngine()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.ContextTurns <= 0 {
		opts.ContextTurns = conversation.DefaultTurns
	}
	if opts.Policy == "" {
		opts.Policy = fanout.Sequential
	}

	if opts.Primary == "" {
		opts.Primary = opts.Backends[0].ID
	}
	found := false
	for _, b := range opts.Backends {
		if b.ID == opts.Primary {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("primary backend %q is not configured", opts.Primary)
	}

	return &Orchestrator{opts: opts, now: time.Now}, nil
}

// Backends returns the fan-out backends in display order.
func (o *Orchestrator) Backends() []*llm.Backend {
	return o.opts.Backends
}

// RunTurn handles one user message for sess, streaming output to sink. The
// caller must hold the session's turn. On a weather fetch failure it returns
// a *WeatherFetchError and records no history entry.
func (o *Orchestrator) RunTurn(ctx context.Context, sess *store.Session, text string, sink render.Sink) (*store.HistoryEntry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	turnID := uuid.NewString()
	logger := log.WithFields(log.Fields{"session": sess.ID, "turn": turnID})
	settings := sess.Settings()
	dual := sess.Context()
	turns := o.opts.ContextTurns

	dual.AppendUser(text)
	history := dual.Render(conversation.WithAPI, turns)

	kind := o.opts.Classifier.Classify(ctx, history, text)
	logger.WithFields(log.Fields{"event": "intent", "intent": kind}).Debug("message classified")

	entry := store.HistoryEntry{
		TurnID:    turnID,
		UserInput: text,
		Intent:    string(kind),
		CreatedAt: o.now(),
	}

	var formatted string
	if kind == intent.Weather && (settings.UseWeatherAPI || settings.DualMode) {
		city, err := o.opts.Resolver.Resolve(ctx, history, text)
		switch {
		case err != nil:
			logger.WithField("event", "resolve_failed").WithError(err).Warn("location resolution failed; answering without weather data")
			o.notify(sink, NoticeResolveFailed)
		case city == intent.UnknownLocation:
			logger.WithField("event", "unknown_location").Info("no location in message; answering without weather data")
			o.notify(sink, NoticeUnknownLocation)
		default:
			snapshot, err := o.opts.Weather.Fetch(ctx, city)
			if err != nil {
				logger.WithFields(log.Fields{"event": "weather_failed", "city": city}).WithError(err).Warn("weather fetch failed; turn aborted")
				return nil, &WeatherFetchError{City: city, Err: err}
			}
			entry.City = city
			formatted = weather.FormatSnapshot(snapshot, o.now())
		}
	}
	entry.WeatherData = formatted

	batches, err := o.batches(kind, settings, dual, text, formatted)
	if err != nil {
		return nil, err
	}

	slotFor := func(inc fanout.Increment) string {
		if settings.DualMode {
			return render.Slot(inc.BackendID, inc.Variant)
		}
		return inc.BackendID
	}
	results := o.opts.Engine.RunAll(ctx, o.opts.Policy, batches, func(inc fanout.Increment) {
		if err := sink.Render(slotFor(inc), inc.Text); err != nil {
			logger.WithField("backend", inc.BackendID).WithError(err).Debug("render failed")
		}
	})

	primary := results[0].Text(o.opts.Primary)
	entry.Responses = results[0].Texts()
	switch {
	case settings.DualMode:
		dual.AppendAssistant(primary, results[1].Text(o.opts.Primary))
		entry.ResponsesWithAPI = results[0].Texts()
		entry.ResponsesWithoutAPI = results[1].Texts()
	case results[0].Variant == conversation.WithAPI:
		dual.AppendAssistant(primary, primary)
		entry.ResponsesWithAPI = results[0].Texts()
	default:
		dual.AppendAssistant(primary, primary)
		entry.ResponsesWithoutAPI = results[0].Texts()
	}

	sess.AppendHistory(entry)
	o.publish(logger, sess, settings, entry, results)

	return &entry, nil
}

// batches builds the prompt batch for each variant the session asked for.
// The first batch is always the primary variant.
func (o *Orchestrator) batches(kind intent.Kind, settings store.Settings, dual *conversation.Dual, text, formatted string) ([]fanout.Batch, error) {
	turns := o.opts.ContextTurns

	withAPI := func() (fanout.Batch, error) {
		p, err := buildGrounded(dual.Render(conversation.WithAPI, turns), text, formatted)
		return fanout.Batch{Variant: conversation.WithAPI, Prompt: p, Backends: o.opts.Backends}, err
	}
	withoutAPI := func() (fanout.Batch, error) {
		userText := text
		if kind == intent.Weather {
			userText = prompt.WithoutAPI(text)
		}
		p, err := prompt.Build(prompt.General, dual.Render(conversation.WithoutAPI, turns), userText, "")
		return fanout.Batch{Variant: conversation.WithoutAPI, Prompt: p, Backends: o.opts.Backends}, err
	}

	switch {
	case settings.DualMode:
		a, err := withAPI()
		if err != nil {
			return nil, err
		}
		b, err := withoutAPI()
		if err != nil {
			return nil, err
		}
		return []fanout.Batch{a, b}, nil
	case settings.UseWeatherAPI:
		a, err := withAPI()
		return []fanout.Batch{a}, err
	default:
		b, err := withoutAPI()
		return []fanout.Batch{b}, err
	}
}

// buildGrounded uses the weather template when data is available and falls
// back to a general reply otherwise.
func buildGrounded(history, text, formatted string) (string, error) {
	if formatted == "" {
		return prompt.Build(prompt.General, history, text, "")
	}
	return prompt.Build(prompt.WeatherGrounded, history, text, formatted)
}

func (o *Orchestrator) notify(sink render.Sink, notice string) {
	if err := sink.Render(render.NoticeSlot, notice); err != nil {
		log.WithError(err).Debug("render notice failed")
	}
}

func (o *Orchestrator) publish(logger *log.Entry, sess *store.Session, settings store.Settings, entry store.HistoryEntry, results []*fanout.Result) {
	statuses := make(map[string]string)
	for _, r := range results {
		for _, t := range r.Tasks {
			key := t.BackendID
			if settings.DualMode {
				key = render.Slot(t.BackendID, r.Variant)
			}
			statuses[key] = string(t.Status())
		}
	}

	evt := events.TurnCompleted{
		SessionID: sess.ID,
		TurnID:    entry.TurnID,
		Intent:    entry.Intent,
		City:      entry.City,
		DualMode:  settings.DualMode,
		Backends:  statuses,
		At:        entry.CreatedAt,
	}
	if err := o.opts.Publisher.Publish(events.SubjectTurnCompleted, evt); err != nil {
		logger.WithField("event", "publish_failed").WithError(err).Warn("turn event not published")
	}
}
