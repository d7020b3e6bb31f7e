package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/i474232898/weather-chat/internal/conversation"
	"github.com/i474232898/weather-chat/internal/intent"
	"github.com/i474232898/weather-chat/internal/llm"
	"github.com/i474232898/weather-chat/internal/prompt"
	"github.com/i474232898/weather-chat/internal/render"
	"github.com/i474232898/weather-chat/internal/store"
	"github.com/i474232898/weather-chat/internal/weather"
)

type fakeClassifier struct {
	kind intent.Kind
}

func (f fakeClassifier) Classify(context.Context, string, string) intent.Kind {
	return f.kind
}

// fakeResolver picks the last known city mentioned in the message or, failing
// that, in the history.
type fakeResolver struct {
	err       error
	calls     int
	histories []string
}

func (f *fakeResolver) Resolve(_ context.Context, history, text string) (string, error) {
	f.calls++
	f.histories = append(f.histories, history)
	if f.err != nil {
		return "", f.err
	}
	for _, source := range []string{text, history} {
		lower := strings.ToLower(source)
		best, bestAt := "", -1
		for _, city := range []string{"jakarta", "paris", "doesnotexistville"} {
			if i := strings.LastIndex(lower, city); i > bestAt {
				best, bestAt = city, i
			}
		}
		if best != "" {
			return best, nil
		}
	}
	return intent.UnknownLocation, nil
}

type fakeWeather struct {
	cities []string
}

func (f *fakeWeather) Fetch(_ context.Context, city string) (weather.Snapshot, error) {
	f.cities = append(f.cities, city)
	if city == "doesnotexistville" {
		return weather.Snapshot{}, weather.ErrNotFound
	}
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return weather.Snapshot{
		Location: weather.Location{City: strings.ToUpper(city[:1]) + city[1:], Country: "ID"},
		Days: []weather.DayBucket{{
			Date: day,
			Readings: []weather.HourlyReading{{
				Time:          day.Add(12 * time.Hour),
				TempC:         31,
				HumidityPct:   70,
				ConditionText: "cerah",
			}},
		}},
	}, nil
}

// echoModel answers with a fixed reply and records every prompt it sees.
type echoModel struct {
	reply string

	mu      sync.Mutex
	prompts []string
}

func (m *echoModel) Generate(_ context.Context, p string, _ llm.Options) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, p)
	return m.reply, nil
}

func (m *echoModel) seen() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

type harness struct {
	orch     *Orchestrator
	resolver *fakeResolver
	weather  *fakeWeather
	mistral  *echoModel
	gemini   *echoModel
	store    *store.MemoryStore
}

func newHarness(t *testing.T, kind intent.Kind) *harness {
	t.Helper()
	h := &harness{
		resolver: &fakeResolver{},
		weather:  &fakeWeather{},
		mistral:  &echoModel{reply: "Jawaban Mistral"},
		gemini:   &echoModel{reply: "Jawaban Gemini"},
		store:    store.NewMemoryStore(0, store.Settings{UseWeatherAPI: true}),
	}
	orch, err := New(Options{
		Classifier: fakeClassifier{kind: kind},
		Resolver:   h.resolver,
		Weather:    h.weather,
		Backends: []*llm.Backend{
			llm.NewBackend("mistral", "Mistral", h.mistral, llm.Options{}, time.Second),
			llm.NewBackend("gemini", "Gemini", h.gemini, llm.Options{}, time.Second),
		},
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	orch.now = func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) }
	h.orch = orch
	return h
}

func TestRunTurn_WeatherQuery(t *testing.T) {
	h := newHarness(t, intent.Weather)
	sess := h.store.Create(h.store.Defaults())
	sink := render.NewMemory()

	entry, err := h.orch.RunTurn(context.Background(), sess, "Bagaimana cuaca di Jakarta hari ini?", sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if entry.TurnID == "" {
		t.Fatal("expected a turn id")
	}
	if entry.City != "jakarta" || entry.Intent != string(intent.Weather) {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if !strings.HasPrefix(entry.WeatherData, "Data Cuaca untuk Jakarta, ID:") {
		t.Fatalf("unexpected weather data %q", entry.WeatherData)
	}
	if entry.Responses["mistral"] != "Jawaban Mistral" || entry.Responses["gemini"] != "Jawaban Gemini" {
		t.Fatalf("unexpected responses %v", entry.Responses)
	}
	if entry.ResponsesWithAPI == nil || entry.ResponsesWithoutAPI != nil {
		t.Fatalf("single-mode turn should only record with-API responses: %+v", entry)
	}

	prompts := h.mistral.seen()
	if len(prompts) != 1 || !strings.Contains(prompts[0], "Data Cuaca untuk Jakarta, ID:") {
		t.Fatalf("backend did not receive weather-grounded prompt: %q", prompts)
	}
	if sink.Get("mistral") != "Jawaban Mistral" || sink.Get("gemini") != "Jawaban Gemini" {
		t.Fatalf("unexpected rendered slots %v", sink.Snapshot())
	}

	want := "Human: Bagaimana cuaca di Jakarta hari ini?\nAssistant: Jawaban Mistral"
	if got := sess.Context().Render(conversation.WithAPI, 5); got != want {
		t.Fatalf("unexpected context:\n got: %q\nwant: %q", got, want)
	}
	if len(sess.History()) != 1 {
		t.Fatalf("expected one history entry, got %d", len(sess.History()))
	}
}

func TestRunTurn_FollowUpResolvesFromContext(t *testing.T) {
	h := newHarness(t, intent.Weather)
	sess := h.store.Create(h.store.Defaults())
	sink := render.NewMemory()

	if _, err := h.orch.RunTurn(context.Background(), sess, "Bagaimana cuaca di Paris?", sink); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if _, err := h.orch.RunTurn(context.Background(), sess, "Seperti apa cuaca disana besok?", sink); err != nil {
		t.Fatalf("second turn: %v", err)
	}

	if len(h.weather.cities) != 2 || h.weather.cities[1] != "paris" {
		t.Fatalf("expected follow-up to fetch paris, got %v", h.weather.cities)
	}
	if !strings.Contains(h.resolver.histories[1], "Human: Bagaimana cuaca di Paris?") {
		t.Fatalf("resolver did not see prior turn: %q", h.resolver.histories[1])
	}
}

func TestRunTurn_WeatherFetchFailureStopsTurn(t *testing.T) {
	h := newHarness(t, intent.Weather)
	sess := h.store.Create(h.store.Defaults())

	entry, err := h.orch.RunTurn(context.Background(), sess, "Cuaca di doesnotexistville?", render.NewMemory())

	var fetchErr *WeatherFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected WeatherFetchError, got %v", err)
	}
	if fetchErr.City != "doesnotexistville" || !errors.Is(err, weather.ErrNotFound) {
		t.Fatalf("unexpected fetch error: %+v", fetchErr)
	}
	if entry != nil || len(sess.History()) != 0 {
		t.Fatal("failed turn must not record history")
	}
	if len(h.mistral.seen()) != 0 || len(h.gemini.seen()) != 0 {
		t.Fatal("no generation may run after a weather fetch failure")
	}
}

func TestRunTurn_UnknownLocationDegrades(t *testing.T) {
	h := newHarness(t, intent.Weather)
	sess := h.store.Create(h.store.Defaults())
	sink := render.NewMemory()

	entry, err := h.orch.RunTurn(context.Background(), sess, "Bagaimana cuacanya?", sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.weather.cities) != 0 {
		t.Fatalf("weather must not be fetched for an unknown location: %v", h.weather.cities)
	}
	if sink.Get(render.NoticeSlot) != NoticeUnknownLocation {
		t.Fatalf("expected notice, got %q", sink.Get(render.NoticeSlot))
	}
	if entry.WeatherData != "" || entry.City != "" {
		t.Fatalf("unexpected weather fields: %+v", entry)
	}
	if p := h.mistral.seen()[0]; strings.Contains(p, "Berdasarkan data cuaca") {
		t.Fatalf("expected a general prompt, got %q", p)
	}
}

func TestRunTurn_ResolveErrorDegrades(t *testing.T) {
	h := newHarness(t, intent.Weather)
	h.resolver.err = errors.New("helper unavailable")
	sess := h.store.Create(h.store.Defaults())
	sink := render.NewMemory()

	if _, err := h.orch.RunTurn(context.Background(), sess, "Cuaca di Jakarta?", sink); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.weather.cities) != 0 {
		t.Fatal("weather must not be fetched after a resolution failure")
	}
	if sink.Get(render.NoticeSlot) != NoticeResolveFailed {
		t.Fatalf("expected notice, got %q", sink.Get(render.NoticeSlot))
	}
}

func TestRunTurn_GeneralSkipsResolution(t *testing.T) {
	h := newHarness(t, intent.General)
	sess := h.store.Create(h.store.Defaults())

	entry, err := h.orch.RunTurn(context.Background(), sess, "Halo, apa kabar?", render.NewMemory())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.resolver.calls != 0 {
		t.Fatal("resolver must not run for general messages")
	}
	if entry.Intent != string(intent.General) {
		t.Fatalf("unexpected intent %q", entry.Intent)
	}
}

func TestRunTurn_DualMode(t *testing.T) {
	h := newHarness(t, intent.Weather)
	sess := h.store.Create(store.Settings{UseWeatherAPI: true, DualMode: true})
	sink := render.NewMemory()

	entry, err := h.orch.RunTurn(context.Background(), sess, "Cuaca di Jakarta?", sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, slot := range []string{"mistral_api", "mistral_no_api", "gemini_api", "gemini_no_api"} {
		if sink.Get(slot) == "" {
			t.Fatalf("slot %s not rendered: %v", slot, sink.Snapshot())
		}
	}
	if entry.ResponsesWithAPI == nil || entry.ResponsesWithoutAPI == nil {
		t.Fatalf("dual-mode entry must record both variants: %+v", entry)
	}

	prompts := h.mistral.seen()
	if len(prompts) != 2 {
		t.Fatalf("expected 2 prompts, got %d", len(prompts))
	}
	var grounded, marked int
	for _, p := range prompts {
		if strings.Contains(p, "Data Cuaca untuk Jakarta") {
			grounded++
		}
		if strings.Contains(p, prompt.NoAPIMarker) {
			marked++
			if strings.Contains(p, "Data Cuaca") {
				t.Fatal("without-API prompt must not carry weather data")
			}
		}
	}
	if grounded != 1 || marked != 1 {
		t.Fatalf("expected one grounded and one marked prompt, got %d/%d", grounded, marked)
	}

	with := sess.Context().Variant(conversation.WithAPI).Entries()
	without := sess.Context().Variant(conversation.WithoutAPI).Entries()
	if len(with) != 2 || len(without) != 2 || with[0] != without[0] {
		t.Fatalf("variants diverged on user entries: %+v / %+v", with, without)
	}
}

func TestRunTurn_APIDisabled(t *testing.T) {
	h := newHarness(t, intent.Weather)
	sess := h.store.Create(store.Settings{UseWeatherAPI: false})

	entry, err := h.orch.RunTurn(context.Background(), sess, "Cuaca di Jakarta?", render.NewMemory())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.resolver.calls != 0 || len(h.weather.cities) != 0 {
		t.Fatal("no lookup may run with the weather API disabled")
	}
	if !strings.Contains(h.mistral.seen()[0], prompt.NoAPIMarker) {
		t.Fatalf("expected no-API marker in prompt: %q", h.mistral.seen()[0])
	}
	// Weather turns without data use the general template, never the
	// data-grounded one.
	if strings.Contains(h.mistral.seen()[0], "Berdasarkan data cuaca berikut") {
		t.Fatalf("expected the general template: %q", h.mistral.seen()[0])
	}
	if entry.ResponsesWithoutAPI == nil || entry.ResponsesWithAPI != nil {
		t.Fatalf("expected only without-API responses: %+v", entry)
	}
}

func TestRunTurn_EmptyMessage(t *testing.T) {
	h := newHarness(t, intent.General)
	sess := h.store.Create(h.store.Defaults())
	if _, err := h.orch.RunTurn(context.Background(), sess, "   ", render.NewMemory()); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if sess.Context().Variant(conversation.WithAPI).Len() != 0 {
		t.Fatal("blank input must not touch the context")
	}
}

func TestNew_UnknownPrimary(t *testing.T) {
	_, err := New(Options{
		Classifier: fakeClassifier{},
		Resolver:   &fakeResolver{},
		Weather:    &fakeWeather{},
		Backends:   []*llm.Backend{llm.NewBackend("mistral", "", &echoModel{}, llm.Options{}, 0)},
		Primary:    "gpt",
	})
	if err == nil {
		t.Fatal("expected error for unknown primary backend")
	}
}
