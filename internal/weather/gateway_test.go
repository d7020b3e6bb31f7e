package weather

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type fakeProvider struct {
	name     string
	forecast Forecast
	err      error
	calls    int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) FetchForecast(_ context.Context, city string) (Forecast, error) {
	f.calls++
	if f.err != nil {
		return Forecast{}, f.err
	}
	return f.forecast, nil
}

// sevenDayReadings returns three readings per day for seven days, in scrambled order.
func sevenDayReadings() []HourlyReading {
	base := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	var out []HourlyReading
	for _, hour := range []int{21, 3, 12} {
		for day := 6; day >= 0; day-- {
			ts := base.AddDate(0, 0, day).Add(time.Duration(hour) * time.Hour)
			out = append(out, HourlyReading{Time: ts, TempC: float64(day*10 + hour)})
		}
	}
	return out
}

func TestFetchKeepsFiveSortedBuckets(t *testing.T) {
	p := &fakeProvider{
		name: "fake",
		forecast: Forecast{
			Location: Location{City: "Jakarta", Country: "ID"},
			Readings: sevenDayReadings(),
		},
	}
	g := NewGateway(time.UTC, p)

	snap, err := g.Fetch(context.Background(), "jakarta")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.Days) != MaxForecastDays {
		t.Fatalf("expected %d buckets, got %d", MaxForecastDays, len(snap.Days))
	}

	for i, day := range snap.Days {
		want := time.Date(2024, 3, 10+i, 0, 0, 0, 0, time.UTC)
		if !day.Date.Equal(want) {
			t.Errorf("bucket %d: expected date %s, got %s", i, want, day.Date)
		}
		if len(day.Readings) != 3 {
			t.Fatalf("bucket %d: expected 3 readings, got %d", i, len(day.Readings))
		}
		for j := 1; j < len(day.Readings); j++ {
			if !day.Readings[j-1].Time.Before(day.Readings[j].Time) {
				t.Errorf("bucket %d: readings not ascending at %d", i, j)
			}
		}
	}
	if snap.Location.City != "Jakarta" || snap.Location.Country != "ID" {
		t.Errorf("unexpected location %+v", snap.Location)
	}
}

func TestGroupByDateUsesZone(t *testing.T) {
	zone := time.FixedZone("UTC+07:00", 7*3600)
	// 20:00 UTC on the 1st is 03:00 on the 2nd in UTC+7.
	readings := []HourlyReading{
		{Time: time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)},
		{Time: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
	}

	days := GroupByDate(readings, zone, MaxForecastDays)
	if len(days) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(days))
	}
	if days[0].Date.Day() != 1 || days[1].Date.Day() != 2 {
		t.Errorf("unexpected bucket dates: %s, %s", days[0].Date, days[1].Date)
	}
	if days[1].Readings[0].Time.Hour() != 3 {
		t.Errorf("expected reading converted to local time, got %s", days[1].Readings[0].Time)
	}
}

func TestGroupByDateEmpty(t *testing.T) {
	if days := GroupByDate(nil, nil, MaxForecastDays); len(days) != 0 {
		t.Fatalf("expected no buckets, got %d", len(days))
	}
}

func TestFetchEmptyCity(t *testing.T) {
	p := &fakeProvider{name: "fake"}
	g := NewGateway(time.UTC, p)

	_, err := g.Fetch(context.Background(), "   ")
	if !errors.Is(err, ErrInvalidCity) {
		t.Fatalf("expected ErrInvalidCity, got %v", err)
	}
	if p.calls != 0 {
		t.Errorf("provider should not be called, got %d calls", p.calls)
	}
}

func TestFetchNotFoundIsFinal(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: fmt.Errorf("primary: %w", ErrNotFound)}
	fallback := &fakeProvider{name: "fallback"}
	g := NewGateway(time.UTC, primary, fallback)

	_, err := g.Fetch(context.Background(), "doesnotexistville")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback should not be called after not found")
	}
}

func TestFetchFallsThroughWhenUnavailable(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: errors.New("connection refused")}
	fallback := &fakeProvider{
		name: "fallback",
		forecast: Forecast{
			Location: Location{City: "Paris"},
			Readings: []HourlyReading{{Time: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}},
		},
	}
	g := NewGateway(time.UTC, primary, fallback)

	snap, err := g.Fetch(context.Background(), "paris")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.Days) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(snap.Days))
	}
}

func TestFetchAllUnavailable(t *testing.T) {
	g := NewGateway(time.UTC, &fakeProvider{name: "only", err: errors.New("boom")})

	_, err := g.Fetch(context.Background(), "paris")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	_, err = NewGateway(time.UTC).Fetch(context.Background(), "paris")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable without providers, got %v", err)
	}
}

func TestFetchLogsProviderErrorWithError(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	cause := fmt.Errorf("%w: timeout", ErrUnavailable)
	g := NewGateway(time.UTC, &fakeProvider{name: "owm", err: cause})
	if _, err := g.Fetch(context.Background(), "paris"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	var found bool
	for _, e := range hook.AllEntries() {
		if e.Data["event"] != "forecast_failed" {
			continue
		}
		found = true
		logged, ok := e.Data[log.ErrorKey].(error)
		if !ok || !errors.Is(logged, cause) {
			t.Fatalf("expected the provider error under %q, got %#v", log.ErrorKey, e.Data[log.ErrorKey])
		}
		if e.Data["provider"] != "owm" {
			t.Fatalf("unexpected provider field %v", e.Data["provider"])
		}
	}
	if !found {
		t.Fatal("expected a forecast_failed entry")
	}
}
