package weather

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrInvalidCity is returned when Fetch is called without a city token.
var ErrInvalidCity = errors.New("city must not be empty")

// Gateway fetches forecasts and normalizes them into Snapshots.
// It holds no state across calls.
type Gateway struct {
	providers []Provider
	zone      *time.Location
}

// NewGateway creates a Gateway. Providers are tried in order; an explicit
// not-found answer from one provider is final, while an unavailable provider
// falls through to the next. Zone is used for date grouping when a provider
// does not report the city's own time zone.
func NewGateway(zone *time.Location, providers ...Provider) *Gateway {
	if zone == nil {
		zone = time.UTC
	}
	return &Gateway{
		providers: providers,
		zone:      zone,
	}
}

// Fetch returns the normalized forecast for city. Errors wrap ErrNotFound,
// ErrUnavailable or ErrInvalidCity.
func (g *Gateway) Fetch(ctx context.Context, city string) (Snapshot, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return Snapshot{}, ErrInvalidCity
	}
	if len(g.providers) == 0 {
		return Snapshot{}, fmt.Errorf("%w: no weather providers configured", ErrUnavailable)
	}

	var lastErr error
	for _, p := range g.providers {
		forecast, err := p.FetchForecast(ctx, city)
		if err == nil {
			return g.normalize(forecast), nil
		}

		log.WithFields(log.Fields{
			"provider": p.Name(),
			"city":     city,
			"event":    "forecast_failed",
		}).WithError(err).Warn("Provider forecast failed")

		if errors.Is(err, ErrNotFound) {
			return Snapshot{}, err
		}
		if !errors.Is(err, ErrUnavailable) {
			err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		lastErr = err
	}

	return Snapshot{}, lastErr
}

func (g *Gateway) normalize(f Forecast) Snapshot {
	zone := f.Zone
	if zone == nil {
		zone = g.zone
	}
	return Snapshot{
		Location: f.Location,
		Days:     GroupByDate(f.Readings, zone, MaxForecastDays),
	}
}

// GroupByDate buckets readings by calendar date in zone, keeps the first
// maxDays dates in ascending order, and sorts each bucket by time.
func GroupByDate(readings []HourlyReading, zone *time.Location, maxDays int) []DayBucket {
	if zone == nil {
		zone = time.UTC
	}

	byDate := make(map[string]*DayBucket)
	for _, r := range readings {
		local := r.Time.In(zone)
		key := local.Format("2006-01-02")

		b, ok := byDate[key]
		if !ok {
			b = &DayBucket{
				Date: time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, zone),
			}
			byDate[key] = b
		}
		r.Time = local
		b.Readings = append(b.Readings, r)
	}

	keys := make([]string, 0, len(byDate))
	for k := range byDate {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if maxDays > 0 && len(keys) > maxDays {
		keys = keys[:maxDays]
	}

	days := make([]DayBucket, 0, len(keys))
	for _, k := range keys {
		b := byDate[k]
		sort.SliceStable(b.Readings, func(i, j int) bool {
			return b.Readings[i].Time.Before(b.Readings[j].Time)
		})
		days = append(days, *b)
	}
	return days
}
