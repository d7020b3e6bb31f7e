package weather

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when the provider explicitly reports an unknown location.
	ErrNotFound = errors.New("location not found")
	// ErrUnavailable is returned on transport failures and non-2xx provider responses.
	ErrUnavailable = errors.New("weather provider unavailable")
)

// Provider abstracts a forecast source (e.g. OpenWeatherMap, WeatherAPI, Open-Meteo).
//
// FetchForecast must return an error wrapping ErrNotFound or ErrUnavailable on
// failure so callers can keep the taxonomy for diagnostics.
type Provider interface {
	Name() string
	FetchForecast(ctx context.Context, city string) (Forecast, error)
}
