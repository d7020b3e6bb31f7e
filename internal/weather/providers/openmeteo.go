package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kelvins/geocoder"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-chat/internal/weather"
)

// DefaultOpenMeteoURL is the Open-Meteo forecast endpoint.
const DefaultOpenMeteoURL = "https://api.open-meteo.com/v1/forecast"

// GeocodeFunc resolves a city name to coordinates.
type GeocodeFunc func(ctx context.Context, city string) (lat, lon float64, err error)

// GoogleGeocoder resolves cities through the Google Geocoding API. The
// geocoder package keeps its key in a global, so it is set once here and
// only read afterwards; build a single GoogleGeocoder per process.
func GoogleGeocoder(apiKey string) GeocodeFunc {
	geocoder.ApiKey = apiKey
	return func(_ context.Context, city string) (float64, float64, error) {
		loc, err := geocoder.Geocoding(geocoder.Address{City: city})
		if err != nil {
			return 0, 0, err
		}
		return loc.Latitude, loc.Longitude, nil
	}
}

// OpenMeteoProvider implements weather.Provider for Open-Meteo. Open-Meteo
// only accepts coordinates, so the city is geocoded first; a city the
// geocoder cannot place is reported as not found.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	geocode GeocodeFunc
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client, baseURL string, geocode GeocodeFunc, backoff BackoffConfig) *OpenMeteoProvider {
	if baseURL == "" {
		baseURL = DefaultOpenMeteoURL
	}
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: baseURL,
		geocode: geocode,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: backoff,
		},
		circuit: newBreaker("openmeteo"),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

type openMeteoForecast struct {
	UTCOffsetSeconds int `json:"utc_offset_seconds"`
	Hourly           struct {
		Time        []string  `json:"time"`
		Temperature []float64 `json:"temperature_2m"`
		Apparent    []float64 `json:"apparent_temperature"`
		Humidity    []float64 `json:"relative_humidity_2m"`
		WindSpeed   []float64 `json:"wind_speed_10m"`
		Pressure    []float64 `json:"surface_pressure"`
		WeatherCode []int     `json:"weather_code"`
	} `json:"hourly"`
}

func (p *OpenMeteoProvider) FetchForecast(ctx context.Context, city string) (weather.Forecast, error) {
	if p.geocode == nil {
		return weather.Forecast{}, fmt.Errorf("%s: %w: geocoder is not configured", p.name, weather.ErrUnavailable)
	}

	lat, lon, err := p.geocode(ctx, city)
	if err != nil {
		return weather.Forecast{}, fmt.Errorf("%s: %w: geocode %q: %v", p.name, weather.ErrNotFound, city, err)
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
		values.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
		values.Set("hourly", "temperature_2m,apparent_temperature,relative_humidity_2m,wind_speed_10m,surface_pressure,weather_code")
		values.Set("wind_speed_unit", "ms")
		values.Set("timezone", "auto")
		values.Set("forecast_days", strconv.Itoa(weather.MaxForecastDays))

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.Forecast{}, classify(p.name, err)
	}
	defer resp.Body.Close()

	var payload openMeteoForecast
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.Forecast{}, fmt.Errorf("%s: %w: decode forecast: %v", p.name, weather.ErrUnavailable, err)
	}

	zone := fixedZone(payload.UTCOffsetSeconds)
	forecast := weather.Forecast{
		Location: weather.Location{City: city},
		Zone:     zone,
	}

	h := payload.Hourly
	for i, raw := range h.Time {
		ts, err := time.ParseInLocation("2006-01-02T15:04", raw, zone)
		if err != nil {
			continue
		}
		code := at(h.WeatherCode, i)
		cond := mapOpenMeteoCondition(code)
		forecast.Readings = append(forecast.Readings, weather.HourlyReading{
			Time:          ts.UTC(),
			TempC:         atf(h.Temperature, i),
			FeelsLikeC:    atf(h.Apparent, i),
			HumidityPct:   atf(h.Humidity, i),
			WindSpeed:     atf(h.WindSpeed, i),
			PressureHpa:   atf(h.Pressure, i),
			ConditionText: conditionText(cond),
			Condition:     cond,
		})
	}

	return forecast, nil
}

func atf(xs []float64, i int) float64 {
	if i < len(xs) {
		return xs[i]
	}
	return 0
}

func at(xs []int, i int) int {
	if i < len(xs) {
		return xs[i]
	}
	return -1
}

func mapOpenMeteoCondition(code int) weather.Condition {
	// Mapping based on Open-Meteo weather codes (simplified).
	switch {
	case code == 0:
		return weather.ConditionClear
	case code >= 1 && code <= 3:
		return weather.ConditionCloudy
	case code == 45 || code == 48:
		return weather.ConditionMist
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return weather.ConditionRain
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return weather.ConditionSnow
	case code >= 95:
		return weather.ConditionStorm
	default:
		return weather.ConditionUnknown
	}
}

// conditionText gives an Indonesian label for providers that only report codes.
func conditionText(c weather.Condition) string {
	switch c {
	case weather.ConditionClear:
		return "cerah"
	case weather.ConditionCloudy:
		return "berawan"
	case weather.ConditionMist:
		return "berkabut"
	case weather.ConditionRain:
		return "hujan"
	case weather.ConditionSnow:
		return "salju"
	case weather.ConditionStorm:
		return "badai petir"
	default:
		return "tidak diketahui"
	}
}
