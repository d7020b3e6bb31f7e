package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-chat/internal/weather"
)

// DefaultOpenWeatherURL is the 5 day / 3 hour forecast endpoint.
const DefaultOpenWeatherURL = "https://api.openweathermap.org/data/2.5/forecast"

// OpenWeatherProvider implements weather.Provider for the OpenWeatherMap forecast API.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	lang    string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(client *http.Client, baseURL, apiKey string, backoff BackoffConfig) *OpenWeatherProvider {
	if baseURL == "" {
		baseURL = DefaultOpenWeatherURL
	}
	return &OpenWeatherProvider{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: baseURL,
		lang:    "id",
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: backoff,
		},
		circuit: newBreaker("openweather"),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

type owmForecast struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp      float64 `json:"temp"`
			FeelsLike float64 `json:"feels_like"`
			Humidity  float64 `json:"humidity"`
			Pressure  float64 `json:"pressure"`
		} `json:"main"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
		Weather []owmCondition `json:"weather"`
	} `json:"list"`
	City struct {
		Name     string `json:"name"`
		Country  string `json:"country"`
		Timezone *int   `json:"timezone"`
	} `json:"city"`
}

type owmCondition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}

func (p *OpenWeatherProvider) FetchForecast(ctx context.Context, city string) (weather.Forecast, error) {
	if p.apiKey == "" {
		return weather.Forecast{}, fmt.Errorf("%s: %w: api key is not configured", p.name, weather.ErrUnavailable)
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("q", city)
		values.Set("appid", p.apiKey)
		values.Set("units", "metric")
		values.Set("lang", p.lang)

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.Forecast{}, classify(p.name, err, http.StatusNotFound)
	}
	defer resp.Body.Close()

	var payload owmForecast
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.Forecast{}, fmt.Errorf("%s: %w: decode forecast: %v", p.name, weather.ErrUnavailable, err)
	}

	forecast := weather.Forecast{
		Location: weather.Location{
			City:    payload.City.Name,
			Country: payload.City.Country,
		},
		Readings: make([]weather.HourlyReading, 0, len(payload.List)),
	}
	if forecast.Location.City == "" {
		forecast.Location.City = city
	}
	if payload.City.Timezone != nil {
		forecast.Zone = fixedZone(*payload.City.Timezone)
	}

	for _, item := range payload.List {
		var desc string
		if len(item.Weather) > 0 {
			desc = item.Weather[0].Description
		}
		forecast.Readings = append(forecast.Readings, weather.HourlyReading{
			Time:          time.Unix(item.Dt, 0).UTC(),
			TempC:         item.Main.Temp,
			FeelsLikeC:    item.Main.FeelsLike,
			HumidityPct:   item.Main.Humidity,
			WindSpeed:     item.Wind.Speed,
			PressureHpa:   item.Main.Pressure,
			ConditionText: desc,
			Condition:     mapOpenWeatherCondition(item.Weather),
		})
	}

	return forecast, nil
}

func mapOpenWeatherCondition(items []owmCondition) weather.Condition {
	if len(items) == 0 {
		return weather.ConditionUnknown
	}
	switch items[0].Main {
	case "Clear":
		return weather.ConditionClear
	case "Clouds":
		return weather.ConditionCloudy
	case "Rain", "Drizzle":
		return weather.ConditionRain
	case "Snow":
		return weather.ConditionSnow
	case "Thunderstorm":
		return weather.ConditionStorm
	case "Mist", "Fog", "Haze", "Smoke":
		return weather.ConditionMist
	default:
		return weather.ConditionUnknown
	}
}

// fixedZone builds a zone from a UTC offset in seconds.
func fixedZone(offset int) *time.Location {
	sign := "+"
	if offset < 0 {
		sign = "-"
	}
	abs := offset
	if abs < 0 {
		abs = -abs
	}
	return time.FixedZone(fmt.Sprintf("UTC%s%02d:%02d", sign, abs/3600, (abs%3600)/60), offset)
}
