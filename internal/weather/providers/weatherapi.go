package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-chat/internal/common"
	"github.com/i474232898/weather-chat/internal/weather"
)

// DefaultWeatherAPIURL is the WeatherAPI.com forecast endpoint.
const DefaultWeatherAPIURL = "https://api.weatherapi.com/v1/forecast.json"

// weatherAPINoMatch is WeatherAPI's error code for an unknown location.
const weatherAPINoMatch = 1006

// WeatherAPIProvider implements weather.Provider for WeatherAPI.com.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherAPIProvider(client *http.Client, baseURL, apiKey string, backoff BackoffConfig) *WeatherAPIProvider {
	if baseURL == "" {
		baseURL = DefaultWeatherAPIURL
	}
	return &WeatherAPIProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: backoff,
		},
		circuit: newBreaker("weatherapi"),
	}
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

type weatherAPIForecast struct {
	Location struct {
		Name    string `json:"name"`
		Country string `json:"country"`
		TzID    string `json:"tz_id"`
	} `json:"location"`
	Forecast struct {
		ForecastDay []struct {
			Hour []struct {
				TimeEpoch  int64   `json:"time_epoch"`
				TempC      float64 `json:"temp_c"`
				FeelsLikeC float64 `json:"feelslike_c"`
				Humidity   float64 `json:"humidity"`
				WindKph    float64 `json:"wind_kph"`
				PressureMb float64 `json:"pressure_mb"`
				Condition  struct {
					Text string `json:"text"`
				} `json:"condition"`
			} `json:"hour"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

func (p *WeatherAPIProvider) FetchForecast(ctx context.Context, city string) (weather.Forecast, error) {
	if p.apiKey == "" {
		return weather.Forecast{}, fmt.Errorf("%s: %w: api key is not configured", p.name, weather.ErrUnavailable)
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		values.Set("q", city)
		values.Set("days", strconv.Itoa(weather.MaxForecastDays))
		values.Set("lang", "id")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		if isNoMatch(err) {
			return weather.Forecast{}, fmt.Errorf("%s: %w: %v", p.name, weather.ErrNotFound, err)
		}
		return weather.Forecast{}, classify(p.name, err)
	}
	defer resp.Body.Close()

	var payload weatherAPIForecast
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.Forecast{}, fmt.Errorf("%s: %w: decode forecast: %v", p.name, weather.ErrUnavailable, err)
	}

	forecast := weather.Forecast{
		Location: weather.Location{
			City:    payload.Location.Name,
			Country: payload.Location.Country,
		},
	}
	if forecast.Location.City == "" {
		forecast.Location.City = city
	}
	if payload.Location.TzID != "" {
		if zone, err := time.LoadLocation(payload.Location.TzID); err == nil {
			forecast.Zone = zone
		}
	}

	for _, day := range payload.Forecast.ForecastDay {
		for _, h := range day.Hour {
			forecast.Readings = append(forecast.Readings, weather.HourlyReading{
				Time:        time.Unix(h.TimeEpoch, 0).UTC(),
				TempC:       h.TempC,
				FeelsLikeC:  h.FeelsLikeC,
				HumidityPct: h.Humidity,
				// Convert wind from kph to m/s (approx).
				WindSpeed:     h.WindKph / 3.6,
				PressureHpa:   h.PressureMb,
				ConditionText: h.Condition.Text,
				Condition:     mapWeatherAPICondition(h.Condition.Text),
			})
		}
	}

	return forecast, nil
}

func isNoMatch(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest {
		return false
	}
	var body struct {
		Error struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(se.Body), &body) != nil {
		return false
	}
	return body.Error.Code == weatherAPINoMatch
}

func mapWeatherAPICondition(text string) weather.Condition {
	switch {
	case text == "":
		return weather.ConditionUnknown
	case common.HasAny(text, "thunder", "petir"):
		return weather.ConditionStorm
	case common.HasAny(text, "rain", "shower", "drizzle", "hujan", "gerimis"):
		return weather.ConditionRain
	case common.HasAny(text, "snow", "sleet", "blizzard", "salju"):
		return weather.ConditionSnow
	case common.HasAny(text, "mist", "fog", "kabut"):
		return weather.ConditionMist
	case common.HasAny(text, "cloud", "overcast", "berawan", "mendung"):
		return weather.ConditionCloudy
	case common.HasAny(text, "sunny", "clear", "cerah"):
		return weather.ConditionClear
	default:
		return weather.ConditionUnknown
	}
}
