package weather

import (
	"time"
)

// MaxForecastDays is the number of calendar days kept in a Snapshot.
const MaxForecastDays = 5

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionMist    Condition = "mist"
)

// Location identifies the place a forecast was issued for.
// Country is optional; some providers omit it.
type Location struct {
	City    string `json:"city"`
	Country string `json:"country,omitempty"`
}

// Key returns a canonical string key for this location.
func (l Location) Key() string {
	if l.Country == "" {
		return l.City
	}
	return l.City + ":" + l.Country
}

// HourlyReading is a single forecast point.
type HourlyReading struct {
	Time          time.Time `json:"time"`
	TempC         float64   `json:"tempC"`
	FeelsLikeC    float64   `json:"feelsLikeC"`
	HumidityPct   float64   `json:"humidityPercent"`
	WindSpeed     float64   `json:"windSpeedMs"`
	PressureHpa   float64   `json:"pressureHpa"`
	ConditionText string    `json:"conditionText"`
	Condition     Condition `json:"condition"`
}

// DayBucket holds the readings of one calendar day, ordered by time ascending.
type DayBucket struct {
	Date     time.Time       `json:"date"`
	Readings []HourlyReading `json:"readings"`
}

// Snapshot is the normalized forecast returned by the Gateway.
// Days are sorted ascending and capped to MaxForecastDays.
type Snapshot struct {
	Location Location    `json:"location"`
	Days     []DayBucket `json:"days"`
}

// Forecast is the raw, ungrouped provider output for a city.
type Forecast struct {
	Location Location
	// Zone is the city's local time zone when the provider reports one.
	Zone     *time.Location
	Readings []HourlyReading
}
