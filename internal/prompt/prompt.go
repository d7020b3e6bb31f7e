// Package prompt assembles the final prompts sent to every backend.
package prompt

import (
	"errors"
	"fmt"
	"strings"
)

// Kind selects a prompt template.
type Kind int

const (
	// General is a free-form conversational reply.
	General Kind = iota
	// WeatherGrounded asks for a reply based on formatted weather data.
	WeatherGrounded
)

// ErrMissingWeather is returned when a weather-grounded prompt has no data.
var ErrMissingWeather = errors.New("weather-grounded prompt requires weather data")

// NoAPIMarker is appended to the user text of prompts built without weather data.
const NoAPIMarker = "[API OpenWeatherMap tidak digunakan. Berikan respons umum berdasarkan pengetahuan yang dimiliki.]"

const weatherTemplate = `Previous conversation:
%s

Current query: "%s"

Berdasarkan data cuaca berikut, berikan respons yang natural dan informatif:

%s

Pahami dengan teliti apa yang ditanyakan user. Jika tanggal yang ditanyakan tidak ada di dalam data, sampaikan saja tidak tahu.
Berikan analisis singkat tentang kondisi cuaca dan saran yang relevan berdasarkan data tersebut.
Gunakan bahasa yang ramah dan mudah dipahami.`

const generalTemplate = `Previous conversation:
%s

Current query: "%s"

Berikan respons yang ramah dan natural untuk pesan pengguna di atas.
Gunakan bahasa Indonesia yang sopan dan informal.
Anda adalah asisten AI yang dapat memberikan informasi cuaca, tetapi juga bisa bercakap-cakap tentang topik umum.`

// Build renders a prompt. history is the rendered conversation context and
// may be empty.
func Build(kind Kind, history, userText, weather string) (string, error) {
	switch kind {
	case WeatherGrounded:
		if strings.TrimSpace(weather) == "" {
			return "", ErrMissingWeather
		}
		return fmt.Sprintf(weatherTemplate, history, userText, weather), nil
	case General:
		return fmt.Sprintf(generalTemplate, history, userText), nil
	default:
		return "", fmt.Errorf("unknown prompt kind %d", kind)
	}
}

// WithoutAPI marks userText as answered without live weather data.
func WithoutAPI(userText string) string {
	return userText + "\n" + NoAPIMarker
}
