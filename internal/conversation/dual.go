package conversation

import (
	"strings"

	"github.com/i474232898/weather-chat/internal/common"
)

// Variant selects one side of a Dual context.
type Variant int

const (
	// WithAPI holds assistant replies grounded on live weather data.
	WithAPI Variant = iota
	// WithoutAPI holds replies produced without weather data.
	WithoutAPI
)

func (v Variant) String() string {
	if v == WithoutAPI {
		return "no_api"
	}
	return "api"
}

// weatherTokens are the words and units treated as weather-indicative when
// scrubbing the weather-free variant.
var weatherTokens = []string{
	"°c", "°f", "hpa", "m/s", "km/h", "%",
	"suhu", "temperatur", "temperature",
	"kelembaban", "kelembapan", "humidity",
	"angin", "wind",
	"tekanan", "pressure",
	"kondisi", "cerah", "berawan", "mendung", "hujan", "gerimis", "badai", "kabut",
	"sunny", "cloudy", "rain", "storm",
}

// Scrub removes every line that mentions a weather token. It is a keyword
// heuristic, not a parser: it can miss paraphrased data and drop unrelated
// lines that happen to contain a token.
func Scrub(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if common.HasAny(line, weatherTokens...) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// Dual keeps the with-API and without-API histories side by side. Both hold
// the same user entries and differ only in assistant content.
type Dual struct {
	with    *Context
	without *Context
}

// NewDual returns an empty pair. The without-API side scrubs weather lines
// from assistant replies when rendered.
func NewDual() *Dual {
	return &Dual{
		with:    New(),
		without: &Context{filter: Scrub},
	}
}

// AppendUser adds the user's text to both variants.
func (d *Dual) AppendUser(text string) {
	d.with.Append(RoleUser, text)
	d.without.Append(RoleUser, text)
}

// AppendAssistant adds one reply per variant. When only one mode ran, pass
// the same text for both.
func (d *Dual) AppendAssistant(withAPI, withoutAPI string) {
	d.with.Append(RoleAssistant, withAPI)
	d.without.Append(RoleAssistant, withoutAPI)
}

// Render renders the selected variant.
func (d *Dual) Render(v Variant, maxTurns int) string {
	return d.Variant(v).Render(maxTurns)
}

// Variant returns the context backing v.
func (d *Dual) Variant(v Variant) *Context {
	if v == WithoutAPI {
		return d.without
	}
	return d.with
}
