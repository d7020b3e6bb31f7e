package intent

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// UnknownLocation is returned when no city can be determined.
const UnknownLocation = "lokasi tidak diketahui"

const resolveTemplate = `Previous conversation:
%s

Current query: "%s"

Extract the city being discussed:
1. If the query uses words like "disana", "disitu" or "di kota itu", return the last city mentioned in the conversation.
2. If the query names a new city, return that city instead.
3. If no city can be determined, return "%s".
4. Use the common name for aliases (for example "jogja" -> "yogyakarta").

Return ONLY the city name in lowercase, without any other text.
`

// DefaultAliases maps colloquial names to the names weather providers know.
var DefaultAliases = map[string]string{
	"jogja": "yogyakarta",
	"jogya": "yogyakarta",
	"yogya": "yogyakarta",
	"bdg":   "bandung",
	"sby":   "surabaya",
}

// Resolver extracts a normalized city name from a message and its history.
type Resolver struct {
	gen     Generator
	aliases map[string]string
}

func NewResolver(gen Generator, aliases map[string]string) *Resolver {
	if aliases == nil {
		aliases = DefaultAliases
	}
	return &Resolver{gen: gen, aliases: aliases}
}

// Resolve returns a lowercase city name with single spaces, or
// UnknownLocation. A helper model failure is returned as an error.
func (r *Resolver) Resolve(ctx context.Context, history, text string) (string, error) {
	answer, err := r.gen.Generate(ctx, fmt.Sprintf(resolveTemplate, history, text, UnknownLocation))
	if err != nil {
		return "", fmt.Errorf("resolve city: %w", err)
	}

	city := NormalizeCity(answer)
	if city == "" {
		return UnknownLocation, nil
	}
	if alias, ok := r.aliases[city]; ok {
		city = alias
	}
	return city, nil
}

// NormalizeCity trims quotes and punctuation, decodes %20-style escapes,
// lowercases and collapses whitespace. Only the first line of s is used.
func NormalizeCity(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if decoded, err := url.QueryUnescape(s); err == nil {
		s = decoded
	}
	s = strings.Trim(s, " \t\"'`.")
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}
