// Package intent decides whether a message asks about the weather and, if
// so, which city it refers to. Both steps delegate to a helper model.
package intent

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Kind is the classification of a user message.
type Kind string

const (
	Weather Kind = "weather"
	General Kind = "general"
)

// Generator is the subset of a model backend used for helper calls.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const classifyTemplate = `Previous conversation:
%s

Current query: "%s"

Decide whether this query asks for weather information.
Treat references such as "disana", "disitu" or "di kota itu" as weather queries when they point at a location mentioned earlier.
Answer with a single word: "yes" or "no".

Examples:
"What's the weather like in New York?" -> "yes"
"Where is Tokyo?" -> "no"
"Seperti apa cuaca disana?" (after talking about Paris) -> "yes"
"Cuaca di kota itu bagaimana?" (after mentioning London) -> "yes"
"Hi" -> "no"
"How are you?" -> "no"
`

// Classifier labels messages as Weather or General.
type Classifier struct {
	gen Generator
}

func NewClassifier(gen Generator) *Classifier {
	return &Classifier{gen: gen}
}

// Classify returns Weather only when the model answers exactly "yes" after
// normalization. Any failure degrades to General.
func (c *Classifier) Classify(ctx context.Context, history, text string) Kind {
	answer, err := c.gen.Generate(ctx, fmt.Sprintf(classifyTemplate, history, text))
	if err != nil {
		log.WithFields(log.Fields{
			"event": "classify_failed",
		}).WithError(err).Warn("intent classification failed; treating as general")
		return General
	}

	if normalizeAnswer(answer) == "yes" {
		return Weather
	}
	return General
}

func normalizeAnswer(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, "\"'`")
	s = strings.TrimSuffix(s, ".")
	return strings.TrimSpace(s)
}
