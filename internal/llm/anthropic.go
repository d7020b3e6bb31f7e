package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"
)

// DefaultAnthropicURL is the Messages API endpoint.
const DefaultAnthropicURL = "https://api.anthropic.com/v1/messages"

// anthropicMaxTokens is sent when no limit is configured; the API requires one.
const anthropicMaxTokens = 1024

// Anthropic talks to the Messages API. It only returns whole responses.
type Anthropic struct {
	url     string
	apiKey  string
	model   string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewAnthropic(client *http.Client, url, apiKey, model string) *Anthropic {
	if url == "" {
		url = DefaultAnthropicURL
	}
	return &Anthropic{
		url:     url,
		apiKey:  apiKey,
		model:   model,
		client:  client,
		circuit: newBreaker("anthropic"),
	}
}

type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature *float64      `json:"temperature,omitempty"`
	Messages    []chatMessage `json:"messages"`
}

func (a *Anthropic) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicMaxTokens
	}
	body := anthropicRequest{
		Model:       a.model,
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
	}
	headers := map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": "2023-06-01",
	}

	resp, err := postJSON(ctx, a.client, a.circuit, "anthropic", a.url, headers, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	for _, c := range result.Content {
		if c.Type == "text" && c.Text != "" {
			return c.Text, nil
		}
	}
	return "", ErrEmptyResponse
}
