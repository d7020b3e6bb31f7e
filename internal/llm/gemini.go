package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sony/gobreaker"
)

// DefaultGeminiURL is the Generative Language API root.
const DefaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta"

// Gemini talks to Google's Generative Language API.
type Gemini struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewGemini(client *http.Client, baseURL, apiKey, model string) *Gemini {
	if baseURL == "" {
		baseURL = DefaultGeminiURL
	}
	return &Gemini{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  client,
		circuit: newBreaker("gemini"),
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (r geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func (g *Gemini) request(prompt string, opts Options) geminiRequest {
	req := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	}
	if opts.Temperature != nil || opts.MaxTokens > 0 {
		req.GenerationConfig = &geminiGenerationConfig{
			Temperature:     opts.Temperature,
			MaxOutputTokens: opts.MaxTokens,
		}
	}
	return req
}

func (g *Gemini) endpoint(method string, extra url.Values) string {
	q := url.Values{}
	for k, v := range extra {
		q[k] = v
	}
	q.Set("key", g.apiKey)
	return fmt.Sprintf("%s/models/%s:%s?%s", g.baseURL, g.model, method, q.Encode())
}

func (g *Gemini) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	resp, err := postJSON(ctx, g.client, g.circuit, "gemini", g.endpoint("generateContent", nil), nil, g.request(prompt, opts))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	text := result.text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (g *Gemini) GenerateStream(ctx context.Context, prompt string, opts Options, out chan<- string) error {
	u := g.endpoint("streamGenerateContent", url.Values{"alt": {"sse"}})
	resp, err := postJSON(ctx, g.client, g.circuit, "gemini", u, nil, g.request(prompt, opts))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return readSSE(ctx, resp.Body, func(data string) (bool, error) {
		if err := streamError("gemini", data); err != nil {
			return false, err
		}
		var chunk geminiResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return false, nil
		}
		if text := chunk.text(); text != "" {
			return false, send(ctx, out, text)
		}
		return false, nil
	})
}
