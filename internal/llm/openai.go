package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sony/gobreaker"
)

const (
	// DefaultMistralURL is Mistral's OpenAI-compatible API root.
	DefaultMistralURL = "https://api.mistral.ai/v1"
	// DefaultGroqURL is Groq's OpenAI-compatible API root, used for Llama models.
	DefaultGroqURL = "https://api.groq.com/openai/v1"
)

// OpenAICompatible talks to any chat-completions API in the OpenAI format.
type OpenAICompatible struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewOpenAICompatible(name string, client *http.Client, baseURL, apiKey, model string) *OpenAICompatible {
	return &OpenAICompatible{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  client,
		circuit: newBreaker(name),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

func (c *OpenAICompatible) request(prompt string, opts Options, stream bool) chatRequest {
	return chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	}
}

func (c *OpenAICompatible) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

func (c *OpenAICompatible) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	resp, err := postJSON(ctx, c.client, c.circuit, c.name, c.baseURL+"/chat/completions", c.headers(), c.request(prompt, opts, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return result.Choices[0].Message.Content, nil
}

func (c *OpenAICompatible) GenerateStream(ctx context.Context, prompt string, opts Options, out chan<- string) error {
	resp, err := postJSON(ctx, c.client, c.circuit, c.name, c.baseURL+"/chat/completions", c.headers(), c.request(prompt, opts, true))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return readSSE(ctx, resp.Body, func(data string) (bool, error) {
		if data == "[DONE]" {
			return true, nil
		}
		if err := streamError(c.name, data); err != nil {
			return false, err
		}
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return false, nil
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			return false, nil
		}
		return false, send(ctx, out, chunk.Choices[0].Delta.Content)
	})
}
