package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// APIError is returned for non-2xx responses from a model API.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s api error: %s", e.Provider, e.Body)
	}
	return fmt.Sprintf("%s api error %d: %s", e.Provider, e.Status, e.Body)
}

var errCircuitOpen = errors.New("circuit breaker open")

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-" + name,
		MaxRequests: 3,
		Interval:    1 * time.Minute,
		Timeout:     1 * time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})
}

// postJSON sends body as JSON through the breaker. Only transport errors,
// 429 and 5xx count as breaker failures. The caller owns the response body.
func postJSON(
	ctx context.Context,
	client *http.Client,
	cb *gobreaker.CircuitBreaker,
	provider, url string,
	headers map[string]string,
	body interface{},
) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	result, err := cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, readAPIError(provider, resp)
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: %w: %v", provider, errCircuitOpen, err)
		}
		return nil, err
	}

	resp := result.(*http.Response)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, readAPIError(provider, resp)
	}
	return resp, nil
}

func readAPIError(provider string, resp *http.Response) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{Provider: provider, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// streamError reports an error object sent inside a stream, such as
// {"error":{"message":"rate limit reached"}} from OpenAI-compatible APIs and
// Gemini, or Mistral's {"object":"error","message":"..."}. It returns nil for
// ordinary chunks.
func streamError(provider, data string) error {
	var payload struct {
		Object  string          `json:"object"`
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return nil
	}

	if len(payload.Error) > 0 && string(payload.Error) != "null" {
		apiErr := &APIError{Provider: provider}
		var detail struct {
			Message string          `json:"message"`
			Code    json.RawMessage `json:"code"`
		}
		var text string
		switch {
		case json.Unmarshal(payload.Error, &detail) == nil:
			apiErr.Body = detail.Message
			var code int
			if json.Unmarshal(detail.Code, &code) == nil {
				apiErr.Status = code
			}
		case json.Unmarshal(payload.Error, &text) == nil:
			apiErr.Body = text
		}
		if apiErr.Body == "" {
			apiErr.Body = data
		}
		return apiErr
	}
	if payload.Object == "error" {
		return &APIError{Provider: provider, Body: payload.Message}
	}
	return nil
}

// readSSE calls onData with the payload of each "data:" line until onData
// returns done, the stream ends or ctx is cancelled.
func readSSE(ctx context.Context, r io.Reader, onData func(data string) (done bool, err error)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		done, err := onData(data)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return ctx.Err()
}
