package intent

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type scriptedGenerator struct {
	answer string
	err    error
	prompt string
}

func (s *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.answer, s.err
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		err    error
		want   Kind
	}{
		{name: "yes", answer: "yes", want: Weather},
		{name: "quoted with period", answer: " \"Yes.\" ", want: Weather},
		{name: "uppercase", answer: "YES", want: Weather},
		{name: "no", answer: "no", want: General},
		{name: "chatty answer", answer: "yes, it is", want: General},
		{name: "backend error", err: errors.New("timeout"), want: General},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(&scriptedGenerator{answer: tt.answer, err: tt.err})
			if got := c.Classify(context.Background(), "", "Bagaimana cuaca di Jakarta?"); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestClassify_PromptCarriesHistory(t *testing.T) {
	gen := &scriptedGenerator{answer: "yes"}
	c := NewClassifier(gen)
	c.Classify(context.Background(), "Human: Bagaimana cuaca di Paris?", "Seperti apa cuaca disana?")

	if !strings.Contains(gen.prompt, "Human: Bagaimana cuaca di Paris?") {
		t.Fatalf("history missing from prompt: %q", gen.prompt)
	}
	if !strings.Contains(gen.prompt, `"Seperti apa cuaca disana?"`) {
		t.Fatalf("query missing from prompt: %q", gen.prompt)
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   string
	}{
		{name: "plain", answer: "jakarta", want: "jakarta"},
		{name: "mixed case and quotes", answer: " \"Paris\"\n", want: "paris"},
		{name: "percent encoded", answer: "new%20york", want: "new york"},
		{name: "extra spaces", answer: "  New   York ", want: "new york"},
		{name: "alias", answer: "Jogja", want: "yogyakarta"},
		{name: "unknown sentinel", answer: "lokasi%20tidak%20diketahui", want: UnknownLocation},
		{name: "empty", answer: "   ", want: UnknownLocation},
		{name: "first line only", answer: "bandung\nKota di Jawa Barat", want: "bandung"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(&scriptedGenerator{answer: tt.answer}, nil)
			got, err := r.Resolve(context.Background(), "", "cuaca?")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestResolve_BackendError(t *testing.T) {
	boom := errors.New("rate limited")
	r := NewResolver(&scriptedGenerator{err: boom}, nil)

	got, err := r.Resolve(context.Background(), "", "cuaca di Bali?")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped backend error, got %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty city on error, got %q", got)
	}
}
