// Package providers wraps the external AI collaborators behind narrow
// interfaces: an embedding function and a pairwise judgement function.
// Detection engines and the offset matcher depend on these interfaces,
// never on an SDK.
package providers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTransient marks failures worth retrying: rate limits, timeouts,
// upstream 5xx. The job layer schedules backoff off this sentinel.
var ErrTransient = errors.New("transient provider error")

// Embedder produces one vector per input text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Verdict is the structured answer to a pairwise judgement prompt.
type Verdict struct {
	Related     bool    `json:"related"`
	Strength    float64 `json:"strength"`
	Explanation string  `json:"explanation"`
}

// Classifier answers a judgement prompt with a structured verdict.
type Classifier interface {
	Judge(ctx context.Context, prompt string) (*Verdict, error)
}

// RateLimitError reports an upstream 429 with the advertised wait.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
	StatusCode int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (status %d): %s", e.StatusCode, e.Message)
}

// Unwrap makes rate limits visible to errors.Is(err, ErrTransient).
func (e *RateLimitError) Unwrap() error {
	return ErrTransient
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := time.ParseDuration(header + "s"); err == nil {
		return secs
	}
	return 0
}
