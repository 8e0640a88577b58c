package providers

import (
	"context"
	"strings"
	"sync"
)

// MockEmbedder is a deterministic in-memory Embedder for tests and
// offline runs. Vectors are derived from keyword presence so related
// texts land near each other.
type MockEmbedder struct {
	mu    sync.Mutex
	Calls int

	// Axes maps a keyword to a vector dimension. Texts containing the
	// keyword get weight on that axis.
	Axes []string

	// Err, when set, is returned from every call.
	Err error
}

// NewMockEmbedder builds an embedder over the given keyword axes.
func NewMockEmbedder(axes ...string) *MockEmbedder {
	if len(axes) == 0 {
		axes = []string{"alpha", "beta", "gamma", "delta"}
	}
	return &MockEmbedder{Axes: axes}
}

func (m *MockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		vec := make([]float32, len(m.Axes)+1)
		for j, axis := range m.Axes {
			vec[j] = float32(strings.Count(lower, axis))
		}
		// Constant bias dimension keeps zero-keyword texts embeddable.
		vec[len(m.Axes)] = 1
		vectors[i] = vec
	}
	return vectors, nil
}

// MockClassifier returns scripted verdicts keyed by prompt substring,
// falling back to Default.
type MockClassifier struct {
	mu    sync.Mutex
	Calls []string

	// Scripted maps a prompt substring to its verdict.
	Scripted map[string]Verdict

	// Default is returned when no scripted entry matches.
	Default Verdict

	// Err, when set, is returned from every call.
	Err error
}

func (m *MockClassifier) Judge(_ context.Context, prompt string) (*Verdict, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, prompt)
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	for needle, verdict := range m.Scripted {
		if strings.Contains(prompt, needle) {
			v := verdict
			return &v, nil
		}
	}
	v := m.Default
	return &v, nil
}

var (
	_ Embedder   = (*MockEmbedder)(nil)
	_ Classifier = (*MockClassifier)(nil)
)
