package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	openAIDefaultEmbedModel = "text-embedding-3-small"
	openAIDefaultChatModel  = openai.ChatModelGPT4oMini
)

// verdictSystemPrompt pins the response shape for Judge calls.
const verdictSystemPrompt = `You judge relationships between two text passages.
Respond with ONLY a JSON object of the form
{"related": bool, "strength": number between 0 and 1, "explanation": short string}.
No markdown, no commentary.`

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey     string
	EmbedModel string        // "text-embedding-3-small" (default)
	ChatModel  string        // "gpt-4o-mini" (default)
	RateLimit  int           // Requests per minute
	MaxRetries int           // Retry attempts for SDK transport
	Timeout    time.Duration // HTTP timeout
	BaseURL    string        // Optional (tests)
	HTTPClient *http.Client  // Optional (tests)
}

// OpenAIClient implements Embedder and Classifier on the official SDK.
type OpenAIClient struct {
	client     openai.Client
	embedModel string
	chatModel  string
	limiter    *RateLimiter
}

// NewOpenAIClient creates an OpenAI-backed provider client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = openAIDefaultEmbedModel
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = openAIDefaultChatModel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		client:     openai.NewClient(opts...),
		embedModel: cfg.EmbedModel,
		chatModel:  cfg.ChatModel,
		limiter:    NewRateLimiter(cfg.RateLimit),
	}
}

// Embed returns one vector per input text, in input order.
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(c.embedModel),
	})
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			vec[j] = float32(f)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Judge sends a pairwise judgement prompt and parses the structured
// verdict, validating it against the verdict schema before returning.
func (c *OpenAIClient) Judge(ctx context.Context, prompt string) (*Verdict, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("judgement prompt is empty")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.chatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(verdictSystemPrompt),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("judgement response has no choices")
	}

	return ParseVerdict(resp.Choices[0].Message.Content)
}

// HealthCheck verifies the API is reachable and the key is valid.
func (c *OpenAIClient) HealthCheck(ctx context.Context) error {
	page, err := c.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("openai models list failed: %w", mapOpenAIError(err))
	}
	if page == nil {
		return fmt.Errorf("openai models list returned nil response")
	}
	return nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			retryAfter := time.Duration(0)
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			return &RateLimitError{
				Message:    apiErr.Message,
				RetryAfter: retryAfter,
				StatusCode: apiErr.StatusCode,
			}
		case apiErr.StatusCode >= 500:
			return fmt.Errorf("%w: openai error (status %d): %s", ErrTransient, apiErr.StatusCode, apiErr.Message)
		default:
			return fmt.Errorf("openai error (status %d): %s", apiErr.StatusCode, apiErr.Message)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}

var (
	_ Embedder   = (*OpenAIClient)(nil)
	_ Classifier = (*OpenAIClient)(nil)
)
