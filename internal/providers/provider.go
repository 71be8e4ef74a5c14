// Package providers adapts upstream LLM vendors to one completion contract.
package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/inaiurai/gateway/internal/models"
)

// FallbackText is returned when the upstream answer has no usable text.
const FallbackText = "I couldn't generate a response. Please try again."

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 4096
	maxErrorBodyBytes  = 4 << 10
)

// Request is one completion call.
type Request struct {
	SystemPrompt string
	History      []models.ChatMessage
	Message      string
	Model        string
	APIKey       string
}

// Completion is the upstream answer and its token accounting.
type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Adapter calls one upstream API.
type Adapter interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s api error: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s api error: status %d", e.Provider, e.StatusCode)
}

// IsRateLimited reports whether err is an upstream 429.
func IsRateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests
}

// Set maps provider names to adapters.
type Set map[string]Adapter

// Endpoints holds per-vendor base URLs. Empty values use the public defaults.
type Endpoints struct {
	GeminiBaseURL     string
	OpenAIBaseURL     string
	OpenRouterBaseURL string
}

const (
	DefaultGeminiBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	DefaultOpenAIBaseURL     = "https://api.openai.com/v1"
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// NewSet builds the adapters for every supported vendor, sharing client.
func NewSet(ep Endpoints, client *http.Client) Set {
	return Set{
		models.ProviderGemini:     NewGemini(orDefault(ep.GeminiBaseURL, DefaultGeminiBaseURL), client),
		models.ProviderOpenAI:     NewOpenAICompat(models.ProviderOpenAI, orDefault(ep.OpenAIBaseURL, DefaultOpenAIBaseURL), client),
		models.ProviderOpenRouter: NewOpenAICompat(models.ProviderOpenRouter, orDefault(ep.OpenRouterBaseURL, DefaultOpenRouterBaseURL), client),
	}
}

// For returns the adapter for provider.
func (s Set) For(provider string) (Adapter, error) {
	a, ok := s[provider]
	if !ok {
		return nil, fmt.Errorf("unsupported provider %q", provider)
	}
	return a, nil
}

func orDefault(v, def string) string {
	v = strings.TrimRight(strings.TrimSpace(v), "/")
	if v == "" {
		return def
	}
	return v
}

// transportError drops the request URL from client errors. Gemini carries the
// api key in the query string.
func transportError(provider string, err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	return fmt.Errorf("%s request: %w", provider, err)
}

func readErrorMessage(body io.Reader, extract func([]byte) string) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBodyBytes))
	if msg := extract(data); msg != "" {
		return msg
	}
	return strings.TrimSpace(string(data))
}
