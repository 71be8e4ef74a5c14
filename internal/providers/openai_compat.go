package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// OpenAICompat calls any OpenAI-compatible /chat/completions endpoint
// (OpenAI, OpenRouter).
type OpenAICompat struct {
	name       string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAICompat builds an adapter. baseURL includes the version prefix,
// e.g. "https://openrouter.ai/api/v1".
func NewOpenAICompat(name, baseURL string, client *http.Client) *OpenAICompat {
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAICompat{name: name, baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"), httpClient: client}
}

var _ Adapter = (*OpenAICompat)(nil)

func (o *OpenAICompat) Complete(ctx context.Context, req Request) (*Completion, error) {
	body, err := json.Marshal(oaiChatRequest{
		Model:       req.Model,
		Messages:    buildMessages(req),
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, transportError(o.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(o.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			Provider:   o.name,
			StatusCode: resp.StatusCode,
			Message: readErrorMessage(resp.Body, func(b []byte) string {
				var e oaiErrorResponse
				_ = json.Unmarshal(b, &e)
				return e.Error.Message
			}),
		}
	}

	var out oaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s decode: %w", o.name, err)
	}
	text := ""
	if len(out.Choices) > 0 {
		text = strings.TrimSpace(out.Choices[0].Message.Content)
	}
	if text == "" {
		text = FallbackText
	}
	return &Completion{
		Text:             text,
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
	}, nil
}

// buildMessages orders the system prompt, history verbatim, then the new
// user message.
func buildMessages(req Request) []oaiMessage {
	messages := make([]oaiMessage, 0, len(req.History)+2)
	messages = append(messages, oaiMessage{Role: "system", Content: req.SystemPrompt})
	for _, m := range req.History {
		messages = append(messages, oaiMessage{Role: m.Role, Content: m.Content})
	}
	return append(messages, oaiMessage{Role: "user", Content: req.Message})
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiChatRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
	MaxTokens   int          `json:"max_tokens"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message oaiMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type oaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
