package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/inaiurai/gateway/internal/models"
)

// Gemini calls the generateContent API with the whole turn flattened into a
// single prompt.
type Gemini struct {
	baseURL    string
	httpClient *http.Client
}

func NewGemini(baseURL string, client *http.Client) *Gemini {
	if client == nil {
		client = http.DefaultClient
	}
	return &Gemini{baseURL: strings.TrimRight(baseURL, "/"), httpClient: client}
}

var _ Adapter = (*Gemini)(nil)

func (g *Gemini) Complete(ctx context.Context, req Request) (*Completion, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: BuildPrompt(req)}}}},
		GenerationConfig: generationConfig{
			Temperature:     defaultTemperature,
			MaxOutputTokens: defaultMaxTokens,
		},
	})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		g.baseURL, url.PathEscape(normalizeModel(req.Model)), url.QueryEscape(req.APIKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, transportError(models.ProviderGemini, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(models.ProviderGemini, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			Provider:   models.ProviderGemini,
			StatusCode: resp.StatusCode,
			Message: readErrorMessage(resp.Body, func(b []byte) string {
				var e errorResponse
				_ = json.Unmarshal(b, &e)
				return e.Error.Message
			}),
		}
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("gemini decode: %w", err)
	}
	text := ""
	if len(out.Candidates) > 0 && len(out.Candidates[0].Content.Parts) > 0 {
		text = out.Candidates[0].Content.Parts[0].Text
	}
	if strings.TrimSpace(text) == "" {
		text = FallbackText
	}
	return &Completion{
		Text:             text,
		PromptTokens:     out.UsageMetadata.PromptTokenCount,
		CompletionTokens: out.UsageMetadata.CandidatesTokenCount,
	}, nil
}

// BuildPrompt flattens system prompt, history and the new message into the
// single text blob sent to Gemini.
func BuildPrompt(req Request) string {
	if len(req.History) == 0 {
		return req.SystemPrompt + "\n\nUser: " + req.Message
	}
	lines := make([]string, 0, len(req.History))
	for _, m := range req.History {
		speaker := "Assistant"
		if m.Role == models.RoleChatUser {
			speaker = "User"
		}
		lines = append(lines, speaker+": "+m.Content)
	}
	return req.SystemPrompt +
		"\n\n--- Previous conversation ---\n" + strings.Join(lines, "\n") +
		"\n\n--- New message ---\nUser: " + req.Message
}

func normalizeModel(model string) string {
	model = strings.TrimSpace(model)
	return strings.TrimPrefix(model, "models/")
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}
