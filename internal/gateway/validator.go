package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/inaiurai/gateway/internal/models"
)

// Bounds are counted in Unicode code points after trimming.
const (
	MaxMessageLength        = 10000
	MaxSystemPromptLength   = 5000
	MaxHistoryItems         = 50
	MaxHistoryMessageLength = 10000
)

// KnownAgents is the allow-list of agent identifiers.
var KnownAgents = []string{"upwork", "analyst", "code-reviewer", "assistant", "writer"}

// ErrInvalidInput matches every *ValidationError.
var ErrInvalidInput = errors.New("invalid input")

// ValidationError names the first violated constraint.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ValidateChatRequest checks a raw /chat body in field order and returns the
// normalized turn and agent id. The first failure wins.
func ValidateChatRequest(body []byte) (models.ChatTurn, string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return models.ChatTurn{}, "", invalid("Invalid request body")
	}

	message, ok := stringField(fields, "message")
	message = strings.TrimSpace(message)
	if !ok || message == "" {
		return models.ChatTurn{}, "", invalid("Message is required and must be a string")
	}
	if utf8.RuneCountInString(message) > MaxMessageLength {
		return models.ChatTurn{}, "", invalid("Message too long. Max %d characters", MaxMessageLength)
	}

	agentID, ok := stringField(fields, "agentId")
	agentID = strings.TrimSpace(agentID)
	if !ok || agentID == "" {
		return models.ChatTurn{}, "", invalid("Agent ID is required")
	}
	if !slices.Contains(KnownAgents, agentID) {
		return models.ChatTurn{}, "", invalid("Invalid agent ID")
	}

	systemPrompt, ok := stringField(fields, "systemPrompt")
	systemPrompt = strings.TrimSpace(systemPrompt)
	if !ok || systemPrompt == "" {
		return models.ChatTurn{}, "", invalid("System prompt is required")
	}
	if utf8.RuneCountInString(systemPrompt) > MaxSystemPromptLength {
		return models.ChatTurn{}, "", invalid("System prompt too long. Max %d characters", MaxSystemPromptLength)
	}

	history, err := parseHistory(fields["conversationHistory"])
	if err != nil {
		return models.ChatTurn{}, "", err
	}

	return models.ChatTurn{
		Message:      message,
		SystemPrompt: systemPrompt,
		History:      history,
	}, agentID, nil
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, present := fields[key]
	if !present {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func parseHistory(raw json.RawMessage) ([]models.ChatMessage, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, invalid("Conversation history must be an array")
	}
	if len(items) > MaxHistoryItems {
		return nil, invalid("Too many messages. Max %d", MaxHistoryItems)
	}

	history := make([]models.ChatMessage, 0, len(items))
	for i, item := range items {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err != nil || obj == nil {
			return nil, invalid("Invalid message at index %d", i)
		}
		role, ok := stringField(obj, "role")
		if !ok || (role != models.RoleChatUser && role != models.RoleChatAssistant) {
			return nil, invalid("Invalid role at index %d", i)
		}
		content, ok := stringField(obj, "content")
		if !ok {
			return nil, invalid("Invalid content at index %d", i)
		}
		if utf8.RuneCountInString(content) > MaxHistoryMessageLength {
			return nil, invalid("Message at index %d too long", i)
		}
		history = append(history, models.ChatMessage{Role: role, Content: content})
	}
	return history, nil
}
