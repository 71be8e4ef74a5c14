package models

// Chat message roles accepted in conversation history.
const (
	RoleChatUser      = "user"
	RoleChatAssistant = "assistant"
)

// ChatMessage is one prior turn in a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatTurn is a validated inbound turn. History order is preserved verbatim.
type ChatTurn struct {
	Message      string
	SystemPrompt string
	History      []ChatMessage
}
