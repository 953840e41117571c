package agent

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	MaxMessageLen = 4000
)

type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatRequest starts a conversation when ConversationID is empty.
type ChatRequest struct {
	ConversationID string `json:"conversation_id" validate:"omitempty,uuid"`
	Message        string `json:"message" validate:"notblank,max=4000"`
}
