package chatmodel

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrInvalidChatContext is returned when the context does not carry a ChatContext.
	ErrInvalidChatContext = errors.New("invalid chat context")
)

// Role is the author of a message in the conversation log.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// IsValid returns true if the role is one of the supported roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// Message is a single entry of the conversation log.
// Messages are append-only, the order in the store is the conversation order.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
	// CreatedAt is the UTC time when the message was created.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	// CorrelationID links the message to an external event:
	// inbound message ID for user, LLM call ID for assistant,
	// tool call ID for tool messages.
	CorrelationID string `json:"correlation_id,omitempty" yaml:"correlation_id,omitempty"`
}

// TimeNowFn is used to stamp messages, can be replaced in tests.
var TimeNowFn = time.Now

// NewMessage returns a new message stamped with the current time.
func NewMessage(role Role, content, correlationID string) *Message {
	return &Message{
		Role:          role,
		Content:       content,
		CreatedAt:     TimeNowFn().UTC(),
		CorrelationID: correlationID,
	}
}

// SystemMessage returns a new system message.
func SystemMessage(content string) *Message {
	return NewMessage(RoleSystem, content, "system")
}

// UserMessage returns a new user message.
func UserMessage(content, correlationID string) *Message {
	return NewMessage(RoleUser, content, correlationID)
}

// AssistantMessage returns a new assistant message.
func AssistantMessage(content, correlationID string) *Message {
	return NewMessage(RoleAssistant, content, correlationID)
}

// ToolMessage returns a new tool message.
func ToolMessage(content, correlationID string) *Message {
	return NewMessage(RoleTool, content, correlationID)
}

// String returns the message in `role: content` form
func (m *Message) String() string {
	return string(m.Role) + ": " + m.Content
}

// Marshal returns JSON encoded message
func (m *Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalMessage decodes and validates JSON encoded message
func UnmarshalMessage(data []byte) (*Message, error) {
	m := new(Message)
	if err := json.Unmarshal(data, m); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal message")
	}
	if !m.Role.IsValid() {
		return nil, errors.Errorf("invalid message role: %q", m.Role)
	}
	return m, nil
}

// Usage is the token usage reported by the LLM provider.
type Usage struct {
	InputTokens  int64 `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int64 `json:"output_tokens" yaml:"output_tokens"`
}

// Add returns sum of the usage
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
	}
}

// Total returns the total tokens
func (u Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}
