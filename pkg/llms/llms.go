package llms

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentloop/chatmodel"
)

//go:generate mockgen -source=llms.go -destination=../../mocks/mockllms/llms_mock.gen.go -package mockllms

// ProviderType is the type of provider.
type ProviderType string

const (
	// ProviderAnthropic is the type of provider.
	ProviderAnthropic ProviderType = "ANTHROPIC"
	// ProviderAzure is the type of provider.
	ProviderAzure ProviderType = "AZURE"
	// ProviderBedrock is the type of provider.
	ProviderBedrock ProviderType = "BEDROCK"
	// ProviderGoogleAI is the type of provider.
	ProviderGoogleAI ProviderType = "GOOGLEAI"
	// ProviderOpenAI is the type of provider.
	ProviderOpenAI ProviderType = "OPENAI"
	// ProviderPerplexity is the type of provider.
	ProviderPerplexity ProviderType = "PERPLEXITY"
)

var (
	// ErrEmptyResponse is returned when the provider returns no text
	ErrEmptyResponse = errors.New("no response")
	// ErrNoMessages is returned when the request has no conversation turns
	ErrNoMessages = errors.New("no messages")
)

// ChatRequest is a single completion request
type ChatRequest struct {
	// Model overrides the default model of the adapter
	Model string
	// Messages is the conversation log, system message first
	Messages []*chatmodel.Message
	// MaxTokens is the maximum number of tokens to generate
	MaxTokens int
	// Temperature is the sampling temperature, 0 uses the provider default
	Temperature float64
}

// ChatResponse is the completion
type ChatResponse struct {
	Text       string
	StopReason string
	Usage      chatmodel.Usage
}

// Model is implemented by the provider adapters
type Model interface {
	// GetName returns the default model name
	GetName() string
	// GetProviderType returns the type of provider.
	GetProviderType() ProviderType
	// Chat sends the conversation and returns the text reply
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// Role of a provider chat turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a provider chat turn
type Turn struct {
	Role    Role
	Content string
}

// Turns splits the conversation into the system prompt and chat turns.
// Tool messages are sent as user turns, and consecutive turns
// with the same role are merged, separated by a blank line.
func Turns(msgs []*chatmodel.Message) (system string, turns []Turn) {
	var sys []string
	for _, m := range msgs {
		if m == nil {
			continue
		}
		var role Role
		switch m.Role {
		case chatmodel.RoleSystem:
			sys = append(sys, m.Content)
			continue
		case chatmodel.RoleAssistant:
			role = RoleAssistant
		default:
			role = RoleUser
		}

		if n := len(turns); n > 0 && turns[n-1].Role == role {
			turns[n-1].Content += "\n\n" + m.Content
			continue
		}
		turns = append(turns, Turn{Role: role, Content: m.Content})
	}
	return strings.Join(sys, "\n\n"), turns
}

// ModelName returns the model of the request, or the default one
func (r *ChatRequest) ModelName(def string) string {
	if r.Model != "" {
		return r.Model
	}
	return def
}
