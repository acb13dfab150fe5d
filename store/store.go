// Package store provides the conversation log of the agent,
// scoped by the chat context in the request context.
package store

import (
	"context"
	"time"

	"github.com/effective-security/agentloop/chatmodel"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/agentloop", "store")

//go:generate mockgen -source=store.go -destination=../mocks/mockstore/store_mock.gen.go -package mockstore

// DefaultTitle is the title of a new chat
const DefaultTitle = "New Chat"

// ConversationStore is the append-only log of a chat
type ConversationStore interface {
	// Append adds the message to the end of the log
	Append(ctx context.Context, msg *chatmodel.Message) error
	// Messages returns the log in conversation order
	Messages(ctx context.Context) ([]*chatmodel.Message, error)
	// Reset deletes the chat
	Reset(ctx context.Context) error
}

// ChatInfo describes a chat
type ChatInfo struct {
	TenantID  string               `json:"tenant_id" yaml:"tenant_id"`
	ChatID    string               `json:"chat_id" yaml:"chat_id"`
	Title     string               `json:"title" yaml:"title"`
	CreatedAt time.Time            `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time            `json:"updated_at" yaml:"updated_at"`
	Metadata  map[string]any       `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Messages  []*chatmodel.Message `json:"messages,omitempty" yaml:"messages,omitempty"`
}

// Manager provides chat management for a tenant
type Manager interface {
	ConversationStore

	// ListChats returns chat IDs of the tenant from context
	ListChats(ctx context.Context) ([]string, error)
	// GetChatInfo returns the chat with messages,
	// if id is empty, the chat ID from context is used.
	GetChatInfo(ctx context.Context, id string) (*ChatInfo, error)
	// UpdateChat creates or updates the chat from context
	UpdateChat(ctx context.Context, title string, metadata map[string]any) (*ChatInfo, error)
	// ListTenants returns tenants with chats
	ListTenants(ctx context.Context) ([]string, error)
	// Cleanup deletes chats of the tenant not updated for the duration
	Cleanup(ctx context.Context, tenantID string, olderThan time.Duration) (uint32, error)
}
