package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/effective-security/agentloop/chatmodel"
)

type memChat struct {
	info     ChatInfo
	messages []*chatmodel.Message
}

func (c *memChat) snapshot(withMessages bool) *ChatInfo {
	info := c.info
	info.Metadata = make(map[string]any, len(c.info.Metadata))
	for k, v := range c.info.Metadata {
		info.Metadata[k] = v
	}
	if withMessages {
		info.Messages = append([]*chatmodel.Message(nil), c.messages...)
	}
	return &info
}

type inMemory struct {
	mu      sync.RWMutex
	storage map[string]map[string]*memChat
}

// NewMemoryStore returns a store that keeps chats in memory
func NewMemoryStore() Manager {
	return &inMemory{
		storage: make(map[string]map[string]*memChat),
	}
}

// chat returns the chat, creating it if create is true; mu must be held
func (m *inMemory) chat(tenantID, chatID string, create bool) *memChat {
	chats := m.storage[tenantID]
	if chats == nil {
		if !create {
			return nil
		}
		chats = make(map[string]*memChat)
		m.storage[tenantID] = chats
	}
	c := chats[chatID]
	if c == nil && create {
		now := time.Now()
		c = &memChat{
			info: ChatInfo{
				TenantID:  tenantID,
				ChatID:    chatID,
				Title:     DefaultTitle,
				CreatedAt: now,
				UpdatedAt: now,
				Metadata:  make(map[string]any),
			},
		}
		chats[chatID] = c
	}
	return c
}

func (m *inMemory) Messages(ctx context.Context) ([]*chatmodel.Message, error) {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	c := m.chat(tenantID, chatID, false)
	if c == nil {
		return nil, nil
	}
	return append([]*chatmodel.Message(nil), c.messages...), nil
}

func (m *inMemory) Append(ctx context.Context, msg *chatmodel.Message) error {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.chat(tenantID, chatID, true)
	c.messages = append(c.messages, msg)
	c.info.UpdatedAt = time.Now()
	return nil
}

func (m *inMemory) Reset(ctx context.Context) error {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if chats := m.storage[tenantID]; chats != nil {
		delete(chats, chatID)
	}
	return nil
}

func (m *inMemory) ListChats(ctx context.Context) ([]string, error) {
	tenantID, _, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var list []string
	for id := range m.storage[tenantID] {
		list = append(list, id)
	}
	sort.Strings(list)
	return list, nil
}

func (m *inMemory) GetChatInfo(ctx context.Context, id string) (*ChatInfo, error) {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = chatID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chat(tenantID, id, true).snapshot(true), nil
}

func (m *inMemory) UpdateChat(ctx context.Context, title string, metadata map[string]any) (*ChatInfo, error) {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.chat(tenantID, chatID, true)
	if title != "" {
		c.info.Title = title
	}
	for k, v := range metadata {
		c.info.Metadata[k] = v
	}
	c.info.UpdatedAt = time.Now()
	return c.snapshot(false), nil
}

func (m *inMemory) ListTenants(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]string, 0, len(m.storage))
	for id, chats := range m.storage {
		if len(chats) > 0 {
			list = append(list, id)
		}
	}
	sort.Strings(list)
	return list, nil
}

func (m *inMemory) Cleanup(_ context.Context, tenantID string, olderThan time.Duration) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	deleted := uint32(0)
	for id, c := range m.storage[tenantID] {
		if c.info.UpdatedAt.Before(cutoff) {
			delete(m.storage[tenantID], id)
			deleted++
		}
	}
	return deleted, nil
}
