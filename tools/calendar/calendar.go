// Package calendar provides the tools to list, create and edit calendar events.
// The calendar provider is modeled by the Calendar interface.
package calendar

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentloop/chatmodel"
	"github.com/google/uuid"
)

// ErrEventNotFound is returned when the event does not exist
var ErrEventNotFound = errors.New("event not found")

// Event is a calendar event
type Event struct {
	ID            string    `json:"id" yaml:"id"`
	Summary       string    `json:"summary,omitempty" yaml:"summary,omitempty"`
	Description   string    `json:"description,omitempty" yaml:"description,omitempty"`
	Start         time.Time `json:"start" yaml:"start"`
	End           time.Time `json:"end" yaml:"end"`
	Attendees     []string  `json:"attendees,omitempty" yaml:"attendees,omitempty"`
	HasConference bool      `json:"has_conference" yaml:"has_conference"`
}

// Calendar is the calendar of the user from the chat context
type Calendar interface {
	// List returns events that start in [from, to), ordered by start time
	List(ctx context.Context, from, to time.Time) ([]*Event, error)
	// Create adds a new event and returns it with the assigned ID
	Create(ctx context.Context, event *Event) (*Event, error)
	// Update replaces the event with the same ID
	Update(ctx context.Context, event *Event) (*Event, error)
}

type memoryCalendar struct {
	lock   sync.RWMutex
	events map[string]map[string]*Event
}

// NewMemoryCalendar returns a Calendar that keeps events of each tenant in memory
func NewMemoryCalendar() Calendar {
	return &memoryCalendar{
		events: make(map[string]map[string]*Event),
	}
}

func tenantID(ctx context.Context) (string, error) {
	c := chatmodel.GetChatContext(ctx)
	if c == nil || c.GetTenantID() == "" {
		return "", errors.WithStack(chatmodel.ErrInvalidChatContext)
	}
	return c.GetTenantID(), nil
}

func (m *memoryCalendar) List(ctx context.Context, from, to time.Time) ([]*Event, error) {
	tenant, err := tenantID(ctx)
	if err != nil {
		return nil, err
	}

	m.lock.RLock()
	defer m.lock.RUnlock()

	var res []*Event
	for _, e := range m.events[tenant] {
		if !e.Start.Before(from) && e.Start.Before(to) {
			c := *e
			res = append(res, &c)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Start.Before(res[j].Start)
	})
	return res, nil
}

func (m *memoryCalendar) Create(ctx context.Context, event *Event) (*Event, error) {
	tenant, err := tenantID(ctx)
	if err != nil {
		return nil, err
	}

	c := *event
	c.ID = strings.ReplaceAll(uuid.NewString(), "-", "")

	m.lock.Lock()
	defer m.lock.Unlock()
	if m.events[tenant] == nil {
		m.events[tenant] = make(map[string]*Event)
	}
	m.events[tenant][c.ID] = &c

	res := c
	return &res, nil
}

func (m *memoryCalendar) Update(ctx context.Context, event *Event) (*Event, error) {
	tenant, err := tenantID(ctx)
	if err != nil {
		return nil, err
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.events[tenant][event.ID]; !ok {
		return nil, errors.Wrapf(ErrEventNotFound, "event %q", event.ID)
	}
	c := *event
	m.events[tenant][c.ID] = &c

	res := c
	return &res, nil
}
