package tools

import (
	"strings"
	"sync"
)

// Registry keeps tools in registration order
type Registry struct {
	lock   sync.RWMutex
	byName map[string]*Descriptor
	list   []*Descriptor
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Descriptor),
	}
}

// Register adds the tools,
// if any of them is invalid or duplicate the registry is unchanged.
func (r *Registry) Register(descs ...*Descriptor) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	batch := make(map[string]bool, len(descs))
	for _, d := range descs {
		if d == nil {
			return schemaErr("", "", "tool must not be nil")
		}
		if _, ok := r.byName[d.name]; ok || batch[d.name] {
			return schemaErr(d.name, "Name", "tool already registered")
		}
		batch[d.name] = true
	}

	for _, d := range descs {
		r.byName[d.name] = d
		r.list = append(r.list, d)
	}
	return nil
}

// MustRegister adds the tools, or panics
func (r *Registry) MustRegister(descs ...*Descriptor) *Registry {
	if err := r.Register(descs...); err != nil {
		panic(err)
	}
	return r
}

// Get returns the tool by name
func (r *Registry) Get(name string) (*Descriptor, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

// Names returns tool names in registration order
func (r *Registry) Names() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	names := make([]string, len(r.list))
	for i, d := range r.list {
		names[i] = d.name
	}
	return names
}

// Descriptors returns tools in registration order
func (r *Registry) Descriptors() []*Descriptor {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return append([]*Descriptor(nil), r.list...)
}

func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.list)
}

// Describe returns the tools description for the system prompt
func (r *Registry) Describe() string {
	list := r.Descriptors()
	blocks := make([]string, len(list))
	for i, d := range list {
		blocks[i] = d.String()
	}
	return strings.Join(blocks, "\n\n")
}
