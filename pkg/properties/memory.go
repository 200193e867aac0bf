package properties

import (
	"context"
	"maps"
	"sync"
)

// Memory is an in-process Store.
type Memory struct {
	mu     sync.RWMutex
	values map[string]map[string]string
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]map[string]string)}
}

// Resolve returns the stored values of component named in names.
func (m *Memory) Resolve(ctx context.Context, component string, names []string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return pick(m.values[component], names), nil
}

// Store merges values into component's values.
func (m *Memory) Store(ctx context.Context, component string, values map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[component] == nil {
		m.values[component] = make(map[string]string, len(values))
	}
	maps.Copy(m.values[component], values)
	return nil
}

// Set stores one value.
func (m *Memory) Set(component, name, value string) {
	_ = m.Store(context.Background(), component, map[string]string{name: value})
}

// Values returns a copy of component's values.
func (m *Memory) Values(component string) map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.values[component])
}
