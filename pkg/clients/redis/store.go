package redis

import (
	"context"

	"github.com/StricklySoft/stricklysoft-runtime/pkg/properties"
)

// PropertyStore keeps component properties in Redis hashes.
type PropertyStore struct {
	client *Client
	prefix string
}

var _ properties.Store = (*PropertyStore)(nil)

// NewPropertyStore returns a store using client. Keys are prefixed with
// the client's configured KeyPrefix.
func NewPropertyStore(client *Client) *PropertyStore {
	prefix := client.Config().KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &PropertyStore{client: client, prefix: prefix}
}

// Key returns the hash key holding component's values.
func (s *PropertyStore) Key(component string) string {
	return s.prefix + component
}

// Resolve returns the stored values of component named in names.
func (s *PropertyStore) Resolve(ctx context.Context, component string, names []string) (map[string]string, error) {
	if len(names) == 0 {
		return map[string]string{}, nil
	}
	return s.client.HMGet(ctx, s.Key(component), names...)
}

// Store merges values into component's hash.
func (s *PropertyStore) Store(ctx context.Context, component string, values map[string]string) error {
	return s.client.HSet(ctx, s.Key(component), values)
}

// Values returns every stored value of component.
func (s *PropertyStore) Values(ctx context.Context, component string) (map[string]string, error) {
	return s.client.HGetAll(ctx, s.Key(component))
}

// Remove deletes the named values of component.
func (s *PropertyStore) Remove(ctx context.Context, component string, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	_, err := s.client.HDel(ctx, s.Key(component), names...)
	return err
}

// Delete removes every stored value of component.
func (s *PropertyStore) Delete(ctx context.Context, component string) error {
	_, err := s.client.Del(ctx, s.Key(component))
	return err
}

// Health reports whether Redis is reachable. It has the shape of a
// lifecycle check hook.
func (s *PropertyStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}
