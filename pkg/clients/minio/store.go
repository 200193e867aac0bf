package minio

import (
	"context"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"
	"github.com/StricklySoft/stricklysoft-runtime/pkg/properties"
)

const (
	objectSuffix = ".yaml"
	contentType  = "application/yaml"
)

// PropertyStore keeps each component's properties in one YAML object.
// Store is a read-modify-write; writers in one process are serialized,
// writers in different processes are last-writer-wins.
type PropertyStore struct {
	client *Client
	prefix string

	mu sync.Mutex
}

var _ properties.Store = (*PropertyStore)(nil)

// NewPropertyStore returns a store over client's bucket and prefix.
func NewPropertyStore(client *Client) *PropertyStore {
	return &PropertyStore{client: client, prefix: client.Config().Prefix}
}

// OpenPropertyStore connects with cfg and returns a store over it.
func OpenPropertyStore(ctx context.Context, cfg Config) (*PropertyStore, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewPropertyStore(client), nil
}

// Key returns the object key holding component's values.
func (s *PropertyStore) Key(component string) string {
	return s.prefix + component + objectSuffix
}

// Resolve returns the stored values of component named in names.
func (s *PropertyStore) Resolve(ctx context.Context, component string, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	if len(names) == 0 {
		return out, nil
	}
	all, err := s.Values(ctx, component)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if v, ok := all[name]; ok {
			out[name] = v
		}
	}
	return out, nil
}

// Values returns every stored value of component. A missing object has no
// values.
func (s *PropertyStore) Values(ctx context.Context, component string) (map[string]string, error) {
	data, found, err := s.client.Get(ctx, s.Key(component))
	if err != nil {
		return nil, err
	}
	values := map[string]string{}
	if !found {
		return values, nil
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeValidationFormat,
			"minio: object %s is not a flat YAML mapping", s.Key(component))
	}
	return values, nil
}

// Store merges values into component's object.
func (s *PropertyStore) Store(ctx context.Context, component string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	merged, err := s.Values(ctx, component)
	if err != nil {
		return err
	}
	for k, v := range values {
		merged[k] = v
	}
	data, err := yaml.Marshal(merged)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeInternal, "minio: failed to encode properties")
	}
	return s.client.Put(ctx, s.Key(component), data, contentType)
}

// Delete removes component's object.
func (s *PropertyStore) Delete(ctx context.Context, component string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.Remove(ctx, s.Key(component))
}

// Components lists the names of components that have stored values.
func (s *PropertyStore) Components(ctx context.Context) ([]string, error) {
	keys, err := s.client.List(ctx, s.prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		name := strings.TrimPrefix(key, s.prefix)
		if !strings.HasSuffix(name, objectSuffix) || strings.Contains(name, "/") {
			continue
		}
		out = append(out, strings.TrimSuffix(name, objectSuffix))
	}
	return out, nil
}

// Health reports whether the bucket is reachable.
func (s *PropertyStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}
