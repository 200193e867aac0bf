// Package properties provides property sources and stores for lifecycle
// components.
//
// Every source implements [lifecycle.PropertySource]: it is asked once per
// engage for the values of a component's properties, keyed by the
// component's fully-qualified name. A [Store] can also persist values.
// Besides the in-memory and YAML file stores in this package, the Redis,
// PostgreSQL and MinIO clients each provide a Store.
//
//	src := properties.Chain(
//	    properties.NewMemory(),                  // overrides
//	    properties.MustFile("properties.yaml"), // defaults
//	)
//	o, err := lifecycle.NewOrchestrator("root", cfg, lifecycle.WithPropertySource(src))
package properties

import (
	"context"

	sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"
	"github.com/StricklySoft/stricklysoft-runtime/pkg/lifecycle"
)

// Store is a property source that can also persist values.
type Store interface {
	lifecycle.PropertySource

	// Store merges values into the persisted values of component.
	Store(ctx context.Context, component string, values map[string]string) error
}

// Persist writes the current values of every property of c to store.
func Persist(ctx context.Context, store Store, c *lifecycle.Component) error {
	props := c.Properties()
	if len(props) == 0 {
		return nil
	}
	values := make(map[string]string, len(props))
	for _, p := range props {
		values[p.Name()] = p.String()
	}
	if err := store.Store(ctx, c.FQN(), values); err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalStorage,
			"properties: failed to persist %s", c.FQN())
	}
	return nil
}

// pick returns the subset of values named in names.
func pick(values map[string]string, names []string) map[string]string {
	out := make(map[string]string, len(names))
	for _, name := range names {
		if v, ok := values[name]; ok {
			out[name] = v
		}
	}
	return out
}

// chain resolves from several sources in priority order.
type chain []lifecycle.PropertySource

// Chain returns a source consulting sources in order; for each property
// the first source that knows a value wins. A failing source fails the
// resolution.
func Chain(sources ...lifecycle.PropertySource) lifecycle.PropertySource {
	return chain(sources)
}

func (c chain) Resolve(ctx context.Context, component string, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	missing := names
	for _, src := range c {
		if len(missing) == 0 {
			break
		}
		values, err := src.Resolve(ctx, component, missing)
		if err != nil {
			return nil, err
		}
		rest := missing[:0:0]
		for _, name := range missing {
			if v, ok := values[name]; ok {
				out[name] = v
			} else {
				rest = append(rest, name)
			}
		}
		missing = rest
	}
	return out, nil
}
