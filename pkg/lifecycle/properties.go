package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"
)

// PropertySource resolves persisted property values. Resolve is called
// once per engage with the component's fully-qualified name and the names
// of its properties; it returns the values it knows, keyed by property
// name, and omits the rest. It must honor ctx, whose deadline is the
// component's transition limit.
type PropertySource interface {
	Resolve(ctx context.Context, component string, names []string) (map[string]string, error)
}

// PropertySourceFunc adapts a function to a [PropertySource].
type PropertySourceFunc func(ctx context.Context, component string, names []string) (map[string]string, error)

// Resolve calls f.
func (f PropertySourceFunc) Resolve(ctx context.Context, component string, names []string) (map[string]string, error) {
	return f(ctx, component, names)
}

// Property is a named configuration value owned by exactly one component.
// Implementations embed [PropertyOwnership]; [Value] is the provided one.
type Property interface {
	Name() string
	// Set parses raw and stores the result.
	Set(raw string) error
	String() string
	ownership() *PropertyOwnership
}

// PropertyOwnership records which component owns a property.
type PropertyOwnership struct {
	mu    sync.Mutex
	owner *Component
}

func (o *PropertyOwnership) ownership() *PropertyOwnership { return o }

// Owner returns the owning component, or nil.
func (o *PropertyOwnership) Owner() *Component {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.owner
}

func (o *PropertyOwnership) claim(c *Component) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.owner != nil && o.owner != c {
		return false
	}
	o.owner = c
	return true
}

func (o *PropertyOwnership) release(c *Component) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.owner == c {
		o.owner = nil
	}
}

// Value is a typed [Property].
type Value[T any] struct {
	PropertyOwnership

	name   string
	parse  func(string) (T, error)
	mu     sync.RWMutex
	value  T
	loaded bool
}

// NewValue creates a property with a default value and a parser.
func NewValue[T any](name string, def T, parse func(string) (T, error)) *Value[T] {
	return &Value[T]{name: name, value: def, parse: parse}
}

// StringValue creates a string property.
func StringValue(name, def string) *Value[string] {
	return NewValue(name, def, func(s string) (string, error) { return s, nil })
}

// IntValue creates an int property.
func IntValue(name string, def int) *Value[int] {
	return NewValue(name, def, strconv.Atoi)
}

// BoolValue creates a bool property.
func BoolValue(name string, def bool) *Value[bool] {
	return NewValue(name, def, strconv.ParseBool)
}

// DurationValue creates a time.Duration property.
func DurationValue(name string, def time.Duration) *Value[time.Duration] {
	return NewValue(name, def, time.ParseDuration)
}

// Name returns the property name.
func (v *Value[T]) Name() string { return v.name }

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Loaded reports whether the value came from a property source rather
// than the default.
func (v *Value[T]) Loaded() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.loaded
}

// Set parses raw and stores it.
func (v *Value[T]) Set(raw string) error {
	parsed, err := v.parse(raw)
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeValidationFormat,
			"lifecycle: property %q: cannot parse %q", v.name, raw)
	}
	v.mu.Lock()
	v.value = parsed
	v.loaded = true
	v.mu.Unlock()
	return nil
}

// String formats the current value.
func (v *Value[T]) String() string {
	return fmt.Sprint(v.Get())
}

// ===========================================================================
// Component properties
// ===========================================================================

// AddProperty gives the component ownership of p. A property owned by
// another component is a [sserr.CodeConflictOwnership] error; use
// [Component.MoveProperty] to transfer it.
func (c *Component) AddProperty(p Property) error {
	if p == nil || p.Name() == "" {
		return sserr.New(sserr.CodeValidationRequired, "lifecycle: property must have a name")
	}
	if !p.ownership().claim(c) {
		return sserr.Newf(sserr.CodeConflictOwnership,
			"lifecycle: property %q is owned by %q", p.Name(), p.ownership().Owner().FQN())
	}

	c.treeMu.Lock()
	defer c.treeMu.Unlock()
	if cur, ok := c.properties[p.Name()]; ok && cur != p {
		p.ownership().release(c)
		return sserr.Newf(sserr.CodeConflictAlreadyExists,
			"lifecycle: %q already has a property named %q", c.FQN(), p.Name())
	}
	c.properties[p.Name()] = p
	c.propsResolved = false
	return nil
}

// Property returns the property with the given name.
func (c *Component) Property(name string) (Property, bool) {
	c.treeMu.Lock()
	defer c.treeMu.Unlock()
	p, ok := c.properties[name]
	return p, ok
}

// Properties returns the owned properties ordered by name.
func (c *Component) Properties() []Property {
	c.treeMu.Lock()
	out := make([]Property, 0, len(c.properties))
	for _, p := range c.properties {
		out = append(out, p)
	}
	c.treeMu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// RemoveProperty releases the property with the given name.
func (c *Component) RemoveProperty(name string) (Property, bool) {
	c.treeMu.Lock()
	defer c.treeMu.Unlock()
	p, ok := c.properties[name]
	if !ok {
		return nil, false
	}
	delete(c.properties, name)
	p.ownership().release(c)
	return p, true
}

// MoveProperty transfers ownership of the named property to another
// component. The property is moved, not copied: c no longer has it.
func (c *Component) MoveProperty(name string, to *Component) error {
	if to == nil || to == c {
		return sserr.New(sserr.CodeValidation, "lifecycle: property move needs another component")
	}
	p, ok := c.RemoveProperty(name)
	if !ok {
		return sserr.Newf(sserr.CodeNotFoundProperty,
			"lifecycle: %q has no property named %q", c.FQN(), name)
	}
	if err := to.AddProperty(p); err != nil {
		// Put it back so the property keeps an owner.
		_ = c.AddProperty(p)
		return err
	}
	return nil
}

// resolveProperties loads property values from the property source once.
// Renames and re-parenting reset the flag.
func (c *Component) resolveProperties(ctx context.Context) error {
	c.treeMu.Lock()
	if c.propsResolved || len(c.properties) == 0 {
		c.propsResolved = true
		c.treeMu.Unlock()
		return nil
	}
	props := make(map[string]Property, len(c.properties))
	names := make([]string, 0, len(c.properties))
	for name, p := range c.properties {
		props[name] = p
		names = append(names, name)
	}
	c.treeMu.Unlock()
	sort.Strings(names)

	src := c.source
	if src == nil {
		src = c.environment().properties
	}
	if src == nil {
		c.markResolved()
		return nil
	}

	values, err := src.Resolve(ctx, c.FQN(), names)
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeUnavailableDependency,
			"lifecycle: resolving properties of %q failed", c.FQN())
	}
	for name, raw := range values {
		p, ok := props[name]
		if !ok {
			continue
		}
		if err := p.Set(raw); err != nil {
			return err
		}
	}
	c.markResolved()

	c.logger.DebugContext(ctx, "lifecycle: properties resolved",
		"component", c.FQN(),
		"requested", len(names),
		"resolved", len(values),
	)
	return nil
}

func (c *Component) markResolved() {
	c.treeMu.Lock()
	c.propsResolved = true
	c.treeMu.Unlock()
}

// PropertiesResolved reports whether property values have been loaded
// under the current fully-qualified name.
func (c *Component) PropertiesResolved() bool {
	c.treeMu.Lock()
	defer c.treeMu.Unlock()
	return c.propsResolved
}
