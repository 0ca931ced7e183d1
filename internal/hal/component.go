package hal

import (
	"fmt"
	"sync"
)

// NameLen is the maximum length of a full item name, matching the backend's
// HAL_NAME_LEN.
const NameLen = 47

// ItemChange is one changed item reported by a poll: the item's full name
// and its new value.
type ItemChange struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Source is the delta-reporting shape of a HAL backend: each poll returns
// the items written since the previous poll (all items when forced).
type Source interface {
	Poll(force bool) []ItemChange
	Value(name string) (any, bool)
	Values() map[string]any
	Close() error
}

// Item describes one pin or parameter of a component.
type Item struct {
	Name     string // full name, prefix.suffix
	Suffix   string
	Type     Type
	Pin      bool
	PinDir   PinDir   // valid when Pin
	ParamDir ParamDir // valid when !Pin

	value any
}

// Component is an in-process HAL component: a named table of typed pins and
// parameters. It implements Source, reporting items written since the last
// poll. Safe for concurrent use.
type Component struct {
	name   string
	prefix string

	mu     sync.Mutex
	ready  bool
	closed bool
	items  map[string]*Item // keyed by suffix
	order  []string
	dirty  map[string]struct{}
}

// NewComponent creates a component. An empty prefix defaults to the
// component name; full item names are prefix.suffix.
func NewComponent(name, prefix string) *Component {
	if prefix == "" {
		prefix = name
	}
	return &Component{
		name:   name,
		prefix: prefix,
		items:  make(map[string]*Item),
		dirty:  make(map[string]struct{}),
	}
}

// Name returns the component name.
func (c *Component) Name() string { return c.name }

// Prefix returns the item name prefix.
func (c *Component) Prefix() string { return c.prefix }

// NewPin adds a pin. Items cannot be added after Ready; call Unready first.
func (c *Component) NewPin(suffix string, t Type, dir PinDir) error {
	return c.addItem(suffix, t, true, dir, 0)
}

// NewParam adds a parameter.
func (c *Component) NewParam(suffix string, t Type, dir ParamDir) error {
	return c.addItem(suffix, t, false, 0, dir)
}

func (c *Component) addItem(suffix string, t Type, pin bool, pinDir PinDir, paramDir ParamDir) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ready {
		return fmt.Errorf("cannot add items after component %q is ready", c.name)
	}
	if _, exists := c.items[suffix]; exists {
		return fmt.Errorf("duplicate item %q on component %q", suffix, c.name)
	}
	full := c.prefix + "." + suffix
	if len(full) > NameLen {
		return fmt.Errorf("item name %q exceeds %d characters", full, NameLen)
	}

	c.items[suffix] = &Item{
		Name:     full,
		Suffix:   suffix,
		Type:     t,
		Pin:      pin,
		PinDir:   pinDir,
		ParamDir: paramDir,
		value:    zeroValue(t),
	}
	c.order = append(c.order, suffix)
	return nil
}

// Ready marks the component's item set complete.
func (c *Component) Ready() {
	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()
}

// Unready reopens the component for item additions.
func (c *Component) Unready() {
	c.mu.Lock()
	c.ready = false
	c.mu.Unlock()
}

// IsReady reports whether the component has been marked ready.
func (c *Component) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Get returns the current value of the item with the given suffix.
func (c *Component) Get(suffix string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[suffix]
	if !ok {
		return nil, fmt.Errorf("item %q not found on component %q", suffix, c.name)
	}
	return item.value, nil
}

// Set writes an item's value from inside the process. IN pins are owned by
// the signal bus and cannot be set this way.
func (c *Component) Set(suffix string, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("component %q is closed", c.name)
	}
	item, ok := c.items[suffix]
	if !ok {
		return fmt.Errorf("item %q not found on component %q", suffix, c.name)
	}
	if item.Pin && item.PinDir == In {
		return fmt.Errorf("cannot set value of IN pin %q", item.Name)
	}
	coerced, err := coerce(item.Type, v)
	if err != nil {
		return fmt.Errorf("set %q: %w", item.Name, err)
	}
	c.writeLocked(item, coerced)
	return nil
}

// SetString writes an item's value from its halcmd-style text form, with
// the same direction restriction as Set.
func (c *Component) SetString(suffix, s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("component %q is closed", c.name)
	}
	item, ok := c.items[suffix]
	if !ok {
		return fmt.Errorf("item %q not found on component %q", suffix, c.name)
	}
	if item.Pin && item.PinDir == In {
		return fmt.Errorf("cannot set value of IN pin %q", item.Name)
	}
	parsed, err := parseValue(item.Type, s)
	if err != nil {
		return fmt.Errorf("set %q: %w", item.Name, err)
	}
	c.writeLocked(item, parsed)
	return nil
}

// Inject writes an item by full name regardless of direction, standing in
// for the external signal bus that drives IN pins on a real system.
func (c *Component) Inject(name string, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("component %q is closed", c.name)
	}
	for _, item := range c.items {
		if item.Name == name {
			coerced, err := coerce(item.Type, v)
			if err != nil {
				return fmt.Errorf("inject %q: %w", name, err)
			}
			c.writeLocked(item, coerced)
			return nil
		}
	}
	return fmt.Errorf("item %q not found on component %q", name, c.name)
}

func (c *Component) writeLocked(item *Item, v any) {
	if item.value == v {
		return
	}
	item.value = v
	c.dirty[item.Suffix] = struct{}{}
}

// Describe returns the item definitions in creation order.
func (c *Component) Describe() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Item, 0, len(c.order))
	for _, suffix := range c.order {
		out = append(out, *c.items[suffix])
	}
	return out
}

// Poll reports the items written since the previous poll, in item creation
// order, and clears the dirty set. With force it reports every item.
func (c *Component) Poll(force bool) []ItemChange {
	c.mu.Lock()
	defer c.mu.Unlock()

	var changes []ItemChange
	for _, suffix := range c.order {
		if !force {
			if _, dirty := c.dirty[suffix]; !dirty {
				continue
			}
		}
		item := c.items[suffix]
		changes = append(changes, ItemChange{Name: item.Name, Value: item.value})
	}
	c.dirty = make(map[string]struct{})
	return changes
}

// Value returns the current value of an item by full name.
func (c *Component) Value(name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, item := range c.items {
		if item.Name == name {
			return item.value, true
		}
	}
	return nil, false
}

// Values snapshots every item's current value keyed by full name.
func (c *Component) Values() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.items))
	for _, item := range c.items {
		out[item.Name] = item.value
	}
	return out
}

// Close releases the component. Further writes are rejected.
func (c *Component) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
