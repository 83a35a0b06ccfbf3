package device

import (
	"context"
	"fmt"
	"sort"
)

// Device is a simulated piece of hardware hosted by a worker.
// Implementations may also satisfy io.Closer to persist state on shutdown.
type Device interface {
	Capabilities() *Table
}

// Invoker runs an operation on a device it does not own, typically by
// queueing it on that device's worker.
type Invoker interface {
	Invoke(ctx context.Context, operation string, call Call) (any, error)
}

// Handler runs one operation.
type Handler func(ctx context.Context, call Call) (any, error)

type capability struct {
	handler Handler
	getter  func() any
	payload bool
}

// Table maps operation and attribute names to their implementations.
// A Table is built once during device construction and read-only afterwards.
type Table struct {
	entries map[string]capability
}

// NewTable returns an empty capability table.
func NewTable() *Table {
	return &Table{entries: make(map[string]capability)}
}

// Handle registers a callable operation.
func (t *Table) Handle(name string, h Handler) {
	t.add(name, capability{handler: h})
}

// HandlePayload registers an operation whose result is an *Array that the
// worker publishes through shared memory instead of inline.
func (t *Table) HandlePayload(name string, h Handler) {
	t.add(name, capability{handler: h, payload: true})
}

// Attribute registers a plain value read.
func (t *Table) Attribute(name string, get func() any) {
	t.add(name, capability{getter: get})
}

func (t *Table) add(name string, c capability) {
	if name == "" {
		panic("device: empty capability name")
	}
	if _, dup := t.entries[name]; dup {
		panic(fmt.Sprintf("device: duplicate capability %q", name))
	}
	t.entries[name] = c
}

// IsPayload reports whether name is a large-payload operation.
func (t *Table) IsPayload(name string) bool {
	return t.entries[name].payload
}

// Has reports whether name is registered.
func (t *Table) Has(name string) bool {
	_, ok := t.entries[name]
	return ok
}

// Operations returns the sorted names of callable operations.
func (t *Table) Operations() []string {
	return t.names(func(c capability) bool { return c.handler != nil })
}

// Attributes returns the sorted names of attributes.
func (t *Table) Attributes() []string {
	return t.names(func(c capability) bool { return c.getter != nil })
}

func (t *Table) names(keep func(capability) bool) []string {
	var out []string
	for name, c := range t.entries {
		if keep(c) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Invoke resolves name and runs it. Attributes ignore any arguments and
// return their current value. Unknown names yield an Unsupported error.
func (t *Table) Invoke(ctx context.Context, name string, call Call) (any, error) {
	c, ok := t.entries[name]
	if !ok {
		return nil, Unsupported(name)
	}
	if c.getter != nil {
		return c.getter(), nil
	}
	return c.handler(ctx, call)
}
