package module

import (
	"context"
	"sort"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/value"
)

// MethodFunc is the native handler bound to one capability method. It runs
// on a dispatcher worker, never on the scripting thread. The context carries
// the caller's deadline; handlers must return promptly once it is done.
type MethodFunc func(ctx context.Context, args []value.Value) (value.Value, error)

// Method declares one capability method: its name, its positional signature,
// and the native handler that implements it.
type Method struct {
	Name        string
	Description string
	Signature   value.Signature
	Func        MethodFunc
}

// EventDef declares one event stream a module emits.
type EventDef struct {
	Name        string
	Description string
	Payload     value.Type
}

// ModuleDescriptor is the immutable registration record for one module in
// one version namespace: logical name, owning namespace, implementation
// handle, and the declared capability set. Descriptors are owned by exactly
// one namespace registry and never shared across namespaces.
type ModuleDescriptor struct {
	name      string
	namespace Namespace
	impl      Module
	methods   map[string]Method
	events    map[string]EventDef
}

// NewDescriptor builds a descriptor for impl in the given namespace from the
// module's declared capability set. The descriptor is immutable once built.
func NewDescriptor(namespace Namespace, impl Module) (*ModuleDescriptor, error) {
	if impl == nil {
		return nil, errors.New(errors.KindInvalidTarget, "ModuleDescriptor", "New",
			"module implementation is nil")
	}
	if err := namespace.Validate(); err != nil {
		return nil, err
	}

	meta := impl.Meta()
	if err := ValidateModuleName(meta.Name); err != nil {
		return nil, err
	}

	methods := make(map[string]Method)
	for _, m := range impl.Methods() {
		if m.Name == "" {
			return nil, errors.Newf(errors.KindInvalidTarget, "ModuleDescriptor", "New",
				"module %q declares a method with no name", meta.Name)
		}
		if m.Func == nil {
			return nil, errors.Newf(errors.KindInvalidTarget, "ModuleDescriptor", "New",
				"method %q of module %q has no handler", m.Name, meta.Name)
		}
		if err := m.Signature.Validate(); err != nil {
			return nil, errors.Wrap(err, "ModuleDescriptor", "New", "signature of "+m.Name)
		}
		if _, exists := methods[m.Name]; exists {
			return nil, errors.Newf(errors.KindDuplicateModule, "ModuleDescriptor", "New",
				"method %q declared twice by module %q", m.Name, meta.Name)
		}
		methods[m.Name] = m
	}

	events := make(map[string]EventDef)
	for _, e := range impl.Events() {
		if e.Name == "" {
			return nil, errors.Newf(errors.KindInvalidTarget, "ModuleDescriptor", "New",
				"module %q declares an event with no name", meta.Name)
		}
		if _, exists := events[e.Name]; exists {
			return nil, errors.Newf(errors.KindDuplicateModule, "ModuleDescriptor", "New",
				"event %q declared twice by module %q", e.Name, meta.Name)
		}
		events[e.Name] = e
	}

	return &ModuleDescriptor{
		name:      meta.Name,
		namespace: namespace,
		impl:      impl,
		methods:   methods,
		events:    events,
	}, nil
}

// Name returns the logical module name.
func (d *ModuleDescriptor) Name() string {
	return d.name
}

// Namespace returns the owning version namespace.
func (d *ModuleDescriptor) Namespace() Namespace {
	return d.namespace
}

// Impl returns the concrete implementation handle.
func (d *ModuleDescriptor) Impl() Module {
	return d.impl
}

// Method looks up a declared method by name.
func (d *ModuleDescriptor) Method(name string) (Method, bool) {
	m, ok := d.methods[name]
	return m, ok
}

// MethodNames returns the declared method names, sorted.
func (d *ModuleDescriptor) MethodNames() []string {
	names := make([]string, 0, len(d.methods))
	for name := range d.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Event looks up a declared event stream by name.
func (d *ModuleDescriptor) Event(name string) (EventDef, bool) {
	e, ok := d.events[name]
	return e, ok
}

// EventNames returns the declared event names, sorted.
func (d *ModuleDescriptor) EventNames() []string {
	names := make([]string, 0, len(d.events))
	for name := range d.events {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
