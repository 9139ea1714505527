package module

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/c360/bridgekit/errors"
)

// moduleTable is the immutable lookup snapshot swapped atomically on
// registration. Resolution reads the current snapshot without locking.
type moduleTable map[string]*ModuleDescriptor

// NamespaceRegistry registers and resolves capability modules for one version
// namespace. Registration is confined to the initialization phase and takes a
// mutex; resolution is the hot path and reads an atomic snapshot, so multiple
// scripting contexts can resolve concurrently without lock contention.
type NamespaceRegistry struct {
	namespace Namespace

	mu      sync.Mutex // guards registration only
	frozen  atomic.Bool
	modules atomic.Pointer[moduleTable]
}

func newNamespaceRegistry(namespace Namespace) *NamespaceRegistry {
	r := &NamespaceRegistry{namespace: namespace}
	empty := make(moduleTable)
	r.modules.Store(&empty)
	return r
}

// Namespace returns the version namespace this registry serves.
func (r *NamespaceRegistry) Namespace() Namespace {
	return r.namespace
}

// Register adds a descriptor under its logical name. It fails with
// DuplicateModule if the name is already registered; the original
// registration stays intact. A descriptor built for another namespace is
// refused so no two namespaces ever share a descriptor instance.
// Registration after Freeze is a programming error and halts startup.
func (r *NamespaceRegistry) Register(descriptor *ModuleDescriptor) error {
	if descriptor == nil {
		return errors.New(errors.KindInvalidTarget, "NamespaceRegistry", "Register",
			"nil descriptor")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return errors.WrapFatal(errors.ErrRegistryFrozen, "NamespaceRegistry", "Register",
			"register "+descriptor.Name())
	}

	if descriptor.Namespace() != r.namespace {
		return errors.Newf(errors.KindNotFound, "NamespaceRegistry", "Register",
			"descriptor %q belongs to namespace %q, not %q",
			descriptor.Name(), descriptor.Namespace(), r.namespace)
	}

	current := *r.modules.Load()
	if _, exists := current[descriptor.Name()]; exists {
		return errors.Newf(errors.KindDuplicateModule, "NamespaceRegistry", "Register",
			"module %q already registered in namespace %q", descriptor.Name(), r.namespace)
	}

	// Copy-on-write so in-flight resolutions never observe a partial table.
	next := make(moduleTable, len(current)+1)
	for name, d := range current {
		next[name] = d
	}
	next[descriptor.Name()] = descriptor
	r.modules.Store(&next)

	return nil
}

// Resolve returns the descriptor registered under name. It fails with
// ModuleNotFound when absent and never falls back to another namespace.
func (r *NamespaceRegistry) Resolve(name string) (*ModuleDescriptor, error) {
	table := *r.modules.Load()
	descriptor, ok := table[name]
	if !ok {
		return nil, errors.Newf(errors.KindModuleNotFound, "NamespaceRegistry", "Resolve",
			"module %q not registered in namespace %q", name, r.namespace)
	}
	return descriptor, nil
}

// Freeze ends the registration phase. Resolution keeps working; further
// registration fails fatally. Freeze is idempotent.
func (r *NamespaceRegistry) Freeze() {
	r.frozen.Store(true)
}

// Frozen reports whether the registration phase has ended.
func (r *NamespaceRegistry) Frozen() bool {
	return r.frozen.Load()
}

// ModuleNames returns the registered module names, sorted.
func (r *NamespaceRegistry) ModuleNames() []string {
	table := *r.modules.Load()
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered modules.
func (r *NamespaceRegistry) Len() int {
	return len(*r.modules.Load())
}
