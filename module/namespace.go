package module

import (
	"sort"

	"github.com/c360/bridgekit/errors"
)

// MaxNameLength caps module and namespace identifiers.
const MaxNameLength = 1024

// Namespace identifies one coexisting SDK generation. All modules registered
// under a namespace are isolated from every other namespace; there is no
// fallback between generations.
type Namespace string

// Validate checks the namespace tag for emptiness and unsafe characters.
// Allowed characters are alphanumeric, dash, underscore, and dot.
func (n Namespace) Validate() error {
	if n == "" {
		return errors.New(errors.KindUnknownVersion, "Namespace", "Validate", "empty namespace tag")
	}
	if len(n) > MaxNameLength {
		return errors.New(errors.KindUnknownVersion, "Namespace", "Validate", "namespace tag too long")
	}
	for _, r := range n {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.') {
			return errors.Newf(errors.KindUnknownVersion, "Namespace", "Validate",
				"invalid characters in namespace tag %q", string(n))
		}
	}
	return nil
}

// ValidateModuleName validates module names for registration
func ValidateModuleName(name string) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ModuleValidator", "ValidateModuleName", "empty name")
	}
	if len(name) > MaxNameLength {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ModuleValidator", "ValidateModuleName", "name too long")
	}
	// Allow alphanumeric, dash, underscore, dot
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.') {
			return errors.WrapInvalid(
				errors.ErrInvalidConfig, "ModuleValidator", "ValidateModuleName",
				"invalid name characters")
		}
	}
	return nil
}

// NamespaceTable holds the registries for every bundled version namespace.
// The set of namespaces is fixed at construction: a namespace exists because
// a generation was bundled into the host, never because someone looked it up.
type NamespaceTable struct {
	registries map[Namespace]*NamespaceRegistry
}

// NewNamespaceTable builds a table with one registry per declared tag.
// Duplicate tags are rejected; an empty tag list is a configuration error
// surfaced at startup.
func NewNamespaceTable(tags ...string) (*NamespaceTable, error) {
	if len(tags) == 0 {
		return nil, errors.WrapFatal(errors.ErrMissingConfig,
			"NamespaceTable", "New", "no version namespaces declared")
	}

	registries := make(map[Namespace]*NamespaceRegistry, len(tags))
	for _, tag := range tags {
		ns := Namespace(tag)
		if err := ns.Validate(); err != nil {
			return nil, errors.WrapFatal(err, "NamespaceTable", "New", "namespace tag "+tag)
		}
		if _, exists := registries[ns]; exists {
			return nil, errors.WrapFatal(errors.ErrInvalidConfig,
				"NamespaceTable", "New", "namespace "+tag+" declared twice")
		}
		registries[ns] = newNamespaceRegistry(ns)
	}

	return &NamespaceTable{registries: registries}, nil
}

// NamespaceFor returns the registry for a version tag. It is idempotent:
// the same tag always yields the same registry instance. A tag with no
// bundled implementation set fails with UnknownVersion.
func (t *NamespaceTable) NamespaceFor(tag string) (*NamespaceRegistry, error) {
	reg, ok := t.registries[Namespace(tag)]
	if !ok {
		return nil, errors.Newf(errors.KindUnknownVersion, "NamespaceTable", "NamespaceFor",
			"no bundled implementation set for version %q", tag)
	}
	return reg, nil
}

// Namespaces returns the declared namespace tags, sorted.
func (t *NamespaceTable) Namespaces() []Namespace {
	tags := make([]Namespace, 0, len(t.registries))
	for ns := range t.registries {
		tags = append(tags, ns)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// FreezeAll ends the registration phase on every registry. After this call
// all registries serve lock-free reads and refuse further registration.
func (t *NamespaceTable) FreezeAll() {
	for _, reg := range t.registries {
		reg.Freeze()
	}
}

// Resolve is a convenience that resolves (tag, name) in one step, keeping
// the two error cases distinct: UnknownVersion for the tag, ModuleNotFound
// for the name.
func (t *NamespaceTable) Resolve(tag, name string) (*ModuleDescriptor, error) {
	reg, err := t.NamespaceFor(tag)
	if err != nil {
		return nil, err
	}
	return reg.Resolve(name)
}
