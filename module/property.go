package module

import (
	"sort"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/value"
)

// Setter applies a validated value to a native target. Setters must return
// ErrInvalidTarget (or a wrap of it) when the target does not expose the
// bound field, and must not mutate the target on failure.
type Setter func(target any, v value.Value) error

// PropertyDescriptor binds a named setter to an expected value type so
// externally supplied configuration can be validated before it touches a
// native object. Descriptors are immutable once constructed; a
// default-initialized descriptor has no binding and fails fast instead of
// acting as a usable zero value.
type PropertyDescriptor struct {
	name   string
	typ    value.Type
	setter Setter
}

// PropertyKey identifies a descriptor by its (setter, type) pair. Two
// descriptors with the same key carry the same validation rule regardless of
// instance identity.
type PropertyKey struct {
	Name string
	Type value.Type
}

// NewPropertyDescriptor constructs a descriptor. Construction fails when the
// setter binding name is empty, the setter is nil, or the expected type is
// the signature-only wildcard.
func NewPropertyDescriptor(name string, typ value.Type, setter Setter) (*PropertyDescriptor, error) {
	if name == "" {
		return nil, errors.New(errors.KindInvalidTarget, "PropertyDescriptor", "New",
			"empty setter binding name")
	}
	if setter == nil {
		return nil, errors.Newf(errors.KindInvalidTarget, "PropertyDescriptor", "New",
			"descriptor %q has no setter binding", name)
	}
	if typ == value.TypeAny {
		return nil, errors.Newf(errors.KindTypeMismatch, "PropertyDescriptor", "New",
			"descriptor %q must declare a concrete expected type", name)
	}
	return &PropertyDescriptor{name: name, typ: typ, setter: setter}, nil
}

// Name returns the setter binding name.
func (d *PropertyDescriptor) Name() string {
	if d == nil {
		return ""
	}
	return d.name
}

// Type returns the expected value type.
func (d *PropertyDescriptor) Type() value.Type {
	if d == nil {
		return value.TypeNull
	}
	return d.typ
}

// Key returns the descriptor's (setter, type) identity.
func (d *PropertyDescriptor) Key() PropertyKey {
	return PropertyKey{Name: d.Name(), Type: d.Type()}
}

// Equal reports whether two descriptors carry the same validation rule.
// Equality is by (setter, type) pair, not instance identity.
func (d *PropertyDescriptor) Equal(other *PropertyDescriptor) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.Key() == other.Key()
}

// Validate reports whether the descriptor is usable. A zero-value descriptor
// fails here rather than silently applying nothing.
func (d *PropertyDescriptor) Validate() error {
	if d == nil || d.setter == nil || d.name == "" {
		return errors.New(errors.KindInvalidTarget, "PropertyDescriptor", "Validate",
			"descriptor has no setter binding")
	}
	return nil
}

// Apply validates v against the expected type and applies it to target via
// the bound setter. The type check runs first, so a TypeMismatch never
// mutates the target. A nil target, a missing binding, or a setter that
// rejects the target fails with InvalidTarget.
func (d *PropertyDescriptor) Apply(target any, v value.Value) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if target == nil {
		return errors.Newf(errors.KindInvalidTarget, "PropertyDescriptor", "Apply",
			"nil target for setter %q", d.name)
	}
	if v.Type() != d.typ {
		return errors.Newf(errors.KindTypeMismatch, "PropertyDescriptor", "Apply",
			"setter %q: expected %s, got %s", d.name, d.typ, v.Type())
	}
	if err := d.setter(target, v); err != nil {
		if errors.KindOf(err) != errors.KindNativeFailure {
			return errors.Wrap(err, "PropertyDescriptor", "Apply", "setter "+d.name)
		}
		return errors.WrapKind(errors.KindInvalidTarget, err,
			"PropertyDescriptor", "Apply", "setter "+d.name)
	}
	return nil
}

// PropertySet is a registry of property descriptors deduplicated by
// (setter, type) key, so the same validation rule is never held twice.
type PropertySet struct {
	byName map[string]*PropertyDescriptor
}

// NewPropertySet returns an empty property set.
func NewPropertySet() *PropertySet {
	return &PropertySet{byName: make(map[string]*PropertyDescriptor)}
}

// Add registers a descriptor. Adding a descriptor equal to an existing one
// (same setter and type) is a deduplicating no-op; adding a conflicting rule
// for the same setter with a different type is an error.
func (s *PropertySet) Add(d *PropertyDescriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if existing, ok := s.byName[d.Name()]; ok {
		if existing.Equal(d) {
			return nil
		}
		return errors.Newf(errors.KindDuplicateModule, "PropertySet", "Add",
			"setter %q already bound with type %s", d.Name(), existing.Type())
	}
	s.byName[d.Name()] = d
	return nil
}

// Get returns the descriptor bound to a setter name.
func (s *PropertySet) Get(name string) (*PropertyDescriptor, bool) {
	d, ok := s.byName[name]
	return d, ok
}

// Names returns the bound setter names, sorted.
func (s *PropertySet) Names() []string {
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of bound descriptors.
func (s *PropertySet) Len() int {
	return len(s.byName)
}

// ApplyAll validates every entry first and only then applies, so a failed
// write never leaves a subset of fields applied. Unknown setter names and
// type mismatches are reported before any mutation.
func (s *PropertySet) ApplyAll(target any, values map[string]value.Value) error {
	if target == nil {
		return errors.New(errors.KindInvalidTarget, "PropertySet", "ApplyAll", "nil target")
	}

	// Validation pass: all names bound, all types match.
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		d, ok := s.byName[name]
		if !ok {
			return errors.Newf(errors.KindNotFound, "PropertySet", "ApplyAll",
				"no descriptor bound for setter %q", name)
		}
		if values[name].Type() != d.Type() {
			return errors.Newf(errors.KindTypeMismatch, "PropertySet", "ApplyAll",
				"setter %q: expected %s, got %s", name, d.Type(), values[name].Type())
		}
	}

	// Apply pass.
	for _, name := range names {
		if err := s.byName[name].Apply(target, values[name]); err != nil {
			return err
		}
	}
	return nil
}
