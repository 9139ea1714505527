package module

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/c360/bridgekit/errors"
)

// MaxConfigSize caps raw module configuration documents (1MB).
const MaxConfigSize = 1024 * 1024

// Factory creates a module instance from raw JSON configuration and
// structured dependencies.
type Factory func(rawConfig json.RawMessage, deps Dependencies) (Module, error)

// Validatable lets config structs self-validate after unmarshaling.
type Validatable interface {
	Validate() error
}

// SafeUnmarshal unmarshals raw module config with size limits and struct
// validation. Empty config is valid; the target keeps its defaults.
func SafeUnmarshal(rawConfig json.RawMessage, target any) error {
	if len(rawConfig) > MaxConfigSize {
		return errors.WrapInvalid(
			fmt.Errorf("config size %d exceeds maximum %d", len(rawConfig), MaxConfigSize),
			"Factory", "SafeUnmarshal", "size check")
	}

	if len(rawConfig) == 0 {
		return nil
	}

	targetType := reflect.TypeOf(target)
	if targetType == nil || targetType.Kind() != reflect.Ptr {
		return errors.WrapInvalid(
			fmt.Errorf("target must be a pointer, got %T", target),
			"Factory", "SafeUnmarshal", "target type check")
	}

	if err := json.Unmarshal(rawConfig, target); err != nil {
		return errors.WrapInvalid(err, "Factory", "SafeUnmarshal", "JSON unmarshaling")
	}

	if validatable, ok := target.(Validatable); ok {
		if err := validatable.Validate(); err != nil {
			return errors.Wrap(err, "Factory", "SafeUnmarshal", "struct validation")
		}
	}
	return nil
}

// FactorySet holds the registered module factories. Factories register once
// during program initialization; duplicate registration is a programming
// error that halts startup.
type FactorySet struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewFactorySet returns an empty factory set.
func NewFactorySet() *FactorySet {
	return &FactorySet{factories: make(map[string]Factory)}
}

// RegisterFactory adds a factory under a name.
func (s *FactorySet) RegisterFactory(name string, factory Factory) error {
	if err := ValidateModuleName(name); err != nil {
		return err
	}
	if factory == nil {
		return errors.Newf(errors.KindInvalidTarget, "FactorySet", "RegisterFactory",
			"factory %q is nil", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.factories[name]; exists {
		return errors.Newf(errors.KindDuplicateModule, "FactorySet", "RegisterFactory",
			"factory %q is already registered", name)
	}
	s.factories[name] = factory
	return nil
}

// Create builds a module instance from the named factory.
func (s *FactorySet) Create(name string, rawConfig json.RawMessage, deps Dependencies) (Module, error) {
	s.mu.RLock()
	factory, exists := s.factories[name]
	s.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.KindModuleNotFound, "FactorySet", "Create",
			"no factory registered for %q", name)
	}

	instance, err := factory(rawConfig, deps)
	if err != nil {
		return nil, errors.Wrap(err, "FactorySet", "Create", "factory "+name)
	}
	if instance == nil {
		return nil, errors.Newf(errors.KindInvalidTarget, "FactorySet", "Create",
			"factory %q returned a nil module", name)
	}
	return instance, nil
}

// HasFactory reports whether a factory is registered under name.
func (s *FactorySet) HasFactory(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.factories[name]
	return exists
}

// FactoryNames returns the registered factory names, sorted.
func (s *FactorySet) FactoryNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.factories))
	for name := range s.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
