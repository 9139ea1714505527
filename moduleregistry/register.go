// Package moduleregistry provides central registration of the built-in
// capability modules. Each enabled module is constructed, initialized, and
// registered once per version namespace; the returned lifecycle modules are
// started by the host after the namespace table freezes.
package moduleregistry

import (
	"encoding/json"
	stderrors "errors"
	"sort"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/module"
	"github.com/c360/bridgekit/modules/geolocation"
	"github.com/c360/bridgekit/modules/orientation"
	"github.com/c360/bridgekit/modules/permissions"
	"github.com/c360/bridgekit/modules/settings"
)

// Config selects and configures the built-in capability modules. A nil
// section disables that module.
type Config struct {
	Settings    *settings.Config    `json:"settings,omitempty" yaml:"settings,omitempty"`
	Orientation *orientation.Config `json:"orientation,omitempty" yaml:"orientation,omitempty"`
	Permissions *permissions.Config `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	Geolocation *geolocation.Config `json:"geolocation,omitempty" yaml:"geolocation,omitempty"`

	// Custom holds raw configuration for host-supplied modules, keyed by
	// factory name. Each entry is built through the bound factory set and
	// registered alongside the built-ins in every namespace.
	Custom map[string]json.RawMessage `json:"custom,omitempty" yaml:"custom,omitempty"`
}

// DefaultConfig enables every built-in with its own defaults.
func DefaultConfig() Config {
	settingsCfg := settings.DefaultConfig()
	orientationCfg := orientation.DefaultConfig()
	permissionsCfg := permissions.DefaultConfig()
	geolocationCfg := geolocation.DefaultConfig()
	return Config{
		Settings:    &settingsCfg,
		Orientation: &orientationCfg,
		Permissions: &permissionsCfg,
		Geolocation: &geolocationCfg,
	}
}

// Validate checks every enabled section.
func (c Config) Validate() error {
	if c.Settings != nil {
		if err := c.Settings.Validate(); err != nil {
			return err
		}
	}
	if c.Orientation != nil {
		if err := c.Orientation.Validate(); err != nil {
			return err
		}
	}
	if c.Permissions != nil {
		if err := c.Permissions.Validate(); err != nil {
			return err
		}
	}
	if c.Geolocation != nil {
		if err := c.Geolocation.Validate(); err != nil {
			return err
		}
	}
	for name := range c.Custom {
		if err := module.ValidateModuleName(name); err != nil {
			return errors.WrapInvalid(err, "ModuleRegistry", "Validate",
				"custom module name "+name)
		}
	}
	return nil
}

// Boundaries carries the host-supplied platform boundaries the built-ins
// attach to. Both are safely shared across namespaces; orientation devices
// are not, so hosts binding real screens construct orientation modules with
// orientation.New and register them alongside RegisterAll's output.
type Boundaries struct {
	// Granter starts permission grant flows. Nil leaves ask failing with
	// permissions.ErrNoGranter.
	Granter permissions.Granter

	// Source produces position fixes. Nil gives each namespace a simulated
	// source.
	Source geolocation.Source

	// Factories builds the modules named in Config.Custom from their raw
	// configuration. Nil with a non-empty Custom section is a configuration
	// error surfaced at registration.
	Factories *module.FactorySet
}

// EmitterFactory returns the event sink for one (namespace, module) pair.
// The bridge's event hub supplies one per registered module; a nil factory
// leaves the shared deps.Emitter in place.
type EmitterFactory func(namespace, moduleName string) module.Emitter

// RegisterAll registers every enabled built-in into each of the given
// namespaces and returns the created modules in start order. Registration
// errors are invalid-class; a nil table is a programming error and fatal.
func RegisterAll(table *module.NamespaceTable, cfg Config, deps module.Dependencies,
	bounds Boundaries, emitterFor EmitterFactory, namespaces ...string) ([]module.LifecycleModule, error) {
	if table == nil {
		return nil, errors.WrapFatal(
			stderrors.New("namespace table cannot be nil"),
			"ModuleRegistry", "RegisterAll", "table validation")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "ModuleRegistry", "RegisterAll", "config validation")
	}

	// Each (namespace, module) pair gets its own emitter so events carry the
	// right version partition.
	depsFor := func(namespace, moduleName string) module.Dependencies {
		d := deps
		if emitterFor != nil {
			d.Emitter = emitterFor(namespace, moduleName)
		}
		return d
	}

	var mods []module.LifecycleModule

	for _, namespace := range namespaces {
		if cfg.Settings != nil {
			created, err := settings.Register(table, *cfg.Settings,
				depsFor(namespace, settings.ModuleName), namespace)
			if err != nil {
				return nil, errors.WrapInvalid(err, "ModuleRegistry", "RegisterAll",
					"settings registration in "+namespace)
			}
			for _, m := range created {
				mods = append(mods, m)
			}
		}

		if cfg.Orientation != nil {
			created, err := orientation.Register(table, *cfg.Orientation,
				depsFor(namespace, orientation.ModuleName), namespace)
			if err != nil {
				return nil, errors.WrapInvalid(err, "ModuleRegistry", "RegisterAll",
					"orientation registration in "+namespace)
			}
			for _, m := range created {
				mods = append(mods, m)
			}
		}

		if cfg.Permissions != nil {
			created, err := permissions.Register(table, *cfg.Permissions,
				depsFor(namespace, permissions.ModuleName), bounds.Granter, namespace)
			if err != nil {
				return nil, errors.WrapInvalid(err, "ModuleRegistry", "RegisterAll",
					"permissions registration in "+namespace)
			}
			for _, m := range created {
				mods = append(mods, m)
			}
		}

		if cfg.Geolocation != nil {
			created, err := geolocation.Register(table, *cfg.Geolocation,
				depsFor(namespace, geolocation.ModuleName), bounds.Source, namespace)
			if err != nil {
				return nil, errors.WrapInvalid(err, "ModuleRegistry", "RegisterAll",
					"geolocation registration in "+namespace)
			}
			for _, m := range created {
				mods = append(mods, m)
			}
		}

		created, err := registerCustom(table, cfg.Custom, depsFor, bounds.Factories, namespace)
		if err != nil {
			return nil, err
		}
		mods = append(mods, created...)
	}

	return mods, nil
}

// registerCustom builds each configured custom module through the factory
// set and registers it in the namespace. Names register in sorted order so a
// failure always points at the same entry. Lifecycle modules come back
// initialized like the built-ins; plain modules register and need no start.
func registerCustom(table *module.NamespaceTable, custom map[string]json.RawMessage,
	depsFor func(namespace, moduleName string) module.Dependencies,
	factories *module.FactorySet, namespace string) ([]module.LifecycleModule, error) {
	if len(custom) == 0 {
		return nil, nil
	}
	if factories == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "ModuleRegistry", "RegisterAll",
			"custom modules configured without a factory set")
	}

	names := make([]string, 0, len(custom))
	for name := range custom {
		names = append(names, name)
	}
	sort.Strings(names)

	var mods []module.LifecycleModule
	for _, name := range names {
		m, err := factories.Create(name, custom[name], depsFor(namespace, name))
		if err != nil {
			return nil, errors.WrapInvalid(err, "ModuleRegistry", "RegisterAll",
				"build custom module "+name+" in "+namespace)
		}
		// The config key is the name callers resolve; a module answering to a
		// different name would register somewhere operators never configured.
		if got := m.Meta().Name; got != name {
			return nil, errors.Newf(errors.KindInvalidTarget, "ModuleRegistry", "RegisterAll",
				"factory %q built a module named %q", name, got)
		}

		if lm, ok := m.(module.LifecycleModule); ok {
			if err := lm.Initialize(); err != nil {
				return nil, errors.WrapInvalid(err, "ModuleRegistry", "RegisterAll",
					"initialize custom module "+name+" in "+namespace)
			}
			mods = append(mods, lm)
		}

		desc, err := module.NewDescriptor(module.Namespace(namespace), m)
		if err != nil {
			return nil, errors.WrapInvalid(err, "ModuleRegistry", "RegisterAll",
				"describe custom module "+name+" in "+namespace)
		}
		reg, err := table.NamespaceFor(namespace)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(desc); err != nil {
			return nil, errors.WrapInvalid(err, "ModuleRegistry", "RegisterAll",
				"register custom module "+name+" in "+namespace)
		}
	}
	return mods, nil
}
