package orientation

import (
	"sync"

	"github.com/c360/bridgekit/errors"
)

// Interface orientations devices report.
const (
	OrientationPortrait           = "portrait"
	OrientationPortraitUpsideDown = "portraitUpsideDown"
	OrientationLandscapeLeft      = "landscapeLeft"
	OrientationLandscapeRight     = "landscapeRight"
)

// ValidOrientation reports whether s names an interface orientation.
func ValidOrientation(s string) bool {
	switch s {
	case OrientationPortrait, OrientationPortraitUpsideDown,
		OrientationLandscapeLeft, OrientationLandscapeRight:
		return true
	default:
		return false
	}
}

// Device is the hardware boundary for orientation state. Hosts bind real
// platform devices; tests and headless hosts use the simulated device.
// Implementations must serialize state changes and invoke the bound change
// callback once per applied interface orientation change.
type Device interface {
	// Platform returns the constant vocabulary this device speaks.
	Platform() Platform

	// Orientation returns the current interface orientation.
	Orientation() string

	// ApplyLock applies a named orientation lock. When the current
	// orientation is not allowed under the new lock, the device snaps to
	// the lock's canonical orientation and reports the change.
	ApplyLock(symbolic string) error

	// ClearLock removes any applied lock.
	ClearLock() error

	// CurrentLock returns the applied lock name, or ok=false when unlocked.
	CurrentLock() (string, bool)

	// OnChange binds the callback invoked after every applied interface
	// orientation change. At most one callback is bound.
	OnChange(fn func(orientation string))
}

// lockAllows gives, per lock name, the interface orientations the lock
// permits, in canonical order: the first entry is where the device snaps
// when the current orientation becomes disallowed. An absent entry means
// the lock freezes the current orientation (nosensor, locked).
var lockAllows = map[string][]string{
	"portrait":           {OrientationPortrait},
	"portraitUpsideDown": {OrientationPortraitUpsideDown},
	"landscapeLeft":      {OrientationLandscapeLeft},
	"landscapeRight":     {OrientationLandscapeRight},
	"landscape":          {OrientationLandscapeLeft, OrientationLandscapeRight},
	"allButUpsideDown":   {OrientationPortrait, OrientationLandscapeLeft, OrientationLandscapeRight},
	"all":                {OrientationPortrait, OrientationPortraitUpsideDown, OrientationLandscapeLeft, OrientationLandscapeRight},
	"unspecified":        {OrientationPortrait, OrientationPortraitUpsideDown, OrientationLandscapeLeft, OrientationLandscapeRight},
	"user":               {OrientationPortrait, OrientationPortraitUpsideDown, OrientationLandscapeLeft, OrientationLandscapeRight},
	"behind":             {OrientationPortrait, OrientationPortraitUpsideDown, OrientationLandscapeLeft, OrientationLandscapeRight},
	"sensor":             {OrientationPortrait, OrientationPortraitUpsideDown, OrientationLandscapeLeft, OrientationLandscapeRight},
	"fullSensor":         {OrientationPortrait, OrientationPortraitUpsideDown, OrientationLandscapeLeft, OrientationLandscapeRight},
	"fullUser":           {OrientationPortrait, OrientationPortraitUpsideDown, OrientationLandscapeLeft, OrientationLandscapeRight},
	"sensorLandscape":    {OrientationLandscapeLeft, OrientationLandscapeRight},
	"sensorPortrait":     {OrientationPortrait, OrientationPortraitUpsideDown},
	"userLandscape":      {OrientationLandscapeLeft, OrientationLandscapeRight},
	"userPortrait":       {OrientationPortrait, OrientationPortraitUpsideDown},
	"reverseLandscape":   {OrientationLandscapeRight},
	"reversePortrait":    {OrientationPortraitUpsideDown},
}

// SimulatedDevice is an in-process Device for tests and headless hosts.
// One mutex serializes every state change, and the change callback fires
// inside the critical section so observers see changes in order.
type SimulatedDevice struct {
	platform Platform

	mu          sync.Mutex
	orientation string
	lock        string
	locked      bool
	onChange    func(string)
}

// NewSimulatedDevice builds a simulated device starting at the given
// orientation.
func NewSimulatedDevice(platform Platform, initial string) (*SimulatedDevice, error) {
	if err := platform.Validate(); err != nil {
		return nil, err
	}
	if !ValidOrientation(initial) {
		return nil, errors.Newf(errors.KindTypeMismatch, "SimulatedDevice", "New",
			"unknown orientation %q", initial)
	}
	return &SimulatedDevice{platform: platform, orientation: initial}, nil
}

// Platform returns the device's constant vocabulary.
func (d *SimulatedDevice) Platform() Platform {
	return d.platform
}

// Orientation returns the current interface orientation.
func (d *SimulatedDevice) Orientation() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.orientation
}

// ApplyLock applies a named lock, snapping the interface orientation to the
// lock's canonical orientation when the current one is no longer allowed.
func (d *SimulatedDevice) ApplyLock(symbolic string) error {
	table, err := tableFor(d.platform)
	if err != nil {
		return err
	}
	if _, err := table.Numeric(symbolic); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.lock = symbolic
	d.locked = true

	allowed, ok := lockAllows[symbolic]
	if !ok || len(allowed) == 0 {
		return nil // freeze-style lock keeps the current orientation
	}
	for _, o := range allowed {
		if o == d.orientation {
			return nil
		}
	}
	d.setOrientationLocked(allowed[0])
	return nil
}

// ClearLock removes any applied lock.
func (d *SimulatedDevice) ClearLock() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lock = ""
	d.locked = false
	return nil
}

// CurrentLock returns the applied lock name, or ok=false when unlocked.
func (d *SimulatedDevice) CurrentLock() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lock, d.locked
}

// OnChange binds the orientation change callback.
func (d *SimulatedDevice) OnChange(fn func(string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = fn
}

// Rotate simulates a physical rotation. The interface orientation follows
// only when the current lock allows the target; the return value reports
// whether it did.
func (d *SimulatedDevice) Rotate(orientation string) (bool, error) {
	if !ValidOrientation(orientation) {
		return false, errors.Newf(errors.KindTypeMismatch, "SimulatedDevice", "Rotate",
			"unknown orientation %q", orientation)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.orientation == orientation {
		return false, nil
	}
	if d.locked {
		allowed := lockAllows[d.lock]
		permitted := false
		for _, o := range allowed {
			if o == orientation {
				permitted = true
				break
			}
		}
		if !permitted {
			return false, nil
		}
	}
	d.setOrientationLocked(orientation)
	return true, nil
}

// setOrientationLocked updates the orientation and fires the change
// callback. Callers hold d.mu; the callback must not call back into the
// device.
func (d *SimulatedDevice) setOrientationLocked(orientation string) {
	d.orientation = orientation
	if d.onChange != nil {
		d.onChange(orientation)
	}
}
