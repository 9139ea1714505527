package orientation

import (
	"fmt"
	"sort"

	"github.com/c360/bridgekit/errors"
)

// Platform identifies which native constant vocabulary applies.
type Platform string

// Supported platforms.
const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// Validate checks the platform tag.
func (p Platform) Validate() error {
	switch p {
	case PlatformIOS, PlatformAndroid:
		return nil
	default:
		return errors.Newf(errors.KindTypeMismatch, "Orientation", "platform",
			"unknown platform %q, expected ios or android", string(p))
	}
}

// lockTable is a bijection between symbolic lock names and one platform's
// numeric constants. Both directions are total over the table's entries, so
// symbolic -> numeric -> symbolic is the identity.
type lockTable struct {
	platform   Platform
	toNumeric  map[string]int
	toSymbolic map[int]string
}

func newLockTable(platform Platform, entries map[string]int) lockTable {
	reverse := make(map[int]string, len(entries))
	for symbolic, numeric := range entries {
		if existing, dup := reverse[numeric]; dup {
			panic(fmt.Sprintf("orientation: %s constant %d claimed by %q and %q",
				platform, numeric, existing, symbolic))
		}
		reverse[numeric] = symbolic
	}
	return lockTable{platform: platform, toNumeric: entries, toSymbolic: reverse}
}

// Numeric translates a symbolic lock name to the platform constant.
func (t lockTable) Numeric(symbolic string) (int, error) {
	n, ok := t.toNumeric[symbolic]
	if !ok {
		return 0, errors.Newf(errors.KindTypeMismatch, "Orientation", "lock",
			"unknown %s orientation lock %q", t.platform, symbolic)
	}
	return n, nil
}

// Symbolic translates a platform constant back to its lock name.
func (t lockTable) Symbolic(numeric int) (string, error) {
	s, ok := t.toSymbolic[numeric]
	if !ok {
		return "", errors.Newf(errors.KindTypeMismatch, "Orientation", "lock",
			"unmapped %s orientation constant %d", t.platform, numeric)
	}
	return s, nil
}

// Names returns the symbolic lock names the table accepts, sorted.
func (t lockTable) Names() []string {
	names := make([]string, 0, len(t.toNumeric))
	for name := range t.toNumeric {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// iosLocks maps symbolic lock names to UIInterfaceOrientationMask values.
// Masks are bit shifts of the UIInterfaceOrientation cases (portrait=1,
// portraitUpsideDown=2, landscapeRight=3, landscapeLeft=4) plus the three
// composite masks UIKit defines.
var iosLocks = newLockTable(PlatformIOS, map[string]int{
	"portrait":           1 << 1, // UIInterfaceOrientationMaskPortrait
	"portraitUpsideDown": 1 << 2, // UIInterfaceOrientationMaskPortraitUpsideDown
	"landscapeRight":     1 << 3, // UIInterfaceOrientationMaskLandscapeRight
	"landscapeLeft":      1 << 4, // UIInterfaceOrientationMaskLandscapeLeft
	"landscape":          1<<3 | 1<<4,               // UIInterfaceOrientationMaskLandscape
	"allButUpsideDown":   1<<1 | 1<<3 | 1<<4,        // UIInterfaceOrientationMaskAllButUpsideDown
	"all":                1<<1 | 1<<2 | 1<<3 | 1<<4, // UIInterfaceOrientationMaskAll
})

// androidLocks maps symbolic lock names to
// ActivityInfo.SCREEN_ORIENTATION_* codes.
var androidLocks = newLockTable(PlatformAndroid, map[string]int{
	"unspecified":      -1, // SCREEN_ORIENTATION_UNSPECIFIED
	"landscape":        0,  // SCREEN_ORIENTATION_LANDSCAPE
	"portrait":         1,  // SCREEN_ORIENTATION_PORTRAIT
	"user":             2,  // SCREEN_ORIENTATION_USER
	"behind":           3,  // SCREEN_ORIENTATION_BEHIND
	"sensor":           4,  // SCREEN_ORIENTATION_SENSOR
	"nosensor":         5,  // SCREEN_ORIENTATION_NOSENSOR
	"sensorLandscape":  6,  // SCREEN_ORIENTATION_SENSOR_LANDSCAPE
	"sensorPortrait":   7,  // SCREEN_ORIENTATION_SENSOR_PORTRAIT
	"reverseLandscape": 8,  // SCREEN_ORIENTATION_REVERSE_LANDSCAPE
	"reversePortrait":  9,  // SCREEN_ORIENTATION_REVERSE_PORTRAIT
	"fullSensor":       10, // SCREEN_ORIENTATION_FULL_SENSOR
	"userLandscape":    11, // SCREEN_ORIENTATION_USER_LANDSCAPE
	"userPortrait":     12, // SCREEN_ORIENTATION_USER_PORTRAIT
	"fullUser":         13, // SCREEN_ORIENTATION_FULL_USER
	"locked":           14, // SCREEN_ORIENTATION_LOCKED
})

// tableFor returns the lock table for a platform.
func tableFor(platform Platform) (lockTable, error) {
	switch platform {
	case PlatformIOS:
		return iosLocks, nil
	case PlatformAndroid:
		return androidLocks, nil
	default:
		return lockTable{}, platform.Validate()
	}
}

// unlockedNumeric is the platform constant reported while no lock is
// applied: every orientation is allowed, which is mask-all on iOS and
// SCREEN_ORIENTATION_UNSPECIFIED on Android.
func unlockedNumeric(platform Platform) (int, error) {
	switch platform {
	case PlatformIOS:
		return iosLocks.toNumeric["all"], nil
	case PlatformAndroid:
		return androidLocks.toNumeric["unspecified"], nil
	default:
		return 0, platform.Validate()
	}
}
