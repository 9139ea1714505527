// Package orientation implements the screen orientation capability module:
// applying and clearing named orientation locks, reporting the current
// orientation, and translating symbolic lock names to the platform constants
// native layers expect.
//
// Translation tables are bijections kept exhaustive over the platform
// constant sets: every iOS UIInterfaceOrientationMask value and every
// Android ActivityInfo.SCREEN_ORIENTATION_* code has exactly one symbolic
// name, and symbolic -> numeric -> symbolic is the identity for every entry.
//
// Device state lives behind the Device interface. Hosts supply real
// hardware bindings; tests and headless hosts use the simulated device,
// which serializes state changes and reports orientation changes back to
// the module for emission on the orientationDidChange stream.
package orientation
