// Package timestamp standardizes the wire representation of time.
//
// Bridge traffic records and other JSON surfaces carry timestamps as int64
// milliseconds since the Unix epoch (UTC). Keeping the conversion helpers in
// one place avoids the second/millisecond mixups that creep in when every
// call site does its own arithmetic.
//
// A value of 0 means "not set"; helpers return zero values for it rather
// than treating it as the epoch.
package timestamp

import "time"

// Now returns the current time as Unix milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// ToUnixMs converts a time.Time to Unix milliseconds. The zero time maps
// to 0.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMs converts Unix milliseconds to time.Time. 0 maps to the zero
// time.
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Format renders a timestamp as RFC3339 UTC for logs and debug output.
// Returns "" for 0.
func Format(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// Since returns the duration elapsed since the given timestamp, or 0 when
// the timestamp is unset.
func Since(ms int64) time.Duration {
	if ms == 0 {
		return 0
	}
	return time.Since(time.UnixMilli(ms))
}

// Between returns end minus start. Either side unset yields 0.
func Between(start, end int64) time.Duration {
	if start == 0 || end == 0 {
		return 0
	}
	return time.UnixMilli(end).Sub(time.UnixMilli(start))
}
