package timestamp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNow_IsMilliseconds(t *testing.T) {
	before := time.Now().UnixMilli()
	got := Now()
	after := time.Now().UnixMilli()

	assert.GreaterOrEqual(t, got, before)
	assert.LessOrEqual(t, got, after)
}

func TestRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 589000000, time.UTC)

	ms := ToUnixMs(at)
	assert.Equal(t, at.UnixMilli(), ms)
	assert.True(t, FromUnixMs(ms).Equal(at))
}

func TestZeroMeansUnset(t *testing.T) {
	assert.EqualValues(t, 0, ToUnixMs(time.Time{}))
	assert.True(t, FromUnixMs(0).IsZero())
	assert.Empty(t, Format(0))
	assert.Zero(t, Since(0))
	assert.Zero(t, Between(0, Now()))
	assert.Zero(t, Between(Now(), 0))
}

func TestFormat_RFC3339UTC(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.FixedZone("PST", -8*3600))
	assert.Equal(t, "2026-03-14T17:26:53Z", Format(ToUnixMs(at)))
}

func TestSince(t *testing.T) {
	past := Now() - 250
	got := Since(past)
	assert.GreaterOrEqual(t, got, 250*time.Millisecond)
	assert.Less(t, got, 5*time.Second)
}

func TestBetween(t *testing.T) {
	start := int64(1767225600000)
	end := start + 1500

	assert.Equal(t, 1500*time.Millisecond, Between(start, end))
	assert.Equal(t, -1500*time.Millisecond, Between(end, start))
}
