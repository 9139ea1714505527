package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLRU(t *testing.T, size int, options ...Option[string]) Cache[string] {
	t.Helper()
	c, err := NewLRU[string](size, options...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLRU_SetGet(t *testing.T) {
	c := newTestLRU(t, 4)

	created, err := c.Set("brightness", "80")
	require.NoError(t, err)
	assert.True(t, created, "first Set should create the entry")

	created, err = c.Set("brightness", "55")
	require.NoError(t, err)
	assert.False(t, created, "second Set should update in place")

	val, ok := c.Get("brightness")
	assert.True(t, ok)
	assert.Equal(t, "55", val)

	_, ok = c.Get("contrast")
	assert.False(t, ok)
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	c := newTestLRU(t, 3, WithEvictCallback[string](func(key, _ string) {
		evicted = append(evicted, key)
	}))

	for _, key := range []string{"a", "b", "c"} {
		_, err := c.Set(key, key)
		require.NoError(t, err)
	}

	// Touch "a" so "b" becomes the least recently used entry.
	_, ok := c.Get("a")
	require.True(t, ok)

	_, err := c.Set("d", "d")
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, evicted)
	_, ok = c.Get("b")
	assert.False(t, ok, "evicted entry should be gone")
	_, ok = c.Get("a")
	assert.True(t, ok, "recently used entry should survive")
	assert.Equal(t, 3, c.Size())
}

func TestLRU_UpdateDoesNotEvict(t *testing.T) {
	c := newTestLRU(t, 2)

	_, err := c.Set("a", "1")
	require.NoError(t, err)
	_, err = c.Set("b", "2")
	require.NoError(t, err)
	_, err = c.Set("a", "3")
	require.NoError(t, err)

	assert.Equal(t, 2, c.Size())
	val, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "2", val)
	assert.EqualValues(t, 0, c.Stats().Evictions())
}

func TestLRU_Delete(t *testing.T) {
	c := newTestLRU(t, 4)

	_, err := c.Set("a", "1")
	require.NoError(t, err)

	existed, err := c.Delete("a")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = c.Delete("a")
	require.NoError(t, err)
	assert.False(t, existed, "second delete should report a miss")
	assert.Equal(t, 0, c.Size())
}

func TestLRU_ClearInvokesCallback(t *testing.T) {
	var mu sync.Mutex
	cleared := make(map[string]string)
	c := newTestLRU(t, 4, WithEvictCallback[string](func(key, val string) {
		mu.Lock()
		cleared[key] = val
		mu.Unlock()
	}))

	_, err := c.Set("a", "1")
	require.NoError(t, err)
	_, err = c.Set("b", "2")
	require.NoError(t, err)

	require.NoError(t, c.Clear())
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, cleared)
	assert.Equal(t, 0, c.Size())

	// The cache stays usable after Clear.
	_, err = c.Set("c", "3")
	require.NoError(t, err)
	val, ok := c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, "3", val)
}

func TestLRU_KeysOldestFirst(t *testing.T) {
	c := newTestLRU(t, 4)

	for _, key := range []string{"a", "b", "c"} {
		_, err := c.Set(key, key)
		require.NoError(t, err)
	}
	// Touching "a" moves it to the newest position.
	_, _ = c.Get("a")

	assert.Equal(t, []string{"b", "c", "a"}, c.Keys())
}

func TestLRU_TTLExpiry(t *testing.T) {
	c := newTestLRU(t, 4, WithTTL[string](50*time.Millisecond))

	_, err := c.Set("session", "tok-1")
	require.NoError(t, err)

	val, ok := c.Get("session")
	require.True(t, ok)
	assert.Equal(t, "tok-1", val)

	time.Sleep(120 * time.Millisecond)

	_, ok = c.Get("session")
	assert.False(t, ok, "entry should expire after the TTL")
}

func TestLRU_RejectsNonPositiveSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		_, err := NewLRU[string](size)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "size must be positive")
	}
}

func TestLRU_Statistics(t *testing.T) {
	c := newTestLRU(t, 2)

	_, err := c.Set("a", "1")
	require.NoError(t, err)
	_, err = c.Set("b", "2")
	require.NoError(t, err)
	_, err = c.Set("c", "3") // evicts "a"
	require.NoError(t, err)

	_, ok := c.Get("b")
	require.True(t, ok)
	_, ok = c.Get("a")
	require.False(t, ok)

	existed, err := c.Delete("b")
	require.NoError(t, err)
	require.True(t, existed)

	stats := c.Stats()
	require.NotNil(t, stats)
	assert.EqualValues(t, 1, stats.Hits())
	assert.EqualValues(t, 1, stats.Misses())
	assert.EqualValues(t, 3, stats.Sets())
	assert.EqualValues(t, 1, stats.Deletes())
	assert.EqualValues(t, 1, stats.Evictions())
	assert.EqualValues(t, 1, stats.CurrentSize())
	assert.EqualValues(t, 2, stats.HighWater())
	assert.InDelta(t, 0.5, stats.HitRatio(), 0.001)

	summary := stats.Summary()
	assert.EqualValues(t, 1, summary.Hits)
	assert.EqualValues(t, 1, summary.Evictions)
	assert.EqualValues(t, 2, summary.HighWater)
	assert.Positive(t, summary.Uptime)
}

func TestLRU_ConcurrentAccess(t *testing.T) {
	c := newTestLRU(t, 64)

	const (
		goroutines = 8
		perWorker  = 200
	)

	var wg sync.WaitGroup
	for g := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWorker {
				key := fmt.Sprintf("key-%d", (g*perWorker+i)%100)
				_, err := c.Set(key, key)
				assert.NoError(t, err)
				c.Get(key)
			}
		}()
	}
	wg.Wait()

	stats := c.Stats()
	assert.EqualValues(t, goroutines*perWorker, stats.Sets())
	assert.LessOrEqual(t, c.Size(), 64)
}

func TestNoop(t *testing.T) {
	c := NewNoop[string]()

	created, err := c.Set("a", "1")
	require.NoError(t, err)
	assert.False(t, created)

	_, ok := c.Get("a")
	assert.False(t, ok, "noop cache never stores anything")

	existed, err := c.Delete("a")
	require.NoError(t, err)
	assert.False(t, existed)

	assert.Equal(t, 0, c.Size())
	assert.Nil(t, c.Keys())
	assert.Nil(t, c.Stats())
	assert.NoError(t, c.Clear())
	assert.NoError(t, c.Close())
}

func ExampleNewLRU() {
	c, _ := NewLRU[string](128)
	defer c.Close()

	_, _ = c.Set("display.brightness", "80")
	if val, ok := c.Get("display.brightness"); ok {
		fmt.Println(val)
	}
	// Output: 80
}
