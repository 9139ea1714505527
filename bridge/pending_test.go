package bridge

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/value"
)

func testInvocation(id string) Invocation {
	return Invocation{
		RequestID: id,
		CallerID:  "runtime-1",
		Namespace: "v1",
		Module:    "Settings",
		Method:    "get",
		Timeout:   time.Second,
	}
}

func TestPendingRequest_CompleteExactlyOnce(t *testing.T) {
	p := newPendingRequest(testInvocation("req-1"))

	assert.False(t, p.Completed())
	assert.True(t, p.Complete(value.NewString("dark")))
	assert.True(t, p.Completed())

	// Every later attempt loses the race and reports it.
	assert.False(t, p.Complete(value.NewString("light")))
	assert.False(t, p.Fail(errors.ErrTimeout))

	c := <-p.Done()
	assert.Equal(t, "req-1", c.RequestID)
	assert.False(t, c.IsError())
	assert.Equal(t, "ok", c.Status())
	got, err := c.Result.StringVal()
	require.NoError(t, err)
	assert.Equal(t, "dark", got)

	// The slot held exactly one completion.
	select {
	case extra := <-p.Done():
		t.Fatalf("unexpected second completion: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPendingRequest_FailDeliversWireError(t *testing.T) {
	p := newPendingRequest(testInvocation("req-2"))

	cause := errors.Newf(errors.KindTypeMismatch, "Settings", "get",
		"argument 1 (key): expected string, got number")
	require.True(t, p.Fail(cause))

	c := <-p.Done()
	require.True(t, c.IsError())
	assert.Equal(t, "error", c.Status())
	assert.Equal(t, "type_mismatch", c.Err.Kind)
	assert.Contains(t, c.Err.Message, "expected string, got number")
	assert.True(t, c.Result.IsNull())
}

func TestPendingRequest_TimeoutStatus(t *testing.T) {
	p := newPendingRequest(testInvocation("req-3"))

	require.True(t, p.Fail(errors.Newf(errors.KindTimeout, "Dispatcher", "dispatch",
		"Settings.get did not complete within 500ms")))

	c := <-p.Done()
	require.True(t, c.IsError())
	assert.Equal(t, "timeout", c.Err.Kind)
	assert.Equal(t, "timeout", c.Status())
}

// TestPendingRequest_CompletionRace hammers one slot from many goroutines
// racing results against errors. Exactly one attempt may win and exactly one
// completion may surface, no matter how the scheduler interleaves them.
func TestPendingRequest_CompletionRace(t *testing.T) {
	const attempts = 64

	for round := 0; round < 20; round++ {
		p := newPendingRequest(testInvocation(fmt.Sprintf("race-%d", round)))

		start := make(chan struct{})
		wins := make(chan bool, attempts)
		var wg sync.WaitGroup

		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				<-start
				if n%2 == 0 {
					wins <- p.Complete(value.NewNumber(float64(n)))
				} else {
					wins <- p.Fail(errors.ErrNativeFailure)
				}
			}(i)
		}

		close(start)
		wg.Wait()
		close(wins)

		winners := 0
		for won := range wins {
			if won {
				winners++
			}
		}
		require.Equal(t, 1, winners, "round %d: completion slot must be satisfied exactly once", round)

		select {
		case <-p.Done():
		default:
			t.Fatalf("round %d: winner did not deliver a completion", round)
		}
		select {
		case extra := <-p.Done():
			t.Fatalf("round %d: second completion delivered: %+v", round, extra)
		default:
		}
	}
}

// TestPendingRequest_TimerArmRace arms the timeout timer while completions
// race it. Whatever the interleaving, the request resolves exactly once.
func TestPendingRequest_TimerArmRace(t *testing.T) {
	for round := 0; round < 50; round++ {
		p := newPendingRequest(testInvocation(fmt.Sprintf("arm-%d", round)))

		timer := time.AfterFunc(time.Duration(round%3)*time.Millisecond, func() {
			p.Fail(errors.ErrTimeout)
		})

		done := make(chan struct{})
		go func() {
			p.Complete(value.Null())
			close(done)
		}()
		p.armTimer(timer)
		<-done

		c := <-p.Done()
		assert.Equal(t, p.ID(), c.RequestID)
		select {
		case extra := <-p.Done():
			t.Fatalf("round %d: second completion delivered: %+v", round, extra)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPendingRequest_Accessors(t *testing.T) {
	p := newPendingRequest(testInvocation("req-4"))

	assert.Equal(t, "req-4", p.ID())
	assert.Equal(t, "runtime-1", p.CallerID())
	assert.Equal(t, "v1", p.Namespace())
	assert.Equal(t, "Settings", p.Module())
	assert.Equal(t, "get", p.Method())
	assert.GreaterOrEqual(t, p.Age(), time.Duration(0))
}

func TestNewRequestID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewRequestID()
		require.NotEmpty(t, id)
		require.False(t, seen[id], "request id %q issued twice", id)
		seen[id] = true
	}
}

func TestCompletion_Status(t *testing.T) {
	tests := []struct {
		name string
		c    Completion
		want string
	}{
		{name: "result", c: Completion{RequestID: "1", Result: value.NewBool(true)}, want: "ok"},
		{name: "generic error", c: Completion{RequestID: "2", Err: &errors.WireError{Kind: "native_failure", Message: "boom"}}, want: "error"},
		{name: "timeout", c: Completion{RequestID: "3", Err: &errors.WireError{Kind: "timeout", Message: "too slow"}}, want: "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.Status())
		})
	}
}
