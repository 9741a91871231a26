package wait

import (
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/persona-e2e/internal/errs"
)

func TestUntil_ImmediateSuccessCallsOnce(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	start := time.Now()
	err := Until(time.Second, "ready", func() (bool, error) {
		calls.Add(1)
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Less(t, time.Since(start), DefaultInterval)
}

func TestUntil_EventualSuccess(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	err := Until(5*time.Second, "third poll", func() (bool, error) {
		return calls.Add(1) >= 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestUntil_TimeoutCarriesDescription(t *testing.T) {
	t.Parallel()
	start := time.Now()
	err := Until(300*time.Millisecond, "the sign-in button", func() (bool, error) { return false, nil })
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Timeout))
	assert.Contains(t, err.Error(), "the sign-in button")
	assert.Contains(t, err.Error(), "300ms")
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, 300*time.Millisecond+DefaultInterval+100*time.Millisecond)
}

func TestUntil_ConditionErrorPropagatesUnchanged(t *testing.T) {
	t.Parallel()
	boom := errors.New("stale element")
	var calls atomic.Int32
	err := Until(time.Second, "anything", func() (bool, error) {
		calls.Add(1)
		return false, boom
	})
	assert.Same(t, boom, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, errs.Is(err, errs.Timeout))
}

func TestUntil_Reentrant(t *testing.T) {
	t.Parallel()
	var outer atomic.Int32
	err := Until(2*time.Second, "outer", func() (bool, error) {
		var inner atomic.Int32
		if err := Until(time.Second, "inner", func() (bool, error) {
			return inner.Add(1) >= 2, nil
		}); err != nil {
			return false, err
		}
		return outer.Add(1) >= 2, nil
	})
	require.NoError(t, err)
}

func TestWaiter_ForUsesIntervalAndTimeout(t *testing.T) {
	t.Parallel()
	w := New(10*time.Millisecond, 100*time.Millisecond)
	var calls atomic.Int32
	err := w.For("never", func() (bool, error) {
		calls.Add(1)
		return false, nil
	})
	require.True(t, errs.Is(err, errs.Timeout))
	assert.GreaterOrEqual(t, calls.Load(), int32(5))
}

func TestNew_DefaultsInterval(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DefaultInterval, New(0, time.Second).Interval)
}

func TestWaiter_TimeoutMessageProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		desc := rapid.StringMatching(`[a-z][a-z ]{0,30}`).Draw(rt, "desc")
		w := New(time.Millisecond, time.Duration(rapid.IntRange(1, 5).Draw(rt, "ms"))*time.Millisecond)
		err := w.For(desc, func() (bool, error) { return false, nil })
		if !errs.Is(err, errs.Timeout) {
			rt.Fatalf("expected timeout, got %v", err)
		}
		if !strings.Contains(err.Error(), desc) {
			rt.Fatalf("error %q does not mention %q", err.Error(), desc)
		}
	})
}
