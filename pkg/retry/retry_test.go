package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNotYet = errors.New("not yet")

func fast(attempts int) Policy {
	return Policy{MaxAttempts: attempts, Backoff: time.Millisecond}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	n, err := Do(context.Background(), fast(3), func(ctx context.Context, attempt int) error {
		if attempt < 3 {
			return errNotYet
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDo_ExhaustsAndReturnsLastError(t *testing.T) {
	n, err := Do(context.Background(), fast(4), func(ctx context.Context, attempt int) error {
		return errNotYet
	})
	assert.ErrorIs(t, err, errNotYet)
	assert.Equal(t, 4, n)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	denied := errors.New("denied")
	n, err := Do(context.Background(), fast(5), func(ctx context.Context, attempt int) error {
		return Permanent(denied)
	})
	assert.Same(t, denied, err)
	assert.Equal(t, 1, n)
}

func TestDo_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	n, err := Do(ctx, Policy{MaxAttempts: 10, Backoff: 20 * time.Millisecond}, func(ctx context.Context, attempt int) error {
		if attempt == 2 {
			cancel()
		}
		return errNotYet
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, n)
}

func TestDo_FixedSpacingBound(t *testing.T) {
	start := time.Now()
	_, _ = Do(context.Background(), Policy{MaxAttempts: 3, Backoff: 30 * time.Millisecond}, func(ctx context.Context, attempt int) error {
		return errNotYet
	})
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestNormalize(t *testing.T) {
	p := Policy{}.Normalize()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, p.Backoff)

	exp := Policy{Backoff: 10 * time.Millisecond, Multiplier: 2}.Normalize()
	assert.Equal(t, 100*time.Millisecond, exp.MaxBackoff)
}
