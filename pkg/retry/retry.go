// Package retry holds the single bounded-backoff loop used for
// eventually-consistent reads and for dialing the store.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retry loop. A zero Multiplier means fixed spacing.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
	Multiplier  float64
	MaxBackoff  time.Duration
}

// Default is the read-your-own-write policy: three attempts, 500ms apart.
func Default() Policy {
	return Policy{MaxAttempts: 3, Backoff: 500 * time.Millisecond}
}

// Normalize fills unset fields from Default.
func (p Policy) Normalize() Policy {
	d := Default()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.Backoff <= 0 {
		p.Backoff = d.Backoff
	}
	if p.Multiplier > 0 && p.MaxBackoff <= 0 {
		p.MaxBackoff = p.Backoff * 10
	}
	return p
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	if p.Multiplier > 1 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.Backoff
		eb.Multiplier = p.Multiplier
		eb.MaxInterval = p.MaxBackoff
		eb.RandomizationFactor = 0
		eb.MaxElapsedTime = 0
		b = eb
	} else {
		b = backoff.NewConstantBackOff(p.Backoff)
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx)
}

// Permanent marks err as not worth retrying; Do returns it unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Op is one attempt. attempt starts at 1.
type Op func(ctx context.Context, attempt int) error

// Do runs op until it returns nil, returns a Permanent error, the attempts
// run out, or ctx is done. It returns the last error seen and the number of
// attempts made.
func Do(ctx context.Context, p Policy, op Op) (int, error) {
	p = p.Normalize()
	attempts := 0
	err := backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		return op(ctx, attempts)
	}, p.backOff(ctx))

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	return attempts, err
}
