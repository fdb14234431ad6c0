// Package retry implements retrying HTTP delivery for result callbacks.
package retry

import (
	"errors"
	"math"
	"math/rand"
	"time"

	"golang.org/x/exp/constraints"
)

// Backoff decides how long to sleep before the given attempt and whether the
// attempt budget is exhausted.
type Backoff interface {
	Next(attempt uint) (time.Duration, bool)
}

type none struct{}

// NewNone returns a backoff that never allows a retry.
func NewNone() *none {
	return &none{}
}

func (n *none) Next(attempt uint) (time.Duration, bool) {
	return 0, true
}

// Jitter maps an upper bound to a randomized delay.
type Jitter func(int64) int64

type exponential struct {
	base        time.Duration
	max         time.Duration
	maxAttempts uint
	jitter      Jitter
}

// NewExponential returns a backoff of base*2^attempt capped at max, with full
// jitter. A nil jitter uses rand.Int63n.
func NewExponential(base time.Duration, max time.Duration, maxAttempts uint, jitter Jitter) *exponential {
	return &exponential{
		base:        base,
		max:         max,
		maxAttempts: maxAttempts,
		jitter:      jitter,
	}
}

func (e *exponential) Next(attempt uint) (time.Duration, bool) {
	jitter := e.getJitter()
	if attempt >= e.maxAttempts {
		return 0, true
	}

	// 1<<attempt overflows int64 from 63 on.
	if attempt >= 63 {
		return time.Duration(jitter(minOf(math.MaxInt64, int64(e.max)))), false
	}

	delay, err := checkedMulInt64(1<<attempt, int64(e.base))
	if err != nil {
		return time.Duration(jitter(minOf(math.MaxInt64, int64(e.max)))), false
	}
	return time.Duration(jitter(minOf(delay, int64(e.max)))), false
}

func (e *exponential) getJitter() Jitter {
	if e.jitter == nil {
		return rand.Int63n
	}
	return e.jitter
}

func minOf[T constraints.Ordered](l T, r T) T {
	if l > r {
		return r
	}
	return l
}

var OverflowError = errors.New("overflow")

func checkedMulInt64(l int64, r int64) (int64, error) {
	if l == 0 || r == 0 {
		return l * r, nil
	}
	if l > math.MaxInt64/r {
		return 0, OverflowError
	}
	return l * r, nil
}
