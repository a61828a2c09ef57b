// Package backoff computes retry delays for failed job attempts.
package backoff

import (
	"fmt"
	"math"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry n (1-indexed).
	Delay(retry int) time.Duration
}

// Constant always waits the same interval.
type Constant struct {
	Interval time.Duration
}

func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Exponential doubles the delay each retry, capped at Max when Max > 0.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

func (e *Exponential) Delay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	d := float64(e.Initial) * math.Pow(2, float64(retry-1))
	if e.Max > 0 && d > float64(e.Max) {
		return e.Max
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// FromName builds the strategy selected by RETRY_STRATEGY.
func FromName(name string, initial, maxDelay time.Duration) (Strategy, error) {
	switch name {
	case "", "constant":
		return NewConstant(initial), nil
	case "exponential":
		return NewExponential(initial, maxDelay), nil
	default:
		return nil, fmt.Errorf("unknown retry strategy %q", name)
	}
}
