package resilience

import (
	"context"
	"time"
)

// Backoff yields exponentially growing delays between reconnect attempts,
// capped at Max. It is owned by a single retry loop.
type Backoff struct {
	Min time.Duration
	Max time.Duration

	attempt int
}

// NewBackoff creates a backoff starting at min and capped at max.
func NewBackoff(min, max time.Duration) *Backoff {
	if min <= 0 {
		min = time.Second
	}
	if max < min {
		max = min
	}
	return &Backoff{Min: min, Max: max}
}

// Next returns the delay before the next attempt and advances.
func (b *Backoff) Next() time.Duration {
	d := b.Min
	for i := 0; i < b.attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	b.attempt++
	return d
}

// Attempts returns how many delays were handed out since the last Reset.
func (b *Backoff) Attempts() int {
	return b.attempt
}

// Reset starts over from Min after a successful attempt.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Sleep waits for d or until ctx ends, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
