package worker

import (
	"context"
	"math/rand"
	"time"
)

// Pacer spaces out page loads by a base delay plus uniform jitter
type Pacer struct {
	base   time.Duration
	jitter time.Duration
}

// NewPacer creates a pacer; zero values disable waiting
func NewPacer(base, jitter time.Duration) *Pacer {
	return &Pacer{base: base, jitter: jitter}
}

// Next returns the next delay in [base, base+jitter)
func (p *Pacer) Next() time.Duration {
	if p == nil {
		return 0
	}
	d := p.base
	if p.jitter > 0 {
		d += time.Duration(rand.Int63n(int64(p.jitter)))
	}
	return d
}

// Wait sleeps for the next delay or until ctx is done
func (p *Pacer) Wait(ctx context.Context) error {
	return sleep(ctx, p.Next())
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
