// Package clock abstracts wall time and blocking waits so polling loops
// can be tested without sleeping.
package clock

import (
	"context"
	"time"
)

// Clock abstracts wall time and blocking waits. Sleep blocks the calling
// goroutine; it returns early only when ctx is done.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
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

// Real returns the wall clock.
func Real() Clock { return realClock{} }
