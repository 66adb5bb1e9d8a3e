package backend

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// throttle ensures a minimum interval between successive polls, so a burst
// of Follow calls cannot hammer the server.
type throttle struct {
	limiter *rate.Limiter
}

func newThrottle(interval time.Duration) *throttle {
	if interval <= 0 {
		return &throttle{}
	}
	return &throttle{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

func (t *throttle) wait(ctx context.Context) error {
	if t == nil || t.limiter == nil {
		return nil
	}
	return t.limiter.Wait(ctx)
}
