package orchestrator

import (
	"context"
	"log"
	"time"

	"github.com/sweeney/letterbox/internal/logic"
)

// Every runs fn, then sleeps for whatever is left of period, until ctx is
// done or fn fails. A slow fn shortens the following sleep, so the loop
// keeps its nominal rate instead of drifting.
func Every(ctx context.Context, period time.Duration, fn func(context.Context) error) error {
	return every(ctx, period, time.Now, sleepCtx, fn)
}

func every(ctx context.Context, period time.Duration, now func() time.Time, sleep func(context.Context, time.Duration) error, fn func(context.Context) error) error {
	for {
		start := now()
		if err := fn(ctx); err != nil {
			return err
		}
		if err := sleep(ctx, logic.Remainder(period, now().Sub(start))); err != nil {
			return err
		}
	}
}

// Supervise calls boot until ctx is done. Every return from boot while
// ctx is live is a fault: onRestart (if set) is told about it once, and
// after delay a fresh boot starts.
func Supervise(ctx context.Context, boot func(context.Context) error, delay time.Duration, onRestart func(err error)) error {
	return supervise(ctx, boot, delay, sleepCtx, onRestart)
}

func supervise(ctx context.Context, boot func(context.Context) error, delay time.Duration, sleep func(context.Context, time.Duration) error, onRestart func(err error)) error {
	for n := 1; ; n++ {
		err := boot(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			err = ErrStopped
		}
		log.Printf("supervisor: boot %d failed: %v; restarting in %v", n, err, delay)
		if onRestart != nil {
			onRestart(err)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
