// internal/artifact/heartbeat.go
package artifact

import (
	"context"
	"errors"
	"time"

	"match-pipeline/internal/common/logger"
)

// DefaultHeartbeat is well inside the sweeper's default stuck_after.
const DefaultHeartbeat = time.Minute

// Toucher refreshes an in-flight record. *Store implements it.
type Toucher interface {
	Touch(ctx context.Context, key Key, generation int64) error
}

// KeepAlive touches the record once, then every interval until stop is called
// or ctx ends, so a job that is slow or parked on the rate limiter is not
// mistaken for a dead one. Touch failures are logged and never fail the job.
// Once the generation has moved on the heartbeat stops by itself.
func KeepAlive(ctx context.Context, t Toucher, key Key, generation int64, interval time.Duration, log logger.Logger) (stop func()) {
	if interval <= 0 {
		interval = DefaultHeartbeat
	}
	fields := map[string]interface{}{"artifact": key.String(), "generation": generation}

	touch := func(ctx context.Context) bool {
		err := t.Touch(ctx, key, generation)
		switch {
		case err == nil:
			return true
		case errors.Is(err, ErrStaleTransition):
			log.Debug("artifact no longer in flight, heartbeat stopped", fields)
			return false
		case ctx.Err() != nil:
			return false
		default:
			log.Warn("artifact heartbeat failed", map[string]interface{}{
				"artifact":   key.String(),
				"generation": generation,
				"error":      err.Error(),
			})
			return true
		}
	}

	if !touch(ctx) {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !touch(ctx) {
					return
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
