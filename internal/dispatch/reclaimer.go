// internal/dispatch/reclaimer.go
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"match-pipeline/internal/common/logger"
	"match-pipeline/internal/common/metrics"
	"match-pipeline/internal/common/notify"
)

// ErrStalledTooOften fails a job whose deliveries stalled more than MaxStalled times.
var ErrStalledTooOften = errors.New("job stalled more than allowable limit")

const (
	promoteBatch = 100
	stalledBatch = 50
)

// Reclaimer periodically promotes due retries of a queue and recovers entries
// whose worker died before settling them.
type Reclaimer struct {
	d      *Dispatcher
	logger logger.Logger
}

func NewReclaimer(d *Dispatcher, log logger.Logger) *Reclaimer {
	return &Reclaimer{
		d:      d,
		logger: log.WithFields(map[string]interface{}{"queue": d.Queue(), "component": "reclaimer"}),
	}
}

// Run ticks every ReclaimInterval until ctx is cancelled.
func (r *Reclaimer) Run(ctx context.Context) {
	interval := r.d.cfg.ReclaimInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error("reclaim cycle failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}

// RunOnce performs one promote and reclaim cycle. Entries idle for longer
// than the lock duration are dispatched again, or failed once they have
// stalled more than MaxStalled times.
func (r *Reclaimer) RunOnce(ctx context.Context) error {
	moved, err := r.d.src.PromoteDue(ctx, promoteBatch)
	if err != nil {
		return fmt.Errorf("promote delayed jobs: %w", err)
	}
	if moved > 0 {
		r.logger.Debug("promoted delayed jobs", map[string]interface{}{"count": moved})
	}

	stalled, err := r.d.src.Stalled(ctx, r.d.cfg.LockDuration, stalledBatch)
	if err != nil {
		return fmt.Errorf("claim stalled jobs: %w", err)
	}

	for _, job := range stalled {
		metrics.JobsStalled.WithLabelValues(r.d.Queue(), job.Kind).Inc()
		r.d.emit(ctx, job, notify.EventStalled, nil)
		r.logger.Warn("job stalled", map[string]interface{}{
			"jobId":      job.ID,
			"kind":       job.Kind,
			"deliveries": job.Deliveries,
			"maxStalled": r.d.cfg.MaxStalled,
		})

		if job.Deliveries > int64(r.d.cfg.MaxStalled) {
			handler, _ := r.d.table.Lookup(job.Kind)
			r.d.fail(ctx, job, handler, ErrStalledTooOften)
			continue
		}
		if !r.d.Submit(ctx, job) {
			return ctx.Err()
		}
	}
	return nil
}
