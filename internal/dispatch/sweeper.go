// internal/dispatch/sweeper.go
package dispatch

import (
	"context"
	"errors"
	"time"

	"match-pipeline/internal/artifact"
	"match-pipeline/internal/common/logger"
)

// StuckReason is stored on artifacts failed by the sweeper.
const StuckReason = "generation did not finish in time"

// ArtifactStore is the part of artifact.Store the sweeper needs.
type ArtifactStore interface {
	ListStuck(ctx context.Context, cutoff time.Time, limit int) ([]*artifact.Record, error)
	Fail(ctx context.Context, key artifact.Key, generation int64, reason string) error
}

// Backlog reports whether jobs that could still advance artifacts of kind are
// waiting in their queue.
type Backlog func(ctx context.Context, kind artifact.Kind) (bool, error)

type SweeperConfig struct {
	Interval   time.Duration
	StuckAfter time.Duration
	BatchSize  int
}

// Sweeper fails artifacts that stayed in flight past StuckAfter, which
// happens when a process dies between claiming and enqueueing, so they can be
// requested again. Running jobs keep their artifact fresh with a heartbeat;
// artifacts whose queue still holds a backlog are left for a later sweep.
type Sweeper struct {
	store   ArtifactStore
	cfg     SweeperConfig
	backlog Backlog
	logger  logger.Logger
	now     func() time.Time
}

func NewSweeper(store ArtifactStore, cfg SweeperConfig, log logger.Logger) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Sweeper{
		store:  store,
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "sweeper"}),
		now:    time.Now,
	}
}

// WithBacklog makes the sweeper skip kinds whose queue is not drained yet.
func (s *Sweeper) WithBacklog(b Backlog) *Sweeper {
	s.backlog = b
	return s
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("sweep failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}

// RunOnce fails every stuck artifact found and returns how many it failed.
// Artifacts that moved on concurrently are skipped.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.StuckAfter)
	stuck, err := s.store.ListStuck(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	waiting := make(map[artifact.Kind]bool)
	failed := 0
	for _, rec := range stuck {
		if s.queued(ctx, rec.Kind, waiting) {
			continue
		}
		err := s.store.Fail(ctx, rec.Key, rec.Generation, StuckReason)
		switch {
		case errors.Is(err, artifact.ErrStaleTransition):
			continue
		case err != nil:
			s.logger.Error("failed to fail stuck artifact", map[string]interface{}{
				"artifact": rec.Key.String(),
				"error":    err.Error(),
			})
			continue
		}
		failed++
		s.logger.Warn("stuck artifact failed", map[string]interface{}{
			"artifact":   rec.Key.String(),
			"generation": rec.Generation,
			"updatedAt":  rec.UpdatedAt,
		})
	}
	return failed, nil
}

// queued memoizes the backlog check per kind for one sweep. A failed check
// counts as a backlog: failing a job that is only queued cannot be undone.
func (s *Sweeper) queued(ctx context.Context, kind artifact.Kind, seen map[artifact.Kind]bool) bool {
	if s.backlog == nil {
		return false
	}
	if v, ok := seen[kind]; ok {
		return v
	}
	busy, err := s.backlog(ctx, kind)
	if err != nil {
		s.logger.Warn("queue backlog unknown, not sweeping kind", map[string]interface{}{
			"kind":  string(kind),
			"error": err.Error(),
		})
		busy = true
	} else if busy {
		s.logger.Debug("queue backlog pending, not sweeping kind", map[string]interface{}{
			"kind": string(kind),
		})
	}
	seen[kind] = busy
	return busy
}
