// internal/dispatch/dispatcher.go
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"match-pipeline/internal/common/config"
	apperrors "match-pipeline/internal/common/errors"
	"match-pipeline/internal/common/logger"
	"match-pipeline/internal/common/metrics"
	"match-pipeline/internal/common/notify"
	"match-pipeline/internal/common/observability"
	"match-pipeline/internal/queue"
)

// Source is the queue side of a dispatcher. *queue.Consumer implements it.
type Source interface {
	Queue() string
	Read(ctx context.Context, count int64) ([]*queue.Job, error)
	Ack(ctx context.Context, job *queue.Job) error
	Retry(ctx context.Context, job *queue.Job, cause error) (time.Duration, error)
	DeadLetter(ctx context.Context, job *queue.Job, cause error) error
	PromoteDue(ctx context.Context, limit int) (int, error)
	Stalled(ctx context.Context, minIdle time.Duration, count int64) ([]*queue.Job, error)
}

type Config struct {
	Concurrency     int
	LockDuration    time.Duration
	MaxStalled      int
	ReclaimInterval time.Duration
	// ReadErrorBackoff is the pause after a failed read before trying again.
	ReadErrorBackoff time.Duration
}

func ConfigFrom(q config.QueueConfig) Config {
	return Config{
		Concurrency:      q.Concurrency,
		LockDuration:     config.GetDuration(q.LockDuration),
		MaxStalled:       q.MaxStalled,
		ReclaimInterval:  config.GetDuration(q.ReclaimInterval),
		ReadErrorBackoff: time.Second,
	}
}

// Deps are the collaborators shared by every dispatcher of a process.
type Deps struct {
	Logger        logger.Logger
	Notifier      notify.Notifier
	Observability *observability.Observability
}

// Dispatcher runs the jobs of one queue with bounded concurrency.
type Dispatcher struct {
	src      Source
	table    *Table
	cfg      Config
	sem      chan struct{}
	wg       sync.WaitGroup
	errs     *apperrors.ErrorHandler
	notifier notify.Notifier
	obs      *observability.Observability
	logger   logger.Logger
}

func New(src Source, table *Table, cfg Config, deps Deps) *Dispatcher {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.LockDuration <= 0 {
		cfg.LockDuration = 2 * time.Minute
	}
	if cfg.ReadErrorBackoff <= 0 {
		cfg.ReadErrorBackoff = time.Second
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Noop{}
	}

	log := deps.Logger.WithFields(map[string]interface{}{"queue": src.Queue()})
	return &Dispatcher{
		src:      src,
		table:    table,
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.Concurrency),
		errs:     apperrors.NewErrorHandler(log),
		notifier: deps.Notifier,
		obs:      deps.Observability,
		logger:   log,
	}
}

func (d *Dispatcher) Queue() string { return d.src.Queue() }

// Run reads and dispatches jobs until ctx is cancelled, then waits for the
// jobs already running. Running jobs are not cancelled with ctx; each is
// bounded by the lock duration instead.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher started", map[string]interface{}{
		"concurrency":  d.cfg.Concurrency,
		"lockDuration": d.cfg.LockDuration.String(),
		"kinds":        d.table.Kinds(),
	})
	defer d.logger.Info("dispatcher stopped", nil)

	for {
		if !d.acquire(ctx) {
			d.wg.Wait()
			return nil
		}

		jobs, err := d.src.Read(ctx, 1)
		if err != nil {
			d.release()
			if ctx.Err() != nil {
				d.wg.Wait()
				return nil
			}
			d.logger.Error("failed to read jobs", map[string]interface{}{"error": err.Error()})
			select {
			case <-ctx.Done():
			case <-time.After(d.cfg.ReadErrorBackoff):
			}
			continue
		}
		if len(jobs) == 0 {
			d.release()
			continue
		}

		d.spawn(ctx, jobs[0])
	}
}

func (d *Dispatcher) acquire(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case d.sem <- struct{}{}:
		return true
	}
}

func (d *Dispatcher) release() { <-d.sem }

// spawn runs job on a held slot.
func (d *Dispatcher) spawn(ctx context.Context, job *queue.Job) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.release()
		d.Process(context.WithoutCancel(ctx), job)
	}()
}

// Submit runs job under the concurrency bound, waiting for a free slot. It
// reports false when ctx ended first.
func (d *Dispatcher) Submit(ctx context.Context, job *queue.Job) bool {
	if !d.acquire(ctx) {
		return false
	}
	d.spawn(ctx, job)
	return true
}

// Wait blocks until every running job has finished.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Process runs one job to a settled outcome: acked, scheduled for retry, or
// dead-lettered.
func (d *Dispatcher) Process(ctx context.Context, job *queue.Job) {
	queueName := d.src.Queue()
	log := d.logger.WithFields(jobFields(job))

	handler, ok := d.table.Lookup(job.Kind)
	if !ok {
		err := apperrors.NewUnknownJobKindError(queueName, job.Kind)
		log.Error("no handler for job kind", map[string]interface{}{"error": err.Error()})
		d.fail(ctx, job, nil, err)
		return
	}

	d.emit(ctx, job, notify.EventActive, nil)
	log.Info("job active", nil)

	metrics.JobsActive.WithLabelValues(queueName).Inc()
	start := time.Now()

	jobCtx, cancel := context.WithTimeout(ctx, d.cfg.LockDuration)
	err := d.safeHandle(jobCtx, handler, job)
	cancel()

	elapsed := time.Since(start)
	metrics.JobsActive.WithLabelValues(queueName).Dec()
	metrics.JobDuration.WithLabelValues(queueName, job.Kind).Observe(elapsed.Seconds())

	if err == nil {
		if ackErr := d.src.Ack(ctx, job); ackErr != nil {
			log.Error("failed to ack completed job", map[string]interface{}{"error": ackErr.Error()})
		}
		metrics.JobsCompleted.WithLabelValues(queueName, job.Kind).Inc()
		d.obs.RecordJobProcessed(ctx, queueName, "completed")
		d.obs.RecordJobDuration(ctx, queueName, elapsed, "completed")
		d.emit(ctx, job, notify.EventCompleted, nil)
		log.Info("job completed", map[string]interface{}{"durationMs": elapsed.Milliseconds()})
		return
	}

	d.obs.RecordJobDuration(ctx, queueName, elapsed, "failed")

	decision := d.errs.Decide(apperrors.JobRef{
		ID:          job.ID,
		Queue:       queueName,
		Kind:        job.Kind,
		BusinessID:  BusinessID(job.Payload),
		Attempt:     job.Attempt,
		MaxAttempts: job.MaxAttempts,
	}, err)

	if decision.Outcome == apperrors.OutcomeRetry {
		delay, retryErr := d.src.Retry(ctx, job, err)
		if retryErr != nil {
			// the entry stays pending and is reclaimed once its lock expires
			log.Error("failed to schedule retry", map[string]interface{}{"error": retryErr.Error()})
			return
		}
		metrics.JobsRetried.WithLabelValues(queueName, job.Kind).Inc()
		d.obs.RecordJobProcessed(ctx, queueName, "retrying")
		d.emit(ctx, job, notify.EventRetrying, err)
		log.Info("job scheduled for retry", map[string]interface{}{
			"nextAttempt": job.Attempt + 1,
			"delayMs":     delay.Milliseconds(),
		})
		return
	}

	d.fail(ctx, job, handler, err)
}

// fail settles job terminally and lets its handler record the failure.
func (d *Dispatcher) fail(ctx context.Context, job *queue.Job, handler Handler, cause error) {
	queueName := d.src.Queue()
	log := d.logger.WithFields(jobFields(job))

	if err := d.src.DeadLetter(ctx, job, cause); err != nil {
		log.Error("failed to dead-letter job", map[string]interface{}{"error": err.Error()})
	}

	code := string(apperrors.CodeOf(cause))
	metrics.JobsFailed.WithLabelValues(queueName, job.Kind, code).Inc()
	d.obs.RecordJobProcessed(ctx, queueName, "failed")

	if recorder, ok := handler.(FailureRecorder); ok {
		recCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := recorder.RecordFailure(recCtx, job, cause); err != nil {
			log.Error("failed to record job failure", map[string]interface{}{"error": err.Error()})
		}
		cancel()
	}

	d.emit(ctx, job, notify.EventFailed, cause)
}

func (d *Dispatcher) safeHandle(ctx context.Context, h Handler, job *queue.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panicked", map[string]interface{}{
				"jobId": job.ID,
				"kind":  job.Kind,
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			})
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, job)
}

func (d *Dispatcher) emit(ctx context.Context, job *queue.Job, typ notify.EventType, cause error) {
	event := notify.Event{
		Type:       typ,
		Queue:      d.src.Queue(),
		Kind:       job.Kind,
		JobID:      job.ID,
		BusinessID: BusinessID(job.Payload),
		Attempt:    job.Attempt,
		At:         time.Now().UTC(),
	}
	if cause != nil {
		event.ErrorCode = string(apperrors.CodeOf(cause))
		event.Error = cause.Error()
	}
	if err := d.notifier.Notify(ctx, event); err != nil {
		d.logger.Warn("failed to publish lifecycle event", map[string]interface{}{
			"event": string(typ),
			"jobId": job.ID,
			"error": err.Error(),
		})
	}
}

func jobFields(job *queue.Job) map[string]interface{} {
	return map[string]interface{}{
		"jobId":       job.ID,
		"kind":        job.Kind,
		"attempt":     job.Attempt,
		"maxAttempts": job.MaxAttempts,
		"businessId":  BusinessID(job.Payload),
	}
}

var businessKeys = []string{"applicationId", "jobId", "candidateId", "userId", "profileId"}

// BusinessID renders the identifiers found in a job payload, such as
// "jobId=j1,candidateId=c1". Unknown or malformed payloads give "".
func BusinessID(payload json.RawMessage) string {
	var fields map[string]interface{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return ""
	}
	parts := make([]string, 0, 2)
	for _, k := range businessKeys {
		if v, ok := fields[k].(string); ok && v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	return strings.Join(parts, ",")
}
