// internal/dispatch/dispatch_test.go
package dispatch

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"match-pipeline/internal/artifact"
	apperrors "match-pipeline/internal/common/errors"
	"match-pipeline/internal/common/logger"
	"match-pipeline/internal/common/notify"
	"match-pipeline/internal/queue"
)

// ==========================
// Fakes
// ==========================

type fakeSource struct {
	mu       sync.Mutex
	ready    []*queue.Job
	stalled  []*queue.Job
	acked    []string
	retried  []string
	dead     []string
	deadErrs []error
	promoted int
}

func (f *fakeSource) Queue() string { return "employer" }

func (f *fakeSource) Read(ctx context.Context, count int64) ([]*queue.Job, error) {
	f.mu.Lock()
	if len(f.ready) > 0 {
		job := f.ready[0]
		f.ready = f.ready[1:]
		f.mu.Unlock()
		return []*queue.Job{job}, nil
	}
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Millisecond):
		return nil, nil
	}
}

func (f *fakeSource) Ack(_ context.Context, job *queue.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, job.ID)
	return nil
}

func (f *fakeSource) Retry(_ context.Context, job *queue.Job, _ error) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retried = append(f.retried, job.ID)
	return job.Backoff.DelayFor(job.Attempt), nil
}

func (f *fakeSource) DeadLetter(_ context.Context, job *queue.Job, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dead = append(f.dead, job.ID)
	f.deadErrs = append(f.deadErrs, cause)
	return nil
}

func (f *fakeSource) PromoteDue(context.Context, int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.promoted++
	return 0, nil
}

func (f *fakeSource) Stalled(context.Context, time.Duration, int64) ([]*queue.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.stalled
	f.stalled = nil
	return out, nil
}

func (f *fakeSource) snapshot() (acked, retried, dead []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.acked...), append([]string(nil), f.retried...), append([]string(nil), f.dead...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, e notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *recordingNotifier) types() []notify.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.EventType, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

// artifactHandler returns a fixed error and records failures like an
// artifact-owning handler.
type artifactHandler struct {
	err      error
	calls    int32
	failures []error
	mu       sync.Mutex
}

func (h *artifactHandler) Handle(context.Context, *queue.Job) error {
	atomic.AddInt32(&h.calls, 1)
	return h.err
}

func (h *artifactHandler) RecordFailure(_ context.Context, _ *queue.Job, cause error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, cause)
	return nil
}

func newJob(id, kind string, attempt, max int) *queue.Job {
	payload, _ := json.Marshal(map[string]string{"jobId": "job-1", "candidateId": "cand-" + id})
	return &queue.Job{
		ID:          id,
		Queue:       "employer",
		Kind:        kind,
		Payload:     payload,
		Attempt:     attempt,
		MaxAttempts: max,
		Backoff:     queue.Backoff{Type: queue.BackoffFixed, Delay: 5 * time.Second},
	}
}

func newDispatcher(t *testing.T, src Source, handlers map[string]Handler, cfg Config) (*Dispatcher, *recordingNotifier) {
	t.Helper()
	kinds := make([]string, 0, len(handlers))
	for k := range handlers {
		kinds = append(kinds, k)
	}
	table, err := NewTable("employer", handlers, kinds)
	require.NoError(t, err)

	n := &recordingNotifier{}
	d := New(src, table, cfg, Deps{Logger: logger.NewTestLogger(t), Notifier: n})
	return d, n
}

// ==========================
// Table
// ==========================

func TestNewTable(t *testing.T) {
	noop := HandlerFunc(func(context.Context, *queue.Job) error { return nil })

	table, err := NewTable("employer", map[string]Handler{"a": noop, "b": noop}, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, table.Kinds())
	_, ok := table.Lookup("c")
	assert.False(t, ok)

	_, err = NewTable("employer", map[string]Handler{"a": noop}, []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kinds without handler [b]")

	_, err = NewTable("employer", map[string]Handler{"a": noop, "x": noop}, []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handlers without kind [x]")
}

// ==========================
// Process outcomes
// ==========================

func TestProcess_Success(t *testing.T) {
	src := &fakeSource{}
	h := &artifactHandler{}
	d, n := newDispatcher(t, src, map[string]Handler{"ci-question-generate": h}, Config{Concurrency: 3})

	d.Process(context.Background(), newJob("1", "ci-question-generate", 1, 3))

	acked, retried, dead := src.snapshot()
	assert.Equal(t, []string{"1"}, acked)
	assert.Empty(t, retried)
	assert.Empty(t, dead)
	assert.Equal(t, []notify.EventType{notify.EventActive, notify.EventCompleted}, n.types())
	assert.Equal(t, "jobId=job-1,candidateId=cand-1", n.events[0].BusinessID)
}

func TestProcess_RetryableWithAttemptsLeft(t *testing.T) {
	src := &fakeSource{}
	h := &artifactHandler{err: apperrors.NewGenerationFailedError(stderrors.New("503"))}
	d, n := newDispatcher(t, src, map[string]Handler{"ci-question-generate": h}, Config{})

	d.Process(context.Background(), newJob("1", "ci-question-generate", 1, 3))

	_, retried, dead := src.snapshot()
	assert.Equal(t, []string{"1"}, retried)
	assert.Empty(t, dead)
	assert.Empty(t, h.failures, "artifact stays in flight between attempts")
	assert.Equal(t, []notify.EventType{notify.EventActive, notify.EventRetrying}, n.types())
}

func TestProcess_TerminalFailureRecordsOnce(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		attempt int
	}{
		{"retryable on last attempt", apperrors.NewResponseInvalidError("bad json"), 3},
		{"non-retryable on first attempt", apperrors.NewEntityNotFoundError("job", "job-1"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{}
			h := &artifactHandler{err: tt.err}
			d, n := newDispatcher(t, src, map[string]Handler{"ci-question-generate": h}, Config{})

			d.Process(context.Background(), newJob("1", "ci-question-generate", tt.attempt, 3))

			_, retried, dead := src.snapshot()
			assert.Empty(t, retried)
			assert.Equal(t, []string{"1"}, dead)
			require.Len(t, h.failures, 1)
			assert.Equal(t, tt.err, h.failures[0])

			types := n.types()
			assert.Equal(t, notify.EventFailed, types[len(types)-1])
			assert.Equal(t, string(apperrors.CodeOf(tt.err)), n.events[len(n.events)-1].ErrorCode)
		})
	}
}

func TestProcess_UnknownKindIsDeadLettered(t *testing.T) {
	src := &fakeSource{}
	d, n := newDispatcher(t, src, map[string]Handler{"ci-question-generate": &artifactHandler{}}, Config{})

	d.Process(context.Background(), newJob("1", "bogus", 1, 3))

	_, _, dead := src.snapshot()
	assert.Equal(t, []string{"1"}, dead)
	assert.Equal(t, apperrors.ErrCodeUnknownJobKind, apperrors.CodeOf(src.deadErrs[0]))
	assert.Equal(t, []notify.EventType{notify.EventFailed}, n.types())
}

func TestProcess_RecoversPanic(t *testing.T) {
	src := &fakeSource{}
	panicky := HandlerFunc(func(context.Context, *queue.Job) error { panic("nil map") })
	d, _ := newDispatcher(t, src, map[string]Handler{"interview-kit-generate": panicky}, Config{})

	assert.NotPanics(t, func() {
		d.Process(context.Background(), newJob("1", "interview-kit-generate", 1, 2))
	})

	_, retried, _ := src.snapshot()
	assert.Equal(t, []string{"1"}, retried)
}

func TestProcess_LockDurationBoundsHandler(t *testing.T) {
	src := &fakeSource{}
	slow := HandlerFunc(func(ctx context.Context, _ *queue.Job) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})
	d, _ := newDispatcher(t, src, map[string]Handler{"interview-kit-generate": slow}, Config{LockDuration: 20 * time.Millisecond})

	start := time.Now()
	d.Process(context.Background(), newJob("1", "interview-kit-generate", 1, 2))

	assert.Less(t, time.Since(start), 2*time.Second)
	_, retried, _ := src.snapshot()
	assert.Equal(t, []string{"1"}, retried)
}

// ==========================
// Run loop
// ==========================

func TestRun_BoundsConcurrency(t *testing.T) {
	src := &fakeSource{}
	for i := 0; i < 10; i++ {
		src.ready = append(src.ready, newJob(string(rune('a'+i)), "ci-question-generate", 1, 3))
	}

	var active, peak int32
	h := HandlerFunc(func(context.Context, *queue.Job) error {
		now := atomic.AddInt32(&active, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if now <= old || atomic.CompareAndSwapInt32(&peak, old, now) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil
	})
	d, _ := newDispatcher(t, src, map[string]Handler{"ci-question-generate": h}, Config{Concurrency: 3})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		acked, _, _ := src.snapshot()
		return len(acked) == 10
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestRun_WaitsForRunningJobsOnShutdown(t *testing.T) {
	src := &fakeSource{ready: []*queue.Job{newJob("1", "ci-question-generate", 1, 3)}}
	started := make(chan struct{})
	h := HandlerFunc(func(ctx context.Context, _ *queue.Job) error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return ctx.Err()
	})
	d, _ := newDispatcher(t, src, map[string]Handler{"ci-question-generate": h}, Config{Concurrency: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	<-started
	cancel()
	require.NoError(t, <-done)

	acked, _, _ := src.snapshot()
	assert.Equal(t, []string{"1"}, acked, "running job finishes with a live context")
}

// ==========================
// Reclaimer
// ==========================

func TestReclaimer_RedispatchesAndFailsStalledJobs(t *testing.T) {
	src := &fakeSource{}
	h := &artifactHandler{}
	d, n := newDispatcher(t, src, map[string]Handler{"ci-question-generate": h}, Config{MaxStalled: 1})

	once := newJob("once", "ci-question-generate", 1, 3)
	once.Deliveries = 1
	twice := newJob("twice", "ci-question-generate", 1, 3)
	twice.Deliveries = 2
	src.stalled = []*queue.Job{once, twice}

	r := NewReclaimer(d, logger.NewTestLogger(t))
	require.NoError(t, r.RunOnce(context.Background()))
	d.Wait()

	acked, _, dead := src.snapshot()
	assert.Equal(t, []string{"once"}, acked)
	assert.Equal(t, []string{"twice"}, dead)
	assert.Equal(t, 1, src.promoted)
	require.Len(t, h.failures, 1)
	assert.ErrorIs(t, h.failures[0], ErrStalledTooOften)
	assert.Contains(t, n.types(), notify.EventStalled)
}

// ==========================
// Sweeper
// ==========================

type fakeArtifactStore struct {
	records []*artifact.Record
	failErr map[string]error
	failed  []string
	cutoff  time.Time
}

func (s *fakeArtifactStore) ListStuck(_ context.Context, cutoff time.Time, _ int) ([]*artifact.Record, error) {
	s.cutoff = cutoff
	return s.records, nil
}

func (s *fakeArtifactStore) Fail(_ context.Context, key artifact.Key, _ int64, reason string) error {
	if err := s.failErr[key.SubjectID]; err != nil {
		return err
	}
	s.failed = append(s.failed, key.SubjectID+":"+reason)
	return nil
}

func TestSweeper_RunOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeArtifactStore{
		records: []*artifact.Record{
			{Key: artifact.SalaryPredictionKey("u1"), Generation: 1},
			{Key: artifact.SalaryPredictionKey("u2"), Generation: 2},
			{Key: artifact.SalaryPredictionKey("u3"), Generation: 1},
		},
		failErr: map[string]error{
			"u2": artifact.ErrStaleTransition,
			"u3": stderrors.New("connection reset"),
		},
	}

	s := NewSweeper(store, SweeperConfig{StuckAfter: 15 * time.Minute}, logger.NewTestLogger(t))
	s.now = func() time.Time { return now }

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"u1:" + StuckReason}, store.failed)
	assert.Equal(t, now.Add(-15*time.Minute), store.cutoff)
}

func TestSweeper_SkipsKindsWithQueueBacklog(t *testing.T) {
	store := &fakeArtifactStore{
		records: []*artifact.Record{
			{Key: artifact.SalaryPredictionKey("u1"), Generation: 1},
			{Key: artifact.InterviewKitKey("job-1"), Generation: 3},
			{Key: artifact.SalaryPredictionKey("u2"), Generation: 1},
			{Key: artifact.InterviewPrepKey("u3", "job-2"), Generation: 1},
		},
	}

	checks := map[artifact.Kind]int{}
	backlog := func(_ context.Context, kind artifact.Kind) (bool, error) {
		checks[kind]++
		switch kind {
		case artifact.KindSalaryPrediction:
			return true, nil
		case artifact.KindInterviewPrep:
			return false, stderrors.New("redis timeout")
		}
		return false, nil
	}

	s := NewSweeper(store, SweeperConfig{StuckAfter: 15 * time.Minute}, logger.NewTestLogger(t)).WithBacklog(backlog)

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"job-1:" + StuckReason}, store.failed)
	assert.Equal(t, 1, checks[artifact.KindSalaryPrediction], "backlog is checked once per kind")
}

// ==========================
// Business identifiers
// ==========================

func TestBusinessID(t *testing.T) {
	assert.Equal(t, "jobId=j1,userId=u1", BusinessID(json.RawMessage(`{"userId":"u1","jobId":"j1","generation":2}`)))
	assert.Equal(t, "applicationId=a1", BusinessID(json.RawMessage(`{"applicationId":"a1"}`)))
	assert.Equal(t, "", BusinessID(json.RawMessage(`not json`)))
	assert.Equal(t, "", BusinessID(nil))
}
