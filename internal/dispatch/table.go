// internal/dispatch/table.go

// Package dispatch runs queued jobs through their handlers: a bounded
// dispatch loop per queue, a reclaimer for delayed and stalled entries, and a
// sweeper for artifacts left in flight by a crash.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"match-pipeline/internal/queue"
)

// Handler executes one job. A returned error is classified with the
// pipeline error taxonomy to decide between retry and terminal failure.
type Handler interface {
	Handle(ctx context.Context, job *queue.Job) error
}

// FailureRecorder is implemented by handlers that own an artifact. It is
// called once, after the job failed terminally.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, job *queue.Job, cause error) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *queue.Job) error

func (f HandlerFunc) Handle(ctx context.Context, job *queue.Job) error { return f(ctx, job) }

// Table is the closed set of kinds a queue accepts.
type Table struct {
	queue    string
	handlers map[string]Handler
}

// NewTable checks that handlers covers exactly the declared kinds.
func NewTable(queue string, handlers map[string]Handler, kinds []string) (*Table, error) {
	declared := make(map[string]bool, len(kinds))
	var missing, undeclared []string

	for _, k := range kinds {
		declared[k] = true
		if h, ok := handlers[k]; !ok || h == nil {
			missing = append(missing, k)
		}
	}
	for k := range handlers {
		if !declared[k] {
			undeclared = append(undeclared, k)
		}
	}

	if len(missing) > 0 || len(undeclared) > 0 {
		sort.Strings(missing)
		sort.Strings(undeclared)
		return nil, fmt.Errorf("queue %s: kinds without handler [%s], handlers without kind [%s]",
			queue, strings.Join(missing, ", "), strings.Join(undeclared, ", "))
	}

	t := &Table{queue: queue, handlers: make(map[string]Handler, len(handlers))}
	for k, h := range handlers {
		t.handlers[k] = h
	}
	return t, nil
}

func (t *Table) Queue() string { return t.queue }

func (t *Table) Lookup(kind string) (Handler, bool) {
	h, ok := t.handlers[kind]
	return h, ok
}

// Kinds returns the table's kinds, sorted.
func (t *Table) Kinds() []string {
	out := make([]string, 0, len(t.handlers))
	for k := range t.handlers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
