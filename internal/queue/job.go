// internal/queue/job.go

// Package queue is a durable job queue on Redis Streams. Each named queue is
// a stream read through one consumer group, a sorted set of delayed retries
// and a dead-letter stream for jobs that failed terminally.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"match-pipeline/internal/common/config"
)

type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffExponential BackoffType = "exponential"
)

type Backoff struct {
	Type  BackoffType   `json:"type"`
	Delay time.Duration `json:"delay"`
}

// DelayFor returns how long to wait before retrying, where attempt is the
// number of the attempt that just failed (1-based).
func (b Backoff) DelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if b.Type == BackoffExponential {
		return b.Delay * time.Duration(1<<uint(attempt-1))
	}
	return b.Delay
}

// Options are per-job settings. Zero fields take the queue defaults.
type Options struct {
	Attempts int
	Backoff  *Backoff
}

// OptionsFrom converts a queue's loaded configuration into default Options.
func OptionsFrom(q config.QueueConfig) Options {
	return Options{
		Attempts: q.Attempts,
		Backoff: &Backoff{
			Type:  BackoffType(q.BackoffType),
			Delay: config.GetDuration(q.BackoffDelay),
		},
	}
}

func (o Options) merge(defaults Options) Options {
	if o.Attempts <= 0 {
		o.Attempts = defaults.Attempts
	}
	if o.Attempts <= 0 {
		o.Attempts = 1
	}
	if o.Backoff == nil {
		o.Backoff = defaults.Backoff
	}
	if o.Backoff == nil {
		o.Backoff = &Backoff{Type: BackoffFixed}
	}
	return o
}

// Job is one unit of work. StreamID and Deliveries describe the current
// delivery and are not serialized.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"maxAttempts"`
	Backoff     Backoff         `json:"backoff"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
	LastError   string          `json:"lastError,omitempty"`

	StreamID   string `json:"-"`
	Deliveries int64  `json:"-"`
}

// HasAttemptsLeft reports whether a failure of the current attempt may be retried.
func (j *Job) HasAttemptsLeft() bool {
	return j.Attempt < j.MaxAttempts
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v interface{}) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", j.Kind, err)
	}
	return nil
}

// StreamKey, DelayedKey and DeadKey name the Redis keys of a queue.
func StreamKey(queue string) string  { return "queue:" + queue }
func DelayedKey(queue string) string { return "queue:" + queue + ":delayed" }
func DeadKey(queue string) string    { return "queue:" + queue + ":dead" }
func GroupName(queue string) string  { return queue + "-workers" }

const jobField = "job"

func encode(j *Job) (string, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("encode job %s: %w", j.ID, err)
	}
	return string(b), nil
}

func decode(values map[string]interface{}) (*Job, error) {
	raw, ok := values[jobField]
	if !ok {
		return nil, fmt.Errorf("missing %s field", jobField)
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("%s field is %T, not string", jobField, raw)
	}
	var j Job
	if err := json.Unmarshal([]byte(s), &j); err != nil {
		return nil, fmt.Errorf("parse job: %w", err)
	}
	if j.ID == "" || j.Kind == "" {
		return nil, fmt.Errorf("job without id or kind")
	}
	return &j, nil
}
