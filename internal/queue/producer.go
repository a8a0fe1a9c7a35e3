// internal/queue/producer.go
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"match-pipeline/internal/common/errors"
	"match-pipeline/internal/common/logger"
)

// Entry is one job of a bulk enqueue.
type Entry struct {
	Kind    string
	Payload interface{}
	Options Options
}

type Producer struct {
	client   *redis.Client
	defaults map[string]Options
	logger   logger.Logger
}

// NewProducer creates a producer. defaults holds per-queue default Options.
func NewProducer(client *redis.Client, defaults map[string]Options, log logger.Logger) *Producer {
	return &Producer{
		client:   client,
		defaults: defaults,
		logger:   log.WithFields(map[string]interface{}{"component": "queue.producer"}),
	}
}

func (p *Producer) newJob(queue string, e Entry) (*Job, string, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, "", errors.NewPayloadInvalidError(err)
	}
	opts := e.Options.merge(p.defaults[queue])

	job := &Job{
		ID:          uuid.NewString(),
		Queue:       queue,
		Kind:        e.Kind,
		Payload:     payload,
		Attempt:     1,
		MaxAttempts: opts.Attempts,
		Backoff:     *opts.Backoff,
		EnqueuedAt:  time.Now().UTC(),
	}
	encoded, err := encode(job)
	if err != nil {
		return nil, "", err
	}
	return job, encoded, nil
}

// Enqueue appends one job to queue.
func (p *Producer) Enqueue(ctx context.Context, queue, kind string, payload interface{}, opts Options) (*Job, error) {
	jobs, err := p.EnqueueBulk(ctx, queue, []Entry{{Kind: kind, Payload: payload, Options: opts}})
	if err != nil {
		return nil, err
	}
	return jobs[0], nil
}

// EnqueueBulk appends all entries to queue in one MULTI/EXEC round trip.
func (p *Producer) EnqueueBulk(ctx context.Context, queue string, entries []Entry) ([]*Job, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	jobs := make([]*Job, 0, len(entries))
	encoded := make([]string, 0, len(entries))
	for _, e := range entries {
		job, enc, err := p.newJob(queue, e)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
		encoded = append(encoded, enc)
	}

	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, enc := range encoded {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: StreamKey(queue),
				Values: map[string]interface{}{jobField: enc},
			})
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewQueueOperationFailedError(fmt.Sprintf("enqueue to %s", queue), err)
	}

	for _, job := range jobs {
		p.logger.Info("job enqueued", map[string]interface{}{
			"queue":       queue,
			"kind":        job.Kind,
			"jobId":       job.ID,
			"maxAttempts": job.MaxAttempts,
		})
	}
	return jobs, nil
}
