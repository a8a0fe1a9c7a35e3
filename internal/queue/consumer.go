// internal/queue/consumer.go
package queue

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"match-pipeline/internal/common/errors"
	"match-pipeline/internal/common/logger"
)

type ConsumerConfig struct {
	Queue    string
	Consumer string        // consumer name inside the group, stable per replica
	Block    time.Duration // how long Read waits for new entries; <= 0 does not wait
}

// Consumer reads and settles the jobs of one queue.
type Consumer struct {
	client *redis.Client
	cfg    ConsumerConfig
	logger logger.Logger
}

func NewConsumer(client *redis.Client, cfg ConsumerConfig, log logger.Logger) *Consumer {
	if cfg.Block <= 0 {
		// go-redis sends BLOCK for any non-negative value and BLOCK 0 waits forever
		cfg.Block = -1
	}
	return &Consumer{
		client: client,
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"queue": cfg.Queue, "consumer": cfg.Consumer}),
	}
}

func (c *Consumer) Queue() string { return c.cfg.Queue }

// EnsureGroup creates the stream and its consumer group if needed. The group
// starts at "0" so entries added before the first worker started are read.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, StreamKey(c.cfg.Queue), GroupName(c.cfg.Queue), "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return errors.NewQueueOperationFailedError("create consumer group", err)
	}
	return nil
}

// Read returns up to count new jobs, blocking up to the configured Block.
// Entries that cannot be decoded are acknowledged and dropped.
func (c *Consumer) Read(ctx context.Context, count int64) ([]*Job, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    GroupName(c.cfg.Queue),
		Consumer: c.cfg.Consumer,
		Streams:  []string{StreamKey(c.cfg.Queue), ">"},
		Count:    count,
		Block:    c.cfg.Block,
	}).Result()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.NewQueueOperationFailedError("read", err)
	}

	var jobs []*Job
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			if job := c.parse(ctx, msg); job != nil {
				job.Deliveries = 1
				jobs = append(jobs, job)
			}
		}
	}
	return jobs, nil
}

func (c *Consumer) parse(ctx context.Context, msg redis.XMessage) *Job {
	job, err := decode(msg.Values)
	if err != nil {
		c.logger.Error("dropping malformed queue entry", map[string]interface{}{
			"streamId": msg.ID,
			"error":    err.Error(),
		})
		if ackErr := c.ackID(ctx, msg.ID); ackErr != nil {
			c.logger.Warn("failed to ack malformed entry", map[string]interface{}{"streamId": msg.ID, "error": ackErr.Error()})
		}
		return nil
	}
	job.StreamID = msg.ID
	return job
}

func (c *Consumer) ackID(ctx context.Context, id string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAck(ctx, StreamKey(c.cfg.Queue), GroupName(c.cfg.Queue), id)
		pipe.XDel(ctx, StreamKey(c.cfg.Queue), id)
		return nil
	})
	return err
}

// Ack settles a job that completed.
func (c *Consumer) Ack(ctx context.Context, job *Job) error {
	if err := c.ackID(ctx, job.StreamID); err != nil {
		return errors.NewQueueOperationFailedError("ack", err)
	}
	return nil
}

// Retry settles the current attempt and schedules the next one after the
// job's backoff. Both happen in one transaction.
func (c *Consumer) Retry(ctx context.Context, job *Job, cause error) (time.Duration, error) {
	delay := job.Backoff.DelayFor(job.Attempt)

	next := *job
	next.Attempt++
	next.LastError = errorText(cause)
	encoded, err := encode(&next)
	if err != nil {
		return 0, err
	}

	now, err := c.client.Time(ctx).Result()
	if err != nil {
		return 0, errors.NewQueueOperationFailedError("server time", err)
	}
	due := now.Add(delay).UnixMilli()

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAck(ctx, StreamKey(c.cfg.Queue), GroupName(c.cfg.Queue), job.StreamID)
		pipe.XDel(ctx, StreamKey(c.cfg.Queue), job.StreamID)
		pipe.ZAdd(ctx, DelayedKey(c.cfg.Queue), redis.Z{Score: float64(due), Member: encoded})
		return nil
	})
	if err != nil {
		return 0, errors.NewQueueOperationFailedError("schedule retry", err)
	}
	return delay, nil
}

// DeadLetter settles the job and keeps it, with its final error, in the
// queue's dead-letter stream.
func (c *Consumer) DeadLetter(ctx context.Context, job *Job, cause error) error {
	dead := *job
	dead.LastError = errorText(cause)
	encoded, err := encode(&dead)
	if err != nil {
		return err
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAck(ctx, StreamKey(c.cfg.Queue), GroupName(c.cfg.Queue), job.StreamID)
		pipe.XDel(ctx, StreamKey(c.cfg.Queue), job.StreamID)
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: DeadKey(c.cfg.Queue),
			Values: map[string]interface{}{
				jobField: encoded,
				"error":  dead.LastError,
				"kind":   job.Kind,
			},
		})
		return nil
	})
	if err != nil {
		return errors.NewQueueOperationFailedError("dead-letter", err)
	}
	return nil
}

// promoteScript moves due entries of the delayed set into the stream. ZREM
// succeeds for exactly one caller, so concurrent promoters never duplicate a job.
var promoteScript = redis.NewScript(`
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', now, 'LIMIT', 0, tonumber(ARGV[1]))
local moved = 0
for _, member in ipairs(due) do
  if redis.call('ZREM', KEYS[1], member) == 1 then
    redis.call('XADD', KEYS[2], '*', ARGV[2], member)
    moved = moved + 1
  end
end
return moved
`)

// PromoteDue moves up to limit delayed jobs whose time has come back into
// the stream and returns how many moved.
func (c *Consumer) PromoteDue(ctx context.Context, limit int) (int, error) {
	n, err := promoteScript.Run(ctx, c.client,
		[]string{DelayedKey(c.cfg.Queue), StreamKey(c.cfg.Queue)},
		limit, jobField,
	).Int()
	if err != nil {
		return 0, errors.NewQueueOperationFailedError("promote delayed", err)
	}
	return n, nil
}

// Stalled claims up to count entries that were delivered but not settled for
// at least minIdle. Deliveries on each returned job counts the deliveries
// that stalled.
func (c *Consumer) Stalled(ctx context.Context, minIdle time.Duration, count int64) ([]*Job, error) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: StreamKey(c.cfg.Queue),
		Group:  GroupName(c.cfg.Queue),
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, errors.NewQueueOperationFailedError("xpending", err)
	}

	var jobs []*Job
	for _, p := range pending {
		msgs, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   StreamKey(c.cfg.Queue),
			Group:    GroupName(c.cfg.Queue),
			Consumer: c.cfg.Consumer,
			MinIdle:  minIdle,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			return jobs, errors.NewQueueOperationFailedError("xclaim", err)
		}
		if len(msgs) == 0 {
			// claimed by another process first
			continue
		}
		if job := c.parse(ctx, msgs[0]); job != nil {
			job.Deliveries = p.RetryCount
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

// Leave removes this consumer from the group once it owns no pending entries.
// A consumer that still owns entries stays: deleting it would drop them from
// the pending list, where another process's reclaimer can still claim them.
func (c *Consumer) Leave(ctx context.Context) (bool, error) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   StreamKey(c.cfg.Queue),
		Group:    GroupName(c.cfg.Queue),
		Start:    "-",
		End:      "+",
		Count:    1,
		Consumer: c.cfg.Consumer,
	}).Result()
	if err != nil {
		return false, errors.NewQueueOperationFailedError("xpending", err)
	}
	if len(pending) > 0 {
		c.logger.Warn("consumer still owns pending entries, left in group for reclaim", nil)
		return false, nil
	}
	if err := c.client.XGroupDelConsumer(ctx, StreamKey(c.cfg.Queue), GroupName(c.cfg.Queue), c.cfg.Consumer).Err(); err != nil {
		return false, errors.NewQueueOperationFailedError("xgroup delconsumer", err)
	}
	return true, nil
}

// PruneIdle deletes other consumers of the group that own nothing and have
// been idle for at least minIdle, which is what a crashed replica leaves
// behind. It returns the names it removed.
func (c *Consumer) PruneIdle(ctx context.Context, minIdle time.Duration) ([]string, error) {
	consumers, err := c.client.XInfoConsumers(ctx, StreamKey(c.cfg.Queue), GroupName(c.cfg.Queue)).Result()
	if err != nil {
		return nil, errors.NewQueueOperationFailedError("xinfo consumers", err)
	}

	var removed []string
	for _, cons := range consumers {
		if cons.Name == c.cfg.Consumer || cons.Pending > 0 || cons.Idle < minIdle {
			continue
		}
		if err := c.client.XGroupDelConsumer(ctx, StreamKey(c.cfg.Queue), GroupName(c.cfg.Queue), cons.Name).Err(); err != nil {
			return removed, errors.NewQueueOperationFailedError("xgroup delconsumer", err)
		}
		removed = append(removed, cons.Name)
	}
	return removed, nil
}

// Depth reports the stream length and delayed set size.
func (c *Consumer) Depth(ctx context.Context) (ready, delayed int64, err error) {
	pipe := c.client.Pipeline()
	xlen := pipe.XLen(ctx, StreamKey(c.cfg.Queue))
	zcard := pipe.ZCard(ctx, DelayedKey(c.cfg.Queue))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, errors.NewQueueOperationFailedError("depth", err)
	}
	return xlen.Val(), zcard.Val(), nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprint(err)
}
