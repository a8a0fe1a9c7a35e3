// internal/common/notify/notifier.go

// Package notify publishes job lifecycle events to AWS: every event to an SNS
// topic, and terminal failures additionally as an SES alert email.
package notify

import (
	"context"
	"errors"
	"time"

	"match-pipeline/internal/common/config"
)

// EventType is a job lifecycle transition.
type EventType string

const (
	EventActive    EventType = "active"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventRetrying  EventType = "retrying"
	EventStalled   EventType = "stalled"
)

// Event describes one lifecycle transition of a queued job.
type Event struct {
	Type       EventType `json:"type"`
	Queue      string    `json:"queue"`
	Kind       string    `json:"kind"`
	JobID      string    `json:"jobId"`
	BusinessID string    `json:"businessId,omitempty"`
	Attempt    int       `json:"attempt"`
	ErrorCode  string    `json:"errorCode,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Notifier delivers lifecycle events. Delivery is best effort; callers log errors.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Notify(context.Context, Event) error { return nil }

// Multi fans an event out to several notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewFromConfig builds the notifiers enabled in cfg. With nothing enabled it
// returns Noop and never touches AWS credentials.
func NewFromConfig(ctx context.Context, cfg config.NotificationConfig) (Notifier, error) {
	var notifiers Multi

	if cfg.SNS.Enabled {
		client, err := NewSNSClient(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, NewSNSNotifier(client, cfg.SNS.TopicARN))
	}

	if cfg.SES.Enabled {
		client, err := NewSESClient(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, NewFailureMailer(client, cfg.SES.From, cfg.SES.To))
	}

	if len(notifiers) == 0 {
		return Noop{}, nil
	}
	return notifiers, nil
}
