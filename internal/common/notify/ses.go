// internal/common/notify/ses.go
package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func NewSESClient(ctx context.Context, region string) (*ses.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return ses.NewFromConfig(cfg), nil
}

// FailureMailer emails operators when a job is dead-lettered. Other event
// types are ignored.
type FailureMailer struct {
	client SESAPI
	from   string
	to     string
}

func NewFailureMailer(client SESAPI, from, to string) *FailureMailer {
	return &FailureMailer{client: client, from: from, to: to}
}

func (m *FailureMailer) Notify(ctx context.Context, event Event) error {
	if event.Type != EventFailed {
		return nil
	}

	subject := fmt.Sprintf("[match-pipeline] %s job %s failed", event.Kind, event.JobID)
	body := fmt.Sprintf(
		"Queue: %s\nKind: %s\nJob: %s\nBusiness ID: %s\nAttempt: %d\nError code: %s\nError: %s\nAt: %s\n",
		event.Queue, event.Kind, event.JobID, event.BusinessID, event.Attempt,
		event.ErrorCode, event.Error, event.At.Format("2006-01-02T15:04:05Z07:00"),
	)

	_, err := m.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(m.from),
		Destination: &types.Destination{ToAddresses: []string{m.to}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body:    &types.Body{Text: &types.Content{Data: aws.String(body)}},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send failure alert: %w", err)
	}
	return nil
}
