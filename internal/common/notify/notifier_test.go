// internal/common/notify/notifier_test.go
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"match-pipeline/internal/common/config"
)

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

type fakeSES struct {
	inputs []*ses.SendEmailInput
}

func (f *fakeSES) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	return &ses.SendEmailOutput{MessageId: aws.String("e-1")}, nil
}

func sampleEvent(t EventType) Event {
	return Event{
		Type:       t,
		Queue:      "salary-prediction",
		Kind:       "salary-prediction",
		JobID:      "job-1",
		BusinessID: "user-1",
		Attempt:    3,
		ErrorCode:  "GENERATION_FAILED",
		At:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// ==========================
// SNS
// ==========================

func TestSNSNotifier_PublishesEventWithAttributes(t *testing.T) {
	client := &fakeSNS{}
	n := NewSNSNotifier(client, "arn:aws:sns:us-east-1:1:pipeline")

	require.NoError(t, n.Notify(context.Background(), sampleEvent(EventCompleted)))
	require.Len(t, client.inputs, 1)

	in := client.inputs[0]
	assert.Equal(t, "arn:aws:sns:us-east-1:1:pipeline", aws.ToString(in.TopicArn))
	assert.Equal(t, "completed", aws.ToString(in.MessageAttributes["event"].StringValue))
	assert.Equal(t, "salary-prediction", aws.ToString(in.MessageAttributes["queue"].StringValue))

	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(in.Message)), &decoded))
	assert.Equal(t, "user-1", decoded.BusinessID)
}

func TestSNSNotifier_WrapsPublishError(t *testing.T) {
	client := &fakeSNS{err: errors.New("throttled")}
	err := NewSNSNotifier(client, "arn").Notify(context.Background(), sampleEvent(EventFailed))
	assert.ErrorContains(t, err, "throttled")
}

// ==========================
// SES
// ==========================

func TestFailureMailer_OnlyMailsFailures(t *testing.T) {
	client := &fakeSES{}
	m := NewFailureMailer(client, "pipeline@example.com", "oncall@example.com")

	require.NoError(t, m.Notify(context.Background(), sampleEvent(EventRetrying)))
	assert.Empty(t, client.inputs)

	require.NoError(t, m.Notify(context.Background(), sampleEvent(EventFailed)))
	require.Len(t, client.inputs, 1)
	assert.Equal(t, []string{"oncall@example.com"}, client.inputs[0].Destination.ToAddresses)
	assert.Contains(t, aws.ToString(client.inputs[0].Message.Body.Text.Data), "GENERATION_FAILED")
}

// ==========================
// Wiring
// ==========================

func TestMulti_JoinsErrors(t *testing.T) {
	ok := &fakeSNS{}
	bad := &fakeSNS{err: errors.New("down")}
	m := Multi{NewSNSNotifier(ok, "a"), NewSNSNotifier(bad, "b")}

	err := m.Notify(context.Background(), sampleEvent(EventActive))
	assert.ErrorContains(t, err, "down")
	assert.Len(t, ok.inputs, 1)
}

func TestNewFromConfig_DisabledIsNoop(t *testing.T) {
	n, err := NewFromConfig(context.Background(), config.NotificationConfig{AWSRegion: "us-east-1"})
	require.NoError(t, err)
	assert.IsType(t, Noop{}, n)
}
