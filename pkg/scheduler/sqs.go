package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/chris/debt-ledger-bot/pkg/models"
)

// SQSAPI is the subset of the SQS client used by the scheduler.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

var _ SQSAPI = (*sqs.Client)(nil)

// SQSScheduler implements the Scheduler interface using AWS SQS.
type SQSScheduler struct {
	Client   SQSAPI
	QueueURL string
}

// NewSQSScheduler creates a new SQSScheduler.
func NewSQSScheduler(client SQSAPI, queueURL string) *SQSScheduler {
	return &SQSScheduler{
		Client:   client,
		QueueURL: queueURL,
	}
}

// Make sure we conform to the interface
var _ Scheduler = (*SQSScheduler)(nil)

// ScheduleEvent sends the event to the queue. Redelivery is safe: the worker
// deduplicates on update_id.
func (s *SQSScheduler) ScheduleEvent(ctx context.Context, ev models.InboundEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event for SQS: %w", err)
	}

	_, err = s.Client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.QueueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"update_id": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.FormatInt(ev.UpdateID, 10)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send message to SQS: %w", err)
	}
	return nil
}

// DecodeEvent parses a message body written by ScheduleEvent.
func DecodeEvent(body string) (models.InboundEvent, error) {
	var ev models.InboundEvent
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return ev, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if ev.UpdateID == 0 || ev.ActorID == 0 {
		return ev, fmt.Errorf("event is missing update_id or actor_id")
	}
	return ev, nil
}
