// Package queue provides the SQS-based producer that hands matched alerts
// to the external notification worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"stormwatch/internal/config"
	"stormwatch/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Dispatcher serializes AlertDispatchMessage payloads and sends them to
// the alert dispatch queue. Delivery mechanics (email, Slack) belong to
// the notifier consuming the queue, not to the pipeline.
type Dispatcher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher reading the queue URL from AWSConfig.
func NewDispatcher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client:   client,
		queueURL: awsCfg.DispatchQueueURL,
		logger:   logger,
	}
}

// Dispatch sends one dispatch message. The delivery channel rides along as
// a message attribute so the notifier can route without parsing the body.
func (d *Dispatcher) Dispatch(ctx context.Context, msg types.AlertDispatchMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal dispatch message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"delivery": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Delivery)),
			},
		},
	}

	if _, err := d.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to send dispatch message to %s", d.queueURL), err)
	}

	d.logger.InfoContext(ctx, "alert dispatch message sent",
		"queue_url", d.queueURL,
		"run_id", msg.RunID,
		"subscription_id", msg.SubscriptionID,
		"violations", len(msg.Violations),
		"delivery", string(msg.Delivery),
	)
	return nil
}
