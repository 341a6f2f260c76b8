// Package observability publishes pipeline run metrics to CloudWatch.
// Metric publication is best effort: a failed put is logged and dropped,
// never surfaced to the pipeline as an error.
package observability

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"stormwatch/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metric names published per scoring run.
const (
	MetricSamplesScored      = "SamplesScored"
	MetricSamplesSkipped     = "SamplesSkipped"
	MetricViolationsDetected = "ViolationsDetected"
	MetricEventsCreated      = "EventsCreated"
	MetricEventsUpdated      = "EventsUpdated"
	MetricRunErrors          = "RunErrors"
	MetricAlertsDispatched   = "AlertsDispatched"
)

// RunMetrics publishes scoring and alert run counters under a single
// namespace with a Service dimension.
type RunMetrics struct {
	client    CloudWatchClient
	namespace string
	service   string
	logger    *slog.Logger
}

// NewRunMetrics creates a RunMetrics publisher.
func NewRunMetrics(client CloudWatchClient, namespace, service string, logger *slog.Logger) *RunMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunMetrics{
		client:    client,
		namespace: namespace,
		service:   service,
		logger:    logger,
	}
}

// PublishRunStats emits the scoring run counters in one PutMetricData
// call.
func (m *RunMetrics) PublishRunStats(ctx context.Context, stats types.RunStats) {
	m.publish(ctx, map[string]float64{
		MetricSamplesScored:      float64(stats.SamplesProcessed),
		MetricSamplesSkipped:     float64(stats.SamplesSkipped),
		MetricViolationsDetected: float64(stats.ViolationsDetected),
		MetricEventsCreated:      float64(stats.EventsCreated),
		MetricEventsUpdated:      float64(stats.EventsUpdated),
		MetricRunErrors:          float64(stats.ErrorCount),
	})
}

// PublishAlertsDispatched emits the alert run counter.
func (m *RunMetrics) PublishAlertsDispatched(ctx context.Context, count int) {
	m.publish(ctx, map[string]float64{
		MetricAlertsDispatched: float64(count),
	})
}

func (m *RunMetrics) publish(ctx context.Context, values map[string]float64) {
	if m.client == nil {
		return
	}

	data := make([]cwtypes.MetricDatum, 0, len(values))
	for name, value := range values {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(value),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{
					Name:  aws.String("Service"),
					Value: aws.String(m.service),
				},
			},
		})
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Warn("failed to publish run metrics",
			"error", err.Error(),
			"namespace", m.namespace,
		)
	}
}
