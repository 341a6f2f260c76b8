package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stormwatch/internal/types"
)

type mockCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCloudWatch) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.inputs = append(m.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestPublishRunStats(t *testing.T) {
	client := &mockCloudWatch{}
	metrics := NewRunMetrics(client, "Stormwatch", "scorer", nil)

	metrics.PublishRunStats(context.Background(), types.RunStats{
		SamplesProcessed:   1000,
		SamplesSkipped:     12,
		ViolationsDetected: 40,
		EventsCreated:      5,
		EventsUpdated:      30,
		ErrorCount:         1,
	})

	require.Len(t, client.inputs, 1)
	input := client.inputs[0]
	assert.Equal(t, "Stormwatch", *input.Namespace)
	require.Len(t, input.MetricData, 6)

	seen := make(map[string]float64)
	for _, d := range input.MetricData {
		seen[*d.MetricName] = *d.Value
		require.Len(t, d.Dimensions, 1)
		assert.Equal(t, "scorer", *d.Dimensions[0].Value)
	}
	assert.Equal(t, 1000.0, seen[MetricSamplesScored])
	assert.Equal(t, 40.0, seen[MetricViolationsDetected])
	assert.Equal(t, 1.0, seen[MetricRunErrors])
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	client := &mockCloudWatch{err: errors.New("access denied")}
	metrics := NewRunMetrics(client, "Stormwatch", "scorer", nil)

	// Must not panic or propagate.
	metrics.PublishRunStats(context.Background(), types.RunStats{SamplesProcessed: 1})
	metrics.PublishAlertsDispatched(context.Background(), 3)
}

func TestNilClientIsNoop(t *testing.T) {
	metrics := NewRunMetrics(nil, "Stormwatch", "scorer", nil)
	metrics.PublishRunStats(context.Background(), types.RunStats{})
}
