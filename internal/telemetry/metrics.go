// Package telemetry emits service metrics to AWS CloudWatch.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"voyage/internal/types"
)

// Metric and dimension names.
const (
	MetricAPILatency      = "APILatency"
	MetricAPIRequestCount = "APIRequestCount"
	MetricQuotaDenial     = "QuotaDenial"
	MetricTierResolution  = "TierResolution"

	DimMethod   = "Method"
	DimEndpoint = "Endpoint"
	DimStatus   = "Status"
	DimResource = "Resource"
	DimTier     = "Tier"
	DimSource   = "Source"
)

// CloudWatchClient abstracts the PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics publishes API and entitlement metrics to a CloudWatch
// namespace. Emission is best-effort: failures are logged, never surfaced to
// the request path.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchMetrics creates a metrics publisher for the given namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordRequest records API request latency and count. Implements the
// chassis MetricsCollector interface; called from middleware without a
// request context, so emission uses the background context.
func (m *CloudWatchMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(DimMethod), Value: aws.String(method)},
		{Name: aws.String(DimEndpoint), Value: aws.String(endpoint)},
		{Name: aws.String(DimStatus), Value: aws.String(status)},
	}

	m.put(context.Background(), []cwtypes.MetricDatum{
		{
			MetricName: aws.String(MetricAPILatency),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims,
		},
		{
			MetricName: aws.String(MetricAPIRequestCount),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
	})
}

// RecordQuotaDenial emits a metric each time a quota or feature gate denies
// an operation. Dimensions identify the resource and the tier that hit the
// wall, which is the signal for upgrade-prompt tuning.
func (m *CloudWatchMetrics) RecordQuotaDenial(ctx context.Context, kind types.ResourceKind, tier types.PlanTier) {
	m.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String(MetricQuotaDenial),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(DimResource), Value: aws.String(string(kind))},
				{Name: aws.String(DimTier), Value: aws.String(string(tier))},
			},
		},
	})
}

// RecordTierResolution emits the outcome of an entitlement resolution.
// Source is "provider" when Stripe answered, "record" when the backing
// profile served as fallback.
func (m *CloudWatchMetrics) RecordTierResolution(ctx context.Context, source string, tier types.PlanTier, duration time.Duration) {
	m.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String(MetricTierResolution),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(DimSource), Value: aws.String(source)},
				{Name: aws.String(DimTier), Value: aws.String(string(tier))},
			},
		},
	})
}

func (m *CloudWatchMetrics) put(ctx context.Context, data []cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Warn("failed to publish metrics", "error", err)
	}
}
