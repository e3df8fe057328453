package logger

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const metricNamespace = "NotionDashboard/Sync"

var (
	cwMu     sync.Mutex
	cwClient *cloudwatch.Client
	cwBuffer []cwtypes.MetricDatum
)

// InitCloudWatch enables metric publishing. Metrics are buffered and flushed
// in batches of 20 (the PutMetricData limit) on a fixed interval. Safe to
// skip entirely; publishMetrics becomes a no-op without it.
func InitCloudWatch(ctx context.Context, region string) error {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if key := os.Getenv("AWS_ACCESS_KEY_ID"); key != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(key, os.Getenv("AWS_SECRET_ACCESS_KEY"), ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return err
	}

	cwMu.Lock()
	cwClient = cloudwatch.NewFromConfig(cfg)
	cwMu.Unlock()

	go flushLoop(ctx)
	return nil
}

func publishMetrics(ctx context.Context, data []cwtypes.MetricDatum) {
	cwMu.Lock()
	defer cwMu.Unlock()
	if cwClient == nil {
		return
	}
	now := time.Now()
	for i := range data {
		if data[i].Timestamp == nil {
			data[i].Timestamp = aws.Time(now)
		}
	}
	cwBuffer = append(cwBuffer, data...)
}

func flushLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushMetrics(context.Background())
			return
		case <-ticker.C:
			flushMetrics(ctx)
		}
	}
}

func flushMetrics(ctx context.Context) {
	cwMu.Lock()
	client := cwClient
	batch := cwBuffer
	cwBuffer = nil
	cwMu.Unlock()

	if client == nil || len(batch) == 0 {
		return
	}

	for start := 0; start < len(batch); start += 20 {
		end := start + 20
		if end > len(batch) {
			end = len(batch)
		}
		_, err := client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(metricNamespace),
			MetricData: batch[start:end],
		})
		if err != nil {
			GetLogger().WithComponent("logger").WithError(err).Warn("failed to publish cloudwatch metrics")
			return
		}
	}
}
