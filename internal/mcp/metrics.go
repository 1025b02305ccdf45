package mcp

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/orchestd/internal/mcp"

var (
	invocationCounter  metric.Int64Counter
	invocationDuration metric.Float64Histogram
)

func initMetrics() error {
	meter := otel.Meter(instrumentationName)

	var err error
	invocationCounter, err = meter.Int64Counter("orchestd.mcp.invocations",
		metric.WithDescription("Tool invocations, by tool and outcome"),
		metric.WithUnit("{invocation}"))
	if err != nil {
		return err
	}

	invocationDuration, err = meter.Float64Histogram("orchestd.mcp.invocation_duration",
		metric.WithDescription("Tool invocation duration"),
		metric.WithUnit("s"))
	if err != nil {
		return err
	}

	return nil
}

func init() {
	if err := initMetrics(); err != nil {
		panic(err)
	}
}

func recordInvocation(ctx context.Context, tool string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("outcome", outcome),
	)
	invocationCounter.Add(ctx, 1, attrs)
	invocationDuration.Record(ctx, d.Seconds(), attrs)
}
