package graph

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/orchestd/internal/graph"

var (
	taskCounter metric.Int64Counter
	runCounter  metric.Int64Counter
)

func initMetrics() error {
	meter := otel.Meter(instrumentationName)

	var err error
	taskCounter, err = meter.Int64Counter("orchestd.graph.tasks",
		metric.WithDescription("Tasks settled, by terminal status"),
		metric.WithUnit("{task}"))
	if err != nil {
		return err
	}

	runCounter, err = meter.Int64Counter("orchestd.graph.runs",
		metric.WithDescription("Graph runs started"),
		metric.WithUnit("{run}"))
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

func recordTask(ctx context.Context, status Status) {
	taskCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(status)),
	))
}

func recordRun(ctx context.Context, size int) {
	runCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("tasks", size),
	))
}
