package workflow

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/orchestd/internal/workflow"

var (
	featureCounter    metric.Int64Counter
	transitionCounter metric.Int64Counter
)

func initMetrics() error {
	meter := otel.Meter(instrumentationName)

	var err error
	featureCounter, err = meter.Int64Counter("orchestd.workflow.features",
		metric.WithDescription("Features started"),
		metric.WithUnit("{feature}"))
	if err != nil {
		return err
	}

	transitionCounter, err = meter.Int64Counter("orchestd.workflow.transitions",
		metric.WithDescription("Accepted phase transitions"),
		metric.WithUnit("{transition}"))
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

func recordFeatureStarted(ctx context.Context) {
	featureCounter.Add(ctx, 1)
}

func recordTransition(ctx context.Context, phase string, status Status) {
	transitionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("phase", phase),
		attribute.String("status", string(status)),
	))
}
