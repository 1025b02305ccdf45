package invoker

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/orchestd/internal/invoker"

var (
	attemptCounter     metric.Int64Counter
	rejectionCounter   metric.Int64Counter
	breakerOpenCounter metric.Int64Counter
)

func initMetrics() {
	meter := otel.Meter(instrumentationName)

	var err error

	attemptCounter, err = meter.Int64Counter(
		"orchestd.invoker.attempts",
		metric.WithDescription("Executor call attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create attempt counter: %v", err))
	}

	rejectionCounter, err = meter.Int64Counter(
		"orchestd.invoker.circuit_rejections",
		metric.WithDescription("Calls rejected by an open circuit breaker"),
		metric.WithUnit("{rejection}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create rejection counter: %v", err))
	}

	breakerOpenCounter, err = meter.Int64Counter(
		"orchestd.invoker.breaker_opens",
		metric.WithDescription("Circuit breaker open transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create breaker open counter: %v", err))
	}
}

func init() {
	initMetrics()
}

func recordAttempt(ctx context.Context, executorID string, attempt int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	attemptCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("executor_id", executorID),
		attribute.Int("attempt", attempt),
		attribute.String("outcome", outcome),
	))
}

func recordRejection(ctx context.Context, executorID string) {
	rejectionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("executor_id", executorID),
	))
}

func recordBreakerOpen(ctx context.Context, executorID string) {
	breakerOpenCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("executor_id", executorID),
	))
}
