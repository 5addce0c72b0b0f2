package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce sync.Once
	repoOps     metric.Int64Counter
)

func repoOpsCounter() metric.Int64Counter {
	metricsOnce.Do(func() {
		meter := otel.Meter("canteen-payments")
		repoOps, _ = meter.Int64Counter(
			"repository_operations_total",
			metric.WithDescription("Repository operations by entity, operation and result"),
		)
	})
	return repoOps
}

// RecordRepositoryOperation counts a repository call. Result is one of
// success, not_found, conflict, error.
func RecordRepositoryOperation(ctx context.Context, entity, operation, result string) {
	counter := repoOpsCounter()
	if counter == nil {
		return
	}
	counter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("entity", entity),
			attribute.String("operation", operation),
			attribute.String("result", result),
		),
	)
}
