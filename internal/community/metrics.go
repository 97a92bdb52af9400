package community

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/saferoute/saferoute/internal/community"

// Submission outcomes recorded on the submissions counter.
const (
	outcomeAccepted = "accepted"
	outcomeCooldown = "cooldown"
	outcomeFailed   = "failed"
)

type metrics struct {
	submissions     metric.Int64Counter
	txConflicts     metric.Int64Counter
	eligibilityDeny metric.Int64Counter
	routeCells      metric.Int64Histogram
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	submissions, err := meter.Int64Counter(
		"community.feedback.submissions",
		metric.WithDescription("Feedback submissions by outcome"),
		metric.WithUnit("{submission}"),
	)
	if err != nil {
		return nil, err
	}

	txConflicts, err := meter.Int64Counter(
		"community.store.tx_conflicts",
		metric.WithDescription("Feedback transactions retried after losing a race"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return nil, err
	}

	eligibilityDeny, err := meter.Int64Counter(
		"community.eligibility.fail_closed",
		metric.WithDescription("Eligibility checks denied because the store could not be read"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, err
	}

	routeCells, err := meter.Int64Histogram(
		"community.route.cells",
		metric.WithDescription("Unique grid cells touched per route score"),
		metric.WithUnit("{cell}"),
	)
	if err != nil {
		return nil, err
	}

	return &metrics{
		submissions:     submissions,
		txConflicts:     txConflicts,
		eligibilityDeny: eligibilityDeny,
		routeCells:      routeCells,
	}, nil
}

func noopMetrics() *metrics {
	m, _ := newMetrics(noop.NewMeterProvider().Meter(instrumentationName)) //nolint:errcheck // noop instruments never fail
	return m
}

func (m *metrics) submission(ctx context.Context, outcome string) {
	m.submissions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
