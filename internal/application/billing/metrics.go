package billing

import (
	"context"
	"time"

	"github.com/kost/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics records pass metrics on OpenTelemetry instruments
type OTelMetrics struct {
	passes         *telemetry.Counter
	passDuration   *telemetry.Histogram
	tenantOutcomes *telemetry.Counter
	invoicesIssued *telemetry.Counter
}

var _ PassMetrics = (*OTelMetrics)(nil)

// NewOTelMetrics registers the billing instruments on meter
func NewOTelMetrics(meter metric.Meter) (*OTelMetrics, error) {
	passes, err := telemetry.NewCounter(meter, "kost.billing.passes", "Billing passes run", "{pass}")
	if err != nil {
		return nil, err
	}
	passDuration, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "kost.billing.pass.duration",
		Description: "Billing pass wall time",
		Unit:        "s",
		Boundaries:  telemetry.PassDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	tenantOutcomes, err := telemetry.NewCounter(meter, "kost.billing.tenant.outcomes", "Per-tenant billing outcomes", "{tenant}")
	if err != nil {
		return nil, err
	}
	invoicesIssued, err := telemetry.NewCounter(meter, "kost.billing.invoices.issued", "Invoices issued by billing passes", "{invoice}")
	if err != nil {
		return nil, err
	}

	return &OTelMetrics{
		passes:         passes,
		passDuration:   passDuration,
		tenantOutcomes: tenantOutcomes,
		invoicesIssued: invoicesIssued,
	}, nil
}

// RecordOutcome counts one tenant outcome
func (m *OTelMetrics) RecordOutcome(ctx context.Context, outcome Outcome) {
	m.tenantOutcomes.Inc(ctx, telemetry.AttrOutcome.String(string(outcome)))
	if outcome == OutcomeIssued {
		m.invoicesIssued.Inc(ctx)
	}
}

// RecordPass counts a finished pass and its duration
func (m *OTelMetrics) RecordPass(ctx context.Context, trigger string, duration time.Duration, failed bool) {
	status := "completed"
	if failed {
		status = "failed"
	}
	attrs := []attribute.KeyValue{telemetry.AttrTrigger.String(trigger), telemetry.AttrStatus.String(status)}
	m.passes.Inc(ctx, attrs...)
	m.passDuration.RecordDuration(ctx, duration, attrs...)
}
