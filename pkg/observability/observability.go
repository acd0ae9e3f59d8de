// Package observability holds the Prometheus collectors and the tracer shared
// by the import pipelines.
package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	TracerName = "deposit-recon.import"
	namespace  = "deposit_recon"

	PipelineDeposit = "deposit"
	PipelineShopify = "shopify"
)

// Metrics groups the import counters. A nil *Metrics is valid and records
// nothing, so engine callers never need a registry.
type Metrics struct {
	filesParsed   *prometheus.CounterVec
	invalidCells  *prometheus.CounterVec
	parseDuration *prometheus.HistogramVec
	calculations  *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		filesParsed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_parsed_total",
			Help:      "Uploaded files processed, by pipeline and outcome.",
		}, []string{"pipeline", "outcome"}),
		invalidCells: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_cells_total",
			Help:      "Numeric cells that could not be parsed and were counted as zero.",
		}, []string{"pipeline"}),
		parseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "parse_duration_seconds",
			Help:      "Time spent decoding and extracting an uploaded file.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"pipeline"}),
		calculations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_total",
			Help:      "Deposit total calculations, by tax method.",
		}, []string{"tax_method"}),
	}
}

// ObserveParse records the outcome and latency of one file.
func (m *Metrics) ObserveParse(pipeline string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.filesParsed.WithLabelValues(pipeline, outcome).Inc()
	m.parseDuration.WithLabelValues(pipeline).Observe(time.Since(started).Seconds())
}

// AddInvalidCells counts cells degraded to zero.
func (m *Metrics) AddInvalidCells(pipeline string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.invalidCells.WithLabelValues(pipeline).Add(float64(n))
}

// ObserveCalculation counts one totals run.
func (m *Metrics) ObserveCalculation(taxMethod string) {
	if m == nil {
		return
	}
	if taxMethod == "" {
		taxMethod = "none"
	}
	m.calculations.WithLabelValues(taxMethod).Inc()
}

// StartSpan starts an internal span on the package tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
