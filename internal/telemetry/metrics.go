// Package telemetry exposes the engine's OpenTelemetry instruments.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/ppiankov/iocscore"

const (
	metricScoresTotal        = "iocscore_scores_total"
	metricScoreDuration      = "iocscore_score_duration_seconds"
	metricCacheLookups       = "iocscore_cache_lookups_total"
	metricDegradedTotal      = "iocscore_explanations_degraded_total"
	metricSchemaMismatch     = "iocscore_schema_mismatch_total"
	metricRulesReloads       = "iocscore_rules_reloads_total"
	metricImportRecordsTotal = "iocscore_import_records_total"
)

// Metrics groups the instruments. A nil *Metrics records nothing.
type Metrics struct {
	scores         metric.Int64Counter
	scoreDuration  metric.Float64Histogram
	cacheLookups   metric.Int64Counter
	degraded       metric.Int64Counter
	schemaMismatch metric.Int64Counter
	rulesReloads   metric.Int64Counter
	importRecords  metric.Int64Counter
}

// New creates the instruments on mp; a nil provider uses the global one.
// Instruments that fail to register are reported to otel.Handle and skipped.
func New(mp metric.MeterProvider) *Metrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)
	m := &Metrics{}

	m.scores = counter(meter, metricScoresTotal, "Indicators scored, by status and tier")
	m.cacheLookups = counter(meter, metricCacheLookups, "Result cache lookups, by result")
	m.degraded = counter(meter, metricDegradedTotal, "Explanations returned partial because attribution failed")
	m.schemaMismatch = counter(meter, metricSchemaMismatch, "Calls rejected for feature schema drift")
	m.rulesReloads = counter(meter, metricRulesReloads, "Rules document reload attempts, by result")
	m.importRecords = counter(meter, metricImportRecordsTotal, "Batch import records, by result")

	if hist, err := meter.Float64Histogram(
		metricScoreDuration,
		metric.WithDescription("Time spent computing an uncached assessment"),
		metric.WithUnit("s"),
	); err != nil {
		otel.Handle(err)
	} else {
		m.scoreDuration = hist
	}

	return m
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		otel.Handle(err)
		return nil
	}
	return c
}

func add(ctx context.Context, c metric.Int64Counter, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// Scored counts one computed assessment
func (m *Metrics) Scored(ctx context.Context, status, tier string, elapsed time.Duration) {
	if m == nil {
		return
	}
	add(ctx, m.scores, attribute.String("status", status), attribute.String("tier", tier))
	if m.scoreDuration != nil {
		if elapsed < 0 {
			elapsed = 0
		}
		m.scoreDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("status", status)))
	}
}

// CacheLookup counts a cache hit or miss
func (m *Metrics) CacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	add(ctx, m.cacheLookups, attribute.String("result", result))
}

func (m *Metrics) ExplanationDegraded(ctx context.Context) {
	if m == nil {
		return
	}
	add(ctx, m.degraded)
}

func (m *Metrics) SchemaMismatch(ctx context.Context, modelVersion string) {
	if m == nil {
		return
	}
	add(ctx, m.schemaMismatch, attribute.String("model_version", modelVersion))
}

// RulesReloaded counts a hot reload attempt
func (m *Metrics) RulesReloaded(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	add(ctx, m.rulesReloads, attribute.Bool("success", ok))
}

// ImportRecord counts one batch line by outcome: scored, duplicate, invalid, failed
func (m *Metrics) ImportRecord(ctx context.Context, result string) {
	if m == nil {
		return
	}
	add(ctx, m.importRecords, attribute.String("result", result))
}
