package extraction

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/dealsense/internal/extraction"

// Metrics holds extraction pipeline metrics.
type Metrics struct {
	meter             metric.Meter
	logger            *zap.Logger
	extractionsTotal  metric.Int64Counter
	extractionLatency metric.Float64Histogram
	llmCallsTotal     metric.Int64Counter
	llmFallbacksTotal metric.Int64Counter
	tokensUsed        metric.Int64Counter
}

// NewMetrics creates a Metrics instance on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.extractionsTotal, err = m.meter.Int64Counter(
		"dealsense.extraction.runs_total",
		metric.WithDescription("Extraction runs labeled by resolved method (pattern, llm, hybrid)."),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		m.logger.Warn("failed to create extractions counter", zap.Error(err))
	}

	m.extractionLatency, err = m.meter.Float64Histogram(
		"dealsense.extraction.latency_seconds",
		metric.WithDescription("End-to-end extraction latency in seconds, labeled by method."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		m.logger.Warn("failed to create latency histogram", zap.Error(err))
	}

	m.llmCallsTotal, err = m.meter.Int64Counter(
		"dealsense.extraction.llm_calls_total",
		metric.WithDescription("LLM tool calls labeled by tool (analyze, cluster, roles) and outcome (ok, error)."),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		m.logger.Warn("failed to create llm calls counter", zap.Error(err))
	}

	m.llmFallbacksTotal, err = m.meter.Int64Counter(
		"dealsense.extraction.llm_fallbacks_total",
		metric.WithDescription("LLM failures that degraded to the pattern baseline, labeled by tool."),
		metric.WithUnit("{fallback}"),
	)
	if err != nil {
		m.logger.Warn("failed to create fallbacks counter", zap.Error(err))
	}

	m.tokensUsed, err = m.meter.Int64Counter(
		"dealsense.extraction.tokens_total",
		metric.WithDescription("Tokens consumed by LLM calls, labeled by kind (prompt, completion)."),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		m.logger.Warn("failed to create tokens counter", zap.Error(err))
	}
}

// RecordExtraction records one completed extraction run.
func (m *Metrics) RecordExtraction(ctx context.Context, method Method, latencySeconds float64) {
	attrs := metric.WithAttributes(attribute.String("method", string(method)))
	if m.extractionsTotal != nil {
		m.extractionsTotal.Add(ctx, 1, attrs)
	}
	if m.extractionLatency != nil {
		m.extractionLatency.Record(ctx, latencySeconds, attrs)
	}
}

// RecordLLMCall records one LLM tool call outcome.
func (m *Metrics) RecordLLMCall(ctx context.Context, tool string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if m.llmFallbacksTotal != nil {
			m.llmFallbacksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
		}
	}
	if m.llmCallsTotal != nil {
		m.llmCallsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("outcome", outcome),
		))
	}
}

// RecordTokens records token consumption.
func (m *Metrics) RecordTokens(ctx context.Context, prompt, completion int) {
	if m.tokensUsed == nil {
		return
	}
	if prompt > 0 {
		m.tokensUsed.Add(ctx, int64(prompt), metric.WithAttributes(attribute.String("kind", "prompt")))
	}
	if completion > 0 {
		m.tokensUsed.Add(ctx, int64(completion), metric.WithAttributes(attribute.String("kind", "completion")))
	}
}
