package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/legalsandbox/research-backend/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

type appMetrics struct {
	loginCounter    metric.Int64Counter
	tokenCounter    metric.Int64Counter
	lookupCounter   metric.Int64Counter
	sweepCounter    metric.Int64Counter
	sweepEvictions  metric.Int64Counter
	uploadCounter   metric.Int64Counter
	llmCounter      metric.Int64Counter
	repoCounter     metric.Int64Counter
	rateLimitEvents metric.Int64Counter
}

var (
	metricsMu sync.RWMutex
	metrics   *appMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	meter := mp.Meter("legal-research-sandbox")
	m := &appMetrics{}
	for _, c := range []struct {
		name string
		dst  *metric.Int64Counter
	}{
		{"auth.login.attempts", &m.loginCounter},
		{"auth.token.validations", &m.tokenCounter},
		{"session.store.lookups", &m.lookupCounter},
		{"session.sweep.cycles", &m.sweepCounter},
		{"session.sweep.evictions", &m.sweepEvictions},
		{"documents.upload.attempts", &m.uploadCounter},
		{"llm.chat.requests", &m.llmCounter},
		{"repository.operations", &m.repoCounter},
		{"ratelimit.decisions", &m.rateLimitEvents},
	} {
		counter, err := meter.Int64Counter(c.name)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	metricsMu.Lock()
	metrics = m
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func current() *appMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return metrics
}

func RecordAuthLogin(status string) {
	if m := current(); m != nil {
		m.loginCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

// RecordTokenValidation distinguishes internal failure kinds (missing,
// invalid, expired, session_gone, valid) that the HTTP surface deliberately
// collapses into one response.
func RecordTokenValidation(outcome string) {
	if m := current(); m != nil {
		m.tokenCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func RecordSessionLookup(by, outcome string) {
	if m := current(); m != nil {
		m.lookupCounter.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("by", by),
			attribute.String("outcome", outcome),
		))
	}
}

func RecordSweepCycle(outcome string, evicted int) {
	m := current()
	if m == nil {
		return
	}
	m.sweepCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if evicted > 0 {
		m.sweepEvictions.Add(context.Background(), int64(evicted))
	}
}

func RecordDocumentUpload(status string) {
	if m := current(); m != nil {
		m.uploadCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

func RecordLLMRequest(status string) {
	if m := current(); m != nil {
		m.llmCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

func RecordRepositoryOperation(entity, operation, outcome string) {
	if m := current(); m != nil {
		m.repoCounter.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("entity", entity),
			attribute.String("operation", operation),
			attribute.String("outcome", outcome),
		))
	}
}

func RecordRateLimitDecision(scope, decision string) {
	if m := current(); m != nil {
		m.rateLimitEvents.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("scope", scope),
			attribute.String("decision", decision),
		))
	}
}
