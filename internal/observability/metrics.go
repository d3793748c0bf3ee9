package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sensei-edu/sensei-api/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type AppMetrics struct {
	repositoryOps   metric.Int64Counter
	sessionUpdates  metric.Int64Counter
	overflowEvents  metric.Int64Counter
	exportRequests  metric.Int64Counter
	displayLookups  metric.Int64Counter
	sessionsExpired metric.Int64Counter
	tokenChecks     metric.Int64Counter
	rateLimits      metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
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
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	m, err := newAppMetrics(mp.Meter("sensei-api"))
	if err != nil {
		return nil, err
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	names := []string{
		"repository.operations",
		"teacher_session.updates",
		"teacher_session.overflow.events",
		"teacher_session.exports",
		"taxonomy.display.lookups",
		"teacher_session.expired",
		"auth.access_token.validations",
		"http.rate_limit.decisions",
	}
	counters := make([]metric.Int64Counter, len(names))
	for i, name := range names {
		c, err := meter.Int64Counter(name)
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", name, err)
		}
		counters[i] = c
	}
	return &AppMetrics{
		repositoryOps:   counters[0],
		sessionUpdates:  counters[1],
		overflowEvents:  counters[2],
		exportRequests:  counters[3],
		displayLookups:  counters[4],
		sessionsExpired: counters[5],
		tokenChecks:     counters[6],
		rateLimits:      counters[7],
	}, nil
}

func currentMetrics() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordRepositoryOperation(ctx context.Context, repo, op, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.repositoryOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("repository", repo),
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

func RecordSessionUpdate(ctx context.Context, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.sessionUpdates.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordOverflowStage counts one attempt of the overflow ladder.
func RecordOverflowStage(ctx context.Context, stage, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.overflowEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("outcome", outcome),
	))
}

func RecordExport(ctx context.Context, scope, format, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.exportRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("format", format),
		attribute.String("outcome", outcome),
	))
}

func RecordDisplayLookup(ctx context.Context, kind, source string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.displayLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("source", source),
	))
}

func RecordSessionsExpired(ctx context.Context, count int) {
	m := currentMetrics()
	if m == nil || count <= 0 {
		return
	}
	m.sessionsExpired.Add(ctx, int64(count))
}

func RecordAccessTokenValidation(ctx context.Context, outcome, source string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.tokenChecks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("source", source),
	))
}

func RecordRateLimitDecision(ctx context.Context, scope, decision, keyType string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.rateLimits.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("decision", decision),
		attribute.String("key_type", keyType),
	))
}
