package config

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	loadMetricsOnce sync.Once
	loadCounter     metric.Int64Counter
)

// recordConfigLoadEvent counts Load outcomes per profile. The meter is
// resolved lazily because Load runs before the meter provider is installed.
func recordConfigLoadEvent(ctx context.Context, profile, source, outcome, errorClass string) {
	loadMetricsOnce.Do(func() {
		counter, err := otel.Meter("sensei-api/config").Int64Counter("config.load.events")
		if err == nil {
			loadCounter = counter
		}
	})
	if loadCounter == nil {
		return
	}
	loadCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("profile", normalizeConfigProfile(profile)),
		attribute.String("source", source),
		attribute.String("outcome", outcome),
		attribute.String("error_class", errorClass),
	))
}

func normalizeConfigProfile(profile string) string {
	v := strings.TrimSpace(strings.ToLower(profile))
	if v == "" {
		return "unknown"
	}
	return v
}

func classifyConfigLoadError(err error) string {
	if err == nil {
		return "none"
	}
	var validationErr *ValidationError
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case errors.As(err, &validationErr):
		return "validation"
	case strings.HasPrefix(msg, "parse "):
		return "parse"
	case strings.HasPrefix(msg, "load .env"):
		return "dotenv"
	default:
		return "load"
	}
}
