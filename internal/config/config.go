package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string
	LogLevel string

	HTTPAddr            string
	HTTPReadTimeout     time.Duration
	HTTPWriteTimeout    time.Duration
	HTTPShutdownTimeout time.Duration
	HTTPBodyLimitBytes  int64
	CORSAllowedOrigins  []string
	RateLimitPerMinute  int

	DatabaseDriver       string
	DatabaseDSN          string
	DatabaseQueryTimeout time.Duration
	DatabaseMaxOpenConns int
	DatabaseMaxIdleConns int
	DatabaseDebug        bool

	SessionDocumentLimitBytes int
	SessionIdleTimeout        time.Duration
	SessionSweepInterval      time.Duration
	SessionSweepEnabled       bool

	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	DisplayCacheTTL time.Duration

	JWTIssuer       string
	JWTAudience     string
	JWTAccessSecret string
	JWTAccessTTL    time.Duration

	ChromeExecutablePath string
	ExportRenderTimeout  time.Duration
	ExportMaxSessions    int

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELMetricsExportInterval time.Duration
	OTELTracingEnabled        bool
	OTELTraceSamplingRatio    float64
	OTELLogsEnabled           bool
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "test"
}

// Load reads the optional .env file, then the process environment.
func Load() (*Config, error) {
	source := "dotenv"
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("load .env: %w", err)
			recordConfigLoadEvent(context.Background(), os.Getenv("APP_ENV"), source, "error", classifyConfigLoadError(err))
			return nil, err
		}
		source = "env"
	}
	cfg, err := fromEnv(os.Getenv)
	if err != nil {
		recordConfigLoadEvent(context.Background(), os.Getenv("APP_ENV"), source, "error", classifyConfigLoadError(err))
		return nil, err
	}
	recordConfigLoadEvent(context.Background(), cfg.AppEnv, source, "success", "none")
	return cfg, nil
}

func fromEnv(getenv func(string) string) (*Config, error) {
	p := envParser{getenv: getenv}
	cfg := &Config{
		AppEnv:   strings.ToLower(p.str("APP_ENV", "development")),
		LogLevel: p.str("LOG_LEVEL", "info"),

		HTTPAddr:            p.str("HTTP_ADDR", ":8080"),
		HTTPReadTimeout:     p.duration("HTTP_READ_TIMEOUT", 30*time.Second),
		HTTPWriteTimeout:    p.duration("HTTP_WRITE_TIMEOUT", 90*time.Second),
		HTTPShutdownTimeout: p.duration("HTTP_SHUTDOWN_TIMEOUT", 15*time.Second),
		HTTPBodyLimitBytes:  int64(p.integer("HTTP_BODY_LIMIT_BYTES", 64<<20)),
		CORSAllowedOrigins:  p.list("CORS_ALLOWED_ORIGINS", nil),
		RateLimitPerMinute:  p.integer("RATE_LIMIT_PER_MINUTE", 600),

		DatabaseDriver:       strings.ToLower(p.str("DATABASE_DRIVER", "postgres")),
		DatabaseDSN:          p.str("DATABASE_DSN", ""),
		DatabaseQueryTimeout: p.duration("DATABASE_QUERY_TIMEOUT", 20*time.Second),
		DatabaseMaxOpenConns: p.integer("DATABASE_MAX_OPEN_CONNS", 20),
		DatabaseMaxIdleConns: p.integer("DATABASE_MAX_IDLE_CONNS", 5),
		DatabaseDebug:        p.boolean("DATABASE_DEBUG", false),

		SessionDocumentLimitBytes: p.integer("SESSION_DOCUMENT_LIMIT_BYTES", 16*1024*1024),
		SessionIdleTimeout:        p.duration("SESSION_IDLE_TIMEOUT", 75*time.Minute),
		SessionSweepInterval:      p.duration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
		SessionSweepEnabled:       p.boolean("SESSION_SWEEP_ENABLED", true),

		RedisAddr:       p.str("REDIS_ADDR", ""),
		RedisPassword:   p.str("REDIS_PASSWORD", ""),
		RedisDB:         p.integer("REDIS_DB", 0),
		DisplayCacheTTL: p.duration("DISPLAY_CACHE_TTL", 10*time.Minute),

		JWTIssuer:       p.str("JWT_ISSUER", "sensei-api"),
		JWTAudience:     p.str("JWT_AUDIENCE", "sensei-clients"),
		JWTAccessSecret: p.str("JWT_ACCESS_SECRET", ""),
		JWTAccessTTL:    p.duration("JWT_ACCESS_TTL", 12*time.Hour),

		ChromeExecutablePath: p.str("CHROME_EXECUTABLE_PATH", ""),
		ExportRenderTimeout:  p.duration("EXPORT_RENDER_TIMEOUT", 30*time.Second),
		ExportMaxSessions:    p.integer("EXPORT_MAX_SESSIONS", 5000),

		OTELServiceName:           p.str("OTEL_SERVICE_NAME", "sensei-api"),
		OTELExporterOTLPEndpoint:  p.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure:  p.boolean("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELMetricsEnabled:        p.boolean("OTEL_METRICS_ENABLED", false),
		OTELMetricsExportInterval: p.duration("OTEL_METRICS_EXPORT_INTERVAL", 15*time.Second),
		OTELTracingEnabled:        p.boolean("OTEL_TRACING_ENABLED", false),
		OTELTraceSamplingRatio:    p.float("OTEL_TRACE_SAMPLING_RATIO", 1.0),
		OTELLogsEnabled:           p.boolean("OTEL_LOGS_ENABLED", false),
	}
	cfg.OTELEnvironment = p.str("OTEL_ENVIRONMENT", cfg.AppEnv)
	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var problems []string
	switch c.AppEnv {
	case "development", "staging", "production", "test":
	default:
		problems = append(problems, fmt.Sprintf("APP_ENV %q is not one of development|staging|production|test", c.AppEnv))
	}
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("DATABASE_DRIVER %q is not one of postgres|sqlite", c.DatabaseDriver))
	}
	if c.DatabaseDSN == "" {
		problems = append(problems, "DATABASE_DSN is required")
	}
	if len(c.JWTAccessSecret) < 32 {
		problems = append(problems, "JWT_ACCESS_SECRET must be at least 32 characters")
	}
	if c.SessionDocumentLimitBytes <= 0 {
		problems = append(problems, "SESSION_DOCUMENT_LIMIT_BYTES must be positive")
	}
	if c.SessionIdleTimeout <= 0 || c.SessionSweepInterval <= 0 {
		problems = append(problems, "SESSION_IDLE_TIMEOUT and SESSION_SWEEP_INTERVAL must be positive")
	}
	if c.ExportRenderTimeout <= 0 {
		problems = append(problems, "EXPORT_RENDER_TIMEOUT must be positive")
	}
	if c.OTELTraceSamplingRatio < 0 || c.OTELTraceSamplingRatio > 1 {
		problems = append(problems, "OTEL_TRACE_SAMPLING_RATIO must be within [0,1]")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ValidationError lists every configuration problem found in one pass.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string { return strings.Join(e.Problems, "; ") }

// envParser keeps the first parse failure so fromEnv can read every key
// before reporting.
type envParser struct {
	getenv func(string) string
	err    error
}

func (p *envParser) lookup(key string) (string, bool) {
	v := strings.TrimSpace(p.getenv(key))
	return v, v != ""
}

func (p *envParser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("parse %s: %w", key, err)
	}
}

func (p *envParser) str(key, def string) string {
	if v, ok := p.lookup(key); ok {
		return v
	}
	return def
}

func (p *envParser) integer(key string, def int) int {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return n
}

func (p *envParser) float(key string, def float64) float64 {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return f
}

func (p *envParser) boolean(key string, def bool) bool {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return b
}

func (p *envParser) duration(key string, def time.Duration) time.Duration {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return d
}

func (p *envParser) list(key string, def []string) []string {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
