package observability

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultServiceName is reported when no service name is configured.
	DefaultServiceName  = "adminrest-service"
	instrumentationName = "github.com/nlstn/go-adminrest"
)

// Config holds the telemetry providers and the instruments built from them.
type Config struct {
	tracerProvider    trace.TracerProvider
	meterProvider     metric.MeterProvider
	serviceName       string
	serviceVersion    string
	logger            *slog.Logger
	detailedDBTracing bool
	serverTiming      bool

	tracer  *Tracer
	metrics *Metrics
}

// Option configures a Config.
type Option func(*Config)

// WithTracerProvider sets the tracer provider. The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Config) {
		c.tracerProvider = tp
	}
}

// WithMeterProvider sets the meter provider. The global provider is used otherwise.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Config) {
		c.meterProvider = mp
	}
}

// WithServiceName sets the service name reported on spans.
func WithServiceName(name string) Option {
	return func(c *Config) {
		c.serviceName = name
	}
}

// WithServiceVersion sets the instrumentation version.
func WithServiceVersion(version string) Option {
	return func(c *Config) {
		c.serviceVersion = version
	}
}

// WithLogger sets the logger used for instrumentation failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithDetailedDBTracing creates a span for every GORM statement.
func WithDetailedDBTracing() Option {
	return func(c *Config) {
		c.detailedDBTracing = true
	}
}

// WithServerTiming enables the Server-Timing response header.
func WithServerTiming() Option {
	return func(c *Config) {
		c.serverTiming = true
	}
}

// NewConfig applies opts over the defaults. Call Initialize before use.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		serviceName: DefaultServiceName,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Initialize creates the tracer and the metric instruments.
func (c *Config) Initialize() error {
	if c.tracerProvider == nil {
		c.tracerProvider = otel.GetTracerProvider()
	}
	if c.meterProvider == nil {
		c.meterProvider = otel.GetMeterProvider()
	}

	c.tracer = newTracer(c.tracerProvider, c.serviceName, c.serviceVersion)

	metrics, err := newMetrics(c.meterProvider, c.serviceVersion)
	if err != nil {
		return fmt.Errorf("failed to create metric instruments: %w", err)
	}
	c.metrics = metrics
	return nil
}

// Tracer returns the span factory. It is nil before Initialize.
func (c *Config) Tracer() *Tracer {
	return c.tracer
}

// Metrics returns the metric instruments. It is nil before Initialize.
func (c *Config) Metrics() *Metrics {
	return c.metrics
}

// Logger returns the configured logger.
func (c *Config) Logger() *slog.Logger {
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// DetailedDBTracing reports whether statement spans are enabled.
func (c *Config) DetailedDBTracing() bool {
	return c.detailedDBTracing
}

// ServerTimingEnabled reports whether the Server-Timing header is enabled.
func (c *Config) ServerTimingEnabled() bool {
	return c.serverTiming
}
