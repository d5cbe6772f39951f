package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/itsneelabh/weave/pkg/core"
)

// Provider owns the tracer and meter providers used by the agent.
type Provider struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  metric.MeterProvider
	resource       *resource.Resource
}

// ProviderOption configures NewProvider.
type ProviderOption func(*providerOptions)

type providerOptions struct {
	stdout io.Writer
}

// WithStdoutWriter redirects the stdout exporter, mainly for tests.
func WithStdoutWriter(w io.Writer) ProviderOption {
	return func(o *providerOptions) { o.stdout = w }
}

// NewProvider builds providers from cfg. When telemetry is disabled spans are
// still created, so trace ids propagate, but nothing is exported.
func NewProvider(ctx context.Context, cfg core.TelemetryConfig, opts ...ProviderOption) (*Provider, error) {
	po := providerOptions{stdout: os.Stdout}
	for _, opt := range opts {
		opt(&po)
	}
	if os.Getenv("OTEL_SDK_DISABLED") == "true" {
		cfg.Enabled = false
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "weave"
	}
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(getServiceVersion()),
		semconv.DeploymentEnvironmentKey.String(getEnvironment()),
		attribute.String("weave.component", "agent"),
	)

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFromEnv()),
	}
	if cfg.Enabled {
		exporter, err := newExporter(ctx, cfg, po)
		if err != nil {
			return nil, err
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}

	return &Provider{
		TracerProvider: sdktrace.NewTracerProvider(tpOpts...),
		MeterProvider:  otel.GetMeterProvider(),
		resource:       res,
	}, nil
}

func newExporter(ctx context.Context, cfg core.TelemetryConfig, po providerOptions) (sdktrace.SpanExporter, error) {
	switch {
	case cfg.Endpoint != "":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		return exp, nil
	case cfg.Stdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(po.stdout))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		return exp, nil
	}
	return nil, core.NewWeaveError("telemetry.NewProvider", "config",
		fmt.Errorf("%w: telemetry enabled without endpoint or stdout", core.ErrInvalidConfiguration))
}

// Install makes p the global provider and sets the W3C propagator.
func (p *Provider) Install() {
	otel.SetTracerProvider(p.TracerProvider)
	otel.SetMeterProvider(p.MeterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
}

// Resource returns the resource spans are tagged with.
func (p *Provider) Resource() *resource.Resource { return p.resource }

// Shutdown flushes and stops the tracer provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.TracerProvider == nil {
		return nil
	}
	if err := p.TracerProvider.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}
	return nil
}

func samplerFromEnv() sdktrace.Sampler {
	if os.Getenv("OTEL_TRACES_SAMPLER") == "traceidratio" {
		if ratio, err := strconv.ParseFloat(os.Getenv("OTEL_TRACES_SAMPLER_ARG"), 64); err == nil {
			return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
		}
	}
	return sdktrace.ParentBased(sdktrace.AlwaysSample())
}

func getServiceVersion() string {
	if version := os.Getenv("OTEL_SERVICE_VERSION"); version != "" {
		return version
	}
	return core.Version
}

func getEnvironment() string {
	if env := os.Getenv("DEPLOYMENT_ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}
