// Package telemetry wires the engine's OpenTelemetry providers and collects
// isolated weaving failures.
//
// # Providers
//
// NewProvider builds a TracerProvider from core.TelemetryConfig. With an
// endpoint, spans are exported over OTLP/gRPC; with Stdout, they are written
// as JSON to standard output. When telemetry is disabled spans are still
// sampled so trace ids propagate, but nothing leaves the process.
//
//	p, err := telemetry.NewProvider(ctx, cfg.Telemetry)
//	if err != nil {
//	    return err
//	}
//	p.Install()
//	defer p.Shutdown(ctx)
//
// Environment variables honored on top of the config:
//   - OTEL_SDK_DISABLED=true: never export
//   - OTEL_TRACES_SAMPLER=traceidratio with OTEL_TRACES_SAMPLER_ARG
//   - OTEL_SERVICE_VERSION, DEPLOYMENT_ENVIRONMENT: resource attributes
//
// # Diagnostics
//
// Failures the engine isolates instead of propagating (unanalyzable classes,
// hierarchy cycles, unavailable advice bindings, failed weave generation)
// are reported to a Diagnostics collector. It keeps the most recent entries
// and counts all of them by Category. Handler serves the collector as JSON.
package telemetry
