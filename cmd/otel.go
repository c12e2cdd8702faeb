package cmd

import (
	"context"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// setupTelemetry installs a process-wide TracerProvider/MeterProvider
// so internal/syncengine's "drain_cycle" span and item counters have a
// provider to attach to. The teacher's own otel bridge
// (webitel-go-kit/infra/otel) is a private module path and not
// importable here (see DESIGN.md); this bootstraps the public SDK
// directly. No exporter is registered and setupTelemetry takes no
// options, so the providers export nothing; adding one (otlp,
// prometheus, ...) means passing sdktrace.WithBatcher /
// sdkmetric.WithReader to the constructors below.
func setupTelemetry() (shutdown func(context.Context) error) {
	tp := sdktrace.NewTracerProvider()
	mp := sdkmetric.NewMeterProvider()
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	return func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return err
		}
		return mp.Shutdown(ctx)
	}
}
