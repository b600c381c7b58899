// Package telemetry exports traces over OTLP HTTP when enabled.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/rxscan/rxscan/pkg/build"
	"github.com/rxscan/rxscan/pkg/config"
)

const (
	// DefaultTracesEndpoint is a local OTLP HTTP collector.
	DefaultTracesEndpoint = "localhost:4318"
	ServiceName           = "rxscan"
)

func noopShutdown(context.Context) error { return nil }

// Setup installs a global tracer provider. Tracing stays a no-op unless
// cfg.Enabled is set. The returned shutdown func flushes pending spans and
// must be called on exit.
func Setup(ctx context.Context, cfg config.TelemetryConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return noopShutdown, nil
	}
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return nil, fmt.Errorf("telemetry sample ratio must be in [0, 1], got %v", cfg.SampleRatio)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultTracesEndpoint
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			attribute.String("service.name", ServiceName),
			attribute.String("service.version", build.Version),
			attribute.String("vcs.revision", build.Commit),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("describing telemetry resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		return errors.Join(tp.ForceFlush(ctx), tp.Shutdown(ctx))
	}, nil
}

// ConfigFromEnv reads the RXSCAN_TELEMETRY_* variables. Telemetry starts
// before the command line and config file are parsed, so only the
// environment can configure it.
func ConfigFromEnv() config.TelemetryConfig {
	v := viper.New()
	v.SetEnvPrefix("RXSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("telemetry.sample_ratio", config.DefaultSampleRatio)
	return config.TelemetryConfig{
		Enabled:     v.GetBool("telemetry.enabled"),
		Endpoint:    v.GetString("telemetry.endpoint"),
		Insecure:    v.GetBool("telemetry.insecure"),
		SampleRatio: v.GetFloat64("telemetry.sample_ratio"),
	}
}
