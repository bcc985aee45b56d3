package runtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/loqalabs/loqa-tts/internal/config"
)

func setupTelemetry(cfg config.Config, logger *slog.Logger) (func(context.Context) error, http.Handler, error) {
	ctx := context.Background()
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.RuntimeName),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	traceProvider, err := initTracer(ctx, cfg, res, logger)
	if err != nil {
		return nil, nil, err
	}
	if traceProvider != nil {
		otel.SetTracerProvider(traceProvider)
	}

	meterProvider, metricHandler := initMetrics(res, logger)
	otel.SetMeterProvider(meterProvider)

	shutdown := func(ctx context.Context) error {
		var errs []error
		if err := meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		if traceProvider != nil {
			if err := traceProvider.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	return shutdown, metricHandler, nil
}

// initTracer returns nil when tracing is disabled; the global no-op
// provider stays in place.
func initTracer(ctx context.Context, cfg config.Config, res *resource.Resource, logger *slog.Logger) (*sdktrace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter
	switch cfg.Telemetry.TraceExporter {
	case "otlp":
		endpoint := strings.TrimSpace(cfg.Telemetry.OTLPEndpoint)
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.Telemetry.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, err
		}
		exporter = exp
		logger.Info("telemetry initialized", slog.String("exporter", "otlp"), slog.String("endpoint", endpoint))
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		exporter = exp
		logger.Info("telemetry initialized", slog.String("exporter", "stdout"))
	default:
		return nil, nil
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

func initMetrics(res *resource.Resource, logger *slog.Logger) (*sdkmetric.MeterProvider, http.Handler) {
	registry := promclient.NewRegistry()
	promExporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		logger.Warn("failed to initialize prometheus exporter", slog.String("error", err.Error()))
		return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res)), nil
	}
	meter := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
		sdkmetric.WithResource(res),
	)
	return meter, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
