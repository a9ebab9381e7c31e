package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/sharesphere/spherecore/pkg/config"
	"github.com/sharesphere/spherecore/pkg/logging"
)

const serviceVersion = "0.1.0"

var (
	tracer trace.Tracer
)

type shutdownFunc func(context.Context) error

// Init initializes OpenTelemetry with Jaeger and Prometheus exporters. The
// returned func flushes and stops both.
func Init(cfg *config.TelemetryConfig) (func(), error) {
	if !cfg.Enabled {
		logging.GetLogger().Info("Telemetry disabled")
		return func() {}, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var shutdownFuncs []shutdownFunc

	if cfg.JaegerURL != "" {
		fn, err := initTracing(cfg.JaegerURL, res)
		if err != nil {
			return nil, err
		}
		shutdownFuncs = append(shutdownFuncs, fn)
	}

	if cfg.PrometheusEnabled {
		fn, err := initMetrics(res)
		if err != nil {
			return nil, err
		}
		shutdownFuncs = append(shutdownFuncs, fn)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracer = otel.Tracer(cfg.ServiceName)
	if err := initInstruments(); err != nil {
		return nil, fmt.Errorf("failed to create instruments: %w", err)
	}

	return func() { shutdown(shutdownFuncs) }, nil
}

func initTracing(url string, res *resource.Resource) (shutdownFunc, error) {
	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(url)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	logging.GetLogger().Info("Jaeger exporter initialized", zap.String("url", url))
	return tp.Shutdown, nil
}

// initMetrics registers the meter provider on the default Prometheus
// registerer, which MetricsServer exposes
func initMetrics(res *resource.Resource) (shutdownFunc, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}
	mp := metric.NewMeterProvider(
		metric.WithReader(exporter),
		metric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	logging.GetLogger().Info("Prometheus exporter initialized")
	return mp.Shutdown, nil
}

func shutdown(fns []shutdownFunc) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, fn := range fns {
		if err := func() error {
			ctx, cancel := context.WithTimeout(shutdownCtx, 3*time.Second)
			defer cancel()
			return fn(ctx)
		}(); err != nil {
			logging.GetLogger().Error("Error shutting down telemetry", zap.Error(err))
		}
	}
}

// MetricsServer returns a server exposing /metrics on the Prometheus port, or
// nil when Prometheus export is off
func MetricsServer(cfg *config.TelemetryConfig, host string) *http.Server {
	if !cfg.Enabled || !cfg.PrometheusEnabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, cfg.PrometheusPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Tracer returns the global tracer
func Tracer() trace.Tracer {
	if tracer == nil {
		return noop.NewTracerProvider().Tracer("spherecore")
	}
	return tracer
}

// StartSpan starts a new span
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// EndSpan records err on the span, if any, and ends it
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
