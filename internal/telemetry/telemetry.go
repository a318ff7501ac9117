package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "fleetmap"

// Version is reported as the service version on exported spans.
var Version = "dev"

// Span exporters.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// TraceConfig selects how spans are sampled and where they go.
type TraceConfig struct {
	Exporter    string  `yaml:"exporter" env:"FLEETMAP_TRACE_EXPORTER" env-default:"stdout"`
	SampleRatio float64 `yaml:"sample_ratio" env:"FLEETMAP_TRACE_SAMPLE" env-default:"1"`
	Pretty      bool    `yaml:"pretty" env:"FLEETMAP_TRACE_PRETTY"`
}

// Validate rejects unknown exporters and ratios outside [0, 1].
func (c TraceConfig) Validate() error {
	switch c.Exporter {
	case "", ExporterNone, ExporterStdout:
	default:
		return fmt.Errorf("unknown trace exporter %q", c.Exporter)
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("trace sample ratio %v out of range [0, 1]", c.SampleRatio)
	}
	return nil
}

// InitTracer installs the global tracer provider described by cfg and returns
// its shutdown function. The stdout exporter writes to out, or os.Stdout when
// out is nil. With no exporter spans are still created for propagation but
// never recorded.
func InitTracer(cfg TraceConfig, out io.Writer) (func(context.Context) error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	otel.SetTextMapPropagator(propagation.TraceContext{})

	if cfg.Exporter == "" || cfg.Exporter == ExporterNone {
		tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample()))
		otel.SetTracerProvider(tp)
		return tp.Shutdown, nil
	}

	if out == nil {
		out = os.Stdout
	}
	opts := []stdouttrace.Option{stdouttrace.WithWriter(out)}
	if cfg.Pretty {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("stdout exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(Version),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns the tracer used by core services.
func Tracer() trace.Tracer {
	return otel.Tracer(serviceName)
}
