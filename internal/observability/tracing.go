package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of hookgate spans.
const TracerName = "github.com/hookgate/hookgate"

// Tracer returns the hookgate tracer from the global provider. Without an
// installed SDK provider the spans are no-ops.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// TraceID returns the trace ID of the active span, or "".
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// TracingOptions configure the SDK tracer provider.
type TracingOptions struct {
	ServiceName string
	Version     string
	// Exporter is "stdout" or "none".
	Exporter    string
	SampleRatio float64
	// Writer receives stdout exporter output. Nil means os.Stderr.
	Writer io.Writer
}

// NewTracerProvider builds an SDK provider that samples root spans at
// SampleRatio and follows the parent's decision otherwise.
func NewTracerProvider(opts TracingOptions) (*sdktrace.TracerProvider, error) {
	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", opts.ServiceName),
			attribute.String("service.version", opts.Version),
		)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRatio))),
	}

	switch strings.ToLower(strings.TrimSpace(opts.Exporter)) {
	case "", "stdout":
		w := opts.Writer
		if w == nil {
			w = os.Stderr
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout trace exporter: %w", err)
		}
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter))
	case "none":
	default:
		return nil, fmt.Errorf("unsupported trace exporter %q", opts.Exporter)
	}

	return sdktrace.NewTracerProvider(providerOpts...), nil
}

// InitTracing installs the SDK provider globally. The returned func flushes
// pending spans and stops the provider.
func InitTracing(opts TracingOptions) (func(context.Context) error, error) {
	tp, err := NewTracerProvider(opts)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
