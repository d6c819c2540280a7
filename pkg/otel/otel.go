// Package otel installs the process-wide tracer provider and the W3C
// propagators that carry MCP request spans into upstream Dify calls.
package otel

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/wilhg/dify-rag-mcp/internal/version"
	"github.com/wilhg/dify-rag-mcp/pkg/errmodel"
)

// Exporter names accepted by Config.Exporter.
const (
	ExporterNone   = ""
	ExporterStdout = "stdout"
)

// Config controls tracing for one server process.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// Exporter is ExporterNone or ExporterStdout. With ExporterNone spans
	// are still created and propagated upstream but never written.
	Exporter string
	// Writer receives stdout exporter output. It defaults to stderr since
	// stdout belongs to the stdio transport.
	Writer io.Writer
	// Upstream is the Dify base URL; its host is recorded on the resource.
	Upstream string
	// Transport is the MCP transport the process serves.
	Transport string
}

// Init configures the global tracer provider and propagator and returns
// a shutdown func that flushes pending spans.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = version.Product
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = version.Version
	}
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}

	res, err := sdkresource.New(ctx,
		sdkresource.WithFromEnv(),
		sdkresource.WithProcess(),
		sdkresource.WithOS(),
		sdkresource.WithAttributes(resourceAttributes(cfg)...),
	)
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	switch cfg.Exporter {
	case ExporterNone:
	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(cfg.Writer), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exp,
			sdktrace.WithMaxExportBatchSize(512),
			sdktrace.WithBatchTimeout(200*time.Millisecond),
		))
	default:
		return nil, errmodel.Configuration("tracing.exporter", fmt.Sprintf("Unknown tracing exporter %q", cfg.Exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

func resourceAttributes(cfg Config) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.Transport != "" {
		attrs = append(attrs, attribute.String("mcp.transport", cfg.Transport))
	}
	// Only the host: paths and query strings stay out of exported spans.
	if u, err := url.Parse(cfg.Upstream); err == nil && u.Host != "" {
		attrs = append(attrs, attribute.String("dify.host", u.Host))
	}
	return attrs
}
