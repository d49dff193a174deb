package tracing

import (
	"context"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"surveydesk-go/internal/config"
	"surveydesk-go/internal/constants"
)

const tracerName = "surveydesk-go"

// Service names reported in span resources.
const (
	ServiceClient    = "surveydesk"
	ServiceDevServer = "surveydesk-devserver"
)

// Options selects where spans go. Exporter, when set, wins over Endpoint and
// receives every span synchronously as it ends.
type Options struct {
	Service     string
	Endpoint    string
	Insecure    bool
	SampleRatio float64
	Exporter    sdktrace.SpanExporter
}

// ShutdownFunc flushes pending spans and restores the previous provider.
type ShutdownFunc func(context.Context) error

var mu sync.Mutex

// OptionsFromConfig reads the tracing section, falling back to the standard
// OTEL_EXPORTER_OTLP_ENDPOINT variable.
func OptionsFromConfig(cfg *config.Config, service string) Options {
	endpoint := strings.TrimSpace(cfg.Tracing.Endpoint)
	if endpoint == "" {
		endpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	}
	return Options{
		Service:     service,
		Endpoint:    endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	}
}

// Init installs a global tracer provider and the W3C trace-context
// propagator. With no exporter and no endpoint it does nothing and returns a
// no-op shutdown.
func Init(ctx context.Context, opts Options) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }

	var export sdktrace.TracerProviderOption
	if opts.Exporter != nil {
		export = sdktrace.WithSyncer(opts.Exporter)
	} else {
		if opts.Endpoint == "" {
			return noop, nil
		}
		grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.Endpoint)}
		if opts.Insecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, grpcOpts...)
		if err != nil {
			return noop, err
		}
		export = sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(5*time.Second))
	}

	service := opts.Service
	if service == "" {
		service = ServiceClient
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", service),
			attribute.String("service.version", constants.Version),
			attribute.String("service.instance.id", hostname()),
		),
		resource.WithTelemetrySDK(),
		resource.WithFromEnv(),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		export,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(opts.SampleRatio)),
	)

	mu.Lock()
	prevProvider := otel.GetTracerProvider()
	prevPropagator := otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	mu.Unlock()

	log.WithFields(log.Fields{"service": service, "endpoint": opts.Endpoint}).Debug("tracing enabled")

	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			err = tp.Shutdown(ctx)
			mu.Lock()
			otel.SetTracerProvider(prevProvider)
			otel.SetTextMapPropagator(prevPropagator)
			mu.Unlock()
		})
		return err
	}, nil
}

// sampler samples everything unless a ratio in (0,1) is configured; child
// spans follow their parent's decision.
func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// Tracer returns a named tracer from the global provider.
func Tracer(component string) trace.Tracer {
	name := tracerName
	if strings.TrimSpace(component) != "" {
		name = name + "/" + component
	}
	return otel.Tracer(name)
}

// StartSpan is a convenience wrapper around Tracer(component).Start.
func StartSpan(ctx context.Context, component, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer(component).Start(ctx, spanName, opts...)
}

// Inject writes the span context of ctx into outgoing request headers.
func Inject(ctx context.Context, h http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(h))
}

// Extract returns ctx carrying the remote span context found in h.
func Extract(ctx context.Context, h http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(h))
}

func hostname() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "unknown"
}
