package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
}

// Metrics exposes ledger and settlement instruments.
type Metrics struct {
	commissionTransitions metric.Int64Counter
	payoutRequests        metric.Int64Counter
	payoutCompensations   metric.Int64Counter
	railDispatchDuration  metric.Float64Histogram
	fraudResolutions      metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "commissionrail"
	}
	meter := provider.Meter(name)

	commissionTransitions, err := meter.Int64Counter("commissionrail_commission_transitions_total")
	if err != nil {
		return nil, err
	}
	payoutRequests, err := meter.Int64Counter("commissionrail_payout_requests_total")
	if err != nil {
		return nil, err
	}
	payoutCompensations, err := meter.Int64Counter("commissionrail_payout_compensations_total")
	if err != nil {
		return nil, err
	}
	railDispatchDuration, err := meter.Float64Histogram("commissionrail_rail_dispatch_duration_seconds",
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	fraudResolutions, err := meter.Int64Counter("commissionrail_fraud_resolutions_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		commissionTransitions: commissionTransitions,
		payoutRequests:        payoutRequests,
		payoutCompensations:   payoutCompensations,
		railDispatchDuration:  railDispatchDuration,
		fraudResolutions:      fraudResolutions,
	}, nil
}

func (m *Metrics) RecordCommissionTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("from_status", from),
		attribute.String("to_status", to),
	)
	m.commissionTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPayoutRequest counts payout requests by rail and outcome code.
func (m *Metrics) RecordPayoutRequest(ctx context.Context, methodType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("method_type", methodType),
		attribute.String("outcome", outcome),
	)
	m.payoutRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordCompensation(ctx context.Context, methodType, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("method_type", methodType),
		attribute.String("reason", reason),
	)
	m.payoutCompensations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) ObserveRailDispatch(ctx context.Context, methodType, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("method_type", methodType),
		attribute.String("outcome", outcome),
	)
	m.railDispatchDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordFraudResolution(ctx context.Context, status, action string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("status", status),
		attribute.String("action", action),
	)
	m.fraudResolutions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// Tenant, affiliate and payout ids are deliberately absent.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"from_status": {},
	"to_status":   {},
	"method_type": {},
	"outcome":     {},
	"reason":      {},
	"status":      {},
	"action":      {},
	"route":       {},
	"method":      {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
