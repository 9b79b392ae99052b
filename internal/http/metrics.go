package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/unifeast/feastd/internal/logging"
)

const instrumentationName = "github.com/unifeast/feastd/internal/http"

// Metrics holds the HTTP-level instruments.
type Metrics struct {
	meter         metric.Meter
	logger        *logging.Logger
	requestsTotal metric.Int64Counter
	requestDur    metric.Float64Histogram
	chatTurns     metric.Int64Counter
	zeroMatches   metric.Int64Counter
}

// NewMetrics creates the HTTP metrics instruments. Instrument creation
// failures are logged, not fatal; recording against a nil instrument is
// skipped.
func NewMetrics(logger *logging.Logger) *Metrics {
	if logger == nil {
		logger = logging.NewNop()
	}

	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.requestsTotal, err = m.meter.Int64Counter(
		"feastd.http.requests_total",
		metric.WithDescription("Total HTTP requests labeled by method, endpoint and status code."),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn(nil, "failed to create requests counter", zap.Error(err))
	}

	m.requestDur, err = m.meter.Float64Histogram(
		"feastd.http.request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds, labeled by method, endpoint and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		m.logger.Warn(nil, "failed to create duration histogram", zap.Error(err))
	}

	m.chatTurns, err = m.meter.Int64Counter(
		"feastd.chat.turns_total",
		metric.WithDescription("Completed chat turns labeled by the provider that answered."),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		m.logger.Warn(nil, "failed to create chat turns counter", zap.Error(err))
	}

	m.zeroMatches, err = m.meter.Int64Counter(
		"feastd.chat.zero_matches_total",
		metric.WithDescription("Chat turns whose filtered search matched no menu items."),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		m.logger.Warn(nil, "failed to create zero matches counter", zap.Error(err))
	}
}

// Middleware returns an Echo middleware recording request count and
// latency per route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			ctx := c.Request().Context()
			attrs := []attribute.KeyValue{
				attribute.String("method", c.Request().Method),
				attribute.String("endpoint", c.Path()),
				attribute.Int("status", c.Response().Status),
			}
			if m.requestsTotal != nil {
				m.requestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
			}
			if m.requestDur != nil {
				m.requestDur.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
			}
			return err
		}
	}
}

// RecordTurn records one completed chat turn.
func (m *Metrics) RecordTurn(c echo.Context, provider string, zeroMatches bool) {
	ctx := c.Request().Context()
	if m.chatTurns != nil {
		m.chatTurns.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
	}
	if zeroMatches && m.zeroMatches != nil {
		m.zeroMatches.Add(ctx, 1)
	}
}
