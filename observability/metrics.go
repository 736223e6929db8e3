package observability

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"lendmarket/native/lending"
	"lendmarket/native/oracle"
)

// LendingMetrics tracks HTTP traffic, protocol outcomes and pool state for the
// lending daemon.
type LendingMetrics struct {
	requests        *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	throttles       *prometheus.CounterVec
	operations      *prometheus.CounterVec
	liquidations    *prometheus.CounterVec
	opportunities   prometheus.Gauge
	poolDeposited   *prometheus.GaugeVec
	poolBorrowed    *prometheus.GaugeVec
	poolUtilisation *prometheus.GaugeVec
	poolRate        *prometheus.GaugeVec
	priceRefreshes  *prometheus.CounterVec
	staleQuotes     prometheus.Gauge
}

var (
	lendingMetricsOnce sync.Once
	lendingRegistry    *LendingMetrics
)

// Lending returns the lazily-initialised lending metrics registry.
func Lending() *LendingMetrics {
	lendingMetricsOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendmarket",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests segmented by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lendmarket",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendmarket",
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Requests rejected by the rate limiter.",
			}, []string{"reason"}),
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendmarket",
				Subsystem: "lending",
				Name:      "operations_total",
				Help:      "Protocol operations segmented by action and outcome.",
			}, []string{"action", "outcome"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendmarket",
				Subsystem: "lending",
				Name:      "liquidations_total",
				Help:      "Completed liquidations segmented by repaid asset and whether collateral fell short.",
			}, []string{"asset", "shortfall"}),
			opportunities: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lendmarket",
				Subsystem: "lending",
				Name:      "liquidation_opportunities",
				Help:      "Positions liquidatable as of the most recent price update.",
			}),
			poolDeposited: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lendmarket",
				Subsystem: "pool",
				Name:      "deposited",
				Help:      "Total liquidity deposited per pool.",
			}, []string{"asset"}),
			poolBorrowed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lendmarket",
				Subsystem: "pool",
				Name:      "borrowed",
				Help:      "Total outstanding borrows per pool.",
			}, []string{"asset"}),
			poolUtilisation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lendmarket",
				Subsystem: "pool",
				Name:      "utilization_ratio",
				Help:      "Borrowed over deposited per pool.",
			}, []string{"asset"}),
			poolRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lendmarket",
				Subsystem: "pool",
				Name:      "borrow_rate",
				Help:      "Current borrow APR per pool.",
			}, []string{"asset"}),
			priceRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendmarket",
				Subsystem: "oracle",
				Name:      "refreshes_total",
				Help:      "Price refresh attempts segmented by asset and outcome.",
			}, []string{"asset", "outcome"}),
			staleQuotes: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lendmarket",
				Subsystem: "oracle",
				Name:      "stale_quotes",
				Help:      "Refreshed assets whose held quote is older than the configured max age.",
			}),
		}
		prometheus.MustRegister(
			lendingRegistry.requests,
			lendingRegistry.latency,
			lendingRegistry.throttles,
			lendingRegistry.operations,
			lendingRegistry.liquidations,
			lendingRegistry.opportunities,
			lendingRegistry.poolDeposited,
			lendingRegistry.poolBorrowed,
			lendingRegistry.poolUtilisation,
			lendingRegistry.poolRate,
			lendingRegistry.priceRefreshes,
			lendingRegistry.staleQuotes,
		)
	})
	return lendingRegistry
}

// ObserveRequest records an HTTP request. status is the code ultimately
// written to the client.
func (m *LendingMetrics) ObserveRequest(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.requests.WithLabelValues(route, fmt.Sprintf("%d", status)).Inc()
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordThrottle counts a request rejected before reaching a handler.
func (m *LendingMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// RecordOperation counts a protocol call. Rejections and faults are told apart
// so alerts can fire on faults alone.
func (m *LendingMetrics) RecordOperation(action string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	switch {
	case err == nil:
	case lending.IsRejection(err):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	m.operations.WithLabelValues(action, outcome).Inc()
}

// RecordLiquidation counts a completed liquidation.
func (m *LendingMetrics) RecordLiquidation(asset string, shortfall bool) {
	if m == nil {
		return
	}
	m.liquidations.WithLabelValues(labelAsset(asset), fmt.Sprintf("%t", shortfall)).Inc()
}

// SetOpportunities publishes the size of the latest liquidation scan.
func (m *LendingMetrics) SetOpportunities(n int) {
	if m == nil {
		return
	}
	m.opportunities.Set(float64(n))
}

// RecordPool publishes a pool snapshot.
func (m *LendingMetrics) RecordPool(snap lending.PoolSnapshot) {
	if m == nil {
		return
	}
	asset := labelAsset(snap.Asset.String())
	m.poolDeposited.WithLabelValues(asset).Set(decimalToFloat(snap.TotalDeposited))
	m.poolBorrowed.WithLabelValues(asset).Set(decimalToFloat(snap.TotalBorrowed))
	m.poolUtilisation.WithLabelValues(asset).Set(decimalToFloat(snap.Utilisation))
	m.poolRate.WithLabelValues(asset).Set(decimalToFloat(snap.BorrowRate))
}

// RecordPriceRefresh counts one refresher fetch.
func (m *LendingMetrics) RecordPriceRefresh(asset string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, oracle.ErrStaleQuote):
		outcome = "stale"
	default:
		outcome = "error"
	}
	m.priceRefreshes.WithLabelValues(labelAsset(asset), outcome).Inc()
}

// SetStaleQuotes publishes how many refreshed assets are serving stale quotes.
func (m *LendingMetrics) SetStaleQuotes(n int) {
	if m == nil {
		return
	}
	m.staleQuotes.Set(float64(n))
}

func labelAsset(asset string) string {
	normalized := strings.ToUpper(strings.TrimSpace(asset))
	if normalized == "" {
		return "UNKNOWN"
	}
	return normalized
}

func decimalToFloat(v decimal.Decimal) float64 {
	f, _ := v.Float64()
	return f
}
