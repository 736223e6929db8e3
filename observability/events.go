package observability

import (
	"context"
	"log/slog"

	"lendmarket/core/events"
	"lendmarket/native/lending"
)

// PoolSource exposes pool snapshots for gauge refreshes.
type PoolSource interface {
	ListPools() []lending.PoolSnapshot
}

// EventSink logs every lending event and keeps the pool and liquidation
// metrics current.
type EventSink struct {
	logger  *slog.Logger
	metrics *LendingMetrics
	pools   PoolSource
}

// NewEventSink builds a sink. A nil logger falls back to slog.Default and nil
// metrics disables instrumentation.
func NewEventSink(logger *slog.Logger, metrics *LendingMetrics) *EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventSink{logger: logger, metrics: metrics}
}

// TrackPools makes the sink refresh pool gauges after every pool-moving event.
func (s *EventSink) TrackPools(pools PoolSource) { s.pools = pools }

type recordable interface {
	Record() events.Record
}

// Emit implements events.Emitter.
func (s *EventSink) Emit(e events.Event) {
	if e == nil {
		return
	}
	attrs := []any{slog.String("event", e.EventType())}
	if r, ok := e.(recordable); ok {
		for key, value := range r.Record().Attributes {
			attrs = append(attrs, slog.String(key, value))
		}
	}
	level := slog.LevelInfo
	if e.EventType() == events.TypeLendingLiquidationOpportunity {
		level = slog.LevelWarn
	}
	s.logger.Log(context.Background(), level, "lending event", attrs...)

	switch ev := e.(type) {
	case events.Liquidated:
		s.metrics.RecordLiquidation(ev.RepayAsset, ev.Shortfall.IsPositive())
		s.refreshPools()
	case events.PoolDeposit, events.Borrowed, events.Repaid:
		s.refreshPools()
	}
}

func (s *EventSink) refreshPools() {
	if s.pools == nil || s.metrics == nil {
		return
	}
	for _, snap := range s.pools.ListPools() {
		s.metrics.RecordPool(snap)
	}
}
