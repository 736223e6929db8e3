package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendmarket/core/events"
	"lendmarket/native/lending"
)

type stubPools []lending.PoolSnapshot

func (s stubPools) ListPools() []lending.PoolSnapshot { return s }

func TestEventSinkLogsAndTracksPools(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	metrics := Lending()
	sink := NewEventSink(logger, metrics)
	sink.TrackPools(stubPools{{
		Asset:          "USD",
		TotalDeposited: decimal.NewFromInt(2000),
		TotalBorrowed:  decimal.NewFromInt(500),
		Utilisation:    decimal.RequireFromString("0.25"),
		BorrowRate:     decimal.RequireFromString("0.0833"),
	}})

	sink.Emit(events.Borrowed{User: "alice", Asset: "USD", Amount: decimal.NewFromInt(500)})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, events.TypeLendingBorrowed, line["event"])
	assert.Equal(t, "alice", line["user"])

	assert.Equal(t, 500.0, testutil.ToFloat64(metrics.poolBorrowed.WithLabelValues("USD")))
	assert.Equal(t, 0.25, testutil.ToFloat64(metrics.poolUtilisation.WithLabelValues("USD")))
}

func TestEventSinkCountsLiquidations(t *testing.T) {
	metrics := Lending()
	sink := NewEventSink(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), metrics)
	counter := metrics.liquidations.WithLabelValues("NGN", "true")
	before := testutil.ToFloat64(counter)

	sink.Emit(events.Liquidated{ID: "x", RepayAsset: "ngn", Shortfall: decimal.NewFromInt(3)})
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestEventSinkWarnsOnOpportunities(t *testing.T) {
	var buf bytes.Buffer
	sink := NewEventSink(slog.New(slog.NewTextHandler(&buf, nil)), nil)
	sink.Emit(events.LiquidationOpportunity{User: "alice", HealthFactor: decimal.RequireFromString("1.1")})
	assert.True(t, strings.Contains(buf.String(), "level=WARN"))
}

func TestRecordOperationOutcomes(t *testing.T) {
	metrics := Lending()
	metrics.RecordOperation("borrow", nil)
	metrics.RecordOperation("borrow", lending.ErrInsufficientCollateral)
	metrics.RecordOperation("borrow", errors.New("boom"))

	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.operations.WithLabelValues("borrow", "success")), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.operations.WithLabelValues("borrow", "rejected")), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.operations.WithLabelValues("borrow", "error")), 1.0)

	var nilMetrics *LendingMetrics
	nilMetrics.RecordOperation("borrow", nil)
}
