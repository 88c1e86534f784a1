package repos

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/selection/selectiontest"
	"github.com/wonny/aegis-screener/pkg/logger"
	"github.com/wonny/aegis-screener/pkg/metrics"
)

var detected = time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)

func TestSignalRepository_AllActiveSignals(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"stock_id", "signal_type", "signal_name", "direction", "strength", "detected_date"}).
		AddRow("AAPL", "trend", "Golden Cross", "Bullish", 82.5, detected).
		AddRow("AAPL", "momentum", "rsi_oversold", "bullish", 140.0, detected).
		AddRow("MSFT", "pattern", "Cup and Handle", "", 50.0, detected)

	mock.ExpectQuery("FROM signals.detected_signals WHERE is_active").WillReturnRows(rows)

	signals, err := NewSignalRepository(mock).AllActiveSignals(context.Background())
	require.NoError(t, err)
	require.Len(t, signals, 3)

	assert.Equal(t, "golden_cross", signals[0].Name)
	assert.Equal(t, contracts.DirectionBullish, signals[0].Direction)
	assert.True(t, signals[0].Active)
	assert.Equal(t, 100.0, signals[1].Strength)
	assert.Equal(t, "Cup and Handle", signals[2].Name)
	assert.Equal(t, contracts.DirectionNeutral, signals[2].Direction)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClampStrength(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"in range", 82.5, 82.5},
		{"negative", -3, 0},
		{"over scale", 140, 100},
		{"nan", math.NaN(), 0},
		{"positive infinity", math.Inf(1), 100},
		{"negative infinity", math.Inf(-1), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, clampStrength(tt.in))
		})
	}
}

func TestSignalRepository_NaNStrengthIsZero(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"stock_id", "signal_type", "signal_name", "direction", "strength", "detected_date"}).
		AddRow("AAPL", "trend", "golden_cross", "bullish", math.NaN(), detected)
	mock.ExpectQuery("stock_id = \\$1").WithArgs("AAPL").WillReturnRows(rows)

	signals, err := NewSignalRepository(mock).ActiveSignals(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Zero(t, signals[0].Strength)
	assert.False(t, math.IsNaN(signals[0].Strength))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignalRepository_ActiveSignalsQueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("stock_id = \\$1").WithArgs("AAPL").WillReturnError(errors.New("conn closed"))

	_, err = NewSignalRepository(mock).ActiveSignals(context.Background(), "AAPL")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFundamentalRepository_AllLatestRecordsGroupsRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	pe, roe := 10.0, 18.0
	rows := pgxmock.NewRows([]string{"stock_id", "year", "quarter", "metric_name", "value"}).
		AddRow("AAPL", 2025, 4, "pe_ratio", &pe).
		AddRow("AAPL", 2025, 4, "roe_percent", &roe).
		AddRow("MSFT", 2025, 3, "pe_ratio", (*float64)(nil))

	mock.ExpectQuery("WITH latest AS").WillReturnRows(rows)

	records, err := NewFundamentalRepository(mock).AllLatestRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "AAPL", records[0].InstrumentID)
	assert.Equal(t, "2025Q4", records[0].PeriodKey)
	v, ok := records[0].Value("roe_percent")
	assert.True(t, ok)
	assert.Equal(t, 18.0, v)

	assert.Equal(t, "2025Q3", records[1].PeriodKey)
	_, ok = records[1].Value("pe_ratio")
	assert.False(t, ok)
	assert.Contains(t, records[1].Metrics, "pe_ratio")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFundamentalRepository_LatestRecordMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("WHERE stock_id = \\$1").
		WithArgs("NOPE").
		WillReturnRows(pgxmock.NewRows([]string{"stock_id", "year", "quarter", "metric_name", "value"}))

	rec, err := NewFundamentalRepository(mock).LatestRecord(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestBreakerSignalStore_WrapsAndTrips(t *testing.T) {
	store := selectiontest.NewSignalStore(selectiontest.Signal("AAPL", "golden_cross", 80))
	breaker := NewBreakerSignalStore(store, BreakerConfig{ConsecutiveFailures: 2, OpenTimeout: time.Minute}, logger.Nop(), metrics.NewRegistry())

	signals, err := breaker.AllActiveSignals(context.Background())
	require.NoError(t, err)
	assert.Len(t, signals, 1)

	store.Fail(errors.New("db down"))
	for i := 0; i < 2; i++ {
		_, err = breaker.AllActiveSignals(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, contracts.ErrUpstreamUnavailable))
	}
	assert.Equal(t, gobreaker.StateOpen, breaker.State())

	calls := store.Calls()
	_, err = breaker.ActiveSignals(context.Background(), "AAPL")
	assert.True(t, errors.Is(err, contracts.ErrUpstreamUnavailable))
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, calls, store.Calls(), "open breaker must not reach the store")
}

func TestBreakerFundamentalStore_CancelDoesNotTrip(t *testing.T) {
	store := selectiontest.NewFundamentalStore()
	breaker := NewBreakerFundamentalStore(store, BreakerConfig{ConsecutiveFailures: 1, OpenTimeout: time.Minute}, logger.Nop(), nil)

	store.Fail(context.Canceled)
	_, err := breaker.AllLatestRecords(context.Background())
	require.Error(t, err)
	assert.Equal(t, gobreaker.StateClosed, breaker.State())

	store.Fail(nil)
	store.Set(selectiontest.Record("AAPL", map[string]float64{"pe_ratio": 9}))
	rec, err := breaker.LatestRecord(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, rec)

	rec, err = breaker.LatestRecord(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
