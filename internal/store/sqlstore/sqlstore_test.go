package sqlstore_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quotebroker/internal/candle"
	"quotebroker/internal/store"
	"quotebroker/internal/store/sqlstore"
)

func openTemp(t *testing.T) (*sqlstore.Store, *time.Time) {
	t.Helper()

	s, err := sqlstore.OpenSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return now }
	return s, &now
}

func TestStore_CandlesRoundTrip(t *testing.T) {
	t.Parallel()

	// Arrange
	s, now := openTemp(t)
	key := store.CandleKey{UserKey: "a@b.c", Symbol: "QQQTNASDAQ", Interval: "1d"}
	first := []candle.Candle{{Time: 1700000000, Open: 1, High: 2, Low: 0.5, Close: 1.5}}
	second := []candle.Candle{{Time: 1700086400, Open: 2, High: 3, Low: 1.5, Close: 2.5}}

	// Act: absent, then insert, then full replace.
	missing, err := s.GetCandles(t.Context(), key)
	require.NoError(t, err)
	require.NoError(t, s.PutCandles(t.Context(), key, first))
	*now = now.Add(time.Hour)
	require.NoError(t, s.PutCandles(t.Context(), key, second))
	got, err := s.GetCandles(t.Context(), key)

	// Assert
	require.Nil(t, missing)
	require.NoError(t, err)
	require.Equal(t, second, got.Candles)
	require.True(t, now.Equal(got.LastUpdated))
}

func TestStore_RewriteKeepsLastUpdated(t *testing.T) {
	t.Parallel()

	s, now := openTemp(t)
	key := store.CandleKey{Symbol: "BTCUSDT", Interval: "1d"}
	require.NoError(t, s.PutCandles(t.Context(), key, []candle.Candle{{Time: 1700000000000, Close: 1}}))
	stamped := *now

	*now = now.Add(6 * time.Hour)
	require.NoError(t, s.RewriteCandles(t.Context(), key, []candle.Candle{{Time: 1700000000, Close: 1}}))

	got, err := s.GetCandles(t.Context(), key)
	require.NoError(t, err)
	require.Equal(t, int64(1700000000), got.Candles[0].Time)
	require.True(t, stamped.Equal(got.LastUpdated))
}

func TestStore_ScanCandlesAllowsWriteBack(t *testing.T) {
	t.Parallel()

	s, _ := openTemp(t)
	keys := []store.CandleKey{
		{Symbol: "AAPLNASDAQ", Interval: "1d"},
		{UserKey: "a@b.c", Symbol: "EURUSD", Interval: "1h"},
	}
	for _, k := range keys {
		require.NoError(t, s.PutCandles(t.Context(), k, []candle.Candle{{Time: 1700000000000, Close: 1}}))
	}

	var seen []store.CandleKey
	err := s.ScanCandles(t.Context(), func(k store.CandleKey, payload []byte) error {
		seen = append(seen, k)
		require.Contains(t, string(payload), "1700000000000")
		return s.RewriteCandles(t.Context(), k, []candle.Candle{{Time: 1700000000, Close: 1}})
	})

	require.NoError(t, err)
	require.ElementsMatch(t, keys, seen)
}

func TestStore_EmptySeries(t *testing.T) {
	t.Parallel()

	s, _ := openTemp(t)
	key := store.CandleKey{Symbol: "X", Interval: "1d"}
	require.NoError(t, s.PutCandles(t.Context(), key, []candle.Candle{}))

	got, err := s.GetCandles(t.Context(), key)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got.Candles)
}

func TestStore_CAGR(t *testing.T) {
	t.Parallel()

	s, now := openTemp(t)
	key := store.CAGRKey{Symbol: "AAPL", Interval: "1d"}

	missing, err := s.GetCAGR(t.Context(), key)
	require.NoError(t, err)
	require.Nil(t, missing)

	require.NoError(t, s.PutCAGR(t.Context(), key, 0.12))
	*now = now.Add(time.Minute)
	require.NoError(t, s.PutCAGR(t.Context(), key, 0.15))

	got, err := s.GetCAGR(t.Context(), key)
	require.NoError(t, err)
	require.InDelta(t, 0.15, got.CAGR, 1e-12)
	require.True(t, now.Equal(got.UpdatedAt))
}

func TestStore_PortfolioReplaceAll(t *testing.T) {
	t.Parallel()

	s, _ := openTemp(t)
	require.NoError(t, s.SavePortfolio(t.Context(), "a@b.c", []store.Holding{
		{Symbol: "AAPL", Weight: 0.5, Exposure: 1000, CAGR: 0.1},
		{Symbol: "SPY", Weight: 0.5, Exposure: 1000, CAGR: 0.08},
	}))
	require.NoError(t, s.SavePortfolio(t.Context(), "a@b.c", []store.Holding{
		{Symbol: "BTCUSDT", Weight: 0.3, Exposure: 300, CAGR: 0.4},
		{Symbol: "EURUSD", Weight: 0.7, Exposure: 700, CAGR: 0.01},
	}))

	got, err := s.LoadPortfolio(t.Context(), "a@b.c")
	require.NoError(t, err)
	require.Equal(t, []store.Holding{
		{Symbol: "BTCUSDT", Weight: 0.3, Exposure: 300, CAGR: 0.4},
		{Symbol: "EURUSD", Weight: 0.7, Exposure: 700, CAGR: 0.01},
	}, got)

	other, err := s.LoadPortfolio(t.Context(), "nobody@b.c")
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestStore_ClosedIsUnavailable(t *testing.T) {
	t.Parallel()

	s, err := sqlstore.OpenSQLite(filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.GetCandles(t.Context(), store.CandleKey{Symbol: "X"})
	require.True(t, errors.Is(err, store.ErrUnavailable))
	require.Error(t, s.Ping(t.Context()))
}

func TestRebind(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"SELECT a FROM t WHERE x = $1 AND y = $2",
		sqlstore.Rebind("SELECT a FROM t WHERE x = ? AND y = ?"))
}
