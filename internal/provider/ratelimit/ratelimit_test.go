package ratelimit_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"quotebroker/internal/candle"
	"quotebroker/internal/provider"
	"quotebroker/internal/provider/ratelimit"
	"quotebroker/internal/symbol"
)

func countingFetcher(calls *atomic.Int32) provider.Fetcher {
	return provider.FetcherFunc{
		ID: "counting",
		Fn: func(context.Context, symbol.Canonical, string) []candle.Row {
			calls.Add(1)
			return []candle.Row{{Time: "1", Open: "1", High: "1", Low: "1", Close: "1"}}
		},
	}
}

func TestFetcher_Delegates(t *testing.T) {
	t.Parallel()

	// Arrange
	var calls atomic.Int32
	f := &ratelimit.Fetcher{Next: countingFetcher(&calls), Limiter: rate.NewLimiter(rate.Inf, 1)}

	// Act
	rows := f.FetchCandles(t.Context(), symbol.Canonical{VendorSymbol: "AAPL:NASDAQ"}, "1d")

	// Assert
	require.Len(t, rows, 1)
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, "counting", f.Name())
}

func TestFetcher_CancelledWaitIsEmpty(t *testing.T) {
	t.Parallel()

	// Arrange: the single token is spent by the first call.
	var calls atomic.Int32
	f := &ratelimit.Fetcher{Next: countingFetcher(&calls), Limiter: rate.NewLimiter(rate.Every(time.Hour), 1)}
	require.Len(t, f.FetchCandles(t.Context(), symbol.Canonical{}, "1d"), 1)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	// Act
	rows := f.FetchCandles(ctx, symbol.Canonical{}, "1d")

	// Assert
	require.Empty(t, rows)
	require.Equal(t, int32(1), calls.Load())
}

func TestPerMinute_Defaults(t *testing.T) {
	t.Parallel()

	l := ratelimit.PerMinute(0, 0)
	require.InDelta(t, 8.0/60, float64(l.Limit()), 1e-9)
	require.Equal(t, 1, l.Burst())

	l = ratelimit.PerMinute(120, 4)
	require.InDelta(t, 2.0, float64(l.Limit()), 1e-9)
	require.Equal(t, 4, l.Burst())
}
