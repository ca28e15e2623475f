package ratelimit

import (
	"context"

	"golang.org/x/time/rate"

	"quotebroker/internal/candle"
	"quotebroker/internal/logger"
	"quotebroker/internal/metrics"
	"quotebroker/internal/provider"
	"quotebroker/internal/symbol"
)

// PerMinute builds a limiter allowing perMinute calls a minute with the
// given burst. Non-positive values fall back to 8 calls and a burst of 1.
func PerMinute(perMinute, burst int) *rate.Limiter {
	if perMinute <= 0 {
		perMinute = 8
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60), burst)
}

// Fetcher gates a provider.Fetcher behind a limiter. Several fetchers may
// share one limiter when they spend the same vendor quota.
type Fetcher struct {
	Next    provider.Fetcher
	Limiter *rate.Limiter
}

func (f *Fetcher) Name() string { return f.Next.Name() }

// FetchCandles waits for a token and delegates. A wait that is cancelled or
// would outlive the context deadline yields an empty result.
func (f *Fetcher) FetchCandles(ctx context.Context, sym symbol.Canonical, interval string) []candle.Row {
	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			logger.GetLogger().WithComponent("ratelimit").
				WithFields(logger.Fields{"vendor": f.Next.Name(), "symbol": sym.VendorSymbol}).
				WithError(err).Warn("rate limiter wait failed")
			metrics.VendorFetch(f.Next.Name(), "throttled")
			return nil
		}
	}
	return f.Next.FetchCandles(ctx, sym, interval)
}
