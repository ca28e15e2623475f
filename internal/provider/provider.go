package provider

import (
	"context"

	"quotebroker/internal/candle"
	"quotebroker/internal/symbol"
)

// Fetcher pulls a raw bar series for one canonical symbol from one vendor.
// Implementations never fail the caller: any upstream problem is logged and
// reported as an empty result. Rows are oldest first.
type Fetcher interface {
	Name() string
	FetchCandles(ctx context.Context, sym symbol.Canonical, interval string) []candle.Row
}

// Set maps every asset class to exactly one fetcher.
type Set struct {
	Crypto Fetcher
	Forex  Fetcher
	ETF    Fetcher
	Stock  Fetcher
}

// For returns the fetcher serving class.
func (s Set) For(class symbol.AssetClass) Fetcher {
	switch class {
	case symbol.Crypto:
		return s.Crypto
	case symbol.Forex:
		return s.Forex
	case symbol.ETF:
		return s.ETF
	default:
		return s.Stock
	}
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc struct {
	ID string
	Fn func(ctx context.Context, sym symbol.Canonical, interval string) []candle.Row
}

func (f FetcherFunc) Name() string { return f.ID }

func (f FetcherFunc) FetchCandles(ctx context.Context, sym symbol.Canonical, interval string) []candle.Row {
	return f.Fn(ctx, sym, interval)
}
