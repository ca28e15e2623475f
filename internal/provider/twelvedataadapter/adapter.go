package twelvedataadapter

import (
	"context"
	"errors"
	"strings"

	"quotebroker/internal/candle"
	"quotebroker/internal/logger"
	"quotebroker/internal/metrics"
	"quotebroker/internal/provider/twelvedata"
	"quotebroker/internal/symbol"
)

// DefaultOutputSize is the number of bars requested per call.
const DefaultOutputSize = 1300

// TimeSeriesClient is the part of the Twelve Data client the adapter needs.
type TimeSeriesClient interface {
	TimeSeries(ctx context.Context, symbol, interval string, outputSize int, opts ...twelvedata.Option) (*twelvedata.TimeSeries, error)
}

// Config tunes an adapter.
type Config struct {
	Name       string // display name, default: twelvedata
	OutputSize int    // bars per request, default: 1300
}

// Adapter serves one asset class from Twelve Data. The class only changes
// how the canonical symbol is rendered for the query.
type Adapter struct {
	cfg    Config
	client TimeSeriesClient
	query  func(symbol.Canonical) string
}

func newAdapter(cfg Config, client TimeSeriesClient, query func(symbol.Canonical) string) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "twelvedata"
	}
	if cfg.OutputSize <= 0 {
		cfg.OutputSize = DefaultOutputSize
	}
	return &Adapter{cfg: cfg, client: client, query: query}
}

// NewCrypto queries BASE/QUOTE with USDT quotes mapped to USD.
func NewCrypto(cfg Config, client TimeSeriesClient) *Adapter {
	return newAdapter(cfg, client, func(s symbol.Canonical) string {
		quote := s.Quote
		if quote == "" || quote == "USDT" {
			quote = "USD"
		}
		return s.Base + "/" + quote
	})
}

// NewForex queries the ABC/DEF pair.
func NewForex(cfg Config, client TimeSeriesClient) *Adapter {
	return newAdapter(cfg, client, func(s symbol.Canonical) string { return s.VendorSymbol })
}

// NewETF queries the bare fund ticker.
func NewETF(cfg Config, client TimeSeriesClient) *Adapter {
	return newAdapter(cfg, client, func(s symbol.Canonical) string { return s.Base })
}

// NewStock queries BASE:EXCHANGE.
func NewStock(cfg Config, client TimeSeriesClient) *Adapter {
	return newAdapter(cfg, client, func(s symbol.Canonical) string {
		if s.Exchange == "" {
			return s.Base
		}
		return s.Base + ":" + s.Exchange
	})
}

func (a *Adapter) Name() string { return a.cfg.Name }

// Query returns the symbol sent upstream for s.
func (a *Adapter) Query(s symbol.Canonical) string { return a.query(s) }

func (a *Adapter) FetchCandles(ctx context.Context, sym symbol.Canonical, interval string) []candle.Row {
	log := logger.GetLogger().WithComponent("twelvedata").WithFields(logger.Fields{
		"vendor":   a.cfg.Name,
		"symbol":   sym.VendorSymbol,
		"interval": interval,
	})

	q := a.query(sym)
	ts, err := a.client.TimeSeries(ctx, q, Interval(interval), a.cfg.OutputSize)
	if err != nil {
		if errors.Is(err, twelvedata.ErrNoValues) {
			log.Warn("vendor response has no values")
			metrics.VendorFetch(a.cfg.Name, "empty")
			return nil
		}
		log.WithError(err).WithField("query", q).Warn("vendor fetch failed")
		metrics.VendorFetch(a.cfg.Name, "error")
		return nil
	}

	rows := make([]candle.Row, 0, len(ts.Values))
	for _, b := range ts.Values {
		rows = append(rows, candle.Row{Time: b.Datetime, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close})
	}
	if len(rows) == 0 {
		metrics.VendorFetch(a.cfg.Name, "empty")
		return rows
	}
	metrics.VendorFetch(a.cfg.Name, "ok")
	return rows
}

var intervals = map[string]string{
	"1m":  "1min",
	"5m":  "5min",
	"15m": "15min",
	"30m": "30min",
	"1h":  "1h",
	"4h":  "4h",
	"1d":  "1day",
	"1w":  "1week",
	"1M":  "1month",
}

// Interval maps a pipeline interval to Twelve Data's vocabulary. Unknown
// values pass through unchanged.
func Interval(interval string) string {
	if v, ok := intervals[interval]; ok {
		return v
	}
	return interval
}

// SymbolSearcher is the part of the Twelve Data client the exchange lookup needs.
type SymbolSearcher interface {
	SymbolSearch(ctx context.Context, query string, opts ...twelvedata.Option) ([]twelvedata.SymbolMatch, error)
}

// ExchangeLookup resolves a ticker's listing exchange through symbol_search.
type ExchangeLookup struct {
	Client SymbolSearcher
}

// LookupExchange returns the exchange of the first exact Common Stock or ETF
// match, or "" when there is none.
func (l ExchangeLookup) LookupExchange(ctx context.Context, base string) (string, error) {
	matches, err := l.Client.SymbolSearch(ctx, base)
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		if !strings.EqualFold(m.Symbol, base) {
			continue
		}
		switch m.InstrumentType {
		case "Common Stock", "ETF":
			return strings.ToUpper(m.Exchange), nil
		}
	}
	return "", nil
}
