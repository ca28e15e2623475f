package binance

import (
	"context"
	"net/http"
	"strconv"

	gobinance "github.com/adshao/go-binance/v2"

	"quotebroker/internal/candle"
	"quotebroker/internal/logger"
	"quotebroker/internal/metrics"
	"quotebroker/internal/symbol"
)

// DefaultLimit is the number of klines requested per call, the API maximum.
const DefaultLimit = 1000

type Config struct {
	Name    string // display name, default: binance
	BaseURL string // spot REST endpoint, default: the library's
	Limit   int    // klines per request, default: 1000
}

// Adapter fetches spot klines for crypto pairs.
type Adapter struct {
	cfg    Config
	client *gobinance.Client
}

// New returns an adapter using httpClient for transport. Public market
// data needs no API key.
func New(cfg Config, httpClient *http.Client) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "binance"
	}
	if cfg.Limit <= 0 || cfg.Limit > DefaultLimit {
		cfg.Limit = DefaultLimit
	}
	client := gobinance.NewClient("", "")
	if httpClient != nil {
		client.HTTPClient = httpClient
	}
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}
	return &Adapter{cfg: cfg, client: client}
}

func (a *Adapter) Name() string { return a.cfg.Name }

// Pair returns the Binance market for s. Binance lists USD pairs against
// USDT.
func Pair(s symbol.Canonical) string {
	quote := s.Quote
	if quote == "" || quote == "USD" {
		quote = "USDT"
	}
	return s.Base + quote
}

// FetchCandles returns klines oldest first with open times in milliseconds
// as sent by the exchange.
func (a *Adapter) FetchCandles(ctx context.Context, sym symbol.Canonical, interval string) []candle.Row {
	pair := Pair(sym)
	log := logger.GetLogger().WithComponent("binance").WithFields(logger.Fields{
		"vendor":   a.cfg.Name,
		"symbol":   pair,
		"interval": interval,
	})

	klines, err := a.client.NewKlinesService().
		Symbol(pair).
		Interval(interval).
		Limit(a.cfg.Limit).
		Do(ctx)
	if err != nil {
		log.WithError(err).Warn("vendor fetch failed")
		metrics.VendorFetch(a.cfg.Name, "error")
		return nil
	}

	rows := make([]candle.Row, 0, len(klines))
	for _, k := range klines {
		if k == nil {
			continue
		}
		rows = append(rows, candle.Row{
			Time:  strconv.FormatInt(k.OpenTime, 10),
			Open:  k.Open,
			High:  k.High,
			Low:   k.Low,
			Close: k.Close,
		})
	}
	if len(rows) == 0 {
		log.Warn("vendor returned no klines")
		metrics.VendorFetch(a.cfg.Name, "empty")
		return rows
	}
	metrics.VendorFetch(a.cfg.Name, "ok")
	return rows
}
