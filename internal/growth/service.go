package growth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"quotebroker/internal/candle"
	"quotebroker/internal/logger"
	"quotebroker/internal/metrics"
	"quotebroker/internal/quotes"
	"quotebroker/internal/store"
	"quotebroker/internal/symbol"
)

// DefaultTTL is how long a cached estimate is served.
const DefaultTTL = 24 * time.Hour

// CandleSource supplies the series an estimate is computed from.
// *quotes.Service implements it.
type CandleSource interface {
	Parse(raw string) symbol.Canonical
	Classify(ctx context.Context, raw string) symbol.Canonical
	Candles(ctx context.Context, req quotes.Request) (quotes.Result, error)
}

type Request struct {
	Symbol   string
	Interval string
	UserKey  string
}

type Result struct {
	Key    store.CAGRKey
	CAGR   float64
	Cached bool
}

type Service struct {
	source CandleSource
	store  store.CAGRStore
	ttl    time.Duration

	// Now is the clock used for freshness checks.
	Now func() time.Time
}

func NewService(source CandleSource, st store.CAGRStore, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{source: source, store: st, ttl: ttl, Now: time.Now}
}

// CAGR returns the cached estimate for req when it is fresh, otherwise it
// computes one from the candle pipeline. The 0 sentinel returned for short
// or unusable series is never stored.
func (s *Service) CAGR(ctx context.Context, req Request) (Result, error) {
	raw := strings.TrimSpace(req.Symbol)
	if raw == "" {
		return Result{}, quotes.ErrMissingSymbol
	}
	interval := strings.TrimSpace(req.Interval)
	if interval == "" {
		interval = quotes.DefaultInterval
	}

	// Only a defaulted stock exchange can change under lookup.
	sym := s.source.Parse(raw)
	if sym.ExchangeDefaulted {
		sym = s.source.Classify(ctx, raw)
	}
	key := store.CAGRKey{Symbol: sym.CacheKey(), Interval: interval, UserKey: req.UserKey}
	log := logger.GetLogger().WithComponent("growth").WithFields(logger.Fields{
		"symbol":   key.Symbol,
		"interval": interval,
	})

	entry, err := s.store.GetCAGR(ctx, key)
	switch {
	case errors.Is(err, store.ErrCorrupt):
		log.WithError(err).Warn("discarding unreadable cagr entry")
		entry = nil
	case err != nil:
		return Result{Key: key}, fmt.Errorf("reading cagr cache: %w", err)
	}
	if entry != nil && !store.IsStale(entry.UpdatedAt, s.Now(), s.ttl) {
		metrics.CAGRRequest("hit")
		return Result{Key: key, CAGR: entry.CAGR, Cached: true}, nil
	}

	res, err := s.source.Candles(ctx, quotes.Request{Symbol: raw, Interval: interval, UserKey: req.UserKey})
	if err != nil {
		return Result{Key: key}, err
	}

	cagr, ok := Estimate(candle.Closes(res.Candles))
	if !ok {
		metrics.CAGRRequest("insufficient")
		log.WithField("candles", len(res.Candles)).Warn("not enough usable candles, returning 0")
		return Result{Key: key}, nil
	}

	if err := s.store.PutCAGR(ctx, key, cagr); err != nil {
		return Result{Key: key}, fmt.Errorf("writing cagr cache: %w", err)
	}
	metrics.CAGRRequest("computed")
	log.WithField("cagr", cagr).Info("computed cagr")
	return Result{Key: key, CAGR: cagr}, nil
}
