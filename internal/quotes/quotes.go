// Package quotes serves candle series for any ticker: it classifies the
// symbol, answers from the candle cache while the entry is fresh, and
// otherwise fetches from the vendor assigned to the asset class, sanitizes
// the rows and stores the result.
package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"quotebroker/internal/candle"
	"quotebroker/internal/logger"
	"quotebroker/internal/metrics"
	"quotebroker/internal/provider"
	"quotebroker/internal/store"
	"quotebroker/internal/symbol"
)

const (
	// DefaultInterval is used when a request names none.
	DefaultInterval = "1d"
	// DefaultCandleTTL is how long a cached series is served without refetching.
	DefaultCandleTTL = 23 * time.Hour
	// DefaultFetchTimeout bounds one vendor call.
	DefaultFetchTimeout = 15 * time.Second
)

// Reasons reported when a request yields no candles.
const (
	NoDataVendorEmpty = "vendor_empty"
	NoDataAllInvalid  = "all_invalid"
)

// ErrMissingSymbol is returned for a request without a symbol.
var ErrMissingSymbol = errors.New("missing symbol")

// Request asks for the candle series of one symbol.
type Request struct {
	Symbol   string
	Interval string
	UserKey  string
	// Force bypasses a fresh cache entry.
	Force bool
}

// Result is a served series. Candles is never nil. NoData is set when the
// vendor produced nothing usable; nothing was written to the cache then.
type Result struct {
	Symbol  symbol.Canonical
	Key     store.CandleKey
	Candles []candle.Candle
	Cached  bool
	NoData  string
}

type Config struct {
	CandleTTL    time.Duration
	FetchTimeout time.Duration
}

// Service is safe for concurrent use.
type Service struct {
	cfg        Config
	classifier *symbol.Classifier
	resolver   *symbol.Resolver
	providers  provider.Set
	store      store.CandleStore

	// Now is the clock used for freshness checks.
	Now func() time.Time
}

// NewService wires the pipeline. resolver may be nil.
func NewService(cfg Config, classifier *symbol.Classifier, resolver *symbol.Resolver, providers provider.Set, st store.CandleStore) *Service {
	if cfg.CandleTTL <= 0 {
		cfg.CandleTTL = DefaultCandleTTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if classifier == nil {
		classifier = symbol.NewClassifier(symbol.DefaultExchange)
	}
	return &Service{
		cfg:        cfg,
		classifier: classifier,
		resolver:   resolver,
		providers:  providers,
		store:      st,
		Now:        time.Now,
	}
}

// Parse classifies raw with the local tables only.
func (s *Service) Parse(raw string) symbol.Canonical {
	return s.classifier.Parse(raw)
}

// Classify returns the canonical form of raw, resolving a defaulted stock
// exchange when a resolver is configured.
func (s *Service) Classify(ctx context.Context, raw string) symbol.Canonical {
	c := s.classifier.Parse(raw)
	resolved, err := s.resolver.Resolve(ctx, c)
	if err != nil {
		logger.GetLogger().WithComponent("quotes").WithField("symbol", c.Base).
			WithError(err).Warn("exchange lookup failed, keeping default")
	}
	return resolved
}

// Candles serves req from the cache or the vendor. Only storage failures
// are returned as errors.
func (s *Service) Candles(ctx context.Context, req Request) (Result, error) {
	raw := strings.TrimSpace(req.Symbol)
	if raw == "" {
		return Result{}, ErrMissingSymbol
	}
	interval := strings.TrimSpace(req.Interval)
	if interval == "" {
		interval = DefaultInterval
	}

	sym := s.Classify(ctx, raw)
	key := store.CandleKey{UserKey: req.UserKey, Symbol: sym.CacheKey(), Interval: interval}
	res := Result{Symbol: sym, Key: key, Candles: []candle.Candle{}}
	log := logger.GetLogger().WithComponent("quotes").WithFields(logger.Fields{
		"symbol":   key.Symbol,
		"interval": interval,
		"class":    sym.Class.String(),
	})

	if req.Force {
		metrics.CacheLookup("forced")
	} else {
		entry, err := s.store.GetCandles(ctx, key)
		switch {
		case errors.Is(err, store.ErrCorrupt):
			log.WithError(err).Warn("discarding unreadable cache entry")
			entry = nil
		case err != nil:
			return res, fmt.Errorf("reading candle cache: %w", err)
		}

		switch {
		case entry == nil:
			metrics.CacheLookup("miss")
		case store.IsStale(entry.LastUpdated, s.Now(), s.cfg.CandleTTL):
			metrics.CacheLookup("stale")
		default:
			metrics.CacheLookup("hit")
			candles, err := s.RepairIfNeeded(ctx, key, entry)
			if err != nil {
				log.WithError(err).Warn("persisting repaired candles failed")
			}
			res.Candles = candles
			res.Cached = true
			return res, nil
		}
	}

	fetcher := s.providers.For(sym.Class)
	if fetcher == nil {
		log.Error("no vendor configured for asset class")
		res.NoData = NoDataVendorEmpty
		return res, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	rows := fetcher.FetchCandles(fetchCtx, sym, interval)
	cancel()

	if len(rows) == 0 {
		log.WithField("vendor", fetcher.Name()).Warn("vendor returned nothing")
		res.NoData = NoDataVendorEmpty
		return res, nil
	}

	candles := candle.Sanitize(rows)
	if dropped := candle.Dropped(rows); dropped > 0 {
		metrics.DroppedRows(dropped)
		log.WithField("dropped", dropped).Debug("dropped invalid rows")
	}
	if len(candles) == 0 {
		log.WithFields(logger.Fields{"vendor": fetcher.Name(), "rows": len(rows)}).Warn("all rows invalid")
		res.NoData = NoDataAllInvalid
		return res, nil
	}

	if err := s.store.PutCandles(ctx, key, candles); err != nil {
		return res, fmt.Errorf("writing candle cache: %w", err)
	}
	res.Candles = candles
	return res, nil
}

// RepairIfNeeded converts millisecond timestamps in a cached entry to
// seconds and rewrites the entry when anything changed. LastUpdated is left
// alone. The repaired candles are returned even when the rewrite fails.
func (s *Service) RepairIfNeeded(ctx context.Context, key store.CandleKey, entry *store.CandleEntry) ([]candle.Candle, error) {
	if entry == nil {
		return []candle.Candle{}, nil
	}
	out, changed := candle.NormalizeTimes(entry.Candles)
	if !changed {
		return entry.Candles, nil
	}
	metrics.CandleRepair()
	logger.GetLogger().WithComponent("quotes").WithFields(logger.Fields{
		"symbol":   key.Symbol,
		"interval": key.Interval,
	}).Info("repairing millisecond timestamps")
	if err := s.store.RewriteCandles(ctx, key, out); err != nil {
		return out, fmt.Errorf("rewriting candles: %w", err)
	}
	return out, nil
}

// SweepReport summarizes a RepairAll run.
type SweepReport struct {
	Scanned  int
	Repaired int
	Skipped  int
}

// RepairAll re-sanitizes every cached series and rewrites the ones that
// change. Entries that cannot be decoded, or would become empty, are left
// untouched.
func (s *Service) RepairAll(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	log := logger.GetLogger().WithComponent("repair")

	err := s.store.ScanCandles(ctx, func(key store.CandleKey, payload []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Scanned++
		entryLog := log.WithFields(logger.Fields{"symbol": key.Symbol, "interval": key.Interval, "user": key.UserKey})

		rows, err := candle.DecodeRows(payload)
		if err != nil {
			entryLog.WithError(err).Warn("skipping malformed entry")
			report.Skipped++
			return nil
		}
		cleaned := candle.Sanitize(rows)
		if len(cleaned) == 0 {
			entryLog.Warn("skipping entry with no valid candles")
			report.Skipped++
			return nil
		}
		if !changed(payload, cleaned) {
			return nil
		}
		if err := s.store.RewriteCandles(ctx, key, cleaned); err != nil {
			return err
		}
		metrics.CandleRepair()
		report.Repaired++
		entryLog.WithField("candles", len(cleaned)).Info("rewrote entry")
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("repair sweep: %w", err)
	}
	log.WithFields(logger.Fields{
		"scanned":  report.Scanned,
		"repaired": report.Repaired,
		"skipped":  report.Skipped,
	}).Info("repair sweep finished")
	return report, nil
}

// changed reports whether payload differs from its sanitized form. A
// payload that does not decode strictly into candles (string fields, the
// legacy datetime key) always counts as changed.
func changed(payload []byte, cleaned []candle.Candle) bool {
	var stored []candle.Candle
	if err := json.Unmarshal(payload, &stored); err != nil {
		return true
	}
	if hasLegacyShape(payload) {
		return true
	}
	return !slices.Equal(stored, cleaned)
}

func hasLegacyShape(payload []byte) bool {
	var fields []map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return true
	}
	for _, m := range fields {
		if _, ok := m["time"]; !ok {
			return true
		}
	}
	return false
}
