// Package store defines the persistence contracts for the candle cache, the
// CAGR cache and saved portfolios. Backends live in sub-packages; an
// in-memory backend is provided here.
package store

import (
	"context"
	"errors"
	"time"

	"quotebroker/internal/candle"
)

var (
	// ErrUnavailable wraps every backend failure (connection, query, encoding).
	ErrUnavailable = errors.New("store unavailable")
	// ErrCorrupt marks a stored payload that could not be decoded.
	ErrCorrupt = errors.New("corrupt cache entry")
)

// CandleKey identifies a cached series. UserKey may be empty for the shared cache.
type CandleKey struct {
	UserKey  string
	Symbol   string
	Interval string
}

// CandleEntry is a cached series and the time it was last fetched.
type CandleEntry struct {
	Key         CandleKey
	Candles     []candle.Candle
	LastUpdated time.Time
}

// CAGRKey identifies a cached growth estimate.
type CAGRKey struct {
	Symbol   string
	Interval string
	UserKey  string
}

// CAGREntry is a cached growth estimate.
type CAGREntry struct {
	Key       CAGRKey
	CAGR      float64
	UpdatedAt time.Time
}

// Holding is one line of a saved portfolio.
type Holding struct {
	Symbol   string  `json:"symbol"`
	Weight   float64 `json:"weight"`
	Exposure float64 `json:"exposure"`
	CAGR     float64 `json:"cagr"`
}

// CandleStore persists candle series.
type CandleStore interface {
	// GetCandles returns nil, nil when key is absent.
	GetCandles(ctx context.Context, key CandleKey) (*CandleEntry, error)
	// PutCandles replaces the entry and stamps LastUpdated with the store clock.
	PutCandles(ctx context.Context, key CandleKey, candles []candle.Candle) error
	// RewriteCandles replaces the payload of an existing entry without
	// touching LastUpdated.
	RewriteCandles(ctx context.Context, key CandleKey, candles []candle.Candle) error
	// ScanCandles calls fn with the raw stored payload of every entry.
	ScanCandles(ctx context.Context, fn func(key CandleKey, payload []byte) error) error
}

// CAGRStore persists growth estimates.
type CAGRStore interface {
	// GetCAGR returns nil, nil when key is absent.
	GetCAGR(ctx context.Context, key CAGRKey) (*CAGREntry, error)
	PutCAGR(ctx context.Context, key CAGRKey, cagr float64) error
}

// PortfolioStore persists per-user holdings.
type PortfolioStore interface {
	// SavePortfolio atomically replaces all holdings of email.
	SavePortfolio(ctx context.Context, email string, holdings []Holding) error
	LoadPortfolio(ctx context.Context, email string) ([]Holding, error)
}

// Store is implemented by every backend.
type Store interface {
	CandleStore
	CAGRStore
	PortfolioStore
	Ping(ctx context.Context) error
	Close() error
}

// IsStale reports whether an entry must be refetched: absent entries are
// stale, and so is anything older than ttl at now.
func IsStale(updated time.Time, now time.Time, ttl time.Duration) bool {
	if updated.IsZero() {
		return true
	}
	return now.Sub(updated) > ttl
}
