package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"quotebroker/internal/candle"
)

type memCandles struct {
	payload []byte
	updated time.Time
}

// Memory keeps everything in process. Candle payloads are stored as JSON so
// it behaves like the persistent backends, including for ScanCandles.
type Memory struct {
	Now func() time.Time

	mu         sync.RWMutex
	candles    map[CandleKey]memCandles
	cagr       map[CAGRKey]CAGREntry
	portfolios map[string][]Holding
}

func NewMemory() *Memory {
	return &Memory{
		candles:    make(map[CandleKey]memCandles),
		cagr:       make(map[CAGRKey]CAGREntry),
		portfolios: make(map[string][]Holding),
	}
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Memory) GetCandles(_ context.Context, key CandleKey) (*CandleEntry, error) {
	m.mu.RLock()
	e, ok := m.candles[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var cs []candle.Candle
	if err := json.Unmarshal(e.payload, &cs); err != nil {
		return nil, fmt.Errorf("%w: %s/%s/%s: %v", ErrCorrupt, key.UserKey, key.Symbol, key.Interval, err)
	}
	return &CandleEntry{Key: key, Candles: cs, LastUpdated: e.updated}, nil
}

func (m *Memory) PutCandles(_ context.Context, key CandleKey, candles []candle.Candle) error {
	b, err := json.Marshal(candles)
	if err != nil {
		return fmt.Errorf("%w: encoding candles: %v", ErrUnavailable, err)
	}
	m.PutRaw(key, b, m.now())
	return nil
}

func (m *Memory) RewriteCandles(_ context.Context, key CandleKey, candles []candle.Candle) error {
	b, err := json.Marshal(candles)
	if err != nil {
		return fmt.Errorf("%w: encoding candles: %v", ErrUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.candles[key]
	if !ok {
		return nil
	}
	e.payload = b
	m.candles[key] = e
	return nil
}

// PutRaw stores payload verbatim; used to seed legacy entries.
func (m *Memory) PutRaw(key CandleKey, payload []byte, updated time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles[key] = memCandles{payload: slices.Clone(payload), updated: updated}
}

// Raw returns the stored payload and timestamp of key.
func (m *Memory) Raw(key CandleKey) ([]byte, time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.candles[key]
	return slices.Clone(e.payload), e.updated, ok
}

func (m *Memory) ScanCandles(ctx context.Context, fn func(CandleKey, []byte) error) error {
	m.mu.RLock()
	keys := make([]CandleKey, 0, len(m.candles))
	payloads := make([][]byte, 0, len(m.candles))
	for k, e := range m.candles {
		keys = append(keys, k)
		payloads = append(payloads, slices.Clone(e.payload))
	}
	m.mu.RUnlock()

	for i, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k, payloads[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) GetCAGR(_ context.Context, key CAGRKey) (*CAGREntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.cagr[key]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *Memory) PutCAGR(_ context.Context, key CAGRKey, cagr float64) error {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cagr[key] = CAGREntry{Key: key, CAGR: cagr, UpdatedAt: now}
	return nil
}

func (m *Memory) SavePortfolio(_ context.Context, email string, holdings []Holding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.portfolios[email] = slices.Clone(holdings)
	return nil
}

func (m *Memory) LoadPortfolio(_ context.Context, email string) ([]Holding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := slices.Clone(m.portfolios[email])
	if out == nil {
		out = []Holding{}
	}
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
