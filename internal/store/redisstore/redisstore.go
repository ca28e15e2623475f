package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"quotebroker/internal/candle"
	"quotebroker/internal/logger"
	"quotebroker/internal/store"
)

// Hash fields.
const (
	fieldUser     = "user"
	fieldSymbol   = "symbol"
	fieldInterval = "interval"
	fieldCandles  = "candles"
	fieldUpdated  = "updated"
	fieldCAGR     = "cagr"
)

// Options configure the connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store keeps caches in Redis hashes. Entries never expire server-side:
// staleness is decided by the caller from the stored timestamp.
type Store struct {
	client *redis.Client
	prefix string
	log    *logger.Entry

	Now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open dials Redis and verifies the connection.
func Open(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  4 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	s := New(client, opts.Prefix)
	s.log.WithFields(logger.Fields{"addr": opts.Addr, "db": opts.DB}).Info("redis connected")
	return s, nil
}

// New wraps an existing client.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "quotebroker"
	}
	return &Store{
		client: client,
		prefix: prefix,
		log:    logger.GetLogger().WithComponent("redisstore"),
	}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CandleKey builds the hash key of a candle entry.
func CandleKey(prefix string, k store.CandleKey) string {
	return fmt.Sprintf("%s:candles:%s:%s:%s", prefix, k.Symbol, k.Interval, k.UserKey)
}

// CAGRKey builds the hash key of a CAGR entry.
func CAGRKey(prefix string, k store.CAGRKey) string {
	return fmt.Sprintf("%s:cagr:%s:%s:%s", prefix, k.Symbol, k.Interval, k.UserKey)
}

// PortfolioKey builds the key holding a user's portfolio JSON.
func PortfolioKey(prefix, email string) string {
	return fmt.Sprintf("%s:portfolio:%s", prefix, email)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, store.ErrUnavailable, err)
}

func (s *Store) GetCandles(ctx context.Context, key store.CandleKey) (*store.CandleEntry, error) {
	data, err := s.client.HMGet(ctx, CandleKey(s.prefix, key), fieldCandles, fieldUpdated).Result()
	if err != nil {
		return nil, unavailable("get candles", err)
	}
	payload, ok := data[0].(string)
	if !ok {
		return nil, nil
	}
	updated, err := parseMillis(data[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", store.ErrCorrupt, CandleKey(s.prefix, key), err)
	}

	var cs []candle.Candle
	if err := json.Unmarshal([]byte(payload), &cs); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", store.ErrCorrupt, CandleKey(s.prefix, key), err)
	}
	return &store.CandleEntry{Key: key, Candles: cs, LastUpdated: updated}, nil
}

func (s *Store) PutCandles(ctx context.Context, key store.CandleKey, candles []candle.Candle) error {
	b, err := json.Marshal(candles)
	if err != nil {
		return unavailable("encode candles", err)
	}
	err = s.client.HSet(ctx, CandleKey(s.prefix, key),
		fieldUser, key.UserKey,
		fieldSymbol, key.Symbol,
		fieldInterval, key.Interval,
		fieldCandles, string(b),
		fieldUpdated, s.now().UnixMilli(),
	).Err()
	if err != nil {
		return unavailable("put candles", err)
	}
	return nil
}

// rewriteScript replaces the payload only when the entry still carries its
// timestamp, so a concurrently deleted key is never recreated half empty.
var rewriteScript = redis.NewScript(`
if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 1 then
	redis.call("HSET", KEYS[1], ARGV[2], ARGV[3])
	return 1
end
return 0
`)

func (s *Store) RewriteCandles(ctx context.Context, key store.CandleKey, candles []candle.Candle) error {
	b, err := json.Marshal(candles)
	if err != nil {
		return unavailable("encode candles", err)
	}
	err = rewriteScript.Run(ctx, s.client, []string{CandleKey(s.prefix, key)}, fieldUpdated, fieldCandles, string(b)).Err()
	if err != nil {
		return unavailable("rewrite candles", err)
	}
	return nil
}

func (s *Store) ScanCandles(ctx context.Context, fn func(store.CandleKey, []byte) error) error {
	iter := s.client.Scan(ctx, 0, s.prefix+":candles:*", 200).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.HMGet(ctx, iter.Val(), fieldUser, fieldSymbol, fieldInterval, fieldCandles).Result()
		if err != nil {
			return unavailable("scan candles", err)
		}
		payload, ok := data[3].(string)
		if !ok {
			continue
		}
		key := store.CandleKey{UserKey: str(data[0]), Symbol: str(data[1]), Interval: str(data[2])}
		if err := fn(key, []byte(payload)); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return unavailable("scan candles", err)
	}
	return nil
}

func (s *Store) GetCAGR(ctx context.Context, key store.CAGRKey) (*store.CAGREntry, error) {
	data, err := s.client.HMGet(ctx, CAGRKey(s.prefix, key), fieldCAGR, fieldUpdated).Result()
	if err != nil {
		return nil, unavailable("get cagr", err)
	}
	raw, ok := data[0].(string)
	if !ok {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", store.ErrCorrupt, CAGRKey(s.prefix, key), err)
	}
	updated, err := parseMillis(data[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", store.ErrCorrupt, CAGRKey(s.prefix, key), err)
	}
	return &store.CAGREntry{Key: key, CAGR: v, UpdatedAt: updated}, nil
}

func (s *Store) PutCAGR(ctx context.Context, key store.CAGRKey, cagr float64) error {
	err := s.client.HSet(ctx, CAGRKey(s.prefix, key),
		fieldCAGR, strconv.FormatFloat(cagr, 'g', -1, 64),
		fieldUpdated, s.now().UnixMilli(),
	).Err()
	if err != nil {
		return unavailable("put cagr", err)
	}
	return nil
}

// SavePortfolio replaces the portfolio with a single SET, which Redis
// applies atomically.
func (s *Store) SavePortfolio(ctx context.Context, email string, holdings []store.Holding) error {
	if holdings == nil {
		holdings = []store.Holding{}
	}
	b, err := json.Marshal(holdings)
	if err != nil {
		return unavailable("encode portfolio", err)
	}
	if err := s.client.Set(ctx, PortfolioKey(s.prefix, email), b, 0).Err(); err != nil {
		return unavailable("save portfolio", err)
	}
	return nil
}

func (s *Store) LoadPortfolio(ctx context.Context, email string) ([]store.Holding, error) {
	b, err := s.client.Get(ctx, PortfolioKey(s.prefix, email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []store.Holding{}, nil
	}
	if err != nil {
		return nil, unavailable("load portfolio", err)
	}
	var out []store.Holding
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("%w: portfolio %s: %v", store.ErrCorrupt, email, err)
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func parseMillis(v any) (time.Time, error) {
	raw, ok := v.(string)
	if !ok {
		return time.Time{}, errors.New("missing timestamp")
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
