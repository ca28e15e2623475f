package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"quotebroker/internal/candle"
	"quotebroker/internal/logger"
	"quotebroker/internal/store"
)

// Dialect is the database/sql driver name.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "pgx"
)

// Store persists caches and portfolios in SQLite or PostgreSQL.
type Store struct {
	db      *sql.DB
	dialect Dialect
	log     *logger.Entry

	// Now stamps writes; defaults to time.Now.
	Now func() time.Time
}

var _ store.Store = (*Store)(nil)

// OpenSQLite opens (or creates) the database file and runs migrations.
// The pool is pinned to one connection so writes serialize and ":memory:"
// databases behave.
func OpenSQLite(path string) (*Store, error) {
	db, err := sql.Open(string(SQLite), path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return New(db, SQLite)
}

// OpenPostgres connects through the pgx stdlib driver.
func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open(string(Postgres), dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(60 * time.Second)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db, Postgres)
}

// New wraps an open handle and runs migrations.
func New(db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{
		db:      db,
		dialect: dialect,
		log:     logger.GetLogger().WithComponent("sqlstore").WithField("dialect", string(dialect)),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	s.log.Info("store opened")
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS candle_cache (
			user_key     TEXT   NOT NULL,
			symbol       TEXT   NOT NULL,
			timeframe    TEXT   NOT NULL,
			candles_json TEXT   NOT NULL,
			last_updated BIGINT NOT NULL,
			PRIMARY KEY (user_key, symbol, timeframe)
		)`,
		`CREATE TABLE IF NOT EXISTS cagr_cache (
			symbol     TEXT             NOT NULL,
			timeframe  TEXT             NOT NULL,
			user_key   TEXT             NOT NULL,
			cagr       DOUBLE PRECISION NOT NULL,
			updated_at BIGINT           NOT NULL,
			PRIMARY KEY (symbol, timeframe, user_key)
		)`,
		`CREATE TABLE IF NOT EXISTS portfolio (
			email    TEXT             NOT NULL,
			position INTEGER          NOT NULL,
			symbol   TEXT             NOT NULL,
			weight   DOUBLE PRECISION NOT NULL,
			exposure DOUBLE PRECISION NOT NULL,
			cagr     DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (email, position)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// q rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) q(query string) string {
	if s.dialect != Postgres {
		return query
	}
	return Rebind(query)
}

// Rebind converts ? placeholders to $1, $2, ...
func Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, store.ErrUnavailable, err)
}

func (s *Store) GetCandles(ctx context.Context, key store.CandleKey) (*store.CandleEntry, error) {
	var (
		payload string
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT candles_json, last_updated FROM candle_cache WHERE user_key = ? AND symbol = ? AND timeframe = ?`),
		key.UserKey, key.Symbol, key.Interval,
	).Scan(&payload, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get candles", err)
	}

	var cs []candle.Candle
	if err := json.Unmarshal([]byte(payload), &cs); err != nil {
		return nil, fmt.Errorf("%w: %s/%s/%s: %v", store.ErrCorrupt, key.UserKey, key.Symbol, key.Interval, err)
	}
	return &store.CandleEntry{Key: key, Candles: cs, LastUpdated: time.UnixMilli(updated)}, nil
}

func (s *Store) PutCandles(ctx context.Context, key store.CandleKey, candles []candle.Candle) error {
	b, err := json.Marshal(candles)
	if err != nil {
		return unavailable("encode candles", err)
	}
	_, err = s.db.ExecContext(ctx,
		s.q(`INSERT INTO candle_cache (user_key, symbol, timeframe, candles_json, last_updated)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (user_key, symbol, timeframe)
			DO UPDATE SET candles_json = excluded.candles_json, last_updated = excluded.last_updated`),
		key.UserKey, key.Symbol, key.Interval, string(b), s.now().UnixMilli(),
	)
	if err != nil {
		return unavailable("put candles", err)
	}
	return nil
}

func (s *Store) RewriteCandles(ctx context.Context, key store.CandleKey, candles []candle.Candle) error {
	b, err := json.Marshal(candles)
	if err != nil {
		return unavailable("encode candles", err)
	}
	_, err = s.db.ExecContext(ctx,
		s.q(`UPDATE candle_cache SET candles_json = ? WHERE user_key = ? AND symbol = ? AND timeframe = ?`),
		string(b), key.UserKey, key.Symbol, key.Interval,
	)
	if err != nil {
		return unavailable("rewrite candles", err)
	}
	return nil
}

// ScanCandles reads every row before calling fn, so fn may write back
// through the same single-connection pool.
func (s *Store) ScanCandles(ctx context.Context, fn func(store.CandleKey, []byte) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT user_key, symbol, timeframe, candles_json FROM candle_cache`)
	if err != nil {
		return unavailable("scan candles", err)
	}

	type row struct {
		key     store.CandleKey
		payload []byte
	}
	var all []row
	for rows.Next() {
		var (
			r       row
			payload string
		)
		if err := rows.Scan(&r.key.UserKey, &r.key.Symbol, &r.key.Interval, &payload); err != nil {
			rows.Close()
			return unavailable("scan candles", err)
		}
		r.payload = []byte(payload)
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return unavailable("scan candles", err)
	}
	rows.Close()

	for _, r := range all {
		if err := fn(r.key, r.payload); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetCAGR(ctx context.Context, key store.CAGRKey) (*store.CAGREntry, error) {
	var (
		cagr    float64
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT cagr, updated_at FROM cagr_cache WHERE symbol = ? AND timeframe = ? AND user_key = ?`),
		key.Symbol, key.Interval, key.UserKey,
	).Scan(&cagr, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get cagr", err)
	}
	return &store.CAGREntry{Key: key, CAGR: cagr, UpdatedAt: time.UnixMilli(updated)}, nil
}

func (s *Store) PutCAGR(ctx context.Context, key store.CAGRKey, cagr float64) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO cagr_cache (symbol, timeframe, user_key, cagr, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (symbol, timeframe, user_key)
			DO UPDATE SET cagr = excluded.cagr, updated_at = excluded.updated_at`),
		key.Symbol, key.Interval, key.UserKey, cagr, s.now().UnixMilli(),
	)
	if err != nil {
		return unavailable("put cagr", err)
	}
	return nil
}

func (s *Store) SavePortfolio(ctx context.Context, email string, holdings []store.Holding) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin portfolio tx", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM portfolio WHERE email = ?`), email); err != nil {
		return unavailable("clear portfolio", err)
	}
	insert := s.q(`INSERT INTO portfolio (email, position, symbol, weight, exposure, cagr) VALUES (?, ?, ?, ?, ?, ?)`)
	for i, h := range holdings {
		if _, err := tx.ExecContext(ctx, insert, email, i, h.Symbol, h.Weight, h.Exposure, h.CAGR); err != nil {
			return unavailable("insert holding", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit portfolio", err)
	}
	return nil
}

func (s *Store) LoadPortfolio(ctx context.Context, email string) ([]store.Holding, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT symbol, weight, exposure, cagr FROM portfolio WHERE email = ? ORDER BY position`), email)
	if err != nil {
		return nil, unavailable("load portfolio", err)
	}
	defer rows.Close()

	out := []store.Holding{}
	for rows.Next() {
		var h store.Holding
		if err := rows.Scan(&h.Symbol, &h.Weight, &h.Exposure, &h.CAGR); err != nil {
			return nil, unavailable("load portfolio", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("load portfolio", err)
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
