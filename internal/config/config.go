package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Server struct {
	Port              string   `json:"port" yaml:"port"`
	RequestTimeoutSec int      `json:"request_timeout_sec" yaml:"request_timeout_sec"`
	CORSOrigins       []string `json:"cors_origins" yaml:"cors_origins"`
	MaxBodyBytes      int64    `json:"max_body_bytes" yaml:"max_body_bytes"`
}

type Logging struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // json | text
	Output string `json:"output" yaml:"output"` // stdout | stderr | file path
	MaxAge int    `json:"max_age_days" yaml:"max_age_days"`
}

type Storage struct {
	Driver        string `json:"driver" yaml:"driver"` // sqlite | postgres | redis | memory
	SQLitePath    string `json:"sqlite_path" yaml:"sqlite_path"`
	PostgresDSN   string `json:"postgres_dsn" yaml:"postgres_dsn"`
	RedisAddr     string `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `json:"redis_password" yaml:"redis_password"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db"`
	RedisPrefix   string `json:"redis_prefix" yaml:"redis_prefix"`
}

type Cache struct {
	CandleTTLHours  int `json:"candle_ttl_hours" yaml:"candle_ttl_hours"`
	CAGRTTLHours    int `json:"cagr_ttl_hours" yaml:"cagr_ttl_hours"`
	FetchTimeoutSec int `json:"fetch_timeout_sec" yaml:"fetch_timeout_sec"`
}

type TwelveData struct {
	APIKey               string `json:"api_key" yaml:"api_key"`
	BaseURL              string `json:"base_url" yaml:"base_url"`
	OutputSize           int    `json:"output_size" yaml:"output_size"`
	MaxRequestsPerMinute int    `json:"max_requests_per_minute" yaml:"max_requests_per_minute"`
	Burst                int    `json:"burst" yaml:"burst"`
}

type Binance struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	Limit   int    `json:"limit" yaml:"limit"`
}

type Yahoo struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
}

// Vendors names the vendor serving each asset class.
type Vendors struct {
	Crypto string `json:"crypto" yaml:"crypto"` // twelvedata | binance
	Forex  string `json:"forex" yaml:"forex"`   // twelvedata
	ETF    string `json:"etf" yaml:"etf"`       // twelvedata | yahoo
	Stock  string `json:"stock" yaml:"stock"`   // twelvedata | yahoo
	// ProxyURL routes every vendor request through an HTTP proxy.
	ProxyURL string `json:"proxy_url" yaml:"proxy_url"`
}

type Symbols struct {
	DefaultStockExchange string `json:"default_stock_exchange" yaml:"default_stock_exchange"`
	ResolveExchange      bool   `json:"resolve_exchange" yaml:"resolve_exchange"`
	ResolverTTLHours     int    `json:"resolver_ttl_hours" yaml:"resolver_ttl_hours"`
	ResolverMaxItems     int    `json:"resolver_max_items" yaml:"resolver_max_items"`
}

type Schedule struct {
	RepairCron        string   `json:"repair_cron" yaml:"repair_cron"`
	WarmupCron        string   `json:"warmup_cron" yaml:"warmup_cron"`
	WarmupSymbols     []string `json:"warmup_symbols" yaml:"warmup_symbols"`
	WarmupIntervals   []string `json:"warmup_intervals" yaml:"warmup_intervals"`
	WarmupConcurrency int      `json:"warmup_concurrency" yaml:"warmup_concurrency"`
}

type Config struct {
	Server     Server     `json:"server" yaml:"server"`
	Logging    Logging    `json:"logging" yaml:"logging"`
	Storage    Storage    `json:"storage" yaml:"storage"`
	Cache      Cache      `json:"cache" yaml:"cache"`
	TwelveData TwelveData `json:"twelvedata" yaml:"twelvedata"`
	Binance    Binance    `json:"binance" yaml:"binance"`
	Yahoo      Yahoo      `json:"yahoo" yaml:"yahoo"`
	Vendors    Vendors    `json:"vendors" yaml:"vendors"`
	Symbols    Symbols    `json:"symbols" yaml:"symbols"`
	Schedule   Schedule   `json:"schedule" yaml:"schedule"`
}

func Default() Config {
	return Config{
		Server: Server{
			Port:              "8080",
			RequestTimeoutSec: 30,
			CORSOrigins:       []string{"*"},
			MaxBodyBytes:      1 << 20,
		},
		Logging: Logging{Level: "info", Format: "json", Output: "stdout", MaxAge: 7},
		Storage: Storage{
			Driver:      "sqlite",
			SQLitePath:  "quotebroker.db",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "quotebroker",
		},
		Cache: Cache{CandleTTLHours: 23, CAGRTTLHours: 24, FetchTimeoutSec: 15},
		TwelveData: TwelveData{
			BaseURL:              "https://api.twelvedata.com",
			OutputSize:           1300,
			MaxRequestsPerMinute: 8,
			Burst:                1,
		},
		Binance: Binance{Limit: 1000},
		Yahoo:   Yahoo{BaseURL: "https://query1.finance.yahoo.com"},
		Vendors: Vendors{Crypto: "twelvedata", Forex: "twelvedata", ETF: "twelvedata", Stock: "twelvedata"},
		Symbols: Symbols{
			DefaultStockExchange: "NASDAQ",
			ResolverTTLHours:     24,
			ResolverMaxItems:     10000,
		},
		Schedule: Schedule{
			RepairCron:        "0 30 3 * * *",
			WarmupIntervals:   []string{"1d"},
			WarmupConcurrency: 2,
		},
	}
}

// Load reads a JSON or YAML config from path, chosen by extension. If path is
// empty, config.yaml, config.yml and config.json are tried in that order; a
// missing file yields defaults. Environment variables override select fields.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path == "" {
		for _, candidate := range []string{"config.yaml", "config.yml", "config.json"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := decode(path, b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decode(path string, b []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, cfg)
	default:
		return json.Unmarshal(b, cfg)
	}
}

// Validate rejects settings the services cannot run with.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for the postgres driver")
		}
	case "redis":
		if c.Storage.RedisAddr == "" {
			return errors.New("storage.redis_addr is required for the redis driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	for class, vendor := range map[string]string{
		"crypto": c.Vendors.Crypto,
		"forex":  c.Vendors.Forex,
		"etf":    c.Vendors.ETF,
		"stock":  c.Vendors.Stock,
	} {
		if !supported(class, vendor) {
			return fmt.Errorf("vendor %q cannot serve %s", vendor, class)
		}
	}

	if c.Cache.CandleTTLHours <= 0 || c.Cache.CAGRTTLHours <= 0 {
		return errors.New("cache ttls must be positive")
	}
	return nil
}

func supported(class, vendor string) bool {
	switch vendor {
	case "twelvedata":
		return true
	case "binance":
		return class == "crypto"
	case "yahoo":
		return class == "stock" || class == "etf"
	}
	return false
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSec) * time.Second
}

func (c Config) CandleTTL() time.Duration {
	return time.Duration(c.Cache.CandleTTLHours) * time.Hour
}

func (c Config) CAGRTTL() time.Duration {
	return time.Duration(c.Cache.CAGRTTLHours) * time.Hour
}

func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Cache.FetchTimeoutSec) * time.Second
}

func (c Config) ResolverTTL() time.Duration {
	return time.Duration(c.Symbols.ResolverTTLHours) * time.Hour
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	envInt("REQUEST_TIMEOUT_SEC", &cfg.Server.RequestTimeoutSec)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitCSV(v)
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("LOG_OUTPUT"); v != "" {
		cfg.Logging.Output = v
	}

	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Storage.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Storage.RedisPassword = v
	}
	envInt("REDIS_DB", &cfg.Storage.RedisDB)

	envInt("CANDLE_TTL_HOURS", &cfg.Cache.CandleTTLHours)
	envInt("CAGR_TTL_HOURS", &cfg.Cache.CAGRTTLHours)
	envInt("FETCH_TIMEOUT_SEC", &cfg.Cache.FetchTimeoutSec)

	if v := os.Getenv("TWELVE_DATA_API_KEY"); v != "" {
		cfg.TwelveData.APIKey = v
	}
	if v := os.Getenv("TWELVE_DATA_BASE_URL"); v != "" {
		cfg.TwelveData.BaseURL = v
	}
	envInt("TWELVE_DATA_MAX_RPM", &cfg.TwelveData.MaxRequestsPerMinute)
	envInt("TWELVE_DATA_BURST", &cfg.TwelveData.Burst)

	if v := os.Getenv("CRYPTO_VENDOR"); v != "" {
		cfg.Vendors.Crypto = strings.ToLower(v)
	}
	if v := os.Getenv("STOCK_VENDOR"); v != "" {
		cfg.Vendors.Stock = strings.ToLower(v)
	}
	if v := os.Getenv("ETF_VENDOR"); v != "" {
		cfg.Vendors.ETF = strings.ToLower(v)
	}
	if v := os.Getenv("VENDOR_PROXY_URL"); v != "" {
		cfg.Vendors.ProxyURL = v
	}

	if v := os.Getenv("DEFAULT_STOCK_EXCHANGE"); v != "" {
		cfg.Symbols.DefaultStockExchange = strings.ToUpper(v)
	}
	envBool("RESOLVE_EXCHANGE", &cfg.Symbols.ResolveExchange)

	if v, ok := os.LookupEnv("REPAIR_CRON"); ok {
		cfg.Schedule.RepairCron = v
	}
	if v, ok := os.LookupEnv("WARMUP_CRON"); ok {
		cfg.Schedule.WarmupCron = v
	}
	if v := os.Getenv("WARMUP_SYMBOLS"); v != "" {
		cfg.Schedule.WarmupSymbols = splitCSV(v)
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		var x int
		if _, err := fmt.Sscanf(v, "%d", &x); err == nil && x >= 0 {
			*dst = x
		}
	}
}

func envBool(key string, dst *bool) {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "y":
		*dst = true
	case "0", "false", "no", "n":
		*dst = false
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
