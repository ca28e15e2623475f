// Package app builds the broker's object graph from a Config. Both the
// server and the CLI go through it so they share vendors, quotas and cache.
package app

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"quotebroker/internal/config"
	"quotebroker/internal/growth"
	"quotebroker/internal/httpx"
	"quotebroker/internal/logger"
	"quotebroker/internal/memo"
	"quotebroker/internal/provider"
	"quotebroker/internal/provider/binance"
	"quotebroker/internal/provider/ratelimit"
	"quotebroker/internal/provider/twelvedata"
	"quotebroker/internal/provider/twelvedataadapter"
	"quotebroker/internal/provider/yahoo"
	"quotebroker/internal/quotes"
	"quotebroker/internal/scheduler"
	"quotebroker/internal/store"
	"quotebroker/internal/store/redisstore"
	"quotebroker/internal/store/sqlstore"
	"quotebroker/internal/symbol"
)

// App holds the wired services.
type App struct {
	Config    config.Config
	Store     store.Store
	Providers provider.Set
	Resolver  *symbol.Resolver
	Quotes    *quotes.Service
	Growth    *growth.Service
}

// New opens the configured store and wires everything on top of it.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	st, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	a, err := NewWithStore(cfg, st)
	if err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

// NewWithStore wires the services on an already open store.
func NewWithStore(cfg config.Config, st store.Store) (*App, error) {
	hc, err := httpx.New(cfg.FetchTimeout(), httpx.WithProxy(cfg.Vendors.ProxyURL))
	if err != nil {
		return nil, fmt.Errorf("http client: %w", err)
	}

	tdOpts := []twelvedata.Option{twelvedata.WithHTTPClient(hc)}
	if cfg.TwelveData.BaseURL != "" {
		tdOpts = append(tdOpts, twelvedata.WithBaseURL(cfg.TwelveData.BaseURL))
	}
	td, err := twelvedata.NewClient(cfg.TwelveData.APIKey, tdOpts...)
	if err != nil {
		return nil, fmt.Errorf("twelvedata client: %w", err)
	}
	if cfg.TwelveData.APIKey == "" {
		logger.GetLogger().WithComponent("app").Warn("TWELVE_DATA_API_KEY not set")
	}
	quota := ratelimit.PerMinute(cfg.TwelveData.MaxRequestsPerMinute, cfg.TwelveData.Burst)

	providers, err := Providers(cfg, hc, td, quota)
	if err != nil {
		return nil, err
	}

	var resolver *symbol.Resolver
	if cfg.Symbols.ResolveExchange {
		lookup := limitedLookup{next: twelvedataadapter.ExchangeLookup{Client: td}, limiter: quota}
		resolver = symbol.NewResolver(lookup, memo.New[string](cfg.ResolverTTL(), cfg.Symbols.ResolverMaxItems))
	}

	qs := quotes.NewService(
		quotes.Config{CandleTTL: cfg.CandleTTL(), FetchTimeout: cfg.FetchTimeout()},
		symbol.NewClassifier(cfg.Symbols.DefaultStockExchange),
		resolver,
		providers,
		st,
	)
	return &App{
		Config:    cfg,
		Store:     st,
		Providers: providers,
		Resolver:  resolver,
		Quotes:    qs,
		Growth:    growth.NewService(qs, st, cfg.CAGRTTL()),
	}, nil
}

// OpenStore opens the backend named by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.Storage) (store.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlstore.OpenSQLite(cfg.SQLitePath)
	case "postgres":
		return sqlstore.OpenPostgres(ctx, cfg.PostgresDSN)
	case "redis":
		return redisstore.Open(ctx, redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	case "memory":
		return store.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// Providers assigns one fetcher per asset class. Twelve Data fetchers share
// quota so a burst over several classes cannot exceed the plan.
func Providers(cfg config.Config, hc *httpx.Client, td *twelvedata.Client, quota *rate.Limiter) (provider.Set, error) {
	tdCfg := twelvedataadapter.Config{OutputSize: cfg.TwelveData.OutputSize}
	limited := func(f provider.Fetcher) provider.Fetcher {
		return &ratelimit.Fetcher{Next: f, Limiter: quota}
	}

	var set provider.Set
	switch cfg.Vendors.Crypto {
	case "twelvedata":
		set.Crypto = limited(twelvedataadapter.NewCrypto(tdCfg, td))
	case "binance":
		set.Crypto = binance.New(binance.Config{BaseURL: cfg.Binance.BaseURL, Limit: cfg.Binance.Limit}, hc.HTTP)
	default:
		return set, fmt.Errorf("vendor %q cannot serve crypto", cfg.Vendors.Crypto)
	}
	switch cfg.Vendors.Forex {
	case "twelvedata":
		set.Forex = limited(twelvedataadapter.NewForex(tdCfg, td))
	default:
		return set, fmt.Errorf("vendor %q cannot serve forex", cfg.Vendors.Forex)
	}

	yf := yahoo.New(yahoo.Config{BaseURL: cfg.Yahoo.BaseURL}, hc)
	switch cfg.Vendors.ETF {
	case "twelvedata":
		set.ETF = limited(twelvedataadapter.NewETF(tdCfg, td))
	case "yahoo":
		set.ETF = yf
	default:
		return set, fmt.Errorf("vendor %q cannot serve etf", cfg.Vendors.ETF)
	}
	switch cfg.Vendors.Stock {
	case "twelvedata":
		set.Stock = limited(twelvedataadapter.NewStock(tdCfg, td))
	case "yahoo":
		set.Stock = yf
	default:
		return set, fmt.Errorf("vendor %q cannot serve stock", cfg.Vendors.Stock)
	}
	return set, nil
}

// Scheduler builds the maintenance scheduler for a.
func (a *App) Scheduler(ctx context.Context) *scheduler.Scheduler {
	s := a.Config.Schedule
	return scheduler.New(ctx, scheduler.Config{
		RepairCron:        s.RepairCron,
		WarmupCron:        s.WarmupCron,
		WarmupSymbols:     s.WarmupSymbols,
		WarmupIntervals:   s.WarmupIntervals,
		WarmupConcurrency: s.WarmupConcurrency,
	}, a.Quotes, a.Quotes)
}

func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}

// limitedLookup spends the shared Twelve Data quota on symbol searches.
type limitedLookup struct {
	next    symbol.ExchangeLookup
	limiter *rate.Limiter
}

func (l limitedLookup) LookupExchange(ctx context.Context, base string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("exchange lookup throttled: %w", err)
	}
	return l.next.LookupExchange(ctx, base)
}
