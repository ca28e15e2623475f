package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"quotebroker/internal/candle"
	"quotebroker/internal/logger"
	"quotebroker/internal/metrics"
	"quotebroker/internal/symbol"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// HTTPClient describes an HTTP client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	Name    string // display name, default: yahoo
	BaseURL string // default: https://query1.finance.yahoo.com
}

// Fetcher reads the v8 chart API for stocks and ETFs.
type Fetcher struct {
	cfg    Config
	client HTTPClient
}

func New(cfg Config, client HTTPClient) *Fetcher {
	if cfg.Name == "" {
		cfg.Name = "yahoo"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{cfg: cfg, client: client}
}

func (f *Fetcher) Name() string { return f.cfg.Name }

// chart is the response structure of the chart API. Prices are pointers
// because Yahoo sends null for bars without trades.
type chart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open  []*float64 `json:"open"`
					High  []*float64 `json:"high"`
					Low   []*float64 `json:"low"`
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Range returns the Yahoo interval and range requested for interval.
func Range(interval string) (string, string) {
	switch interval {
	case "1h":
		return "60m", "730d"
	case "1w":
		return "1wk", "10y"
	case "1M":
		return "1mo", "max"
	default:
		return "1d", "5y"
	}
}

func (f *Fetcher) FetchCandles(ctx context.Context, sym symbol.Canonical, interval string) []candle.Row {
	log := logger.GetLogger().WithComponent("yahoo").WithFields(logger.Fields{
		"vendor":   f.cfg.Name,
		"symbol":   sym.Base,
		"interval": interval,
	})

	rows, err := f.fetchChart(ctx, sym.Base, interval)
	if err != nil {
		log.WithError(err).Warn("vendor fetch failed")
		metrics.VendorFetch(f.cfg.Name, "error")
		return nil
	}
	if len(rows) == 0 {
		log.Warn("vendor returned no bars")
		metrics.VendorFetch(f.cfg.Name, "empty")
		return rows
	}
	metrics.VendorFetch(f.cfg.Name, "ok")
	return rows
}

func (f *Fetcher) fetchChart(ctx context.Context, ticker, interval string) ([]candle.Row, error) {
	yInterval, yRange := Range(interval)
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		f.cfg.BaseURL, url.PathEscape(ticker), yInterval, yRange)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: status %d", resp.StatusCode)
	}

	var c chart
	if err := json.Unmarshal(body, &c); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if c.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", c.Chart.Error.Description)
	}
	if len(c.Chart.Result) == 0 || len(c.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := c.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	type bar struct {
		ts         int64
		o, h, l, c float64
	}
	bars := make([]bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o, h, l, cl := at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i)
		if o == nil || h == nil || l == nil || cl == nil {
			continue // null bar (holiday, halted session)
		}
		bars = append(bars, bar{ts: ts, o: *o, h: *h, l: *l, c: *cl})
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].ts < bars[j].ts })

	rows := make([]candle.Row, 0, len(bars))
	for _, b := range bars {
		rows = append(rows, candle.Row{
			Time:  strconv.FormatInt(b.ts, 10),
			Open:  strconv.FormatFloat(b.o, 'g', -1, 64),
			High:  strconv.FormatFloat(b.h, 'g', -1, 64),
			Low:   strconv.FormatFloat(b.l, 'g', -1, 64),
			Close: strconv.FormatFloat(b.c, 'g', -1, 64),
		})
	}
	return rows, nil
}

func at(vs []*float64, i int) *float64 {
	if i < len(vs) {
		return vs[i]
	}
	return nil
}
