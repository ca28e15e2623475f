package api_test

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"quotebroker/internal/api"
	"quotebroker/internal/candle"
	"quotebroker/internal/growth"
	"quotebroker/internal/provider"
	"quotebroker/internal/quotes"
	"quotebroker/internal/store"
	"quotebroker/internal/symbol"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func rows(n int) []candle.Row {
	out := make([]candle.Row, n)
	for i := range out {
		price := fmt.Sprintf("%.4f", 100*(1+0.001*float64(i)))
		out[i] = candle.Row{Time: fmt.Sprint(1_600_000_000 + i*86400), Open: price, High: price, Low: price, Close: price}
	}
	return out
}

func newRouter(t *testing.T, vendorRows []candle.Row) (*gin.Engine, *store.Memory) {
	t.Helper()

	mem := store.NewMemory()
	f := provider.FetcherFunc{ID: "fake", Fn: func(context.Context, symbol.Canonical, string) []candle.Row { return vendorRows }}
	qs := quotes.NewService(quotes.Config{}, symbol.NewClassifier(""), nil, provider.Set{Crypto: f, Forex: f, ETF: f, Stock: f}, mem)
	gs := growth.NewService(qs, mem, 0)
	return api.NewServer(qs, gs, mem, api.Options{}).Router(), mem
}

func do(r http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestGetCandles(t *testing.T) {
	t.Parallel()

	// Arrange
	r, _ := newRouter(t, rows(3))

	// Act
	first := do(r, http.MethodGet, "/api/candles?symbol=QQQT&interval=1d&user_email=a@b.c", "")
	second := do(r, http.MethodGet, "/api/candles?symbol=QQQT&interval=1d&user_email=a@b.c", "")

	// Assert
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, "MISS", first.Header().Get("X-Cache"))
	require.Equal(t, "HIT", second.Header().Get("X-Cache"))
	require.JSONEq(t, first.Body.String(), second.Body.String())
	require.NotEmpty(t, first.Header().Get("X-Request-ID"))

	var got []candle.Candle
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &got))
	require.Len(t, got, 3)
	require.Equal(t, int64(1_600_000_000), got[0].Time)
}

func TestGetCandles_NoData(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		rows   []candle.Row
		reason string
	}{
		{name: "vendor empty", rows: nil, reason: quotes.NoDataVendorEmpty},
		{name: "all invalid", rows: []candle.Row{{Time: "1700000000", Open: "1", High: "1", Low: "1", Close: "NaN"}}, reason: quotes.NoDataAllInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r, _ := newRouter(t, tt.rows)

			rec := do(r, http.MethodGet, "/api/candles?symbol=AAPL", "", "Accept-Encoding", "gzip")

			require.Equal(t, http.StatusNoContent, rec.Code)
			require.Equal(t, tt.reason, rec.Header().Get(api.NoDataHeader))
			require.Empty(t, rec.Header().Get("Content-Encoding"))
			require.Zero(t, rec.Body.Len())
		})
	}
}

func TestGetCandles_MissingSymbol(t *testing.T) {
	t.Parallel()

	r, _ := newRouter(t, rows(3))

	rec := do(r, http.MethodGet, "/api/candles", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"status":"error","message":"Missing symbol"}`, rec.Body.String())
}

type failingCandles struct {
	err   error
	panic bool
}

func (f failingCandles) Parse(raw string) symbol.Canonical {
	return symbol.NewClassifier("").Parse(raw)
}

func (f failingCandles) Classify(_ context.Context, raw string) symbol.Canonical {
	return f.Parse(raw)
}

func (f failingCandles) Candles(context.Context, quotes.Request) (quotes.Result, error) {
	if f.panic {
		panic("boom")
	}
	return quotes.Result{}, f.err
}

func TestGetCandles_StorageFailure(t *testing.T) {
	t.Parallel()

	// Arrange
	candles := failingCandles{err: fmt.Errorf("reading candle cache: %w", store.ErrUnavailable)}
	r := api.NewServer(candles, growth.NewService(candles, store.NewMemory(), 0), store.NewMemory(), api.Options{}).Router()

	// Act
	rec := do(r, http.MethodGet, "/api/candles?symbol=AAPL", "")

	// Assert
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "storage unavailable")
}

func TestRecoversFromPanic(t *testing.T) {
	t.Parallel()

	candles := failingCandles{panic: true}
	r := api.NewServer(candles, growth.NewService(candles, store.NewMemory(), 0), store.NewMemory(), api.Options{}).Router()

	rec := do(r, http.MethodGet, "/api/candles?symbol=AAPL", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetCAGR(t *testing.T) {
	t.Parallel()

	// Arrange
	r, _ := newRouter(t, rows(150))

	// Act
	first := do(r, http.MethodGet, "/api/cagr?symbol=SPY&user_email=x", "")
	second := do(r, http.MethodGet, "/api/cagr?symbol=SPY&user_email=x", "")

	// Assert
	require.Equal(t, http.StatusOK, first.Code)
	var a, b struct {
		Status string  `json:"status"`
		Cached bool    `json:"cached"`
		CAGR   float64 `json:"cagr"`
	}
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	require.Equal(t, "success", a.Status)
	require.False(t, a.Cached)
	require.True(t, b.Cached)
	require.Positive(t, a.CAGR)
	require.Equal(t, a.CAGR, b.CAGR)
}

func TestGetCAGR_MissingSymbol(t *testing.T) {
	t.Parallel()

	r, _ := newRouter(t, nil)

	rec := do(r, http.MethodGet, "/api/cagr", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	r, _ := newRouter(t, nil)

	rec := do(r, http.MethodGet, "/api/symbols/classify?symbol=SPY:ARCA", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "etf", got["class"])
	require.Equal(t, "SPY", got["base"])
	require.Equal(t, "SPY:ARCA", got["vendor_symbol"])
	require.Equal(t, "SPYARCA", got["cache_key"])

	require.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/symbols/classify", "").Code)
}

func TestPortfolio(t *testing.T) {
	t.Parallel()

	// Arrange
	r, _ := newRouter(t, nil)
	body := `{"email":"a@b.c","portfolio":[{"symbol":"AAPL","weight":0.6,"exposure":6000,"cagr":0.12},{"symbol":"BTCUSDT","weight":0.4,"exposure":4000,"cagr":0.5}]}`

	// Act
	saved := do(r, http.MethodPost, "/api/portfolio", body)
	loaded := do(r, http.MethodGet, "/api/portfolio?email=a@b.c", "")
	empty := do(r, http.MethodGet, "/api/loadPortfolio?email=nobody@b.c", "")

	// Assert
	require.Equal(t, http.StatusOK, saved.Code)
	require.JSONEq(t, `{"status":"success"}`, saved.Body.String())
	require.Equal(t, http.StatusOK, loaded.Code)
	require.JSONEq(t, `{"status":"success","portfolio":[{"symbol":"AAPL","weight":0.6,"exposure":6000,"cagr":0.12},{"symbol":"BTCUSDT","weight":0.4,"exposure":4000,"cagr":0.5}]}`, loaded.Body.String())
	require.JSONEq(t, `{"status":"success","portfolio":[]}`, empty.Body.String())
}

func TestPortfolio_BadRequests(t *testing.T) {
	t.Parallel()

	r, _ := newRouter(t, nil)

	require.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/portfolio", `{"email":"a@b.c"}`).Code)
	require.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/savePortfolio", `{"portfolio":[]}`).Code)
	require.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/portfolio", `not json`).Code)
	require.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/portfolio", "").Code)
}

func TestGzip(t *testing.T) {
	t.Parallel()

	r, _ := newRouter(t, rows(5))

	rec := do(r, http.MethodGet, "/api/candles?symbol=MSFT", "", "Accept-Encoding", "gzip")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	var got []candle.Candle
	require.NoError(t, json.Unmarshal(plain, &got))
	require.Len(t, got, 5)
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	r, _ := newRouter(t, nil)

	require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/healthz", "").Code)
	require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/metrics", "").Code)
	require.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/nope", "").Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	t.Parallel()

	r, _ := newRouter(t, nil)

	rec := do(r, http.MethodGet, "/healthz", "", "X-Request-ID", "abc-123")

	require.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}
