package twelvedata_test

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"quotebroker/internal/provider/twelvedata"
)

var mockTimeSeriesResponse = map[string]any{
	"meta": map[string]any{
		"symbol":            "AAPL",
		"interval":          "1day",
		"currency":          "USD",
		"exchange_timezone": "America/New_York",
		"exchange":          "NASDAQ",
		"type":              "Common Stock",
	},
	"values": []map[string]any{
		{"datetime": "2024-01-04", "open": "182.15", "high": "183.09", "low": "180.88", "close": "181.91", "volume": "71983600"},
		{"datetime": "2024-01-03", "open": "184.22", "high": "185.88", "low": "183.43", "close": "184.25", "volume": "58414500"},
		{"datetime": "2024-01-02", "open": "187.15", "high": "188.44", "low": "183.89", "close": "185.64", "volume": "82488700"},
	},
	"status": "ok",
}

func TestTimeSeries(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock HTTP client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, http.MethodGet, req.Method)
			require.Equal(t, "/time_series", req.URL.Path)
			require.Equal(t, "test-key", req.URL.Query().Get("apikey"))
			require.Equal(t, "AAPL:NASDAQ", req.URL.Query().Get("symbol"))
			require.Equal(t, "1day", req.URL.Query().Get("interval"))
			require.Equal(t, "1300", req.URL.Query().Get("outputsize"))
			return jsonResponse(t, http.StatusOK, mockTimeSeriesResponse), nil
		}).
		Times(1)

	// Arrange: setup a new client
	client, err := twelvedata.NewClient("test-key", twelvedata.WithHTTPClient(httpClient))
	require.NoError(t, err)

	// Act
	ts, err := client.TimeSeries(t.Context(), "AAPL:NASDAQ", "1day", 1300)
	require.NoError(t, err)

	// Assert: values are reversed to oldest first.
	require.Equal(t, "AAPL", ts.Meta.Symbol)
	require.Len(t, ts.Values, 3)
	require.Equal(t, "2024-01-02", ts.Values[0].Datetime)
	require.Equal(t, "185.64", ts.Values[0].Close)
	require.Equal(t, "2024-01-04", ts.Values[2].Datetime)
}

func TestTimeSeries_MissingValues(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(jsonResponse(t, http.StatusOK, map[string]any{"meta": map[string]any{}, "status": "ok"}), nil).
		Times(1)

	client, err := twelvedata.NewClient("test", twelvedata.WithHTTPClient(httpClient))
	require.NoError(t, err)

	ts, err := client.TimeSeries(t.Context(), "AAPL:NASDAQ", "1day", 1300)
	require.ErrorIs(t, err, twelvedata.ErrNoValues)
	require.Nil(t, ts)
}

func TestTimeSeries_ErrCreatingRequest(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock HTTP client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: no request leaves the client.
	httpClient.EXPECT().
		Do(gomock.Any()).
		Times(0)

	client, err := twelvedata.NewClient("", twelvedata.WithHTTPClient(httpClient))
	require.NoError(t, err)

	// Act: an invalid base URL cannot build a request.
	ts, err := client.TimeSeries(t.Context(), "AAPL", "1day", 1300, twelvedata.WithBaseURL(string([]rune{0x7f})))
	require.Error(t, err)
	require.Nil(t, ts)
}

func TestTimeSeries_ErrPerformingRequest(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			return nil, fmt.Errorf("connection reset")
		}).
		Times(1)

	client, err := twelvedata.NewClient("", twelvedata.WithHTTPClient(httpClient))
	require.NoError(t, err)

	ts, err := client.TimeSeries(t.Context(), "AAPL", "1day", 1300)
	require.Error(t, err)
	require.Nil(t, ts)
}

func TestTimeSeries_ErrStatusCodes(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			httpClient := NewMockHTTPClient(ctrl)
			httpClient.EXPECT().
				Do(gomock.Any()).
				DoAndReturn(func(req *http.Request) (*http.Response, error) {
					return &http.Response{
						StatusCode: status,
						Body:       io.NopCloser(bytes.NewReader([]byte{})),
					}, nil
				}).
				Times(1)

			client, err := twelvedata.NewClient("", twelvedata.WithHTTPClient(httpClient))
			require.NoError(t, err)

			ts, err := client.TimeSeries(t.Context(), "AAPL", "1day", 1300)
			require.Error(t, err)
			require.Nil(t, ts)
		})
	}
}

func TestTimeSeries_ErrDecodingResponse(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(bytes.NewBufferString("invalid json")),
			}, nil
		}).
		Times(1)

	client, err := twelvedata.NewClient("", twelvedata.WithHTTPClient(httpClient))
	require.NoError(t, err)

	ts, err := client.TimeSeries(t.Context(), "AAPL", "1day", 1300)
	require.Error(t, err)
	require.Nil(t, ts)
}

func TestSymbolSearch(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "/symbol_search", req.URL.Path)
			require.Equal(t, "QQQT", req.URL.Query().Get("symbol"))
			return jsonResponse(t, http.StatusOK, map[string]any{
				"data": []map[string]any{
					{"symbol": "QQQT", "instrument_name": "Defiance Nasdaq 100", "exchange": "NASDAQ", "mic_code": "XNMS", "instrument_type": "ETF", "country": "United States", "currency": "USD"},
				},
				"status": "ok",
			}), nil
		}).
		Times(1)

	client, err := twelvedata.NewClient("k", twelvedata.WithHTTPClient(httpClient))
	require.NoError(t, err)

	matches, err := client.SymbolSearch(t.Context(), "QQQT")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "NASDAQ", matches[0].Exchange)
	require.Equal(t, "ETF", matches[0].InstrumentType)
}
