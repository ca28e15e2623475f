package twelvedata

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"strconv"
)

// ErrNoValues is returned when a time series response has no values array.
var ErrNoValues = errors.New("twelvedata: response has no values")

// Bar is one entry of a time series. Twelve Data sends every field as a string.
type Bar struct {
	Datetime string `json:"datetime"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume,omitempty"`
}

// Meta describes the returned series.
type Meta struct {
	Symbol           string `json:"symbol"`
	Interval         string `json:"interval"`
	Currency         string `json:"currency"`
	ExchangeTimezone string `json:"exchange_timezone"`
	Exchange         string `json:"exchange"`
	Type             string `json:"type"`
}

// TimeSeries is a decoded time_series response with Values oldest first.
type TimeSeries struct {
	Meta   Meta   `json:"meta"`
	Values []Bar  `json:"values"`
	Status string `json:"status"`
}

// TimeSeries retrieves up to outputSize bars for symbol at a Twelve Data
// interval such as "1day" or "1h". The API answers newest first; the
// returned values are reversed to oldest first.
func (c *Client) TimeSeries(ctx context.Context, symbol, interval string, outputSize int, opts ...Option) (*TimeSeries, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if outputSize > 0 {
		params.Set("outputsize", strconv.Itoa(outputSize))
	}

	var ts TimeSeries
	if err := c.get(ctx, "/time_series", params, &ts, opts...); err != nil {
		return nil, err
	}
	if ts.Values == nil {
		return nil, ErrNoValues
	}
	slices.Reverse(ts.Values)
	return &ts, nil
}
