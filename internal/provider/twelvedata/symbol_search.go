package twelvedata

import (
	"context"
	"net/url"
)

// SymbolMatch is one symbol_search result.
type SymbolMatch struct {
	Symbol         string `json:"symbol"`
	InstrumentName string `json:"instrument_name"`
	Exchange       string `json:"exchange"`
	MICCode        string `json:"mic_code"`
	InstrumentType string `json:"instrument_type"`
	Country        string `json:"country"`
	Currency       string `json:"currency"`
}

type symbolSearchResponse struct {
	Data   []SymbolMatch `json:"data"`
	Status string        `json:"status"`
}

// SymbolSearch lists instruments matching query.
func (c *Client) SymbolSearch(ctx context.Context, query string, opts ...Option) ([]SymbolMatch, error) {
	params := url.Values{}
	params.Set("symbol", query)

	var res symbolSearchResponse
	if err := c.get(ctx, "/symbol_search", params, &res, opts...); err != nil {
		return nil, err
	}
	return res.Data, nil
}
