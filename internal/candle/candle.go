// Package candle holds the OHLC bar type shared by adapters, the cache and
// the growth estimator, together with the sanitizer that turns loosely typed
// vendor rows into finite, second-resolution candles.
package candle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// MaxSecondsEpoch is the largest value treated as Unix seconds. Anything
// above it is assumed to be Unix milliseconds.
const MaxSecondsEpoch = 9_999_999_999

// Candle is one OHLC bar. Time is Unix seconds.
type Candle struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Row is an unvalidated bar as produced by a vendor adapter. Every field is
// kept as text so the sanitizer owns all parsing.
type Row struct {
	Time  string
	Open  string
	High  string
	Low   string
	Close string
}

// UnmarshalJSON accepts numbers or strings for every field and the legacy
// "datetime" key in place of "time".
func (r *Row) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decoding row: %w", err)
	}
	t, ok := raw["datetime"]
	if !ok {
		t = raw["time"]
	}
	r.Time = scalar(t)
	r.Open = scalar(raw["open"])
	r.High = scalar(raw["high"])
	r.Low = scalar(raw["low"])
	r.Close = scalar(raw["close"])
	return nil
}

func scalar(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return ""
	}
	if v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return ""
		}
		return s
	}
	return string(v)
}

// DecodeRows parses a JSON array of bars in any of the shapes stored over time.
func DecodeRows(b []byte) ([]Row, error) {
	var rows []Row
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Rows renders candles back into rows without losing precision.
func Rows(cs []Candle) []Row {
	out := make([]Row, len(cs))
	for i, c := range cs {
		out[i] = Row{
			Time:  strconv.FormatInt(c.Time, 10),
			Open:  formatFloat(c.Open),
			High:  formatFloat(c.High),
			Low:   formatFloat(c.Low),
			Close: formatFloat(c.Close),
		}
	}
	return out
}

// Closes returns the close prices in order.
func Closes(cs []Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
