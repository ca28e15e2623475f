package candle

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Sanitize converts vendor rows into candles. Rows with any unparsable or
// non-finite field are dropped. Sub-second epochs are folded to seconds.
// The result is ascending by time with one candle per timestamp; a later row
// wins over an earlier one with the same time.
func Sanitize(rows []Row) []Candle {
	out := make([]Candle, 0, len(rows))
	for _, r := range rows {
		c, ok := sanitizeRow(r)
		if !ok {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })

	dedup := out[:0]
	for i, c := range out {
		if i+1 < len(out) && out[i+1].Time == c.Time {
			continue
		}
		dedup = append(dedup, c)
	}
	return dedup
}

// Dropped reports how many rows Sanitize would discard.
func Dropped(rows []Row) int {
	n := 0
	for _, r := range rows {
		if _, ok := sanitizeRow(r); !ok {
			n++
		}
	}
	return n
}

func sanitizeRow(r Row) (Candle, bool) {
	t, ok := parseTime(r.Time)
	if !ok {
		return Candle{}, false
	}
	var prices [4]float64
	for i, s := range [4]string{r.Open, r.High, r.Low, r.Close} {
		v, ok := parsePrice(s)
		if !ok {
			return Candle{}, false
		}
		prices[i] = v
	}
	return Candle{Time: t, Open: prices[0], High: prices[1], Low: prices[2], Close: prices[3]}, true
}

func parsePrice(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func parseTime(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return epochSeconds(v)
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			if t.Unix() <= 0 {
				return 0, false
			}
			return t.Unix(), true
		}
	}
	return 0, false
}

// epochSeconds folds millisecond, microsecond or nanosecond epochs down to
// seconds. Non-finite, non-positive and out of int64 range values are rejected.
func epochSeconds(v float64) (int64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 || v >= math.MaxInt64 {
		return 0, false
	}
	for v > MaxSecondsEpoch {
		v /= 1000
	}
	t := int64(math.Floor(v))
	if t <= 0 {
		return 0, false
	}
	return t, true
}

// NormalizeTimes rewrites sub-second epoch timestamps to seconds. changed
// reports whether any candle was touched; the input slice is not modified.
func NormalizeTimes(cs []Candle) (out []Candle, changed bool) {
	out = make([]Candle, len(cs))
	for i, c := range cs {
		for c.Time > MaxSecondsEpoch {
			c.Time /= 1000
			changed = true
		}
		out[i] = c
	}
	return out, changed
}
