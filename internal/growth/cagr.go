// Package growth estimates an annualized, volatility-adjusted growth rate
// from a close series and caches the estimate per symbol.
package growth

import "math"

const (
	// MinCloses is the shortest series an estimate is made for.
	MinCloses = 100
	// Window is the number of trailing closes used, about five years.
	Window = 5 * 365
	// TradingDays annualizes daily log returns.
	TradingDays = 252
)

// ComputeCAGR returns exp(252*mean - 0.5*252*var) - 1 over the log returns
// of the trailing Window closes, with var the sample variance. It returns 0
// when there are fewer than MinCloses closes, a close is not positive, or
// the result is not finite.
func ComputeCAGR(closes []float64) float64 {
	v, _ := Estimate(closes)
	return v
}

// Estimate is ComputeCAGR that also reports whether the value is a real
// estimate rather than the 0 sentinel.
func Estimate(closes []float64) (float64, bool) {
	if len(closes) < MinCloses {
		return 0, false
	}
	if len(closes) > Window {
		closes = closes[len(closes)-Window:]
	}

	rets := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev, cur := closes[i-1], closes[i]
		if prev <= 0 || cur <= 0 {
			return 0, false
		}
		rets = append(rets, math.Log(cur/prev))
	}

	var sum float64
	for _, r := range rets {
		sum += r
	}
	mean := sum / float64(len(rets))

	var sq float64
	for _, r := range rets {
		sq += (r - mean) * (r - mean)
	}
	variance := sq / float64(len(rets)-1)

	cagr := math.Exp(mean*TradingDays-0.5*variance*TradingDays) - 1
	if math.IsNaN(cagr) || math.IsInf(cagr, 0) {
		return 0, false
	}
	return cagr, true
}
