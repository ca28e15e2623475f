// Package symbol classifies free-form tickers into asset classes and derives
// the vendor symbol and cache key each class uses.
package symbol

import (
	"regexp"
	"strings"
)

// AssetClass is the closed set of instrument kinds the broker understands.
type AssetClass int

const (
	Stock AssetClass = iota
	Crypto
	Forex
	ETF
)

func (c AssetClass) String() string {
	switch c {
	case Crypto:
		return "crypto"
	case Forex:
		return "forex"
	case ETF:
		return "etf"
	default:
		return "stock"
	}
}

// MarshalText lets AssetClass appear as a string in JSON.
func (c AssetClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// DefaultExchange is used for stocks absent from the exchange table.
const DefaultExchange = "NASDAQ"

var cryptoTickers = map[string]struct{}{
	"APE": {}, "ARB": {}, "ADA": {}, "AAVE": {}, "AVAX": {}, "ATOM": {}, "BNB": {}, "BCH": {}, "BTC": {},
	"CAKE": {}, "DOGE": {}, "DOT": {}, "EGLD": {}, "ETH": {}, "ETC": {}, "FIL": {}, "FTM": {}, "GRT": {},
	"IMX": {}, "ICP": {}, "JASMY": {}, "LINK": {}, "LTC": {}, "MATIC": {}, "NEAR": {}, "PEPE": {}, "RNDR": {},
	"SHIB": {}, "SOL": {}, "SAND": {}, "TRX": {}, "UNI": {}, "VET": {}, "XLM": {}, "XRP": {},
}

var etfExchanges = map[string]string{
	"VIXY": "CBOE",
	"SPY":  "ARCA",
	"QQQ":  "NASDAQ",
	"IWM":  "ARCA",
}

var stockExchanges = map[string]string{
	"AAPL": "NASDAQ", "AMD": "NASDAQ", "AMZN": "NASDAQ", "BABA": "NYSE", "BRK": "NYSE",
	"BRK.B": "NYSE", "CVX": "NYSE", "DIS": "NYSE", "GOOGL": "NASDAQ", "GOOG": "NASDAQ",
	"GS": "NYSE", "INTC": "NASDAQ", "JNJ": "NYSE", "JPM": "NYSE", "KO": "NYSE",
	"MA": "NYSE", "META": "NASDAQ", "MSFT": "NASDAQ", "NFLX": "NASDAQ", "NVDA": "NASDAQ",
	"PEP": "NASDAQ", "PFE": "NYSE", "PG": "NYSE", "T": "NYSE", "TSLA": "NASDAQ",
	"UNH": "NYSE", "V": "NYSE", "WMT": "NYSE", "XOM": "NYSE",
}

var (
	cryptoSeparators = strings.NewReplacer(":", "", "-", "", "/", "")
	cryptoQuote      = regexp.MustCompile(`(USDT|USD|BTC)$`)
	sixLetters       = regexp.MustCompile(`^[A-Z]{6}$`)
	slashPair        = regexp.MustCompile(`^[A-Z]{3}/[A-Z]{3}$`)
	keyStripper      = strings.NewReplacer(":", "", "/", "")
)

// Canonical is a classified ticker.
type Canonical struct {
	// Raw is the ticker as received.
	Raw string `json:"raw"`
	// Base is the uppercased ticker with any exchange suffix removed.
	Base  string     `json:"base"`
	Class AssetClass `json:"class"`
	// Exchange is set for stocks and ETFs.
	Exchange string `json:"exchange,omitempty"`
	// Quote is the quote currency of a crypto pair.
	Quote string `json:"quote,omitempty"`
	// VendorSymbol is the vendor-facing form: BASE:EXCHANGE, ABC/DEF or the
	// separator-free crypto pair.
	VendorSymbol string `json:"vendor_symbol"`
	// ExchangeDefaulted is true when a stock matched neither the table nor
	// the NASDAQ suffix rule.
	ExchangeDefaulted bool `json:"exchange_defaulted,omitempty"`
}

// CacheKey is the vendor symbol without separators, uppercased.
func (c Canonical) CacheKey() string {
	return strings.ToUpper(keyStripper.Replace(c.VendorSymbol))
}

// WithExchange returns a stock/ETF copy pinned to exchange.
func (c Canonical) WithExchange(exchange string) Canonical {
	c.Exchange = exchange
	c.VendorSymbol = c.Base + ":" + exchange
	c.ExchangeDefaulted = false
	return c
}

// Classifier carries the lookup tables. The zero value is not usable; use
// NewClassifier.
type Classifier struct {
	defaultExchange string
}

// NewClassifier returns a classifier that assigns defaultExchange to
// unknown stocks. An empty defaultExchange means NASDAQ.
func NewClassifier(defaultExchange string) *Classifier {
	if defaultExchange == "" {
		defaultExchange = DefaultExchange
	}
	return &Classifier{defaultExchange: strings.ToUpper(defaultExchange)}
}

// Parse classifies and canonicalizes raw in one step.
func (c *Classifier) Parse(raw string) Canonical {
	return c.Canonicalize(raw, Classify(raw))
}

// Classify is total: anything not recognised as crypto, forex or a listed
// ETF is a stock.
func Classify(raw string) AssetClass {
	if isCrypto(raw) {
		return Crypto
	}
	base := clean(raw)
	if sixLetters.MatchString(base) || slashPair.MatchString(base) {
		return Forex
	}
	if _, ok := etfExchanges[base]; ok {
		return ETF
	}
	return Stock
}

// Canonicalize formats raw for class. An ETF missing from the ETF table is
// formatted as a stock.
func (c *Classifier) Canonicalize(raw string, class AssetClass) Canonical {
	switch class {
	case Crypto:
		pair := strings.ToUpper(cryptoSeparators.Replace(strings.TrimSpace(raw)))
		base, quote := pair, ""
		if loc := cryptoQuote.FindStringIndex(pair); loc != nil && loc[0] > 0 {
			base, quote = pair[:loc[0]], pair[loc[0]:]
		}
		return Canonical{Raw: raw, Base: base, Class: Crypto, Quote: quote, VendorSymbol: pair}

	case Forex:
		vendor := clean(raw)
		base := strings.ReplaceAll(vendor, "/", "")
		if sixLetters.MatchString(vendor) {
			vendor = vendor[:3] + "/" + vendor[3:]
		}
		return Canonical{Raw: raw, Base: base, Class: Forex, VendorSymbol: vendor}

	case ETF:
		base := clean(raw)
		if exchange, ok := etfExchanges[base]; ok {
			return Canonical{Raw: raw, Base: base, Class: ETF, Exchange: exchange, VendorSymbol: base + ":" + exchange}
		}
		return c.stock(raw, base)

	default:
		return c.stock(raw, clean(raw))
	}
}

func (c *Classifier) stock(raw, base string) Canonical {
	exchange, defaulted := c.stockExchange(base)
	return Canonical{
		Raw:               raw,
		Base:              base,
		Class:             Stock,
		Exchange:          exchange,
		VendorSymbol:      base + ":" + exchange,
		ExchangeDefaulted: defaulted,
	}
}

func (c *Classifier) stockExchange(base string) (string, bool) {
	if exchange, ok := stockExchanges[base]; ok {
		return exchange, false
	}
	if strings.HasSuffix(base, "T") {
		return "NASDAQ", false
	}
	return c.defaultExchange, true
}

// KnownStock reports whether base is in the stock exchange table.
func KnownStock(base string) bool {
	_, ok := stockExchanges[base]
	return ok
}

func isCrypto(raw string) bool {
	pair := strings.ToUpper(cryptoSeparators.Replace(strings.TrimSpace(raw)))
	base := cryptoQuote.ReplaceAllString(pair, "")
	_, ok := cryptoTickers[base]
	return ok
}

func clean(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, ':'); i >= 0 {
		raw = raw[:i]
	}
	return strings.ToUpper(raw)
}
