package symbol_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"quotebroker/internal/symbol"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want symbol.AssetClass
	}{
		{"BTCUSDT", symbol.Crypto},
		{"btc-usd", symbol.Crypto},
		{"ETH/BTC", symbol.Crypto},
		{"SOL:USDT", symbol.Crypto},
		{"EURUSD", symbol.Forex},
		{"gbpjpy", symbol.Forex},
		{"EUR/USD", symbol.Forex},
		{"SPY", symbol.ETF},
		{"SPY:ARCA", symbol.ETF},
		{"AAPL", symbol.Stock},
		{"QQQT", symbol.Stock},
		{"BTC", symbol.Stock},
		{"", symbol.Stock},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, symbol.Classify(tt.raw))
		})
	}
}

func TestClassify_SixLettersWithoutCryptoPrefix(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"ABCDEF", "USDJPY", "AUDCAD", "XAUUSD"} {
		require.Equal(t, symbol.Forex, symbol.Classify(raw), raw)
	}
}

func TestClassify_CryptoSuffixes(t *testing.T) {
	t.Parallel()

	for _, base := range []string{"BTC", "ETH", "DOGE", "JASMY"} {
		for _, quote := range []string{"USDT", "USD"} {
			require.Equal(t, symbol.Crypto, symbol.Classify(base+quote), base+quote)
		}
	}
	require.Equal(t, symbol.Crypto, symbol.Classify("ETHBTC"))
}

func TestParse_Stock(t *testing.T) {
	t.Parallel()

	c := symbol.NewClassifier("")

	// QQQT is not in the table and ends in T.
	got := c.Parse("QQQT")
	require.Equal(t, symbol.Stock, got.Class)
	require.Equal(t, "QQQT:NASDAQ", got.VendorSymbol)
	require.Equal(t, "QQQTNASDAQ", got.CacheKey())
	require.False(t, got.ExchangeDefaulted)

	// Table entries win over the suffix rule.
	require.Equal(t, "T:NYSE", c.Parse("t").VendorSymbol)
	require.Equal(t, "WMT:NYSE", c.Parse("WMT").VendorSymbol)
	require.Equal(t, "JPM:NYSE", c.Parse("JPM:XNYS").VendorSymbol)

	unknown := c.Parse("ZZZZ")
	require.Equal(t, "ZZZZ:NASDAQ", unknown.VendorSymbol)
	require.True(t, unknown.ExchangeDefaulted)
}

func TestParse_ConfiguredDefaultExchange(t *testing.T) {
	t.Parallel()

	got := symbol.NewClassifier("nyse").Parse("ZZZZ")
	require.Equal(t, "ZZZZ:NYSE", got.VendorSymbol)
}

func TestParse_ETF(t *testing.T) {
	t.Parallel()

	got := symbol.NewClassifier("").Parse("SPY:ARCA")

	require.Equal(t, symbol.ETF, got.Class)
	require.Equal(t, "SPY", got.Base)
	require.Equal(t, "ARCA", got.Exchange)
	require.Equal(t, "SPY:ARCA", got.VendorSymbol)
	require.Equal(t, "SPYARCA", got.CacheKey())
}

func TestCanonicalize_UnknownETFFallsThroughToStock(t *testing.T) {
	t.Parallel()

	got := symbol.NewClassifier("").Canonicalize("VOO", symbol.ETF)

	require.Equal(t, symbol.Stock, got.Class)
	require.Equal(t, "VOO:NASDAQ", got.VendorSymbol)
}

func TestParse_Forex(t *testing.T) {
	t.Parallel()

	c := symbol.NewClassifier("")
	for _, raw := range []string{"EURUSD", "eur/usd", "EURUSD:FX"} {
		got := c.Parse(raw)
		require.Equal(t, symbol.Forex, got.Class, raw)
		require.Equal(t, "EUR/USD", got.VendorSymbol, raw)
		require.Equal(t, "EURUSD", got.Base, raw)
		require.Equal(t, "EURUSD", got.CacheKey(), raw)
	}
}

func TestParse_Crypto(t *testing.T) {
	t.Parallel()

	got := symbol.NewClassifier("").Parse("btc-usdt")

	require.Equal(t, symbol.Crypto, got.Class)
	require.Equal(t, "BTC", got.Base)
	require.Equal(t, "USDT", got.Quote)
	require.Equal(t, "BTCUSDT", got.VendorSymbol)
	require.Equal(t, "BTCUSDT", got.CacheKey())
}

func TestParse_Deterministic(t *testing.T) {
	t.Parallel()

	c := symbol.NewClassifier("")
	for _, raw := range []string{"AAPL", "BTCUSDT", "EURUSD", "SPY", "QQQT", "weird:thing"} {
		require.Equal(t, c.Parse(raw), c.Parse(raw))
	}
}

func TestAssetClassJSON(t *testing.T) {
	t.Parallel()

	b, err := symbol.ETF.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "etf", string(b))
}
