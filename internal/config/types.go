package config

// SupportedCurrencies lists the underlyings with a Deribit option chain.
var SupportedCurrencies = []string{"BTC", "ETH", "SOL", "XRP"}

// IsSupportedCurrency reports whether the chain for currency can be fetched.
func IsSupportedCurrency(currency string) bool {
	for _, c := range SupportedCurrencies {
		if c == currency {
			return true
		}
	}
	return false
}
