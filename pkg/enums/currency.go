package enums

import "fmt"

// Currency is an ISO 4217 code accepted for order totals.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyMXN Currency = "MXN"
	CurrencyEUR Currency = "EUR"
	CurrencyCAD Currency = "CAD"
	CurrencyGBP Currency = "GBP"
)

var validCurrencys = []Currency{
	CurrencyUSD,
	CurrencyMXN,
	CurrencyEUR,
	CurrencyCAD,
	CurrencyGBP,
}

// String implements fmt.Stringer.
func (v Currency) String() string {
	return string(v)
}

// IsValid reports whether the value is a known Currency.
func (v Currency) IsValid() bool {
	for _, candidate := range validCurrencys {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseCurrency converts raw input into a Currency.
func ParseCurrency(value string) (Currency, error) {
	for _, candidate := range validCurrencys {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid currency %q", value)
}
