package enums

import "fmt"

// PaymentProvider identifies the system that collects payment for an order.
type PaymentProvider string

const (
	PaymentProviderCash    PaymentProvider = "cash"
	PaymentProviderStripe  PaymentProvider = "stripe"
	PaymentProviderShopify PaymentProvider = "shopify"
)

var validPaymentProviders = []PaymentProvider{
	PaymentProviderCash,
	PaymentProviderStripe,
	PaymentProviderShopify,
}

// String implements fmt.Stringer.
func (v PaymentProvider) String() string {
	return string(v)
}

// IsValid reports whether the value is a known PaymentProvider.
func (v PaymentProvider) IsValid() bool {
	for _, candidate := range validPaymentProviders {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParsePaymentProvider converts raw input into a PaymentProvider.
func ParsePaymentProvider(value string) (PaymentProvider, error) {
	for _, candidate := range validPaymentProviders {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment provider %q", value)
}
