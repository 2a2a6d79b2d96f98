package enums

import "fmt"

// MarketplaceFinancialStatus is the financial_status a marketplace reports on
// an order.
type MarketplaceFinancialStatus string

const (
	FinancialStatusPending           MarketplaceFinancialStatus = "pending"
	FinancialStatusAuthorized        MarketplaceFinancialStatus = "authorized"
	FinancialStatusPartiallyPaid     MarketplaceFinancialStatus = "partially_paid"
	FinancialStatusPaid              MarketplaceFinancialStatus = "paid"
	FinancialStatusPartiallyRefunded MarketplaceFinancialStatus = "partially_refunded"
	FinancialStatusRefunded          MarketplaceFinancialStatus = "refunded"
	FinancialStatusVoided            MarketplaceFinancialStatus = "voided"
)

var validMarketplaceFinancialStatuses = []MarketplaceFinancialStatus{
	FinancialStatusPending,
	FinancialStatusAuthorized,
	FinancialStatusPartiallyPaid,
	FinancialStatusPaid,
	FinancialStatusPartiallyRefunded,
	FinancialStatusRefunded,
	FinancialStatusVoided,
}

// String implements fmt.Stringer.
func (v MarketplaceFinancialStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known MarketplaceFinancialStatus.
func (v MarketplaceFinancialStatus) IsValid() bool {
	for _, candidate := range validMarketplaceFinancialStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// SettlesPayment reports whether the status means the customer paid.
func (v MarketplaceFinancialStatus) SettlesPayment() bool {
	return v == FinancialStatusPaid || v == FinancialStatusPartiallyPaid
}

// ReversesPayment reports whether the status returns the full payment.
func (v MarketplaceFinancialStatus) ReversesPayment() bool {
	return v == FinancialStatusRefunded || v == FinancialStatusVoided
}

// ParseMarketplaceFinancialStatus converts raw input into a MarketplaceFinancialStatus.
func ParseMarketplaceFinancialStatus(value string) (MarketplaceFinancialStatus, error) {
	for _, candidate := range validMarketplaceFinancialStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid marketplace financial status %q", value)
}
