package types

import (
	"fmt"
	"strings"
)

// DeliveryAddress is where a delivery order is dropped off. Stored as jsonb.
type DeliveryAddress struct {
	Line1      string   `json:"line1" validate:"required,max=200"`
	Line2      *string  `json:"line2,omitempty" validate:"omitempty,max=200"`
	City       string   `json:"city" validate:"required,max=100"`
	State      string   `json:"state,omitempty" validate:"omitempty,max=100"`
	PostalCode string   `json:"postal_code,omitempty" validate:"omitempty,max=20"`
	Country    string   `json:"country,omitempty" validate:"omitempty,len=2"`
	Notes      *string  `json:"notes,omitempty" validate:"omitempty,max=500"`
	Lat        *float64 `json:"lat,omitempty"`
	Lng        *float64 `json:"lng,omitempty"`
}

// Validate checks the minimum fields a courier needs.
func (a DeliveryAddress) Validate() error {
	if strings.TrimSpace(a.Line1) == "" {
		return fmt.Errorf("address: missing line1")
	}
	if strings.TrimSpace(a.City) == "" {
		return fmt.Errorf("address: missing city")
	}
	return nil
}

// OneLine renders the address for messages and marketplace notes.
func (a DeliveryAddress) OneLine() string {
	parts := []string{strings.TrimSpace(a.Line1)}
	if a.Line2 != nil && strings.TrimSpace(*a.Line2) != "" {
		parts = append(parts, strings.TrimSpace(*a.Line2))
	}
	for _, p := range []string{a.City, a.State, a.PostalCode, a.Country} {
		if v := strings.TrimSpace(p); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}
