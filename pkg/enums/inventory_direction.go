package enums

import "fmt"

// InventoryDirection is the sign of an inventory ledger entry.
type InventoryDirection string

const (
	InventoryDirectionDecrement InventoryDirection = "decrement"
	InventoryDirectionIncrement InventoryDirection = "increment"
)

var validInventoryDirections = []InventoryDirection{
	InventoryDirectionDecrement,
	InventoryDirectionIncrement,
}

// String implements fmt.Stringer.
func (v InventoryDirection) String() string {
	return string(v)
}

// IsValid reports whether the value is a known InventoryDirection.
func (v InventoryDirection) IsValid() bool {
	for _, candidate := range validInventoryDirections {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseInventoryDirection converts raw input into a InventoryDirection.
func ParseInventoryDirection(value string) (InventoryDirection, error) {
	for _, candidate := range validInventoryDirections {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid inventory direction %q", value)
}
