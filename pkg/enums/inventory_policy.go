package enums

import "fmt"

// InventoryPolicy decides whether a variant can sell past zero stock.
type InventoryPolicy string

const (
	InventoryPolicyDeny     InventoryPolicy = "deny"
	InventoryPolicyContinue InventoryPolicy = "continue"
)

var validInventoryPolicys = []InventoryPolicy{
	InventoryPolicyDeny,
	InventoryPolicyContinue,
}

// String implements fmt.Stringer.
func (v InventoryPolicy) String() string {
	return string(v)
}

// IsValid reports whether the value is a known InventoryPolicy.
func (v InventoryPolicy) IsValid() bool {
	for _, candidate := range validInventoryPolicys {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseInventoryPolicy converts raw input into a InventoryPolicy.
func ParseInventoryPolicy(value string) (InventoryPolicy, error) {
	for _, candidate := range validInventoryPolicys {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid inventory policy %q", value)
}
