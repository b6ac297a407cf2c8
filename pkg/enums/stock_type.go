package enums

import "fmt"

// StockType distinguishes inventory-tracked products from preorder products.
type StockType string

const (
	StockTypeStock    StockType = "STOCK"
	StockTypePreorder StockType = "PREORDER"
)

var validStockTypes = []StockType{
	StockTypeStock,
	StockTypePreorder,
}

// String implements fmt.Stringer.
func (s StockType) String() string {
	return string(s)
}

// IsValid reports whether the value is a known StockType.
func (s StockType) IsValid() bool {
	for _, candidate := range validStockTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// Tracked reports whether the inventory ledger maintains counters for this type.
func (s StockType) Tracked() bool {
	return s == StockTypeStock
}

// ParseStockType converts raw input into a StockType.
func ParseStockType(value string) (StockType, error) {
	for _, candidate := range validStockTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock type %q", value)
}
