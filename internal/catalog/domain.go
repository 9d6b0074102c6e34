package catalog

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog entry. SKU is the natural key used when
// reconciling externally sourced records.
type Product struct {
	ID        int64           `json:"id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	UOM       string          `json:"uom"`
	Price     decimal.Decimal `json:"price"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ImportRecord is the normalized shape handed over by external connectors.
type ImportRecord struct {
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	UOM      string          `json:"uom"`
	Price    decimal.Decimal `json:"price"`
	IsActive bool            `json:"is_active"`
}

// ImportSummary reports the partition of an import batch.
type ImportSummary struct {
	Processed   int `json:"processed"`
	NewCount    int `json:"newCount"`
	UpdateCount int `json:"updateCount"`
}

// ListFilters narrows product listings.
type ListFilters struct {
	Search   string
	IsActive *bool
	Limit    int
	Offset   int
}

var (
	// ErrNotFound indicates the product does not exist.
	ErrNotFound = errors.New("catalog: product not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("catalog: invalid input")
)
