package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType enumerates the coarse movement categories on the ledger.
type MovementType string

const (
	MovementIn         MovementType = "IN"
	MovementOut        MovementType = "OUT"
	MovementTransfer   MovementType = "TRANSFER"
	MovementAdjustment MovementType = "ADJUSTMENT"
	MovementCount      MovementType = "COUNT"
)

// TransactionType refines a movement with its business cause.
type TransactionType string

const (
	TransactionReceipt       TransactionType = "RECEIPT"
	TransactionShipment      TransactionType = "SHIPMENT"
	TransactionTransferIn    TransactionType = "TRANSFER_IN"
	TransactionTransferOut   TransactionType = "TRANSFER_OUT"
	TransactionAdjustmentIn  TransactionType = "ADJUSTMENT_IN"
	TransactionAdjustmentOut TransactionType = "ADJUSTMENT_OUT"
	TransactionCycleCount    TransactionType = "CYCLE_COUNT"
)

// movementTypeFor is the authoritative pairing between transaction and
// movement types. A transaction type outside this table is invalid, and a
// caller-supplied movement type must agree with the entry here.
var movementTypeFor = map[TransactionType]MovementType{
	TransactionReceipt:       MovementIn,
	TransactionShipment:      MovementOut,
	TransactionTransferIn:    MovementTransfer,
	TransactionTransferOut:   MovementTransfer,
	TransactionAdjustmentIn:  MovementAdjustment,
	TransactionAdjustmentOut: MovementAdjustment,
	TransactionCycleCount:    MovementCount,
}

// Sign returns the direction the transaction applies to stored quantity.
func (t TransactionType) Sign() float64 {
	switch t {
	case TransactionShipment, TransactionTransferOut, TransactionAdjustmentOut:
		return -1
	default:
		return 1
	}
}

// Valid reports whether the transaction type is a known member.
func (t TransactionType) Valid() bool {
	_, ok := movementTypeFor[t]
	return ok
}

// Valid reports whether the movement type is a known member.
func (m MovementType) Valid() bool {
	switch m {
	case MovementIn, MovementOut, MovementTransfer, MovementAdjustment, MovementCount:
		return true
	}
	return false
}

// Movement is an immutable ledger event. Corrections are appended as new
// offsetting movements, never edits.
type Movement struct {
	ID              int64           `json:"id"`
	ProductID       int64           `json:"product_id"`
	WarehouseID     int64           `json:"warehouse_id"`
	LocationID      *int64          `json:"location_id,omitempty"`
	MovementType    MovementType    `json:"movement_type"`
	TransactionType TransactionType `json:"transaction_type"`
	Quantity        float64         `json:"quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	LotNumber       string          `json:"lot_number,omitempty"`
	ExpiryDate      *time.Time      `json:"expiry_date,omitempty"`
	ReferenceNumber string          `json:"reference_number,omitempty"`
	ReferenceType   string          `json:"reference_type,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	PerformedBy     int64           `json:"performed_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Record is the cached per-(product, warehouse, location) quantity state.
// It is derived from the ledger and must stay reconstructible from it.
type Record struct {
	ProductID        int64     `json:"product_id"`
	WarehouseID      int64     `json:"warehouse_id"`
	LocationID       *int64    `json:"location_id,omitempty"`
	Quantity         float64   `json:"quantity"`
	ReservedQuantity float64   `json:"reserved_quantity"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Available returns quantity minus reservations, floored at zero.
func (r Record) Available() float64 {
	available := r.Quantity - r.ReservedQuantity
	if available < 0 {
		return 0
	}
	return available
}

// Location describes a warehouse location as read from masterdata.
type Location struct {
	ID           int64  `json:"id"`
	Code         string `json:"code"`
	LocationType string `json:"location_type"`
	WarehouseID  int64  `json:"warehouse_id"`
}

// StockRow pairs a cached record with its resolved location. Location is nil
// when the record has no location assigned.
type StockRow struct {
	Record   Record    `json:"record"`
	Location *Location `json:"location,omitempty"`
}

// MovementFilter narrows ledger reads.
type MovementFilter struct {
	MovementType MovementType
	From         time.Time
	Limit        int
}

var (
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be greater than zero")
	// ErrInvalidMovementType indicates an unknown movement type.
	ErrInvalidMovementType = errors.New("inventory: unknown movement type")
	// ErrInvalidTransactionType indicates an unknown transaction type.
	ErrInvalidTransactionType = errors.New("inventory: unknown transaction type")
	// ErrIncompatibleTypes indicates a movement/transaction type pair outside the table.
	ErrIncompatibleTypes = errors.New("inventory: transaction type does not belong to movement type")
	// ErrInsufficientStock triggered when an outbound movement would drive quantity negative.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInvalidPeriod indicates an unsupported period filter value.
	ErrInvalidPeriod = errors.New("inventory: period must be one of 1day, 7days, 30days, all")
	// ErrMissingReference indicates warehouse or product missing on input.
	ErrMissingReference = errors.New("inventory: warehouse and product required")
)
