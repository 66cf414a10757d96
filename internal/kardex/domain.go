package kardex

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Method is the declared costing method of an item. The engine values every
// method with the weighted average; the declaration is stored so reporting
// can label items and a future costing engine can branch on it.
type Method string

const (
	MethodWeightedAverage Method = "WEIGHTED_AVERAGE"
	MethodFIFO            Method = "FIFO"
	MethodLIFO            Method = "LIFO"
)

// Valid reports whether m is a known costing method.
func (m Method) Valid() bool {
	switch m {
	case MethodWeightedAverage, MethodFIFO, MethodLIFO:
		return true
	}
	return false
}

// MovementType classifies a stock movement.
type MovementType string

const (
	TypeIn        MovementType = "IN"
	TypeOut       MovementType = "OUT"
	TypeAdjustIn  MovementType = "ADJUST_IN"
	TypeAdjustOut MovementType = "ADJUST_OUT"
	TypeReturnIn  MovementType = "RETURN_IN"
	TypeReturnOut MovementType = "RETURN_OUT"
)

// Inbound reports whether the movement adds stock.
func (t MovementType) Inbound() bool {
	switch t {
	case TypeIn, TypeAdjustIn, TypeReturnIn:
		return true
	}
	return false
}

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case TypeIn, TypeOut, TypeAdjustIn, TypeAdjustOut, TypeReturnIn, TypeReturnOut:
		return true
	}
	return false
}

// Item is one tracked stock keeping unit with its running valuation state.
// Qty and AvgCost are denormalized from the movement history and updated in
// the same transaction as each movement.
type Item struct {
	ID                 int64
	OrgID              int64
	SKU                string
	Name               string
	Unit               string
	Method             Method
	InventoryAccountID int64
	COGSAccountID      int64
	Qty                decimal.Decimal
	AvgCost            decimal.Decimal
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Value returns the current stock valuation.
func (i Item) Value() decimal.Decimal {
	return i.Qty.Mul(i.AvgCost)
}

// Movement is one append-only row of the perpetual inventory card. Balance
// columns snapshot the item state after the movement applied.
type Movement struct {
	ID        int64
	ItemID    int64
	OrgID     int64
	Type      MovementType
	Date      time.Time
	Reference string
	SourceRef uuid.UUID
	Qty       decimal.Decimal
	UnitCost  decimal.Decimal
	// EntryID links the journal entry this movement generated. Nil when the
	// movement moved no value and nothing was posted.
	EntryID    *int64
	BalanceQty decimal.Decimal
	BalanceAvg decimal.Decimal
	CreatedBy  int64
	CreatedAt  time.Time
}

// TotalCost is the movement's valuation impact.
func (m Movement) TotalCost() decimal.Decimal {
	return m.Qty.Mul(m.UnitCost)
}

// BalanceValue is the stock valuation after the movement.
func (m Movement) BalanceValue() decimal.Decimal {
	return m.BalanceQty.Mul(m.BalanceAvg)
}

var (
	// ErrItemNotFound indicates a missing item.
	ErrItemNotFound = errors.New("kardex: item not found")
	// ErrSKUTaken indicates the SKU already exists in the organization.
	ErrSKUTaken = errors.New("kardex: sku already exists")
	// ErrInvalidQuantity rejects zero or negative movement quantities.
	ErrInvalidQuantity = errors.New("kardex: quantity must be positive")
	// ErrInvalidUnitCost rejects negative inbound unit costs.
	ErrInvalidUnitCost = errors.New("kardex: unit cost must not be negative")
	// ErrDuplicateMovement indicates the source ref was already recorded.
	ErrDuplicateMovement = errors.New("kardex: movement already recorded")
	// ErrMovementNotFound indicates a missing movement.
	ErrMovementNotFound = errors.New("kardex: movement not found")
	// ErrNotLatestMovement restricts removal to the newest movement of an item.
	ErrNotLatestMovement = errors.New("kardex: only the latest movement can be removed")
)

// InsufficientStockError rejects an outbound movement larger than the
// quantity on hand. Negative stock is never representable.
type InsufficientStockError struct {
	SKU       string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("kardex: insufficient stock for %s: %s on hand, %s requested",
		e.SKU, e.Available.String(), e.Requested.String())
}
