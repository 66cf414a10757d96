package accounts

import (
	"strings"
	"time"
)

// Category enumerates CoA categories.
type Category string

const (
	CategoryAsset     Category = "ASSET"
	CategoryLiability Category = "LIABILITY"
	CategoryEquity    Category = "EQUITY"
	CategoryRevenue   Category = "REVENUE"
	CategoryCost      Category = "COST"
	CategoryExpense   Category = "EXPENSE"
)

// Valid reports whether the category is a known value.
func (c Category) Valid() bool {
	switch c {
	case CategoryAsset, CategoryLiability, CategoryEquity, CategoryRevenue, CategoryCost, CategoryExpense:
		return true
	}
	return false
}

// NormalBalance is the side on which an account's balance is conventionally positive.
type NormalBalance string

const (
	NormalDebit  NormalBalance = "DEBIT"
	NormalCredit NormalBalance = "CREDIT"
)

// DefaultNormal returns the category-implied normal balance side.
func DefaultNormal(c Category) NormalBalance {
	switch c {
	case CategoryAsset, CategoryCost, CategoryExpense:
		return NormalDebit
	default:
		return NormalCredit
	}
}

// Account models a chart of accounts node.
type Account struct {
	ID               int64
	OrgID            int64
	Code             string
	Name             string
	Category         Category
	Normal           NormalBalance
	IsLeaf           bool
	IsActive         bool
	IsCashEquivalent bool
	ParentID         *int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Postable reports whether the account may receive journal lines,
// assuming the caller has already verified it has no children.
func (a Account) Postable() bool {
	return a.IsLeaf && a.IsActive
}

// CodeDepth returns the number of dot-separated segments in the code.
func CodeDepth(code string) int {
	if code == "" {
		return 0
	}
	return strings.Count(code, ".") + 1
}

// ChildCodeOf reports whether child sits under parent in the dot-segmented
// hierarchy. The match respects segment boundaries: "1.1" extends "1", "11"
// does not.
func ChildCodeOf(parent, child string) bool {
	return strings.HasPrefix(child, parent+".")
}
