package accounts

import (
	"errors"
	"fmt"
)

// Invariant names the chart-of-accounts rule a mutation would break.
type Invariant string

const (
	// InvariantPrefix requires a child's code to extend its parent's code.
	InvariantPrefix Invariant = "PREFIX_MISMATCH"
	// InvariantCycle forbids cycles in the parent chain.
	InvariantCycle Invariant = "CYCLE"
	// InvariantLeafChildren forbids a posting-leaf account from having children.
	InvariantLeafChildren Invariant = "LEAF_WITH_CHILDREN"
	// InvariantChildUnderLeaf forbids creating children under a posting leaf.
	InvariantChildUnderLeaf Invariant = "CHILD_UNDER_LEAF"
)

// StructuralViolation reports which tree invariant a mutation broke.
type StructuralViolation struct {
	Invariant  Invariant
	Code       string
	ParentCode string
}

func (e *StructuralViolation) Error() string {
	switch e.Invariant {
	case InvariantPrefix:
		return fmt.Sprintf("accounts: code %q is not prefixed by parent code %q", e.Code, e.ParentCode)
	case InvariantCycle:
		return fmt.Sprintf("accounts: reparenting %q under %q would create a cycle", e.Code, e.ParentCode)
	case InvariantLeafChildren:
		return fmt.Sprintf("accounts: %q is a posting leaf and cannot have children", e.Code)
	case InvariantChildUnderLeaf:
		return fmt.Sprintf("accounts: cannot place %q under posting leaf %q", e.Code, e.ParentCode)
	}
	return fmt.Sprintf("accounts: structural violation on %q", e.Code)
}

var (
	// ErrNotFound indicates a missing account.
	ErrNotFound = errors.New("accounts: account not found")
	// ErrCodeTaken indicates a duplicate code within the organization.
	ErrCodeTaken = errors.New("accounts: code already in use")
	// ErrInvalidCategory indicates an unknown category value.
	ErrInvalidCategory = errors.New("accounts: invalid category")
	// ErrHasPostings blocks demoting or deleting accounts with journal lines.
	ErrHasPostings = errors.New("accounts: account has postings")
)
