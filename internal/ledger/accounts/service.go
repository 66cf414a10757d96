package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quipu-ledger/quipu/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service guards the structural invariants of the chart of accounts.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService builds the accounts service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateInput describes a new account.
type CreateInput struct {
	OrgID            int64
	ParentCode       string
	Code             string
	Name             string
	Category         Category
	Normal           NormalBalance
	IsLeaf           bool
	IsCashEquivalent bool
	ActorID          int64
}

// Create inserts an account after validating the tree invariants.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	if in.OrgID == 0 {
		return Account{}, errors.New("accounts: org id required")
	}
	if in.Code == "" {
		return Account{}, errors.New("accounts: code required")
	}
	if in.Name == "" {
		return Account{}, errors.New("accounts: name required")
	}
	if !in.Category.Valid() {
		return Account{}, fmt.Errorf("%w: %q", ErrInvalidCategory, in.Category)
	}
	normal := in.Normal
	if normal == "" {
		normal = DefaultNormal(in.Category)
	}

	var created Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var parentID *int64
		if in.ParentCode != "" {
			parent, err := tx.GetForUpdate(ctx, in.OrgID, in.ParentCode)
			if err != nil {
				return err
			}
			if !ChildCodeOf(parent.Code, in.Code) {
				return &StructuralViolation{Invariant: InvariantPrefix, Code: in.Code, ParentCode: parent.Code}
			}
			if parent.IsLeaf {
				return &StructuralViolation{Invariant: InvariantChildUnderLeaf, Code: in.Code, ParentCode: parent.Code}
			}
			parentID = &parent.ID
		}
		var err error
		created, err = tx.Insert(ctx, Account{
			OrgID:            in.OrgID,
			Code:             in.Code,
			Name:             in.Name,
			Category:         in.Category,
			Normal:           normal,
			IsLeaf:           in.IsLeaf,
			IsActive:         true,
			IsCashEquivalent: in.IsCashEquivalent,
			ParentID:         parentID,
		})
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, in.OrgID, in.ActorID, "accounts.create", created.Code, map[string]any{"category": created.Category})
	return created, nil
}

// Reparent moves an account under a new parent, revalidating prefix, leaf,
// and cycle invariants.
func (s *Service) Reparent(ctx context.Context, orgID int64, code, newParentCode string, actorID int64) (Account, error) {
	if code == newParentCode {
		return Account{}, &StructuralViolation{Invariant: InvariantCycle, Code: code, ParentCode: newParentCode}
	}
	var moved Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		acct, err := tx.GetForUpdate(ctx, orgID, code)
		if err != nil {
			return err
		}
		var parentID *int64
		if newParentCode != "" {
			parent, err := tx.GetForUpdate(ctx, orgID, newParentCode)
			if err != nil {
				return err
			}
			if !ChildCodeOf(parent.Code, acct.Code) {
				return &StructuralViolation{Invariant: InvariantPrefix, Code: acct.Code, ParentCode: parent.Code}
			}
			if parent.IsLeaf {
				return &StructuralViolation{Invariant: InvariantChildUnderLeaf, Code: acct.Code, ParentCode: parent.Code}
			}
			if err := s.ensureAcyclic(ctx, tx, acct, parent); err != nil {
				return err
			}
			parentID = &parent.ID
		}
		if err := tx.UpdateParent(ctx, acct.ID, parentID); err != nil {
			return err
		}
		acct.ParentID = parentID
		moved = acct
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, orgID, actorID, "accounts.reparent", moved.Code, map[string]any{"parent": newParentCode})
	return moved, nil
}

// ensureAcyclic walks the candidate parent chain; the walk is bounded by tree
// depth and a visited set guards against pre-existing corruption.
func (s *Service) ensureAcyclic(ctx context.Context, tx TxRepository, acct, parent Account) error {
	visited := map[int64]struct{}{acct.ID: {}}
	cursor := parent
	for {
		if cursor.ID == acct.ID {
			return &StructuralViolation{Invariant: InvariantCycle, Code: acct.Code, ParentCode: parent.Code}
		}
		if _, seen := visited[cursor.ID]; seen {
			return &StructuralViolation{Invariant: InvariantCycle, Code: acct.Code, ParentCode: parent.Code}
		}
		visited[cursor.ID] = struct{}{}
		if cursor.ParentID == nil {
			return nil
		}
		next, err := tx.GetByID(ctx, *cursor.ParentID)
		if err != nil {
			return err
		}
		cursor = next
	}
}

// Deactivate soft-disables an account. Accounts with postings are never
// physically deleted; this is the supported retirement path.
func (s *Service) Deactivate(ctx context.Context, orgID int64, code string, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		acct, err := tx.GetForUpdate(ctx, orgID, code)
		if err != nil {
			return err
		}
		return tx.SetActive(ctx, acct.ID, false)
	})
	if err != nil {
		return err
	}
	s.record(ctx, orgID, actorID, "accounts.deactivate", code, nil)
	return nil
}

// DemoteLeaf turns a posting leaf into a grouping account. Only allowed while
// the account has no postings.
func (s *Service) DemoteLeaf(ctx context.Context, orgID int64, code string, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		acct, err := tx.GetForUpdate(ctx, orgID, code)
		if err != nil {
			return err
		}
		if !acct.IsLeaf {
			return nil
		}
		posted, err := tx.HasPostings(ctx, acct.ID)
		if err != nil {
			return err
		}
		if posted {
			return fmt.Errorf("%w: %s", ErrHasPostings, acct.Code)
		}
		return tx.SetLeaf(ctx, acct.ID, false)
	})
	if err != nil {
		return err
	}
	s.record(ctx, orgID, actorID, "accounts.demote_leaf", code, nil)
	return nil
}

// PromoteLeaf marks an account as a posting leaf. Rejected while the account
// has children.
func (s *Service) PromoteLeaf(ctx context.Context, orgID int64, code string, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		acct, err := tx.GetForUpdate(ctx, orgID, code)
		if err != nil {
			return err
		}
		if acct.IsLeaf {
			return nil
		}
		children, err := tx.HasChildren(ctx, acct.ID)
		if err != nil {
			return err
		}
		if children {
			return &StructuralViolation{Invariant: InvariantLeafChildren, Code: acct.Code}
		}
		return tx.SetLeaf(ctx, acct.ID, true)
	})
	if err != nil {
		return err
	}
	s.record(ctx, orgID, actorID, "accounts.promote_leaf", code, nil)
	return nil
}

// Get returns one account by code.
func (s *Service) Get(ctx context.Context, orgID int64, code string) (Account, error) {
	return s.repo.Get(ctx, orgID, code)
}

// List returns the full chart ordered by code.
func (s *Service) List(ctx context.Context, orgID int64) ([]Account, error) {
	return s.repo.List(ctx, orgID)
}

// ListLeaves returns posting leaves for the given categories, deactivated
// ones included so derived reports keep covering retired accounts.
func (s *Service) ListLeaves(ctx context.Context, orgID int64, cats ...Category) ([]Account, error) {
	return s.repo.ListLeaves(ctx, orgID, cats...)
}

func (s *Service) record(ctx context.Context, orgID, actorID int64, action, code string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OrgID:    orgID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "account",
		EntityID: code,
		Meta:     meta,
		At:       s.now(),
	})
}
