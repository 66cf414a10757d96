package accounts

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ImportRow is one line of a bulk chart-of-accounts payload.
type ImportRow struct {
	Code       string        `validate:"required"`
	Name       string        `validate:"required"`
	Category   Category      `validate:"required"`
	Normal     NormalBalance `validate:"omitempty,oneof=DEBIT CREDIT"`
	IsLeaf     bool
	ParentCode string
}

// ImportResult summarises a bulk import.
type ImportResult struct {
	Created  []Account
	Warnings []string
}

var importValidator = validator.New()

// Import loads a whole chart in one transaction. Rows are ordered parents
// first; an inconsistent normal-balance field is auto-corrected from the
// category and reported as a warning rather than a failure.
func (s *Service) Import(ctx context.Context, orgID, actorID int64, rows []ImportRow) (ImportResult, error) {
	if orgID == 0 {
		return ImportResult{}, fmt.Errorf("accounts: org id required")
	}
	var result ImportResult
	for i, row := range rows {
		if err := importValidator.Struct(row); err != nil {
			return ImportResult{}, fmt.Errorf("accounts: import row %d: %w", i, err)
		}
		if !row.Category.Valid() {
			return ImportResult{}, fmt.Errorf("%w: row %d has %q", ErrInvalidCategory, i, row.Category)
		}
	}

	ordered := make([]ImportRow, len(rows))
	copy(ordered, rows)
	sort.SliceStable(ordered, func(i, j int) bool {
		if d1, d2 := CodeDepth(ordered[i].Code), CodeDepth(ordered[j].Code); d1 != d2 {
			return d1 < d2
		}
		return ordered[i].Code < ordered[j].Code
	})

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted := make(map[string]Account, len(ordered))
		for _, row := range ordered {
			normal := row.Normal
			implied := DefaultNormal(row.Category)
			if normal == "" {
				normal = implied
			} else if normal != implied {
				result.Warnings = append(result.Warnings, fmt.Sprintf(
					"account %s: normal balance %s conflicts with category %s, corrected to %s",
					row.Code, row.Normal, row.Category, implied))
				normal = implied
			}

			var parentID *int64
			if row.ParentCode != "" {
				parent, ok := inserted[row.ParentCode]
				if !ok {
					var err error
					parent, err = tx.GetForUpdate(ctx, orgID, row.ParentCode)
					if err != nil {
						return fmt.Errorf("accounts: import %s: parent %s: %w", row.Code, row.ParentCode, err)
					}
				}
				if !ChildCodeOf(parent.Code, row.Code) {
					return &StructuralViolation{Invariant: InvariantPrefix, Code: row.Code, ParentCode: parent.Code}
				}
				if parent.IsLeaf {
					return &StructuralViolation{Invariant: InvariantChildUnderLeaf, Code: row.Code, ParentCode: parent.Code}
				}
				parentID = &parent.ID
			}

			acct, err := tx.Insert(ctx, Account{
				OrgID:            orgID,
				Code:             row.Code,
				Name:             row.Name,
				Category:         row.Category,
				Normal:           normal,
				IsLeaf:           row.IsLeaf,
				IsActive:         true,
				IsCashEquivalent: inferCashEquivalent(row),
				ParentID:         parentID,
			})
			if err != nil {
				return fmt.Errorf("accounts: import %s: %w", row.Code, err)
			}
			inserted[acct.Code] = acct
			result.Created = append(result.Created, acct)
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}
	s.record(ctx, orgID, actorID, "accounts.import", fmt.Sprintf("%d", len(result.Created)), map[string]any{
		"rows":     len(rows),
		"warnings": len(result.Warnings),
	})
	return result, nil
}

// inferCashEquivalent seeds the explicit cash flag from conventional codes and
// names during import. After import the flag is authoritative; no runtime
// string matching happens on the posting path.
func inferCashEquivalent(row ImportRow) bool {
	if row.Category != CategoryAsset || !row.IsLeaf {
		return false
	}
	if strings.HasPrefix(row.Code, "1.1.01") {
		return true
	}
	name := strings.ToLower(row.Name)
	return strings.Contains(name, "cash") || strings.Contains(name, "caja") || strings.Contains(name, "till")
}
