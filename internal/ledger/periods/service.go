package periods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quipu-ledger/quipu/internal/shared"
)

// ErrDraftEntriesExist blocks closing a period that still contains drafts.
var ErrDraftEntriesExist = errors.New("periods: draft entries exist in period")

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives the period lifecycle.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService builds the periods service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Open creates a new period in the Open state.
func (s *Service) Open(ctx context.Context, orgID int64, year int, month time.Month, actorID int64) (Period, error) {
	if month < time.January || month > time.December {
		return Period{}, fmt.Errorf("periods: invalid month %d", month)
	}
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		period, err = tx.Insert(ctx, Period{OrgID: orgID, Year: year, Month: month, Status: StatusOpen})
		return err
	})
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, period, actorID, "periods.open", nil)
	return period, nil
}

// Close transitions an open period to Closed. Fails while Draft entries are
// dated within the period; closing does not generate the closing journal
// entry, which is a separate statements operation.
func (s *Service) Close(ctx context.Context, orgID int64, year int, month time.Month, actorID int64) (Period, error) {
	return s.transition(ctx, orgID, year, month, actorID, StatusClosed, "periods.close")
}

// Reopen transitions a closed period back to Open. Locked periods never reopen.
func (s *Service) Reopen(ctx context.Context, orgID int64, year int, month time.Month, actorID int64) (Period, error) {
	return s.transition(ctx, orgID, year, month, actorID, StatusOpen, "periods.reopen")
}

// Lock makes a closed period permanently immutable.
func (s *Service) Lock(ctx context.Context, orgID int64, year int, month time.Month, actorID int64) (Period, error) {
	return s.transition(ctx, orgID, year, month, actorID, StatusLocked, "periods.lock")
}

// Find returns the period covering the given month, if any.
func (s *Service) Find(ctx context.Context, orgID int64, year int, month time.Month) (Period, error) {
	return s.repo.Find(ctx, orgID, year, month)
}

func (s *Service) transition(ctx context.Context, orgID int64, year int, month time.Month, actorID int64, target Status, action string) (Period, error) {
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, orgID, year, month)
		if err != nil {
			return err
		}
		if err := ValidateTransition(current.Status, target); err != nil {
			return fmt.Errorf("%w: %s -> %s", err, current.Status, target)
		}
		if current.Status == target {
			period = current
			return nil
		}
		if target == StatusClosed {
			drafts, err := tx.CountDraftEntries(ctx, orgID, current.Start(), current.End())
			if err != nil {
				return err
			}
			if drafts > 0 {
				return fmt.Errorf("%w: %d draft(s) dated %d-%02d", ErrDraftEntriesExist, drafts, year, int(month))
			}
		}
		now := s.now()
		if err := tx.UpdateStatus(ctx, current.ID, target, actorID, now); err != nil {
			return err
		}
		current.Status = target
		switch target {
		case StatusClosed:
			current.ClosedBy = &actorID
			current.ClosedAt = &now
		case StatusLocked:
			current.LockedBy = &actorID
			current.LockedAt = &now
		case StatusOpen:
			current.ClosedBy = nil
			current.ClosedAt = nil
		}
		period = current
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, period, actorID, action, nil)
	return period, nil
}

func (s *Service) record(ctx context.Context, p Period, actorID int64, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OrgID:    p.OrgID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "accounting_period",
		EntityID: fmt.Sprintf("%d-%02d", p.Year, int(p.Month)),
		Meta:     meta,
		At:       s.now(),
	})
}
