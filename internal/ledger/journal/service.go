package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quipu-ledger/quipu/internal/ledger/periods"
	"github.com/quipu-ledger/quipu/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator drops cached balance reads after a posting mutates them.
type Invalidator interface {
	InvalidateOrg(ctx context.Context, orgID int64) error
}

// Config carries posting policy knobs.
type Config struct {
	// CashLimit is the maximum entry total allowed to touch a cash-equivalent
	// account. Larger amounts must route through a bank account.
	CashLimit decimal.Decimal
}

// Service drives the journal entry lifecycle.
type Service struct {
	repo   Repository
	audit  AuditPort
	cache  Invalidator
	logger *slog.Logger
	cfg    Config
	now    func() time.Time
}

// NewService builds the journal service.
func NewService(repo Repository, audit AuditPort, cache Invalidator, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, cache: cache, logger: logger, cfg: cfg, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateEntry validates and persists a journal entry. With AutoConfirm the
// entry is posted as Confirmed in the same transaction; otherwise it lands as
// a Draft that affects no balance until confirmed.
func (s *Service) CreateEntry(ctx context.Context, in EntryInput) (Entry, error) {
	if err := in.Validate(); err != nil {
		return Entry{}, err
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = s.createTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	s.afterMutation(ctx, entry, in.CreatedBy, "journal.create")
	return entry, nil
}

// CreateEntryTx posts an entry inside a transaction owned by the caller.
// The inventory module uses this to keep a stock movement and its generated
// entry atomic. The caller owns commit, cache invalidation and auditing.
func (s *Service) CreateEntryTx(ctx context.Context, tx TxRepository, in EntryInput) (Entry, error) {
	if err := in.Validate(); err != nil {
		return Entry{}, err
	}
	return s.createTx(ctx, tx, in)
}

func (s *Service) createTx(ctx context.Context, tx TxRepository, in EntryInput) (Entry, error) {
	if err := s.checkPeriodOpen(ctx, tx, in.OrgID, in.Date); err != nil {
		return Entry{}, err
	}
	resolved, err := s.resolveAccounts(ctx, tx, in)
	if err != nil {
		return Entry{}, err
	}
	if err := s.checkCashThreshold(in, resolved); err != nil {
		return Entry{}, err
	}

	number, err := tx.NextNumber(ctx, in.OrgID)
	if err != nil {
		return Entry{}, err
	}
	status := StatusDraft
	if in.AutoConfirm {
		status = StatusConfirmed
	}
	entry, err := tx.InsertEntry(ctx, Entry{
		OrgID:        in.OrgID,
		Number:       number,
		Date:         in.Date,
		Description:  in.Description,
		Status:       status,
		SourceModule: in.SourceModule,
		SourceRef:    in.SourceRef,
		CreatedBy:    in.CreatedBy,
	})
	if err != nil {
		return Entry{}, err
	}
	for _, l := range in.Lines {
		entry.Lines = append(entry.Lines, Line{
			EntryID:   entry.ID,
			AccountID: l.AccountID,
			Memo:      l.Memo,
			Debit:     l.Debit,
			Credit:    l.Credit,
			PartyID:   l.PartyID,
		})
	}
	if err := tx.InsertLines(ctx, entry.ID, entry.Lines); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// ConfirmEntry promotes a Draft to Confirmed, at which point it becomes part
// of every balance.
func (s *Service) ConfirmEntry(ctx context.Context, orgID, entryID, actorID int64) (Entry, error) {
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, orgID, entryID)
		if err != nil {
			return err
		}
		if current.Status != StatusDraft {
			return fmt.Errorf("%w: cannot confirm a %s entry", ErrInvalidStatus, current.Status)
		}
		if err := s.checkPeriodOpen(ctx, tx, orgID, current.Date); err != nil {
			return err
		}
		lines, err := tx.GetLines(ctx, entryID)
		if err != nil {
			return err
		}
		current.Lines = lines
		if !current.Balanced() {
			debit, credit := current.Totals()
			return fmt.Errorf("%w: debit %s, credit %s", ErrUnbalanced, debit.StringFixed(2), credit.StringFixed(2))
		}
		if err := tx.UpdateStatus(ctx, entryID, StatusConfirmed, ""); err != nil {
			return err
		}
		current.Status = StatusConfirmed
		entry = current
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.afterMutation(ctx, entry, actorID, "journal.confirm")
	return entry, nil
}

// VoidEntry voids a Confirmed entry by generating a mirrored reversing entry
// dated today and marking the original Voided. Deleting a confirmed entry is
// never possible; the pair nets to zero instead.
func (s *Service) VoidEntry(ctx context.Context, in VoidInput) (original, reversal Entry, err error) {
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		original, reversal, err = s.voidTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return Entry{}, Entry{}, err
	}
	s.afterMutation(ctx, original, in.ActorID, "journal.void")
	return original, reversal, nil
}

// VoidEntryTx voids inside a caller-owned transaction, mirroring
// CreateEntryTx. The inventory module uses this when unwinding a movement.
func (s *Service) VoidEntryTx(ctx context.Context, tx TxRepository, in VoidInput) (original, reversal Entry, err error) {
	return s.voidTx(ctx, tx, in)
}

func (s *Service) voidTx(ctx context.Context, tx TxRepository, in VoidInput) (Entry, Entry, error) {
	current, err := tx.GetEntryForUpdate(ctx, in.OrgID, in.EntryID)
	if err != nil {
		return Entry{}, Entry{}, err
	}
	switch {
	case current.Status == StatusDraft:
		return Entry{}, Entry{}, fmt.Errorf("%w: drafts are deleted, not voided", ErrInvalidStatus)
	case current.Status == StatusVoided:
		return Entry{}, Entry{}, fmt.Errorf("%w: entry %d is already voided", ErrInvalidStatus, current.Number)
	case current.ReversesID != nil:
		return Entry{}, Entry{}, fmt.Errorf("%w: reversing entries cannot be voided", ErrInvalidStatus)
	}
	today := s.now()
	if err := s.checkPeriodOpen(ctx, tx, in.OrgID, today); err != nil {
		return Entry{}, Entry{}, err
	}
	lines, err := tx.GetLines(ctx, in.EntryID)
	if err != nil {
		return Entry{}, Entry{}, err
	}
	current.Lines = lines

	number, err := tx.NextNumber(ctx, in.OrgID)
	if err != nil {
		return Entry{}, Entry{}, err
	}
	rev := Entry{
		OrgID:       in.OrgID,
		Number:      number,
		Date:        today,
		Description: fmt.Sprintf("Reversal of entry %d: %s", current.Number, in.Reason),
		Status:      StatusConfirmed,
		CreatedBy:   in.ActorID,
		ReversesID:  &current.ID,
	}
	rev, err = tx.InsertEntry(ctx, rev)
	if err != nil {
		return Entry{}, Entry{}, err
	}
	rev.Lines = reverseLines(rev.ID, lines)
	if err := tx.InsertLines(ctx, rev.ID, rev.Lines); err != nil {
		return Entry{}, Entry{}, err
	}
	if err := tx.UpdateStatus(ctx, current.ID, StatusVoided, in.Reason); err != nil {
		return Entry{}, Entry{}, err
	}
	if err := tx.SetVoidLink(ctx, current.ID, rev.ID); err != nil {
		return Entry{}, Entry{}, err
	}
	current.Status = StatusVoided
	current.VoidedByID = &rev.ID
	current.VoidReason = in.Reason
	return current, rev, nil
}

// Get returns an entry with its lines.
func (s *Service) Get(ctx context.Context, orgID, entryID int64) (Entry, error) {
	return s.repo.Get(ctx, orgID, entryID)
}

// List returns entries for an organization, newest first.
func (s *Service) List(ctx context.Context, orgID int64) ([]Entry, error) {
	return s.repo.List(ctx, orgID)
}

// checkPeriodOpen rejects postings dated in a Closed or Locked period. An
// organization with no period configured for the month posts freely.
func (s *Service) checkPeriodOpen(ctx context.Context, tx TxRepository, orgID int64, date time.Time) error {
	period, err := tx.FindPeriodForDate(ctx, orgID, date)
	if err != nil {
		if errors.Is(err, periods.ErrNotFound) {
			return nil
		}
		return err
	}
	if period.Status != periods.StatusOpen {
		return fmt.Errorf("%w: %d-%02d is %s", ErrPeriodClosed, period.Year, int(period.Month), period.Status)
	}
	return nil
}

func (s *Service) resolveAccounts(ctx context.Context, tx TxRepository, in EntryInput) (map[int64]PostingAccount, error) {
	ids := make([]int64, 0, len(in.Lines))
	seen := make(map[int64]struct{}, len(in.Lines))
	for _, l := range in.Lines {
		if _, ok := seen[l.AccountID]; ok {
			continue
		}
		seen[l.AccountID] = struct{}{}
		ids = append(ids, l.AccountID)
	}
	resolved, err := tx.PostingAccounts(ctx, in.OrgID, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		acct, ok := resolved[id]
		switch {
		case !ok:
			return nil, &NonPostableError{AccountID: id, Reason: "account not found"}
		case !acct.IsActive:
			return nil, &NonPostableError{AccountID: id, AccountCode: acct.Code, Reason: "account is inactive"}
		case !acct.IsLeaf:
			return nil, &NonPostableError{AccountID: id, AccountCode: acct.Code, Reason: "summary accounts only aggregate"}
		case acct.HasChildren:
			return nil, &NonPostableError{AccountID: id, AccountCode: acct.Code, Reason: "account has child accounts"}
		}
	}
	return resolved, nil
}

// checkCashThreshold enforces the bank-routing rule: an entry whose total
// exceeds the configured limit may not touch a cash-equivalent account.
func (s *Service) checkCashThreshold(in EntryInput, resolved map[int64]PostingAccount) error {
	if s.cfg.CashLimit.IsZero() {
		return nil
	}
	total := in.Total()
	if total.LessThanOrEqual(s.cfg.CashLimit) {
		return nil
	}
	for _, l := range in.Lines {
		if acct, ok := resolved[l.AccountID]; ok && acct.IsCashEquivalent {
			return &CashThresholdError{Total: total, Limit: s.cfg.CashLimit, AccountCode: acct.Code}
		}
	}
	return nil
}

func (s *Service) afterMutation(ctx context.Context, entry Entry, actorID int64, action string) {
	if s.cache != nil {
		if err := s.cache.InvalidateOrg(ctx, entry.OrgID); err != nil {
			s.logger.Warn("balance cache invalidation failed", "org_id", entry.OrgID, "error", err)
		}
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			OrgID:    entry.OrgID,
			ActorID:  actorID,
			Action:   action,
			Entity:   "journal_entry",
			EntityID: strconv.FormatInt(entry.ID, 10),
			Meta:     map[string]any{"number": entry.Number, "status": string(entry.Status)},
			At:       s.now(),
		})
	}
}

func reverseLines(entryID int64, lines []Line) []Line {
	reversed := make([]Line, 0, len(lines))
	for _, l := range lines {
		reversed = append(reversed, Line{
			EntryID:   entryID,
			AccountID: l.AccountID,
			Memo:      l.Memo,
			Debit:     l.Credit,
			Credit:    l.Debit,
			PartyID:   l.PartyID,
		})
	}
	return reversed
}
