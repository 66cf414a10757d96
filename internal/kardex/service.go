package kardex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quipu-ledger/quipu/internal/ledger/journal"
	"github.com/quipu-ledger/quipu/internal/shared"
)

// JournalPort posts and voids entries inside the movement transaction.
type JournalPort interface {
	CreateEntryTx(ctx context.Context, tx journal.TxRepository, in journal.EntryInput) (journal.Entry, error)
	VoidEntryTx(ctx context.Context, tx journal.TxRepository, in journal.VoidInput) (original, reversal journal.Entry, err error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator drops cached balance reads after a posting mutates them.
type Invalidator interface {
	InvalidateOrg(ctx context.Context, orgID int64) error
}

// Service drives the perpetual inventory card. Every movement and its
// generated journal entry share one transaction; a card without its posting,
// or a posting without its card, is never observable.
type Service struct {
	repo    Repository
	journal JournalPort
	audit   AuditPort
	cache   Invalidator
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds the kardex service.
func NewService(repo Repository, jrn JournalPort, audit AuditPort, cache Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, journal: jrn, audit: audit, cache: cache, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateItemInput describes a new tracked item.
type CreateItemInput struct {
	OrgID              int64
	SKU                string
	Name               string
	Unit               string
	Method             Method
	InventoryAccountID int64
	COGSAccountID      int64
	ActorID            int64
}

// CreateItem registers a stock keeping unit with zero opening stock.
func (s *Service) CreateItem(ctx context.Context, in CreateItemInput) (Item, error) {
	if in.SKU == "" {
		return Item{}, errors.New("kardex: sku required")
	}
	if in.Name == "" {
		return Item{}, errors.New("kardex: name required")
	}
	if !in.Method.Valid() {
		return Item{}, fmt.Errorf("kardex: unknown costing method %q", in.Method)
	}
	if in.InventoryAccountID == 0 || in.COGSAccountID == 0 {
		return Item{}, errors.New("kardex: inventory and cogs accounts required")
	}
	var item Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		item, err = tx.InsertItem(ctx, Item{
			OrgID:              in.OrgID,
			SKU:                in.SKU,
			Name:               in.Name,
			Unit:               in.Unit,
			Method:             in.Method,
			InventoryAccountID: in.InventoryAccountID,
			COGSAccountID:      in.COGSAccountID,
			Qty:                decimal.Zero,
			AvgCost:            decimal.Zero,
		})
		return err
	})
	if err != nil {
		return Item{}, err
	}
	s.record(ctx, in.OrgID, in.ActorID, "kardex.item.create", item.SKU, map[string]any{"method": string(item.Method)})
	return item, nil
}

// MovementInput describes one stock movement.
type MovementInput struct {
	OrgID     int64
	SKU       string
	Type      MovementType
	Date      time.Time
	Reference string
	// SourceRef deduplicates retried submissions of the same business event.
	SourceRef uuid.UUID
	Qty       decimal.Decimal
	// UnitCost is required inbound and ignored outbound, where the weighted
	// average on hand prices the issue.
	UnitCost decimal.Decimal
	// CounterAccountID is the non-inventory side of the inbound posting,
	// typically payables or cash. Outbound postings always hit the item's
	// cost of goods sold account.
	CounterAccountID int64
	ActorID          int64
}

func (in MovementInput) validate() error {
	if !in.Type.Valid() {
		return fmt.Errorf("kardex: unknown movement type %q", in.Type)
	}
	if !in.Qty.IsPositive() {
		return ErrInvalidQuantity
	}
	if in.Type.Inbound() {
		if in.UnitCost.IsNegative() {
			return ErrInvalidUnitCost
		}
		if in.CounterAccountID == 0 {
			return errors.New("kardex: counter account required for inbound movements")
		}
	}
	return nil
}

// RecordMovement appends a movement to the item's card, reprices the stock
// and posts the matching journal entry, all in one transaction.
//
// Inbound movements fold into the weighted average:
//
//	newAvg = (qty*avg + inQty*inCost) / (qty + inQty)
//
// Outbound movements issue at the current average and leave it unchanged.
// When the movement values to zero the returned entry is the zero Entry.
func (s *Service) RecordMovement(ctx context.Context, in MovementInput) (Movement, journal.Entry, error) {
	if err := in.validate(); err != nil {
		return Movement{}, journal.Entry{}, err
	}
	var (
		movement Movement
		entry    journal.Entry
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, in.OrgID, in.SKU)
		if err != nil {
			return err
		}

		var newQty, newAvg, unitCost decimal.Decimal
		if in.Type.Inbound() {
			unitCost = in.UnitCost
			newQty = item.Qty.Add(in.Qty)
			newAvg = item.Value().Add(in.Qty.Mul(unitCost)).Div(newQty)
		} else {
			if in.Qty.GreaterThan(item.Qty) {
				return &InsufficientStockError{SKU: item.SKU, Available: item.Qty, Requested: in.Qty}
			}
			unitCost = item.AvgCost
			newQty = item.Qty.Sub(in.Qty)
			newAvg = item.AvgCost
		}

		// Movements that carry no value (donated stock in, issues while the
		// average sits at zero) update the card but post nothing: a
		// 0-debit/0-credit entry is not a posting.
		var entryID *int64
		if !in.Qty.Mul(unitCost).IsZero() {
			entry, err = s.postMovementEntry(ctx, tx, item, in, unitCost)
			if err != nil {
				return err
			}
			entryID = &entry.ID
		}

		movement, err = tx.InsertMovement(ctx, Movement{
			ItemID:     item.ID,
			OrgID:      in.OrgID,
			Type:       in.Type,
			Date:       in.Date,
			Reference:  in.Reference,
			SourceRef:  in.SourceRef,
			Qty:        in.Qty,
			UnitCost:   unitCost,
			EntryID:    entryID,
			BalanceQty: newQty,
			BalanceAvg: newAvg,
			CreatedBy:  in.ActorID,
		})
		if err != nil {
			return err
		}
		return tx.UpdateItemRunning(ctx, item.ID, newQty, newAvg)
	})
	if err != nil {
		return Movement{}, journal.Entry{}, err
	}
	s.afterMutation(ctx, in.OrgID, in.ActorID, "kardex.movement", movement)
	return movement, entry, nil
}

func (s *Service) postMovementEntry(ctx context.Context, tx TxRepository, item Item, in MovementInput, unitCost decimal.Decimal) (journal.Entry, error) {
	total := in.Qty.Mul(unitCost)
	var lines []journal.LineInput
	memo := fmt.Sprintf("%s %s x %s @ %s", in.Type, in.Qty.String(), item.SKU, unitCost.StringFixed(2))
	if in.Type.Inbound() {
		lines = []journal.LineInput{
			{AccountID: item.InventoryAccountID, Memo: memo, Debit: total},
			{AccountID: in.CounterAccountID, Memo: memo, Credit: total},
		}
	} else {
		lines = []journal.LineInput{
			{AccountID: item.COGSAccountID, Memo: memo, Debit: total},
			{AccountID: item.InventoryAccountID, Memo: memo, Credit: total},
		}
	}
	return s.journal.CreateEntryTx(ctx, tx.Journal(), journal.EntryInput{
		OrgID:        in.OrgID,
		Date:         in.Date,
		Description:  fmt.Sprintf("Stock %s %s: %s", in.Type, item.SKU, in.Reference),
		SourceModule: "kardex",
		SourceRef:    in.SourceRef,
		CreatedBy:    in.ActorID,
		AutoConfirm:  true,
		Lines:        lines,
	})
}

// RecordInbound is RecordMovement with the plain inbound type preset.
func (s *Service) RecordInbound(ctx context.Context, in MovementInput) (Movement, journal.Entry, error) {
	in.Type = TypeIn
	return s.RecordMovement(ctx, in)
}

// RecordOutbound is RecordMovement with the plain outbound type preset.
func (s *Service) RecordOutbound(ctx context.Context, in MovementInput) (Movement, journal.Entry, error) {
	in.Type = TypeOut
	return s.RecordMovement(ctx, in)
}

// RemoveMovement unwinds the newest movement of an item: the card row is
// deleted, the running state rolls back to the previous snapshot and the
// linked journal entry is voided with a reversal. Older movements are part
// of the costing history and can never be removed.
func (s *Service) RemoveMovement(ctx context.Context, orgID, movementID, actorID int64, reason string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.GetMovement(ctx, orgID, movementID)
		if err != nil {
			return err
		}
		if _, err := tx.GetItemByIDForUpdate(ctx, m.ItemID); err != nil {
			return err
		}
		latest, err := tx.LatestMovementForUpdate(ctx, m.ItemID)
		if err != nil {
			return err
		}
		if latest.ID != m.ID {
			return ErrNotLatestMovement
		}
		if m.EntryID != nil {
			if _, _, err := s.journal.VoidEntryTx(ctx, tx.Journal(), journal.VoidInput{
				OrgID:   orgID,
				EntryID: *m.EntryID,
				ActorID: actorID,
				Reason:  reason,
			}); err != nil {
				return err
			}
		}
		if err := tx.DeleteMovement(ctx, m.ID); err != nil {
			return err
		}
		prevQty, prevAvg := decimal.Zero, decimal.Zero
		prev, err := tx.LatestMovementForUpdate(ctx, m.ItemID)
		switch {
		case err == nil:
			prevQty, prevAvg = prev.BalanceQty, prev.BalanceAvg
		case errors.Is(err, ErrMovementNotFound):
		default:
			return err
		}
		return tx.UpdateItemRunning(ctx, m.ItemID, prevQty, prevAvg)
	})
	if err != nil {
		return err
	}
	s.afterMutation(ctx, orgID, actorID, "kardex.movement.remove", Movement{ID: movementID})
	return nil
}

// Item returns an item by SKU.
func (s *Service) Item(ctx context.Context, orgID int64, sku string) (Item, error) {
	return s.repo.GetItem(ctx, orgID, sku)
}

// ListItems returns all items for an organization.
func (s *Service) ListItems(ctx context.Context, orgID int64) ([]Item, error) {
	return s.repo.ListItems(ctx, orgID)
}

func (s *Service) afterMutation(ctx context.Context, orgID, actorID int64, action string, m Movement) {
	if s.cache != nil {
		if err := s.cache.InvalidateOrg(ctx, orgID); err != nil {
			s.logger.Warn("balance cache invalidation failed", "org_id", orgID, "error", err)
		}
	}
	meta := map[string]any{"type": string(m.Type), "qty": m.Qty.String()}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			OrgID:    orgID,
			ActorID:  actorID,
			Action:   action,
			Entity:   "stock_movement",
			EntityID: strconv.FormatInt(m.ID, 10),
			Meta:     meta,
			At:       s.now(),
		})
	}
}

func (s *Service) record(ctx context.Context, orgID, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OrgID:    orgID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_item",
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	})
}
