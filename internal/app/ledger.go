package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/quipu-ledger/quipu/internal/kardex"
	"github.com/quipu-ledger/quipu/internal/ledger/accounts"
	"github.com/quipu-ledger/quipu/internal/ledger/balance"
	"github.com/quipu-ledger/quipu/internal/ledger/journal"
	"github.com/quipu-ledger/quipu/internal/ledger/periods"
	"github.com/quipu-ledger/quipu/internal/ledger/statements"
	"github.com/quipu-ledger/quipu/internal/shared"
)

// Ledger is the composition root: every engine service wired against one
// connection pool and one cache. Embedding applications mount their own
// transport on top of it.
type Ledger struct {
	Accounts   *accounts.Service
	Periods    *periods.Service
	Journal    *journal.Service
	Balance    *balance.Engine
	Statements *statements.Service
	Kardex     *kardex.Service
	Audit      *shared.AuditLogger
}

// NewLedger wires all services.
func NewLedger(cfg *Config, logger *slog.Logger, pool *pgxpool.Pool, rdb *redis.Client) *Ledger {
	audit := shared.NewAuditLogger(pool)

	source := balance.NewCachedSource(balance.NewSource(pool), rdb, cfg.BalanceCacheTTL, logger)
	engine := balance.NewEngine(source)

	accountSvc := accounts.NewService(accounts.NewRepository(pool), audit)
	periodSvc := periods.NewService(periods.NewRepository(pool), audit)
	journalSvc := journal.NewService(journal.NewRepository(pool), audit, source, logger,
		journal.Config{CashLimit: cfg.CashLimit()})
	statementSvc := statements.NewService(accountSvc, engine, journalSvc, shared.NewIdempotencyStore(pool))
	kardexSvc := kardex.NewService(kardex.NewRepository(pool), journalSvc, audit, source, logger)

	return &Ledger{
		Accounts:   accountSvc,
		Periods:    periodSvc,
		Journal:    journalSvc,
		Balance:    engine,
		Statements: statementSvc,
		Kardex:     kardexSvc,
		Audit:      audit,
	}
}
