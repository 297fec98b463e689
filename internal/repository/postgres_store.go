package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"payin-backend/internal/db"
	"payin-backend/internal/domain"
)

// pgxQuerier is satisfied by both pgxpool.Pool and pgx.Tx.
type pgxQuerier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// PostgresStore runs units of work against Postgres.
type PostgresStore struct {
	DB *db.Postgres
}

// txAttempts bounds how often a unit of work is replayed after a deadlock.
const txAttempts = 3

func (s PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return retryTx(ctx, txAttempts, func() error { return s.runTx(ctx, fn) })
}

func (s PostgresStore) runTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.DB.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, newPgTx(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// retryTx replays run while it fails with a retryable Postgres error.
func retryTx(ctx context.Context, attempts int, run func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = run(); err == nil || !db.IsRetryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

// Read runs fn straight on the pool; row locks requested inside are not held.
func (s PostgresStore) Read(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return fn(ctx, newPgTx(s.DB.Pool))
}

type pgTx struct {
	MemberRepository
	SheetRepository
	SummaryRepository
	HistoryRepository
	RuleRepository
	EventRepository
	PrintRepository
	AuditRepository
}

func newPgTx(q pgxQuerier) pgTx {
	return pgTx{
		MemberRepository:  MemberRepository{q: q},
		SheetRepository:   SheetRepository{q: q},
		SummaryRepository: SummaryRepository{q: q},
		HistoryRepository: HistoryRepository{q: q},
		RuleRepository:    RuleRepository{q: q},
		EventRepository:   EventRepository{q: q},
		PrintRepository:   PrintRepository{q: q},
		AuditRepository:   AuditRepository{q: q},
	}
}

// args collects positional parameters for dynamically built WHERE clauses.
type args []any

func (a *args) add(v any) string {
	*a = append(*a, v)
	return "$" + strconv.Itoa(len(*a))
}

func periodOf(t time.Time) domain.Period {
	return domain.NewPeriod(t)
}

func limitOr(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}
