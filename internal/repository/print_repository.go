package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"payin-backend/internal/domain"
)

type PrintRepository struct {
	q pgxQuerier
}

func (r PrintRepository) LockPrint(ctx context.Context, kind domain.PrintKind, targetID int64) (*domain.PrintRecord, error) {
	if _, err := r.q.Exec(ctx, `
		INSERT INTO report_prints (kind, target_id, print_count, print_state, updated_at)
		VALUES ($1,$2,0,$3, now())
		ON CONFLICT (kind, target_id) DO NOTHING
	`, string(kind), targetID, string(domain.PrintStatePrinted)); err != nil {
		return nil, err
	}
	var p domain.PrintRecord
	var k, state string
	err := r.q.QueryRow(ctx, `
		SELECT id, kind, target_id, print_count, print_state, updated_at
		FROM report_prints
		WHERE kind=$1 AND target_id=$2
		FOR UPDATE
	`, string(kind), targetID).Scan(&p.ID, &k, &p.TargetID, &p.Count, &state, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Kind = domain.PrintKind(k)
	p.State = domain.PrintState(state)
	return &p, nil
}

func (r PrintRepository) SavePrint(ctx context.Context, p *domain.PrintRecord) error {
	return r.q.QueryRow(ctx, `
		UPDATE report_prints SET print_count=$1, print_state=$2, updated_at=now()
		WHERE id=$3
		RETURNING updated_at
	`, p.Count, string(p.State), p.ID).Scan(&p.UpdatedAt)
}
