package repository

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
	"payin-backend/internal/domain"
)

type EventRepository struct {
	q pgxQuerier
}

func (r EventRepository) AppendEvent(ctx context.Context, e *domain.Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	if e.Payload == nil {
		payload = []byte("{}")
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO domain_events (id, type, entity_type, entity_id, actor, message, old_total, new_total, elapsed_sec, payload, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, e.ID, string(e.Type), e.EntityType, e.EntityID, e.Actor, e.Message, e.OldTotal, e.NewTotal, e.ElapsedSec,
		payload, e.OccurredAt)
	return err
}

func (r EventRepository) ListEvents(ctx context.Context, f EventFilter) ([]domain.Event, error) {
	var a args
	where := []string{"TRUE"}
	if f.EntityType != "" {
		where = append(where, "entity_type = "+a.add(f.EntityType))
	}
	if f.EntityID != nil {
		where = append(where, "entity_id = "+a.add(*f.EntityID))
	}
	if f.Type != "" {
		where = append(where, "type = "+a.add(string(f.Type)))
	}
	limit := a.add(limitOr(f.Limit, 100))
	rows, err := r.q.Query(ctx, `
		SELECT id::text, type, entity_type, entity_id, actor, message, old_total, new_total, elapsed_sec, payload, occurred_at
		FROM domain_events
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY occurred_at DESC
		LIMIT `+limit, a...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		var typ string
		var oldTotal, newTotal decimal.NullDecimal
		var payload []byte
		if err := rows.Scan(&e.ID, &typ, &e.EntityType, &e.EntityID, &e.Actor, &e.Message, &oldTotal, &newTotal,
			&e.ElapsedSec, &payload, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Type = domain.EventType(typ)
		if oldTotal.Valid {
			e.OldTotal = &oldTotal.Decimal
		}
		if newTotal.Valid {
			e.NewTotal = &newTotal.Decimal
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
