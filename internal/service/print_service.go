package service

import (
	"context"
	"fmt"
	"time"

	"payin-backend/internal/domain"
	"payin-backend/internal/metrics"
	"payin-backend/internal/repository"
)

// PrintService counts report prints against a ceiling.
type PrintService struct {
	Store repository.Store
	Limit int
	Now   func() time.Time
}

// RecordPrint registers one print of a sheet or summary. The print past the limit is refused.
func (s PrintService) RecordPrint(ctx context.Context, kind domain.PrintKind, targetID int64, actor string) (*domain.PrintRecord, error) {
	var out *domain.PrintRecord
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		name, err := s.targetName(ctx, tx, kind, targetID)
		if err != nil {
			return err
		}
		rec, err := tx.LockPrint(ctx, kind, targetID)
		if err != nil {
			return err
		}
		limit := s.Limit
		if limit < 1 {
			limit = 3
		}
		if rec.Count >= limit {
			metrics.PrintsRejected.WithLabelValues(string(kind)).Inc()
			return &domain.PrintLimitExceeded{Kind: kind, TargetID: targetID, Limit: limit}
		}
		rec.Count++
		rec.State = domain.PrintStatePrinted
		if rec.Count > 1 {
			rec.State = domain.PrintStateReprinted
			e := newEvent(domain.EventReportReprinted, string(kind), targetID, actor,
				fmt.Sprintf("%s printed %d times", name, rec.Count), nowOr(s.Now))
			e.Payload = map[string]any{"count": rec.Count, "limit": limit}
			if err := tx.AppendEvent(ctx, e); err != nil {
				return err
			}
		}
		if err := tx.SavePrint(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

func (s PrintService) targetName(ctx context.Context, tx repository.Tx, kind domain.PrintKind, id int64) (string, error) {
	switch kind {
	case domain.PrintSheet:
		sheet, err := tx.GetSheet(ctx, id, false)
		if err != nil {
			return "", err
		}
		return sheet.Name, nil
	case domain.PrintSummary:
		sum, err := tx.GetSummary(ctx, id, false)
		if err != nil {
			return "", err
		}
		return sum.Name, nil
	}
	return "", domain.Invalid("print", id, "kind", fmt.Sprintf("unknown report kind %q", kind))
}
