package service

import (
	"context"
	"time"

	"payin-backend/internal/domain"
	"payin-backend/internal/repository"
)

// HistoryService serves read models: history, the event trail and the sync feeds.
type HistoryService struct {
	Store repository.Store
}

func (s HistoryService) List(ctx context.Context, f repository.HistoryFilter) ([]domain.HistoryRecord, error) {
	var out []domain.HistoryRecord
	err := s.Store.Read(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.ListHistory(ctx, f)
		return err
	})
	return out, err
}

func (s HistoryService) Events(ctx context.Context, f repository.EventFilter) ([]domain.Event, error) {
	var out []domain.Event
	err := s.Store.Read(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.ListEvents(ctx, f)
		return err
	})
	return out, err
}

// MembersSince returns members changed after since, archived ones included.
func (s HistoryService) MembersSince(ctx context.Context, since time.Time, limit int) ([]domain.Member, error) {
	var out []domain.Member
	err := s.Store.Read(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.ListMembers(ctx, repository.MemberFilter{UpdatedSince: &since, IncludeArchived: true, Limit: limit})
		return err
	})
	return out, err
}

func (s HistoryService) HistorySince(ctx context.Context, since time.Time, limit int) ([]domain.HistoryRecord, error) {
	return s.List(ctx, repository.HistoryFilter{UpdatedSince: &since, Limit: limit})
}
