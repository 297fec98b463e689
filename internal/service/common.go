package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"payin-backend/internal/domain"
	"payin-backend/internal/repository"
)

// Notifier receives sale notifications after a capture commits.
type Notifier interface {
	NotifySales(ctx context.Context, sales []domain.SaleNotification) error
}

// Locker serializes work on a key across processes. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// batchLimit lifts the repository default page size for whole-population runs.
const batchLimit = 1 << 30

func nowOr(now func() time.Time) time.Time {
	if now == nil {
		return time.Now().UTC()
	}
	return now().UTC()
}

func newEvent(typ domain.EventType, entityType string, entityID int64, actor, message string, at time.Time) *domain.Event {
	return &domain.Event{
		ID:         uuid.NewString(),
		Type:       typ,
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      actor,
		Message:    message,
		OccurredAt: at,
	}
}

// memberLookup adapts a transaction to domain.MemberLookup.
func memberLookup(ctx context.Context, tx repository.Tx) domain.MemberLookup {
	return func(id int64) (*domain.Member, bool, error) {
		m, err := tx.GetMember(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		return m, true, nil
	}
}

// getRef loads the member referenced by field of entity; a dangling reference is a validation failure.
func getRef(ctx context.Context, tx repository.Tx, entity string, entityID int64, field string, refID int64) (*domain.Member, error) {
	m, err := tx.GetMember(ctx, refID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.Invalid(entity, entityID, field, fmt.Sprintf("refers to unknown member %d", refID))
	}
	return m, err
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func timePtr(t time.Time) *time.Time { return &t }
