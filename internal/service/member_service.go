package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"payin-backend/internal/domain"
	"payin-backend/internal/repository"
)

// MemberService maintains hierarchy nodes outside the promotion wizards.
type MemberService struct {
	Store  repository.Store
	Logger *slog.Logger
}

type CreateMemberInput struct {
	Name         string
	Code         string
	Genealogy    domain.Genealogy
	ManagerID    *int64
	RecruiterID  *int64
	PromoterID   *int64
	ActiveStatus domain.ActiveStatus
}

// UpdateMemberInput changes only the fields that are set. Rank changes go through PromotionService.
type UpdateMemberInput struct {
	Name         *string
	Code         *string
	ManagerID    *int64
	RecruiterID  *int64
	PromoterID   *int64
	ActiveStatus *domain.ActiveStatus
	Archived     *bool
}

func (s MemberService) Create(ctx context.Context, in CreateMemberInput) (*domain.Member, error) {
	m := &domain.Member{
		Name:         in.Name,
		Code:         in.Code,
		Genealogy:    in.Genealogy,
		ManagerID:    in.ManagerID,
		RecruiterID:  in.RecruiterID,
		PromoterID:   in.PromoterID,
		ActiveStatus: in.ActiveStatus,
	}
	if m.ActiveStatus == "" {
		m.ActiveStatus = domain.StatusPotentialConsultant
	}
	if err := domain.ValidateMember(m); err != nil {
		return nil, err
	}
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := s.checkRefs(ctx, tx, m); err != nil {
			return err
		}
		if err := tx.CreateMember(ctx, m); err != nil {
			return err
		}
		distributorID, err := s.resolve(ctx, tx, m)
		if err != nil {
			return err
		}
		if sameID(distributorID, m.RelatedDistributorID) {
			return nil
		}
		m.RelatedDistributorID = distributorID
		return tx.UpdateMember(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s MemberService) Update(ctx context.Context, id int64, in UpdateMemberInput) (*domain.Member, error) {
	var out *domain.Member
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		m, err := tx.GetMember(ctx, id)
		if err != nil {
			return err
		}
		managerChanged := false
		if in.Name != nil {
			m.Name = *in.Name
		}
		if in.Code != nil {
			m.Code = *in.Code
		}
		if in.ManagerID != nil && !sameID(in.ManagerID, m.ManagerID) {
			m.PreviousManagerID = m.ManagerID
			m.ManagerID = in.ManagerID
			managerChanged = true
		}
		if in.RecruiterID != nil {
			m.RecruiterID = in.RecruiterID
		}
		if in.PromoterID != nil {
			m.PromoterID = in.PromoterID
		}
		if in.ActiveStatus != nil {
			m.ActiveStatus = *in.ActiveStatus
		}
		if in.Archived != nil {
			m.Archived = *in.Archived
		}
		if err := domain.ValidateMember(m); err != nil {
			return err
		}
		if err := s.checkRefs(ctx, tx, m); err != nil {
			return err
		}
		if managerChanged {
			manager, err := tx.GetMember(ctx, *m.ManagerID)
			if err != nil {
				return err
			}
			if err := checkNotAbove(ctx, tx, m.ID, manager); err != nil {
				return err
			}
			distributorID, err := s.resolve(ctx, tx, m)
			if err != nil {
				return err
			}
			m.RelatedDistributorID = distributorID
		}
		if err := tx.UpdateMember(ctx, m); err != nil {
			return err
		}
		out = m
		return nil
	})
	return out, err
}

func (s MemberService) Get(ctx context.Context, id int64) (*domain.Member, error) {
	var out *domain.Member
	err := s.Store.Read(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.GetMember(ctx, id)
		return err
	})
	return out, err
}

func (s MemberService) List(ctx context.Context, f repository.MemberFilter) ([]domain.Member, error) {
	var out []domain.Member
	err := s.Store.Read(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.ListMembers(ctx, f)
		return err
	})
	return out, err
}

func (s MemberService) checkRefs(ctx context.Context, tx repository.Tx, m *domain.Member) error {
	refs := []struct {
		field string
		id    *int64
	}{
		{"manager_id", m.ManagerID},
		{"recruiter_id", m.RecruiterID},
		{"promoter_id", m.PromoterID},
	}
	for _, r := range refs {
		if r.id == nil {
			continue
		}
		if _, err := getRef(ctx, tx, "member", m.ID, r.field, *r.id); err != nil {
			return err
		}
	}
	return nil
}

// resolve finds m's distributor; broken chains are logged and leave it unset.
func (s MemberService) resolve(ctx context.Context, tx repository.Tx, m *domain.Member) (*int64, error) {
	id, err := domain.ResolveDistributor(m, memberLookup(ctx, tx))
	var w domain.IntegrityWarning
	if errors.As(err, &w) {
		warnIntegrity(ctx, s.Logger, w)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve distributor of member %d: %w", m.ID, err)
	}
	return id, nil
}
