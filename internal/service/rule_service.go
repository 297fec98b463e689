package service

import (
	"context"

	"payin-backend/internal/domain"
	"payin-backend/internal/repository"
)

type RuleService struct {
	Store     repository.Store
	Evaluator Evaluator
}

func (s RuleService) List(ctx context.Context) ([]domain.PromotionRule, error) {
	var out []domain.PromotionRule
	err := s.Store.Read(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.ListRules(ctx)
		return err
	})
	return out, err
}

func (s RuleService) Get(ctx context.Context, level domain.Genealogy) (*domain.PromotionRule, error) {
	var out *domain.PromotionRule
	err := s.Store.Read(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.GetRule(ctx, level)
		return err
	})
	return out, err
}

// Save creates or replaces the rule for its level.
func (s RuleService) Save(ctx context.Context, r domain.PromotionRule) (*domain.PromotionRule, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.SaveRule(ctx, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Evaluate recomputes flags for one member, or for the whole period when memberID is nil.
func (s RuleService) Evaluate(ctx context.Context, p domain.Period, memberID *int64) (int, error) {
	count := 0
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if memberID != nil {
			h, err := s.Evaluator.Evaluate(ctx, tx, *memberID, p)
			if h != nil {
				count = 1
			}
			return err
		}
		var err error
		count, err = s.Evaluator.EvaluateAll(ctx, tx, p)
		return err
	})
	return count, err
}
