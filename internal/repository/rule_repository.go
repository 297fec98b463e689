package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"payin-backend/internal/domain"
)

type RuleRepository struct {
	q pgxQuerier
}

const ruleColumns = `
	id, current_genealogy_level, next_genealogy_level, sales_month, own_sales_value, team_sales_value,
	team_sales_value_per_promoted_manager, retained_consultants, months_retained_consultants, promoted_managers,
	promoted_managers_months, promoted_manager_active_consultants, manager_sales_month, promoted_team_sales_month,
	excluded_months, updated_at`

func scanRule(row pgx.Row) (*domain.PromotionRule, error) {
	var r domain.PromotionRule
	var current, next string
	var months []int32
	err := row.Scan(&r.ID, &current, &next, &r.SalesMonth, &r.OwnSalesValue, &r.TeamSalesValue,
		&r.TeamSalesValuePerPromotedManager, &r.RetainedConsultants, &r.MonthsRetainedConsultants, &r.PromotedManagers,
		&r.PromotedManagersMonths, &r.PromotedManagerActiveConsultants, &r.ManagerSalesMonth, &r.PromotedTeamSalesMonth,
		&months, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.CurrentLevel = domain.Genealogy(current)
	r.NextLevel = domain.Genealogy(next)
	for _, m := range months {
		r.ExcludedMonths = append(r.ExcludedMonths, time.Month(m))
	}
	return &r, nil
}

func (r RuleRepository) GetRule(ctx context.Context, level domain.Genealogy) (*domain.PromotionRule, error) {
	rule, err := scanRule(r.q.QueryRow(ctx, `SELECT `+ruleColumns+` FROM promotion_rules WHERE current_genealogy_level=$1`, string(level)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rule, nil
}

func (r RuleRepository) ListRules(ctx context.Context) ([]domain.PromotionRule, error) {
	rows, err := r.q.Query(ctx, `SELECT `+ruleColumns+` FROM promotion_rules ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []domain.PromotionRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *rule)
	}
	return items, rows.Err()
}

// SaveRule upserts by genealogy level.
func (r RuleRepository) SaveRule(ctx context.Context, rule *domain.PromotionRule) error {
	months := make([]int32, 0, len(rule.ExcludedMonths))
	for _, m := range rule.ExcludedMonths {
		months = append(months, int32(m))
	}
	return r.q.QueryRow(ctx, `
		INSERT INTO promotion_rules (current_genealogy_level, next_genealogy_level, sales_month, own_sales_value,
			team_sales_value, team_sales_value_per_promoted_manager, retained_consultants, months_retained_consultants,
			promoted_managers, promoted_managers_months, promoted_manager_active_consultants, manager_sales_month,
			promoted_team_sales_month, excluded_months, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14, now())
		ON CONFLICT (current_genealogy_level) DO UPDATE
		SET next_genealogy_level=EXCLUDED.next_genealogy_level,
			sales_month=EXCLUDED.sales_month,
			own_sales_value=EXCLUDED.own_sales_value,
			team_sales_value=EXCLUDED.team_sales_value,
			team_sales_value_per_promoted_manager=EXCLUDED.team_sales_value_per_promoted_manager,
			retained_consultants=EXCLUDED.retained_consultants,
			months_retained_consultants=EXCLUDED.months_retained_consultants,
			promoted_managers=EXCLUDED.promoted_managers,
			promoted_managers_months=EXCLUDED.promoted_managers_months,
			promoted_manager_active_consultants=EXCLUDED.promoted_manager_active_consultants,
			manager_sales_month=EXCLUDED.manager_sales_month,
			promoted_team_sales_month=EXCLUDED.promoted_team_sales_month,
			excluded_months=EXCLUDED.excluded_months,
			updated_at=now()
		RETURNING id, updated_at
	`, string(rule.CurrentLevel), string(rule.NextLevel), rule.SalesMonth, rule.OwnSalesValue, rule.TeamSalesValue,
		rule.TeamSalesValuePerPromotedManager, rule.RetainedConsultants, rule.MonthsRetainedConsultants,
		rule.PromotedManagers, rule.PromotedManagersMonths, rule.PromotedManagerActiveConsultants,
		rule.ManagerSalesMonth, rule.PromotedTeamSalesMonth, months).Scan(&rule.ID, &rule.UpdatedAt)
}
