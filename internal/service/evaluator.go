package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"
	"payin-backend/internal/domain"
	"payin-backend/internal/metrics"
	"payin-backend/internal/repository"
)

var hundred = decimal.NewFromInt(100)

// Evaluator computes the advisory promotion flags on history records.
type Evaluator struct {
	Logger *slog.Logger
}

// Evaluate refreshes the flags on (memberID, p). A member without history for the
// period or without a rule for its level is left untouched.
func (e Evaluator) Evaluate(ctx context.Context, tx repository.Tx, memberID int64, p domain.Period) (*domain.HistoryRecord, error) {
	m, err := tx.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	h, err := tx.GetHistory(ctx, memberID, p)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rule, err := ruleFor(ctx, tx, m.Genealogy)
	if err != nil {
		return nil, err
	}
	if rule != nil {
		metrics.RulesEvaluated.WithLabelValues(string(m.Genealogy)).Inc()
		switch {
		case m.Genealogy.IsConsultantLevel():
			if err := e.consultantFlags(ctx, tx, h, rule); err != nil {
				return nil, err
			}
		case m.Genealogy.IsManagerLevel():
			win, err := window(ctx, tx, m.ID, p, rule, rule.ManagerSalesMonth)
			if err != nil {
				return nil, err
			}
			h.Flags.TeamSalesPromotion = all(win, func(r domain.HistoryRecord) bool {
				return r.TeamSales().GreaterThanOrEqual(rule.TeamSalesValue)
			})
		}
	}

	if m.Genealogy.IsManagerLevel() && m.PromoterID != nil {
		if err := e.promotedManagerFlags(ctx, tx, m, h, rule); err != nil {
			return nil, err
		}
	}
	if err := tx.SaveHistory(ctx, h); err != nil {
		return nil, err
	}

	if m.Genealogy.IsManagerLevel() && m.PromoterID != nil {
		if err := e.refreshPromoter(ctx, tx, *m.PromoterID, p); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// EvaluateAll re-evaluates every history record of the period.
func (e Evaluator) EvaluateAll(ctx context.Context, tx repository.Tx, p domain.Period) (int, error) {
	records, err := tx.ListHistory(ctx, repository.HistoryFilter{Period: &p, Limit: batchLimit})
	if err != nil {
		return 0, err
	}
	for _, r := range records {
		if _, err := e.Evaluate(ctx, tx, r.MemberID, p); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}

func (e Evaluator) consultantFlags(ctx context.Context, tx repository.Tx, h *domain.HistoryRecord, rule *domain.PromotionRule) error {
	sales, err := window(ctx, tx, h.MemberID, h.Period, rule, rule.SalesMonth)
	if err != nil {
		return err
	}
	f := &h.Flags
	f.PersonalSalesPromotion = all(sales, func(r domain.HistoryRecord) bool {
		return r.PersonalSales().GreaterThanOrEqual(rule.OwnSalesValue)
	})
	f.TeamSalesPromotion = all(sales, func(r domain.HistoryRecord) bool {
		return r.TeamSales().GreaterThanOrEqual(rule.TeamSalesValue)
	})
	f.Personal80 = all(sales, func(r domain.HistoryRecord) bool {
		return reachesEighty(r.PersonalSales(), rule.OwnSalesValue)
	})
	f.Team80 = all(sales, func(r domain.HistoryRecord) bool {
		return reachesEighty(r.TeamSales(), rule.TeamSalesValue)
	})
	f.Active80 = all(sales, func(r domain.HistoryRecord) bool {
		return reachesEighty(decimal.NewFromInt(int64(r.ActiveDescendantCount)), decimal.NewFromInt(int64(rule.RetainedConsultants)))
	})

	retained, err := window(ctx, tx, h.MemberID, h.Period, rule, rule.MonthsRetainedConsultants)
	if err != nil {
		return err
	}
	f.ActiveSFMPromotion = all(retained, func(r domain.HistoryRecord) bool {
		return r.ActiveDescendantCount >= rule.RetainedConsultants
	})
	return nil
}

// promotedManagerFlags sets the flags a promoter's rule asks of each manager it promoted.
func (e Evaluator) promotedManagerFlags(ctx context.Context, tx repository.Tx, m *domain.Member, h *domain.HistoryRecord, own *domain.PromotionRule) error {
	h.Flags.ManagerPromoteActiveConsultants, h.Flags.ManagerPromotedSalesAbove = false, false
	promoter, err := tx.GetMember(ctx, *m.PromoterID)
	if errors.Is(err, repository.ErrNotFound) {
		warnIntegrity(ctx, e.Logger, domain.IntegrityWarning{MemberID: m.ID, Relation: "promoter", RefID: *m.PromoterID, Reason: "does not exist"})
		return nil
	}
	if err != nil {
		return err
	}
	pr, err := ruleFor(ctx, tx, promoter.Genealogy)
	if err != nil || pr == nil {
		return err
	}
	teamTarget := decimal.Zero
	if own != nil {
		teamTarget = own.TeamSalesValue
	}

	active, err := window(ctx, tx, m.ID, h.Period, pr, pr.PromotedManagersMonths)
	if err != nil {
		return err
	}
	h.Flags.ManagerPromoteActiveConsultants = all(active, func(r domain.HistoryRecord) bool {
		return r.ActiveDescendantCount >= pr.PromotedManagerActiveConsultants && r.TeamSales().GreaterThanOrEqual(teamTarget)
	})

	sales, err := window(ctx, tx, m.ID, h.Period, pr, pr.PromotedTeamSalesMonth)
	if err != nil {
		return err
	}
	h.Flags.ManagerPromotedSalesAbove = all(sales, func(r domain.HistoryRecord) bool {
		return r.TeamSales().GreaterThanOrEqual(pr.TeamSalesValuePerPromotedManager)
	})
	return nil
}

// refreshPromoter recounts, from scratch, the promoted managers meeting their targets.
func (e Evaluator) refreshPromoter(ctx context.Context, tx repository.Tx, promoterID int64, p domain.Period) error {
	promoter, err := tx.GetMember(ctx, promoterID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	rule, err := ruleFor(ctx, tx, promoter.Genealogy)
	if err != nil || rule == nil {
		return err
	}
	promoted, err := tx.ListMembers(ctx, repository.MemberFilter{
		PromoterID:  &promoterID,
		Genealogies: []domain.Genealogy{domain.GenealogyManager, domain.GenealogyProspectiveDistributor},
		Limit:       batchLimit,
	})
	if err != nil {
		return err
	}
	active, sales := 0, 0
	for _, pm := range promoted {
		rec, err := tx.GetHistory(ctx, pm.ID, p)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if rec.Flags.ManagerPromoteActiveConsultants {
			active++
		}
		if rec.Flags.ManagerPromotedSalesAbove {
			sales++
		}
	}

	h, _, err := tx.LockHistory(ctx, domain.NewHistoryRecord(promoter, p))
	if err != nil {
		return err
	}
	h.Flags.PBMPromotedActiveConsultants = active
	h.Flags.PBMPromotedManagersTeamSalesAbove = sales
	h.Flags.PBMPromotedManagersActivePromotion = rule.PromotedManagers > 0 && active >= rule.PromotedManagers
	h.Flags.PBMTeamSalesAbove = rule.PromotedManagers > 0 && sales >= rule.PromotedManagers
	return tx.SaveHistory(ctx, h)
}

func ruleFor(ctx context.Context, tx repository.Tx, level domain.Genealogy) (*domain.PromotionRule, error) {
	r, err := tx.GetRule(ctx, level)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return r, err
}

// window returns the n most recent records at or before p, skipping the rule's excluded
// months. Fewer than n records, or n <= 0, yields nil so every flag fails closed.
func window(ctx context.Context, tx repository.Tx, memberID int64, p domain.Period, rule *domain.PromotionRule, n int) ([]domain.HistoryRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	records, err := tx.ListHistory(ctx, repository.HistoryFilter{MemberID: &memberID, UpTo: &p, Limit: batchLimit})
	if err != nil {
		return nil, err
	}
	out := make([]domain.HistoryRecord, 0, n)
	for _, r := range records {
		if rule.Excludes(r.Period.Month) {
			continue
		}
		out = append(out, r)
		if len(out) == n {
			return out, nil
		}
	}
	return nil, nil
}

// all is false on an empty window.
func all(records []domain.HistoryRecord, pred func(domain.HistoryRecord) bool) bool {
	if len(records) == 0 {
		return false
	}
	for _, r := range records {
		if !pred(r) {
			return false
		}
	}
	return true
}

func reachesEighty(value, target decimal.Decimal) bool {
	if !target.IsPositive() {
		return true
	}
	return value.Mul(hundred).Div(target).GreaterThanOrEqual(decimal.NewFromInt(80))
}
