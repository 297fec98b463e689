package service

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"payin-backend/internal/domain"
	"payin-backend/internal/metrics"
	"payin-backend/internal/repository"
)

// Aggregator folds captured lines into history. Each line remembers what it last
// contributed, so re-running it only pushes the difference.
type Aggregator struct {
	Evaluator Evaluator
	Logger    *slog.Logger
	Now       func() time.Time
}

// contribution is what one line adds to a consultant and its ancestors.
type contribution struct {
	bb     decimal.Decimal
	puer   decimal.Decimal
	active bool
}

func aggregated(l *domain.CaptureLine) contribution {
	return contribution{bb: l.AggregatedBB, puer: l.AggregatedPuer, active: l.AggregatedActive}
}

func clearAggregated(l *domain.CaptureLine) {
	l.AggregatedConsultantID = nil
	l.AggregatedAncestorIDs = nil
	l.AggregatedBB, l.AggregatedPuer, l.AggregatedActive = decimal.Zero, decimal.Zero, false
}

func (c contribution) activeCount() int {
	if c.active {
		return 1
	}
	return 0
}

// AggregateSheet aggregates every line of a captured sheet and returns the sales to announce.
func (a Aggregator) AggregateSheet(ctx context.Context, tx repository.Tx, sheet *domain.CaptureSheet) ([]domain.SaleNotification, error) {
	start := time.Now()
	defer func() { metrics.AggregationDuration.Observe(time.Since(start).Seconds()) }()

	touched := map[int64]bool{}
	var sales []domain.SaleNotification
	for i := range sheet.Lines {
		ids, err := a.aggregateLine(ctx, tx, sheet, &sheet.Lines[i])
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			touched[id] = true
		}
		if sale, ok := a.sale(sheet, sheet.Lines[i]); ok {
			sales = append(sales, sale)
		}
	}
	if err := a.evaluate(ctx, tx, touched, sheet.Period); err != nil {
		return nil, err
	}
	return sales, nil
}

// AggregateLine re-aggregates a single edited line of a captured or verified sheet.
func (a Aggregator) AggregateLine(ctx context.Context, tx repository.Tx, sheet *domain.CaptureSheet, line *domain.CaptureLine) ([]domain.SaleNotification, error) {
	ids, err := a.aggregateLine(ctx, tx, sheet, line)
	if err != nil {
		return nil, err
	}
	touched := map[int64]bool{}
	for _, id := range ids {
		touched[id] = true
	}
	if err := a.evaluate(ctx, tx, touched, sheet.Period); err != nil {
		return nil, err
	}
	if sale, ok := a.sale(sheet, *line); ok {
		return []domain.SaleNotification{sale}, nil
	}
	return nil, nil
}

// Withdraw takes a line's contribution back out of history, as before deleting it.
func (a Aggregator) Withdraw(ctx context.Context, tx repository.Tx, sheet *domain.CaptureSheet, line *domain.CaptureLine) error {
	if line.AggregatedConsultantID == nil {
		return nil
	}
	ids, err := a.reverse(ctx, tx, sheet.Period, *line.AggregatedConsultantID, line.AggregatedAncestorIDs, aggregated(line))
	if err != nil {
		return err
	}
	clearAggregated(line)
	touched := map[int64]bool{}
	for _, id := range ids {
		touched[id] = true
	}
	return a.evaluate(ctx, tx, touched, sheet.Period)
}

func (a Aggregator) aggregateLine(ctx context.Context, tx repository.Tx, sheet *domain.CaptureSheet, line *domain.CaptureLine) ([]int64, error) {
	now := contribution{bb: line.BBTotal(), puer: line.PuerTotal(), active: !line.SubTotal().IsZero()}
	prev := aggregated(line)
	var touched []int64

	consultant, err := tx.GetMember(ctx, line.ConsultantID)
	missing := errors.Is(err, repository.ErrNotFound)
	if err != nil && !missing {
		return nil, err
	}
	var current []int64
	if !missing {
		if current, err = a.ancestorIDs(ctx, tx, consultant); err != nil {
			return nil, err
		}
	}

	// The hierarchy may have moved since the last run. Take the old contribution back from
	// exactly the members it went to before crediting the current ones.
	if line.AggregatedConsultantID != nil {
		switch {
		case *line.AggregatedConsultantID != line.ConsultantID:
			ids, err := a.reverse(ctx, tx, sheet.Period, *line.AggregatedConsultantID, line.AggregatedAncestorIDs, prev)
			if err != nil {
				return nil, err
			}
			touched = append(touched, ids...)
			prev = contribution{bb: decimal.Zero, puer: decimal.Zero}
		case !sameIDs(line.AggregatedAncestorIDs, current):
			ids, err := a.applyToAncestors(ctx, tx, line.AggregatedAncestorIDs, sheet.Period, prev.bb.Neg(), prev.puer.Neg(), -prev.activeCount())
			if err != nil {
				return nil, err
			}
			touched = append(touched, ids...)
			prev = contribution{bb: decimal.Zero, puer: decimal.Zero}
		}
	}

	if missing {
		warnIntegrity(ctx, a.Logger, domain.IntegrityWarning{MemberID: line.ConsultantID, Relation: "consultant", RefID: line.ConsultantID, Reason: "does not exist"})
		clearAggregated(line)
		return touched, tx.SaveLine(ctx, line)
	}

	h, err := a.lockRecord(ctx, tx, consultant, sheet.Period)
	if err != nil {
		return nil, err
	}
	h.PersonalBB, h.PersonalPuer = now.bb, now.puer
	if err := tx.SaveHistory(ctx, h); err != nil {
		return nil, err
	}
	touched = append(touched, consultant.ID)

	ids, err := a.applyToAncestors(ctx, tx, current, sheet.Period, now.bb.Sub(prev.bb), now.puer.Sub(prev.puer), now.activeCount()-prev.activeCount())
	if err != nil {
		return nil, err
	}
	touched = append(touched, ids...)

	if now.active {
		if err := a.recordFirstSale(ctx, tx, consultant, sheet.Period); err != nil {
			return nil, err
		}
	}

	id := consultant.ID
	line.AggregatedConsultantID = &id
	line.AggregatedAncestorIDs = current
	line.AggregatedBB, line.AggregatedPuer, line.AggregatedActive = now.bb, now.puer, now.active
	if err := tx.SaveLine(ctx, line); err != nil {
		return nil, err
	}
	metrics.LinesAggregated.Inc()
	return touched, nil
}

// reverse zeroes the personal figures of a consultant and withdraws prev from the
// ancestors it was credited to.
func (a Aggregator) reverse(ctx context.Context, tx repository.Tx, p domain.Period, consultantID int64, ancestorIDs []int64, prev contribution) ([]int64, error) {
	var touched []int64
	consultant, err := tx.GetMember(ctx, consultantID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		warnIntegrity(ctx, a.Logger, domain.IntegrityWarning{MemberID: consultantID, Relation: "consultant", RefID: consultantID, Reason: "does not exist"})
	case err != nil:
		return nil, err
	default:
		h, err := a.lockRecord(ctx, tx, consultant, p)
		if err != nil {
			return nil, err
		}
		h.PersonalBB, h.PersonalPuer = decimal.Zero, decimal.Zero
		if err := tx.SaveHistory(ctx, h); err != nil {
			return nil, err
		}
		touched = append(touched, consultant.ID)
	}
	ids, err := a.applyToAncestors(ctx, tx, ancestorIDs, p, prev.bb.Neg(), prev.puer.Neg(), -prev.activeCount())
	if err != nil {
		return nil, err
	}
	return append(touched, ids...), nil
}

// applyToAncestors adds the deltas to each ancestor's record. Rows are locked in id order
// so concurrent captures sharing ancestors queue instead of deadlocking.
func (a Aggregator) applyToAncestors(ctx context.Context, tx repository.Tx, ancestorIDs []int64, p domain.Period, dBB, dPuer decimal.Decimal, dActive int) ([]int64, error) {
	if dBB.IsZero() && dPuer.IsZero() && dActive == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(ancestorIDs))
	for _, id := range sortedIDs(ancestorIDs) {
		anc, err := tx.GetMember(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			warnIntegrity(ctx, a.Logger, domain.IntegrityWarning{MemberID: id, Relation: "ancestor", RefID: id, Reason: "does not exist"})
			continue
		}
		if err != nil {
			return nil, err
		}
		h, err := a.lockRecord(ctx, tx, anc, p)
		if err != nil {
			return nil, err
		}
		h.TeamBB = h.TeamBB.Add(dBB)
		h.TeamPuer = h.TeamPuer.Add(dPuer)
		h.ActiveDescendantCount += dActive
		if err := tx.SaveHistory(ctx, h); err != nil {
			return nil, err
		}
		ids = append(ids, anc.ID)
	}
	return ids, nil
}

// ancestorIDs is ancestors as a sorted id list, the form stored on the line.
func (a Aggregator) ancestorIDs(ctx context.Context, tx repository.Tx, c *domain.Member) ([]int64, error) {
	ancestors, err := a.ancestors(ctx, tx, c)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(ancestors))
	for _, m := range ancestors {
		ids = append(ids, m.ID)
	}
	slices.Sort(ids)
	return ids, nil
}

// ancestors lists, once each, the members whose team figures include this consultant:
// its manager, its distributor, and its recruiter chain up to the first manager-level recruiter.
func (a Aggregator) ancestors(ctx context.Context, tx repository.Tx, c *domain.Member) ([]*domain.Member, error) {
	lookup := memberLookup(ctx, tx)
	seen := map[int64]bool{c.ID: true}
	var out []*domain.Member

	follow := func(relation string, from *domain.Member, id int64) (*domain.Member, error) {
		m, ok, err := lookup(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			warnIntegrity(ctx, a.Logger, domain.IntegrityWarning{MemberID: from.ID, Relation: relation, RefID: id, Reason: "does not exist"})
			return nil, nil
		}
		return m, nil
	}
	include := func(m *domain.Member) {
		if !seen[m.ID] {
			seen[m.ID] = true
			out = append(out, m)
		}
	}

	if c.ManagerID != nil {
		m, err := follow("manager", c, *c.ManagerID)
		if err != nil {
			return nil, err
		}
		if m != nil {
			include(m)
		}
	}
	if c.RelatedDistributorID != nil && !sameID(c.RelatedDistributorID, c.ManagerID) {
		d, err := follow("distributor", c, *c.RelatedDistributorID)
		if err != nil {
			return nil, err
		}
		if d != nil {
			include(d)
		}
	}

	climbed := map[int64]bool{c.ID: true}
	cur := c
	for cur.RecruiterID != nil {
		if len(climbed) > domain.MaxHierarchyDepth {
			warnIntegrity(ctx, a.Logger, domain.IntegrityWarning{MemberID: c.ID, Relation: "recruiter", RefID: cur.ID, Reason: "chain too deep"})
			break
		}
		r, err := follow("recruiter", cur, *cur.RecruiterID)
		if err != nil {
			return nil, err
		}
		if r == nil {
			break
		}
		if climbed[r.ID] {
			warnIntegrity(ctx, a.Logger, domain.IntegrityWarning{MemberID: cur.ID, Relation: "recruiter", RefID: r.ID, Reason: "forms a cycle"})
			break
		}
		switch {
		case r.Genealogy.IsConsultantLevel():
			include(r)
			climbed[r.ID] = true
			cur = r
			continue
		case r.Genealogy.IsManagerLevel(), r.Genealogy.IsDistributor():
			include(r)
		}
		break
	}
	return out, nil
}

// lockRecord locks or creates the (member, period) record with a fresh snapshot of the member.
func (a Aggregator) lockRecord(ctx context.Context, tx repository.Tx, m *domain.Member, p domain.Period) (*domain.HistoryRecord, error) {
	seed := domain.NewHistoryRecord(m, p)
	h, created, err := tx.LockHistory(ctx, seed)
	if err != nil {
		return nil, err
	}
	h.Snapshot(m)
	h.ManagerCode, h.DistributorCode = a.codes(ctx, tx, m)
	if created && m.Genealogy.IsManagerLevel() {
		prev, err := tx.ListHistory(ctx, repository.HistoryFilter{MemberID: &m.ID, Before: &p, Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(prev) > 0 {
			h.TeamPromoted = prev[0].TeamPromoted
		}
	}
	return h, nil
}

func (a Aggregator) codes(ctx context.Context, tx repository.Tx, m *domain.Member) (manager, distributor string) {
	if m.ManagerID != nil {
		if mg, err := tx.GetMember(ctx, *m.ManagerID); err == nil {
			manager = mg.Code
		}
	}
	if m.RelatedDistributorID != nil {
		if d, err := tx.GetMember(ctx, *m.RelatedDistributorID); err == nil {
			distributor = d.Code
		}
	}
	return manager, distributor
}

func (a Aggregator) recordFirstSale(ctx context.Context, tx repository.Tx, m *domain.Member, p domain.Period) error {
	changed := false
	if m.FirstSaleDate == nil {
		m.FirstSaleDate = timePtr(p.Start())
		changed = true
	}
	if !m.HasSale {
		m.HasSale = true
		changed = true
	}
	if m.Genealogy == domain.GenealogyPotentialConsultant {
		prev := m.Genealogy
		m.PreviousGenealogy = &prev
		m.Genealogy = domain.GenealogyConsultant
		changed = true
	}
	if !changed {
		return nil
	}
	return tx.UpdateMember(ctx, m)
}

func (a Aggregator) evaluate(ctx context.Context, tx repository.Tx, ids map[int64]bool, p domain.Period) error {
	for _, id := range slices.Sorted(maps.Keys(ids)) {
		if _, err := a.Evaluator.Evaluate(ctx, tx, id, p); err != nil {
			return err
		}
	}
	return nil
}

func (a Aggregator) sale(sheet *domain.CaptureSheet, line domain.CaptureLine) (domain.SaleNotification, bool) {
	if line.SubTotal().IsZero() {
		return domain.SaleNotification{}, false
	}
	captured := nowOr(a.Now)
	if sheet.CapturedDate != nil {
		captured = *sheet.CapturedDate
	}
	return domain.SaleNotification{
		MemberID: line.ConsultantID,
		SheetID:  sheet.ID,
		Period:   sheet.Period,
		Amount:   line.SubTotal(),
		Captured: captured,
	}, true
}

func warnIntegrity(ctx context.Context, logger *slog.Logger, w domain.IntegrityWarning) {
	metrics.IntegrityWarnings.WithLabelValues(w.Relation).Inc()
	if logger != nil {
		logger.WarnContext(ctx, "hierarchy integrity", "member_id", w.MemberID, "relation", w.Relation, "ref_id", w.RefID, "reason", w.Reason)
	}
}

func sortedIDs(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func sameIDs(a, b []int64) bool {
	return slices.Equal(sortedIDs(a), sortedIDs(b))
}
