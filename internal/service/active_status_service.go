package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"payin-backend/internal/domain"
	"payin-backend/internal/metrics"
	"payin-backend/internal/repository"
)

// recentSalesMonths is how many selling months feed four_months_sales.
const recentSalesMonths = 4

// ActiveStatusService recomputes activity buckets from sales history.
type ActiveStatusService struct {
	Store  repository.Store
	Logger *slog.Logger
}

type ActiveStatusReport struct {
	Period   domain.Period
	Examined int
	Updated  int
}

// Run examines every member whose last sale is unknown or older than the period.
// Running it twice for the same period changes nothing the second time.
func (s ActiveStatusService) Run(ctx context.Context, p domain.Period) (ActiveStatusReport, error) {
	report := ActiveStatusReport{Period: p}
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		cutoff := p.Start()
		members, err := tx.ListMembers(ctx, repository.MemberFilter{LastSaleBefore: &cutoff, Limit: batchLimit})
		if err != nil {
			return err
		}
		for i := range members {
			m := &members[i]
			report.Examined++
			records, err := tx.ListHistory(ctx, repository.HistoryFilter{
				MemberID:        &m.ID,
				UpTo:            &p,
				PersonalNonZero: true,
				Limit:           recentSalesMonths,
			})
			if err != nil {
				return err
			}
			if len(records) == 0 {
				continue
			}
			if applySales(m, records, p) {
				if err := tx.UpdateMember(ctx, m); err != nil {
					return err
				}
				report.Updated++
				metrics.ActiveStatusUpdates.WithLabelValues(string(m.ActiveStatus)).Inc()
			}
			if err := tx.UpsertStatusAudit(ctx, &domain.StatusAudit{
				MemberID:            m.ID,
				Period:              p,
				ActiveStatus:        m.ActiveStatus,
				Genealogy:           m.Genealogy,
				MonthsSinceLastSale: m.MonthsSinceLastSale,
				LastSaleDate:        m.LastSaleDate,
				FourMonthsSales:     m.FourMonthsSales,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil && s.Logger != nil {
		s.Logger.InfoContext(ctx, "active status updated", "period", p.String(), "examined", report.Examined, "updated", report.Updated)
	}
	return report, err
}

func (s ActiveStatusService) Audits(ctx context.Context, memberID int64, limit int) ([]domain.StatusAudit, error) {
	var out []domain.StatusAudit
	err := s.Store.Read(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.ListStatusAudits(ctx, memberID, limit)
		return err
	})
	return out, err
}

// applySales folds the newest selling months (newest first) into m and reports whether m changed.
func applySales(m *domain.Member, records []domain.HistoryRecord, p domain.Period) bool {
	before := *m
	latest := records[0].Period
	gap := domain.MonthsBetween(latest, p)
	lastSale := latest.Start()

	if m.LastSaleDate == nil || !m.LastSaleDate.Equal(lastSale) {
		m.PreviousLastSaleDate = m.LastSaleDate
		m.LastSaleDate = &lastSale
	}
	m.MonthsSinceLastSale = gap
	m.MostRecentMonthsSales = len(records)
	sum := decimal.Zero
	for _, r := range records {
		sum = sum.Add(r.PersonalSales())
	}
	m.FourMonthsSales = sum
	m.SoldPreviousMonth = gap == 0
	if m.FirstSaleDate == nil {
		first := records[len(records)-1].Period.Start()
		m.FirstSaleDate = &first
	}
	m.HasSale = true
	if !m.ActiveStatus.Frozen() {
		m.ActiveStatus = domain.StatusForGap(gap)
	}
	if m.Genealogy == domain.GenealogyPotentialConsultant {
		prev := m.Genealogy
		m.PreviousGenealogy = &prev
		m.Genealogy = domain.GenealogyConsultant
	}
	return !sameMemberActivity(before, *m)
}

func sameMemberActivity(a, b domain.Member) bool {
	return timeEq(a.LastSaleDate, b.LastSaleDate) &&
		timeEq(a.FirstSaleDate, b.FirstSaleDate) &&
		a.MonthsSinceLastSale == b.MonthsSinceLastSale &&
		a.MostRecentMonthsSales == b.MostRecentMonthsSales &&
		a.FourMonthsSales.Equal(b.FourMonthsSales) &&
		a.SoldPreviousMonth == b.SoldPreviousMonth &&
		a.HasSale == b.HasSale &&
		a.ActiveStatus == b.ActiveStatus &&
		a.Genealogy == b.Genealogy
}

func timeEq(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
