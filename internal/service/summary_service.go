package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"payin-backend/internal/domain"
	"payin-backend/internal/metrics"
	"payin-backend/internal/repository"
)

// SummaryService runs the distributor summary lifecycle.
type SummaryService struct {
	Store  repository.Store
	Logger *slog.Logger
	Now    func() time.Time
}

// EnsureSummary returns the distributor's summary for the period, adding a line for
// every manager sheet of the distributor that is not on it yet.
func (s SummaryService) EnsureSummary(ctx context.Context, distributorID int64, p domain.Period) (*domain.DistributorSummary, error) {
	var out *domain.DistributorSummary
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		summary, err := tx.FindSummary(ctx, distributorID, p)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			distributor, err := getRef(ctx, tx, "distributor summary", 0, "distributor_id", distributorID)
			if err != nil {
				return err
			}
			if !distributor.Genealogy.IsDistributor() {
				return domain.Invalid("distributor summary", 0, "distributor_id", fmt.Sprintf("member %d is a %s, not a distributor", distributor.ID, distributor.Genealogy.Label()))
			}
			summary = &domain.DistributorSummary{
				Name:          domain.SummaryName(p, distributor.Name, distributor.Code),
				DistributorID: distributor.ID,
				Period:        p,
				State:         domain.StateNew,
			}
			if err := tx.CreateSummary(ctx, summary); err != nil {
				return err
			}
		case err != nil:
			return err
		}

		sheets, err := tx.ListSheets(ctx, repository.SheetFilter{DistributorID: &distributorID, Period: &p, Limit: batchLimit})
		if err != nil {
			return err
		}
		onSummary := map[int64]bool{}
		for _, l := range summary.Lines {
			onSummary[l.ManagerID] = true
		}
		for _, sheet := range sheets {
			if onSummary[sheet.ManagerID] {
				continue
			}
			sheetID := sheet.ID
			line := domain.DistributorLine{SummaryID: summary.ID, ManagerID: sheet.ManagerID, SheetID: &sheetID, ActualSales: decimal.Zero}
			if err := tx.SaveSummaryLine(ctx, &line); err != nil {
				return err
			}
		}
		out, err = tx.GetSummary(ctx, summary.ID, false)
		return err
	})
	return out, err
}

func (s SummaryService) Get(ctx context.Context, id int64) (*domain.DistributorSummary, error) {
	var out *domain.DistributorSummary
	err := s.Store.Read(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.GetSummary(ctx, id, false)
		return err
	})
	return out, err
}

func (s SummaryService) List(ctx context.Context, f repository.SummaryFilter) ([]domain.DistributorSummary, error) {
	var out []domain.DistributorSummary
	err := s.Store.Read(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.ListSummaries(ctx, f)
		return err
	})
	return out, err
}

func (s SummaryService) Register(ctx context.Context, id int64) (*domain.DistributorSummary, error) {
	return s.transition(ctx, id, domain.StateRegistered, "", func(ctx context.Context, tx repository.Tx, sum *domain.DistributorSummary, now time.Time) error {
		sum.RegisteredDate = &now
		return nil
	})
}

func (s SummaryService) Capture(ctx context.Context, id int64, actor string) (*domain.DistributorSummary, error) {
	return s.transition(ctx, id, domain.StateCaptured, actor, func(ctx context.Context, tx repository.Tx, sum *domain.DistributorSummary, now time.Time) error {
		sum.CapturedBy = actor
		sum.CapturedDate = &now
		t := sum.Timer()
		t.Stop(now)
		sum.SetTimer(t)
		return nil
	})
}

// Verify requires every manager sheet of the distributor for the period to be captured.
func (s SummaryService) Verify(ctx context.Context, id int64, actor string) (*domain.DistributorSummary, error) {
	return s.transition(ctx, id, domain.StateVerified, actor, func(ctx context.Context, tx repository.Tx, sum *domain.DistributorSummary, now time.Time) error {
		sheets, err := tx.ListSheets(ctx, repository.SheetFilter{DistributorID: &sum.DistributorID, Period: &sum.Period, Limit: batchLimit})
		if err != nil {
			return err
		}
		for _, sheet := range sheets {
			if !sheet.State.Aggregated() {
				return domain.Precondition("distributor summary", sum.ID, "capture sheet %d (%s) is still %s", sheet.ID, sheet.Name, sheet.State)
			}
		}
		sum.VerifiedDate = &now
		e := newEvent(domain.EventSummaryVerified, "distributor_summary", sum.ID, actor, sum.Name+" verified", now)
		e.NewTotal = &sum.Totals.TotalCaptured
		e.Payload = map[string]any{"sheets": len(sheets), "sales_difference": sum.Totals.SalesDifference.String()}
		return tx.AppendEvent(ctx, e)
	})
}

func (s SummaryService) transition(ctx context.Context, id int64, to domain.SheetState, actor string,
	mutate func(context.Context, repository.Tx, *domain.DistributorSummary, time.Time) error) (*domain.DistributorSummary, error) {
	var out *domain.DistributorSummary
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		sum, err := tx.GetSummary(ctx, id, true)
		if err != nil {
			return err
		}
		if !sum.State.CanAdvance(to) {
			return domain.Precondition("distributor summary", id, "cannot move from %s to %s", sum.State, to)
		}
		if err := mutate(ctx, tx, sum, nowOr(s.Now)); err != nil {
			return err
		}
		sum.State = to
		if err := tx.UpdateSummary(ctx, sum); err != nil {
			return err
		}
		out = sum
		return nil
	})
	if err == nil {
		metrics.SheetTransitions.WithLabelValues("summary", string(to)).Inc()
		if s.Logger != nil {
			s.Logger.InfoContext(ctx, "distributor summary transition", "summary_id", id, "state", to, "actor", actor)
		}
	}
	return out, err
}

// SetActualSales records what the distributor reports for one manager.
func (s SummaryService) SetActualSales(ctx context.Context, summaryID, lineID int64, actual decimal.Decimal, comment string) (*domain.DistributorSummary, error) {
	if actual.IsNegative() {
		return nil, domain.Invalid("distributor line", lineID, "actual_sales", fmt.Sprintf("must not be negative (got %s)", actual.String()))
	}
	var out *domain.DistributorSummary
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		sum, err := tx.GetSummary(ctx, summaryID, true)
		if err != nil {
			return err
		}
		if sum.State == domain.StateVerified || sum.IsLocked {
			return domain.Precondition("distributor summary", summaryID, "summary is %s and cannot be edited", lockedOr(sum.IsLocked, sum.State))
		}
		line, ok := sum.Line(lineID)
		if !ok {
			return fmt.Errorf("distributor line %d on summary %d: %w", lineID, summaryID, repository.ErrNotFound)
		}
		line.ActualSales = actual
		line.Comment = comment
		if err := tx.SaveSummaryLine(ctx, line); err != nil {
			return err
		}
		sum.Recompute()
		out = sum
		return nil
	})
	return out, err
}

func (s SummaryService) Timer(ctx context.Context, id int64, action TimerAction) (*domain.DistributorSummary, error) {
	var out *domain.DistributorSummary
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		sum, err := tx.GetSummary(ctx, id, true)
		if err != nil {
			return err
		}
		if sum.State == domain.StateVerified {
			return domain.Precondition("distributor summary", id, "summary is verified")
		}
		t := sum.Timer()
		if err := runTimer(&t, action, nowOr(s.Now), "distributor summary", id); err != nil {
			return err
		}
		sum.SetTimer(t)
		if err := tx.UpdateSummary(ctx, sum); err != nil {
			return err
		}
		out = sum
		return nil
	})
	return out, err
}

func (s SummaryService) Pages(ctx context.Context, id int64) ([]domain.PageTotal, error) {
	sum, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return domain.SummaryPages(sum.Lines), nil
}

func lockedOr(locked bool, state domain.SheetState) string {
	if locked {
		return "locked"
	}
	return string(state)
}
