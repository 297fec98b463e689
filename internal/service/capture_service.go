package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"payin-backend/internal/domain"
	"payin-backend/internal/metrics"
	"payin-backend/internal/repository"
)

// CaptureService runs the capture sheet lifecycle.
type CaptureService struct {
	Store      repository.Store
	Aggregator Aggregator
	Notifier   Notifier
	Locker     Locker
	Logger     *slog.Logger
	Now        func() time.Time
}

type LineInput struct {
	ID           int64
	ConsultantID int64
	BBSales      decimal.Decimal
	BBReturns    decimal.Decimal
	PuerSales    decimal.Decimal
	PuerReturns  decimal.Decimal
	Comment      string
}

func (in LineInput) apply(l *domain.CaptureLine) {
	l.ConsultantID = in.ConsultantID
	l.BBSales, l.BBReturns = in.BBSales, in.BBReturns
	l.PuerSales, l.PuerReturns = in.PuerSales, in.PuerReturns
	l.Comment = in.Comment
}

// inactiveForSheets are left off freshly prepared sheets.
var inactiveForSheets = map[domain.ActiveStatus]bool{
	domain.StatusInactive18:  true,
	domain.StatusSuspended:   true,
	domain.StatusBlacklisted: true,
}

// EnsureSheet returns the manager's sheet for the period, creating it with one empty
// line per active consultant placed under the manager.
func (s CaptureService) EnsureSheet(ctx context.Context, managerID int64, p domain.Period) (*domain.CaptureSheet, error) {
	var out *domain.CaptureSheet
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		existing, err := tx.FindSheet(ctx, managerID, p)
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		manager, err := getRef(ctx, tx, "capture sheet", 0, "manager_id", managerID)
		if err != nil {
			return err
		}
		if !manager.Genealogy.IsManagerLevel() && !manager.Genealogy.IsDistributor() {
			return domain.Invalid("capture sheet", 0, "manager_id", fmt.Sprintf("member %d is a %s, not a manager", manager.ID, manager.Genealogy.Label()))
		}
		distributorID, err := domain.ResolveDistributor(manager, memberLookup(ctx, tx))
		if err != nil {
			var w domain.IntegrityWarning
			if !errors.As(err, &w) {
				return err
			}
			warnIntegrity(ctx, s.Logger, w)
		}
		downline, err := tx.ListMembers(ctx, repository.MemberFilter{
			ManagerID: &manager.ID,
			Genealogies: []domain.Genealogy{
				domain.GenealogyPotentialConsultant, domain.GenealogyConsultant, domain.GenealogyProspectiveManager,
			},
			Limit: batchLimit,
		})
		if err != nil {
			return err
		}
		sheet := &domain.CaptureSheet{
			Name:          domain.SheetName(p, manager.Name, manager.Code),
			ManagerID:     manager.ID,
			DistributorID: distributorID,
			Period:        p,
			State:         domain.StateNew,
		}
		for _, c := range downline {
			if inactiveForSheets[c.ActiveStatus] {
				continue
			}
			sheet.Lines = append(sheet.Lines, domain.CaptureLine{ConsultantID: c.ID})
		}
		if err := tx.CreateSheet(ctx, sheet); err != nil {
			return err
		}
		sheet.Recompute()
		out = sheet
		return nil
	})
	return out, err
}

func (s CaptureService) Get(ctx context.Context, id int64) (*domain.CaptureSheet, error) {
	var out *domain.CaptureSheet
	err := s.Store.Read(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.GetSheet(ctx, id, false)
		return err
	})
	return out, err
}

func (s CaptureService) List(ctx context.Context, f repository.SheetFilter) ([]domain.CaptureSheet, error) {
	var out []domain.CaptureSheet
	err := s.Store.Read(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.ListSheets(ctx, f)
		return err
	})
	return out, err
}

// Open returns the sheet for editing; a sheet still in new cannot be edited.
func (s CaptureService) Open(ctx context.Context, id int64) (*domain.CaptureSheet, error) {
	sheet, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sheet.State == domain.StateNew {
		return nil, domain.Precondition("capture sheet", id, "register the sheet before opening it")
	}
	return sheet, nil
}

func (s CaptureService) Register(ctx context.Context, id int64) (*domain.CaptureSheet, error) {
	return s.transition(ctx, id, domain.StateRegistered, "", func(sheet *domain.CaptureSheet, now time.Time) {
		sheet.RegisteredDate = &now
	})
}

func (s CaptureService) Verify(ctx context.Context, id int64, actor string) (*domain.CaptureSheet, error) {
	return s.transition(ctx, id, domain.StateVerified, actor, func(sheet *domain.CaptureSheet, now time.Time) {
		sheet.VerifiedDate = &now
	})
}

func (s CaptureService) transition(ctx context.Context, id int64, to domain.SheetState, actor string, mutate func(*domain.CaptureSheet, time.Time)) (*domain.CaptureSheet, error) {
	var out *domain.CaptureSheet
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		sheet, err := tx.GetSheet(ctx, id, true)
		if err != nil {
			return err
		}
		if !sheet.State.CanAdvance(to) {
			return domain.Precondition("capture sheet", id, "cannot move from %s to %s", sheet.State, to)
		}
		sheet.State = to
		mutate(sheet, nowOr(s.Now))
		if err := tx.UpdateSheet(ctx, sheet); err != nil {
			return err
		}
		if to == domain.StateVerified {
			e := newEvent(domain.EventSheetVerified, "capture_sheet", sheet.ID, actor, sheet.Name+" verified", nowOr(s.Now))
			if err := tx.AppendEvent(ctx, e); err != nil {
				return err
			}
		}
		out = sheet
		return nil
	})
	if err == nil {
		metrics.SheetTransitions.WithLabelValues("sheet", string(to)).Inc()
	}
	return out, err
}

// Capture closes data entry and aggregates the sheet into history. A sheet without any
// figures needs confirmNoSales.
func (s CaptureService) Capture(ctx context.Context, id int64, actor string, confirmNoSales bool) (*domain.CaptureSheet, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *domain.CaptureSheet
	var sales []domain.SaleNotification
	err = s.Store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		sheet, err := tx.GetSheet(ctx, id, true)
		if err != nil {
			return err
		}
		if !sheet.State.CanAdvance(domain.StateCaptured) {
			return domain.Precondition("capture sheet", id, "cannot move from %s to %s", sheet.State, domain.StateCaptured)
		}
		hasEntries := false
		for _, l := range sheet.Lines {
			if err := l.Validate(); err != nil {
				return err
			}
			if err := s.checkDownline(ctx, tx, sheet, l.ConsultantID, l.ID); err != nil {
				return err
			}
			hasEntries = hasEntries || l.HasEntry()
		}
		if !hasEntries && !confirmNoSales {
			return domain.Precondition("capture sheet", id, "no figures were captured; confirm no sales to continue")
		}

		now := nowOr(s.Now)
		sheet.State = domain.StateCaptured
		sheet.IsNoSales = !hasEntries
		sheet.CapturedBy = actor
		sheet.CapturedDate = &now
		timer := sheet.Timer()
		timer.Stop(now)
		sheet.SetTimer(timer)
		if err := tx.UpdateSheet(ctx, sheet); err != nil {
			return err
		}
		if err := s.logCaptureTime(ctx, tx, sheet, actor); err != nil {
			return err
		}
		sales, err = s.Aggregator.AggregateSheet(ctx, tx, sheet)
		if err != nil {
			return err
		}
		sheet.Recompute()
		e := newEvent(domain.EventSheetCaptured, "capture_sheet", sheet.ID, actor, sheet.Name+" captured", now)
		e.NewTotal = &sheet.Totals.SubTotal
		e.Payload = map[string]any{"no_sales": sheet.IsNoSales, "consultants_sales": sheet.Totals.ConsultantsSales}
		if err := tx.AppendEvent(ctx, e); err != nil {
			return err
		}
		out = sheet
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.SheetTransitions.WithLabelValues("sheet", string(domain.StateCaptured)).Inc()
	s.notify(ctx, sales)
	return out, nil
}

// SetLocked toggles the edit lock; it does not change the state.
func (s CaptureService) SetLocked(ctx context.Context, id int64, locked bool) (*domain.CaptureSheet, error) {
	var out *domain.CaptureSheet
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		sheet, err := tx.GetSheet(ctx, id, true)
		if err != nil {
			return err
		}
		sheet.IsLocked = locked
		if err := tx.UpdateSheet(ctx, sheet); err != nil {
			return err
		}
		out = sheet
		return nil
	})
	return out, err
}

// UpsertLine adds or edits a line. Edits after capture flow straight into history.
func (s CaptureService) UpsertLine(ctx context.Context, sheetID int64, in LineInput, actor string) (*domain.CaptureSheet, error) {
	unlock, err := s.lock(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *domain.CaptureSheet
	var sales []domain.SaleNotification
	err = s.Store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		sheet, err := s.editable(ctx, tx, sheetID)
		if err != nil {
			return err
		}
		line := &domain.CaptureLine{SheetID: sheet.ID}
		if in.ID != 0 {
			existing, ok := sheet.Line(in.ID)
			if !ok {
				return fmt.Errorf("capture line %d on sheet %d: %w", in.ID, sheet.ID, repository.ErrNotFound)
			}
			line = existing
		}
		in.apply(line)
		if err := line.Validate(); err != nil {
			return err
		}
		for _, other := range sheet.Lines {
			if other.ID != line.ID && other.ConsultantID == line.ConsultantID {
				return domain.Invalid("capture line", line.ID, "consultant_id", fmt.Sprintf("member %d already has line %d on sheet %d", line.ConsultantID, other.ID, sheet.ID))
			}
		}
		if err := s.checkDownline(ctx, tx, sheet, line.ConsultantID, line.ID); err != nil {
			return err
		}
		oldTotal := sheet.Totals.SubTotal
		if err := tx.SaveLine(ctx, line); err != nil {
			return err
		}
		if in.ID == 0 {
			sheet.Lines = append(sheet.Lines, *line)
		}
		sheet.Recompute()

		if sheet.State.Aggregated() {
			sales, err = s.Aggregator.AggregateLine(ctx, tx, sheet, line)
			if err != nil {
				return err
			}
			if err := s.recordEdit(ctx, tx, sheet, oldTotal, actor, fmt.Sprintf("line %d for member %d saved", line.ID, line.ConsultantID)); err != nil {
				return err
			}
		}
		out = sheet
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, sales)
	return out, nil
}

func (s CaptureService) DeleteLine(ctx context.Context, sheetID, lineID int64, actor string) (*domain.CaptureSheet, error) {
	unlock, err := s.lock(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *domain.CaptureSheet
	err = s.Store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		sheet, err := s.editable(ctx, tx, sheetID)
		if err != nil {
			return err
		}
		line, ok := sheet.Line(lineID)
		if !ok {
			return fmt.Errorf("capture line %d on sheet %d: %w", lineID, sheetID, repository.ErrNotFound)
		}
		oldTotal := sheet.Totals.SubTotal
		if err := s.Aggregator.Withdraw(ctx, tx, sheet, line); err != nil {
			return err
		}
		if err := tx.DeleteLine(ctx, sheetID, lineID); err != nil {
			return err
		}
		kept := sheet.Lines[:0]
		for _, l := range sheet.Lines {
			if l.ID != lineID {
				kept = append(kept, l)
			}
		}
		sheet.Lines = kept
		sheet.Recompute()
		if sheet.State.Aggregated() {
			if err := s.recordEdit(ctx, tx, sheet, oldTotal, actor, fmt.Sprintf("line %d removed", lineID)); err != nil {
				return err
			}
		}
		out = sheet
		return nil
	})
	return out, err
}

// ImportLines applies figures for consultants by id, adding lines for consultants not yet on the sheet.
func (s CaptureService) ImportLines(ctx context.Context, sheetID int64, rows []LineInput, actor string) (*domain.CaptureSheet, error) {
	sheet, err := s.Get(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	byConsultant := map[int64]int64{}
	for _, l := range sheet.Lines {
		byConsultant[l.ConsultantID] = l.ID
	}
	out := sheet
	for _, row := range rows {
		row.ID = byConsultant[row.ConsultantID]
		out, err = s.UpsertLine(ctx, sheetID, row, actor)
		if err != nil {
			return nil, err
		}
		if row.ID == 0 {
			for _, l := range out.Lines {
				if l.ConsultantID == row.ConsultantID {
					byConsultant[row.ConsultantID] = l.ID
				}
			}
		}
	}
	return out, nil
}

// DeleteSheet removes a sheet that was never registered.
func (s CaptureService) DeleteSheet(ctx context.Context, id int64) error {
	return s.Store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		sheet, err := tx.GetSheet(ctx, id, true)
		if err != nil {
			return err
		}
		if sheet.State != domain.StateNew {
			return domain.Precondition("capture sheet", id, "only a new sheet can be deleted (state is %s)", sheet.State)
		}
		return tx.DeleteSheet(ctx, id)
	})
}

type TimerAction string

const (
	TimerStart  TimerAction = "start"
	TimerPause  TimerAction = "pause"
	TimerResume TimerAction = "resume"
	TimerStop   TimerAction = "stop"
)

// Timer drives the capture stopwatch. The first stop after capture logs the time spent.
func (s CaptureService) Timer(ctx context.Context, id int64, action TimerAction, actor string) (*domain.CaptureSheet, error) {
	var out *domain.CaptureSheet
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		sheet, err := tx.GetSheet(ctx, id, true)
		if err != nil {
			return err
		}
		if sheet.State == domain.StateVerified {
			return domain.Precondition("capture sheet", id, "sheet is verified")
		}
		t := sheet.Timer()
		if err := runTimer(&t, action, nowOr(s.Now), "capture sheet", id); err != nil {
			return err
		}
		sheet.SetTimer(t)
		if err := tx.UpdateSheet(ctx, sheet); err != nil {
			return err
		}
		if action == TimerStop && sheet.State.Aggregated() {
			if err := s.logCaptureTime(ctx, tx, sheet, actor); err != nil {
				return err
			}
		}
		out = sheet
		return nil
	})
	return out, err
}

func runTimer(t *domain.Timer, action TimerAction, now time.Time, entity string, id int64) error {
	switch action {
	case TimerStart:
		t.Begin(now)
	case TimerPause:
		t.Halt(now)
	case TimerResume:
		if !t.Resume(now) {
			return domain.Precondition(entity, id, "timer is not paused")
		}
	case TimerStop:
		t.Stop(now)
	default:
		return domain.Invalid(entity, id, "action", fmt.Sprintf("unknown timer action %q", action))
	}
	return nil
}

// Pages returns per-page totals of the printed sheet.
func (s CaptureService) Pages(ctx context.Context, id int64) ([]domain.PageTotal, error) {
	sheet, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return domain.SheetPages(sheet.Lines), nil
}

func (s CaptureService) editable(ctx context.Context, tx repository.Tx, id int64) (*domain.CaptureSheet, error) {
	sheet, err := tx.GetSheet(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if sheet.State == domain.StateNew {
		return nil, domain.Precondition("capture sheet", id, "register the sheet before entering lines")
	}
	if sheet.IsLocked {
		return nil, domain.Precondition("capture sheet", id, "sheet is locked")
	}
	return sheet, nil
}

// checkDownline requires the consultant to be the sheet's manager or to sit under it.
func (s CaptureService) checkDownline(ctx context.Context, tx repository.Tx, sheet *domain.CaptureSheet, consultantID, lineID int64) error {
	c, err := getRef(ctx, tx, "capture line", lineID, "consultant_id", consultantID)
	if err != nil {
		return err
	}
	if c.ID == sheet.ManagerID {
		return nil
	}
	lookup := memberLookup(ctx, tx)
	cur := c
	for depth := 0; depth < domain.MaxHierarchyDepth && cur.ManagerID != nil; depth++ {
		if *cur.ManagerID == sheet.ManagerID {
			return nil
		}
		next, ok, err := lookup(*cur.ManagerID)
		if err != nil {
			return err
		}
		if !ok || next.Genealogy.IsDistributor() {
			break
		}
		cur = next
	}
	return domain.Invalid("capture line", lineID, "consultant_id",
		fmt.Sprintf("member %d is not in the downline of manager %d on sheet %d", consultantID, sheet.ManagerID, sheet.ID))
}

func (s CaptureService) recordEdit(ctx context.Context, tx repository.Tx, sheet *domain.CaptureSheet, oldTotal decimal.Decimal, actor, message string) error {
	now := nowOr(s.Now)
	e := newEvent(domain.EventCaptureEdited, "capture_sheet", sheet.ID, actor, message, now)
	newTotal := sheet.Totals.SubTotal
	e.OldTotal, e.NewTotal = &oldTotal, &newTotal
	if sheet.CapturedDate != nil {
		elapsed := int64(now.Sub(*sheet.CapturedDate).Seconds())
		e.ElapsedSec = &elapsed
	}
	return tx.AppendEvent(ctx, e)
}

func (s CaptureService) logCaptureTime(ctx context.Context, tx repository.Tx, sheet *domain.CaptureSheet, actor string) error {
	logged, err := tx.HasCaptureTimeLog(ctx, sheet.ID)
	if err != nil || logged {
		return err
	}
	return tx.CreateCaptureTimeLog(ctx, &domain.CaptureTimeLog{
		SheetID:             sheet.ID,
		SheetName:           sheet.Name,
		Actor:               actor,
		CaptureStartDate:    sheet.CaptureStartDate,
		CaptureTime:         sheet.CaptureTime,
		ConsultantsCaptured: sheet.Totals.ConsultantsCaptured,
		ConsultantsSales:    sheet.Totals.ConsultantsSales,
	})
}

func (s CaptureService) lock(ctx context.Context, sheetID int64) (func(), error) {
	if s.Locker == nil {
		return func() {}, nil
	}
	return s.Locker.Lock(ctx, "sheet:"+strconv.FormatInt(sheetID, 10))
}

// notify runs after commit; a failure is logged and never undoes the capture.
func (s CaptureService) notify(ctx context.Context, sales []domain.SaleNotification) {
	if s.Notifier == nil || len(sales) == 0 {
		return
	}
	if err := s.Notifier.NotifySales(ctx, sales); err != nil && s.Logger != nil {
		s.Logger.ErrorContext(ctx, "notify sales", "count", len(sales), "err", err)
	}
}
