package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"payin-backend/internal/domain"
)

type SheetRepository struct {
	q pgxQuerier
}

const sheetColumns = `
	id, name, manager_id, distributor_id, period, state, registered_date, captured_by, captured_date,
	verified_date, is_locked, is_no_sales, capture_start_date, timer_start, timer_pause, timer_running,
	capture_time, created_at, updated_at`

func scanSheet(row pgx.Row) (*domain.CaptureSheet, error) {
	var s domain.CaptureSheet
	var period time.Time
	var state string
	err := row.Scan(&s.ID, &s.Name, &s.ManagerID, &s.DistributorID, &period, &state, &s.RegisteredDate,
		&s.CapturedBy, &s.CapturedDate, &s.VerifiedDate, &s.IsLocked, &s.IsNoSales, &s.CaptureStartDate,
		&s.TimerStart, &s.TimerPause, &s.TimerRunning, &s.CaptureTime, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Period = periodOf(period)
	s.State = domain.SheetState(state)
	return &s, nil
}

func (r SheetRepository) GetSheet(ctx context.Context, id int64, forUpdate bool) (*domain.CaptureSheet, error) {
	query := `SELECT ` + sheetColumns + ` FROM capture_sheets WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	s, err := scanSheet(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := r.loadLines(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r SheetRepository) FindSheet(ctx context.Context, managerID int64, p domain.Period) (*domain.CaptureSheet, error) {
	s, err := scanSheet(r.q.QueryRow(ctx, `SELECT `+sheetColumns+` FROM capture_sheets WHERE manager_id=$1 AND period=$2`,
		managerID, p.Start()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := r.loadLines(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r SheetRepository) loadLines(ctx context.Context, s *domain.CaptureSheet) error {
	rows, err := r.q.Query(ctx, `
		SELECT id, sheet_id, consultant_id, bb_sales, bb_returns, puer_sales, puer_returns, comment,
			aggregated_consultant_id, aggregated_ancestor_ids, aggregated_bb, aggregated_puer, aggregated_active, updated_at
		FROM capture_lines
		WHERE sheet_id=$1
		ORDER BY id ASC
	`, s.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	s.Lines = nil
	for rows.Next() {
		var l domain.CaptureLine
		if err := rows.Scan(&l.ID, &l.SheetID, &l.ConsultantID, &l.BBSales, &l.BBReturns, &l.PuerSales, &l.PuerReturns,
			&l.Comment, &l.AggregatedConsultantID, &l.AggregatedAncestorIDs, &l.AggregatedBB, &l.AggregatedPuer, &l.AggregatedActive, &l.UpdatedAt); err != nil {
			return err
		}
		s.Lines = append(s.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	s.Recompute()
	return nil
}

// ListSheets returns sheet headers with their totals.
func (r SheetRepository) ListSheets(ctx context.Context, f SheetFilter) ([]domain.CaptureSheet, error) {
	var a args
	where := []string{"TRUE"}
	if f.ManagerID != nil {
		where = append(where, "manager_id = "+a.add(*f.ManagerID))
	}
	if f.DistributorID != nil {
		where = append(where, "distributor_id = "+a.add(*f.DistributorID))
	}
	if f.Period != nil {
		where = append(where, "period = "+a.add(f.Period.Start()))
	}
	if f.State != nil {
		where = append(where, "state = "+a.add(string(*f.State)))
	}
	limit := a.add(limitOr(f.Limit, 500))
	rows, err := r.q.Query(ctx, `SELECT `+sheetColumns+` FROM capture_sheets WHERE `+strings.Join(where, " AND ")+
		` ORDER BY period DESC, id ASC LIMIT `+limit, a...)
	if err != nil {
		return nil, err
	}
	var items []domain.CaptureSheet
	for rows.Next() {
		s, err := scanSheet(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, *s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range items {
		if err := r.loadLines(ctx, &items[i]); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (r SheetRepository) CreateSheet(ctx context.Context, s *domain.CaptureSheet) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO capture_sheets (name, manager_id, distributor_id, period, state, is_locked, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6, now(), now())
		RETURNING id, created_at, updated_at
	`, s.Name, s.ManagerID, s.DistributorID, s.Period.Start(), string(s.State), s.IsLocked).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return err
	}
	for i := range s.Lines {
		s.Lines[i].SheetID = s.ID
		if err := r.SaveLine(ctx, &s.Lines[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r SheetRepository) UpdateSheet(ctx context.Context, s *domain.CaptureSheet) error {
	err := r.q.QueryRow(ctx, `
		UPDATE capture_sheets
		SET name=$1, distributor_id=$2, state=$3, registered_date=$4, captured_by=$5, captured_date=$6,
			verified_date=$7, is_locked=$8, is_no_sales=$9, capture_start_date=$10, timer_start=$11,
			timer_pause=$12, timer_running=$13, capture_time=$14, updated_at=now()
		WHERE id=$15
		RETURNING updated_at
	`, s.Name, s.DistributorID, string(s.State), s.RegisteredDate, s.CapturedBy, s.CapturedDate, s.VerifiedDate,
		s.IsLocked, s.IsNoSales, s.CaptureStartDate, s.TimerStart, s.TimerPause, s.TimerRunning, s.CaptureTime,
		s.ID).Scan(&s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r SheetRepository) DeleteSheet(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM capture_sheets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveLine inserts a new line (ID == 0) or overwrites an existing one.
func (r SheetRepository) SaveLine(ctx context.Context, l *domain.CaptureLine) error {
	if l.ID == 0 {
		return r.q.QueryRow(ctx, `
			INSERT INTO capture_lines (sheet_id, consultant_id, bb_sales, bb_returns, puer_sales, puer_returns, comment,
				aggregated_consultant_id, aggregated_ancestor_ids, aggregated_bb, aggregated_puer, aggregated_active, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12, now())
			RETURNING id, updated_at
		`, l.SheetID, l.ConsultantID, l.BBSales, l.BBReturns, l.PuerSales, l.PuerReturns, l.Comment,
			l.AggregatedConsultantID, ancestorIDs(l), l.AggregatedBB, l.AggregatedPuer, l.AggregatedActive).Scan(&l.ID, &l.UpdatedAt)
	}
	err := r.q.QueryRow(ctx, `
		UPDATE capture_lines
		SET consultant_id=$1, bb_sales=$2, bb_returns=$3, puer_sales=$4, puer_returns=$5, comment=$6,
			aggregated_consultant_id=$7, aggregated_ancestor_ids=$8, aggregated_bb=$9, aggregated_puer=$10,
			aggregated_active=$11, updated_at=now()
		WHERE id=$12 AND sheet_id=$13
		RETURNING updated_at
	`, l.ConsultantID, l.BBSales, l.BBReturns, l.PuerSales, l.PuerReturns, l.Comment, l.AggregatedConsultantID,
		ancestorIDs(l), l.AggregatedBB, l.AggregatedPuer, l.AggregatedActive, l.ID, l.SheetID).Scan(&l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// ancestorIDs keeps the column NOT NULL; a nil slice would be sent as NULL.
func ancestorIDs(l *domain.CaptureLine) []int64 {
	if l.AggregatedAncestorIDs == nil {
		return []int64{}
	}
	return l.AggregatedAncestorIDs
}

func (r SheetRepository) DeleteLine(ctx context.Context, sheetID, lineID int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM capture_lines WHERE id=$1 AND sheet_id=$2`, lineID, sheetID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
