package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"payin-backend/internal/domain"
)

type SummaryRepository struct {
	q pgxQuerier
}

const summaryColumns = `
	id, name, distributor_id, period, state, registered_date, captured_by, captured_date, verified_date,
	is_locked, capture_start_date, timer_start, timer_pause, timer_running, capture_time, created_at, updated_at`

func scanSummary(row pgx.Row) (*domain.DistributorSummary, error) {
	var s domain.DistributorSummary
	var period time.Time
	var state string
	err := row.Scan(&s.ID, &s.Name, &s.DistributorID, &period, &state, &s.RegisteredDate, &s.CapturedBy,
		&s.CapturedDate, &s.VerifiedDate, &s.IsLocked, &s.CaptureStartDate, &s.TimerStart, &s.TimerPause,
		&s.TimerRunning, &s.CaptureTime, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Period = periodOf(period)
	s.State = domain.SheetState(state)
	return &s, nil
}

func (r SummaryRepository) GetSummary(ctx context.Context, id int64, forUpdate bool) (*domain.DistributorSummary, error) {
	query := `SELECT ` + summaryColumns + ` FROM distributor_summaries WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	s, err := scanSummary(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := r.loadSummaryLines(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r SummaryRepository) FindSummary(ctx context.Context, distributorID int64, p domain.Period) (*domain.DistributorSummary, error) {
	s, err := scanSummary(r.q.QueryRow(ctx, `SELECT `+summaryColumns+` FROM distributor_summaries WHERE distributor_id=$1 AND period=$2`,
		distributorID, p.Start()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := r.loadSummaryLines(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// loadSummaryLines fills total_captured from the linked sheet once it is captured.
func (r SummaryRepository) loadSummaryLines(ctx context.Context, s *domain.DistributorSummary) error {
	rows, err := r.q.Query(ctx, `
		SELECT dl.id, dl.summary_id, dl.manager_id, dl.sheet_id, dl.actual_sales, dl.comment, dl.updated_at,
			COALESCE((
				SELECT SUM(cl.bb_sales - abs(cl.bb_returns) + cl.puer_sales - abs(cl.puer_returns))
				FROM capture_lines cl
				JOIN capture_sheets cs ON cs.id = cl.sheet_id
				WHERE cs.id = dl.sheet_id AND cs.state IN ('captured','verified')
			), 0)
		FROM distributor_lines dl
		WHERE dl.summary_id=$1
		ORDER BY dl.id ASC
	`, s.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	s.Lines = nil
	for rows.Next() {
		var l domain.DistributorLine
		if err := rows.Scan(&l.ID, &l.SummaryID, &l.ManagerID, &l.SheetID, &l.ActualSales, &l.Comment, &l.UpdatedAt, &l.TotalCaptured); err != nil {
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

func (r SummaryRepository) ListSummaries(ctx context.Context, f SummaryFilter) ([]domain.DistributorSummary, error) {
	var a args
	where := []string{"TRUE"}
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
	rows, err := r.q.Query(ctx, `SELECT `+summaryColumns+` FROM distributor_summaries WHERE `+strings.Join(where, " AND ")+
		` ORDER BY period DESC, id ASC LIMIT `+limit, a...)
	if err != nil {
		return nil, err
	}
	var items []domain.DistributorSummary
	for rows.Next() {
		s, err := scanSummary(rows)
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
		if err := r.loadSummaryLines(ctx, &items[i]); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (r SummaryRepository) CreateSummary(ctx context.Context, s *domain.DistributorSummary) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO distributor_summaries (name, distributor_id, period, state, created_at, updated_at)
		VALUES ($1,$2,$3,$4, now(), now())
		RETURNING id, created_at, updated_at
	`, s.Name, s.DistributorID, s.Period.Start(), string(s.State)).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return err
	}
	for i := range s.Lines {
		s.Lines[i].SummaryID = s.ID
		if err := r.SaveSummaryLine(ctx, &s.Lines[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r SummaryRepository) UpdateSummary(ctx context.Context, s *domain.DistributorSummary) error {
	err := r.q.QueryRow(ctx, `
		UPDATE distributor_summaries
		SET name=$1, state=$2, registered_date=$3, captured_by=$4, captured_date=$5, verified_date=$6,
			is_locked=$7, capture_start_date=$8, timer_start=$9, timer_pause=$10, timer_running=$11,
			capture_time=$12, updated_at=now()
		WHERE id=$13
		RETURNING updated_at
	`, s.Name, string(s.State), s.RegisteredDate, s.CapturedBy, s.CapturedDate, s.VerifiedDate, s.IsLocked,
		s.CaptureStartDate, s.TimerStart, s.TimerPause, s.TimerRunning, s.CaptureTime, s.ID).Scan(&s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r SummaryRepository) SaveSummaryLine(ctx context.Context, l *domain.DistributorLine) error {
	if l.ID == 0 {
		return r.q.QueryRow(ctx, `
			INSERT INTO distributor_lines (summary_id, manager_id, sheet_id, actual_sales, comment, updated_at)
			VALUES ($1,$2,$3,$4,$5, now())
			ON CONFLICT (summary_id, manager_id) DO UPDATE
			SET sheet_id=EXCLUDED.sheet_id, updated_at=now()
			RETURNING id, updated_at
		`, l.SummaryID, l.ManagerID, l.SheetID, l.ActualSales, l.Comment).Scan(&l.ID, &l.UpdatedAt)
	}
	err := r.q.QueryRow(ctx, `
		UPDATE distributor_lines
		SET sheet_id=$1, actual_sales=$2, comment=$3, updated_at=now()
		WHERE id=$4 AND summary_id=$5
		RETURNING updated_at
	`, l.SheetID, l.ActualSales, l.Comment, l.ID, l.SummaryID).Scan(&l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
