package repository

import (
	"context"
	"time"

	"payin-backend/internal/domain"
)

type AuditRepository struct {
	q pgxQuerier
}

func (r AuditRepository) HasCaptureTimeLog(ctx context.Context, sheetID int64) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM capture_time_logs WHERE sheet_id=$1)`, sheetID).Scan(&exists)
	return exists, err
}

func (r AuditRepository) CreateCaptureTimeLog(ctx context.Context, l *domain.CaptureTimeLog) error {
	return r.q.QueryRow(ctx, `
		INSERT INTO capture_time_logs (sheet_id, sheet_name, actor, capture_start_date, capture_time,
			consultants_captured, consultants_sales, logged_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7, now())
		RETURNING id, logged_at
	`, l.SheetID, l.SheetName, l.Actor, l.CaptureStartDate, l.CaptureTime, l.ConsultantsCaptured,
		l.ConsultantsSales).Scan(&l.ID, &l.LoggedAt)
}

// UpsertStatusAudit keeps one snapshot per member per month.
func (r AuditRepository) UpsertStatusAudit(ctx context.Context, a *domain.StatusAudit) error {
	return r.q.QueryRow(ctx, `
		INSERT INTO status_audits (member_id, period, active_status, genealogy, months_since_last_sale,
			last_sale_date, four_months_sales, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7, now())
		ON CONFLICT (member_id, period) DO UPDATE
		SET active_status=EXCLUDED.active_status,
			genealogy=EXCLUDED.genealogy,
			months_since_last_sale=EXCLUDED.months_since_last_sale,
			last_sale_date=EXCLUDED.last_sale_date,
			four_months_sales=EXCLUDED.four_months_sales,
			recorded_at=now()
		RETURNING id, recorded_at
	`, a.MemberID, a.Period.Start(), string(a.ActiveStatus), string(a.Genealogy), a.MonthsSinceLastSale,
		a.LastSaleDate, a.FourMonthsSales).Scan(&a.ID, &a.RecordedAt)
}

func (r AuditRepository) ListStatusAudits(ctx context.Context, memberID int64, limit int) ([]domain.StatusAudit, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, member_id, period, active_status, genealogy, months_since_last_sale, last_sale_date,
			four_months_sales, recorded_at
		FROM status_audits
		WHERE member_id=$1
		ORDER BY period DESC
		LIMIT $2
	`, memberID, limitOr(limit, 24))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.StatusAudit
	for rows.Next() {
		var a domain.StatusAudit
		var period time.Time
		var status, genealogy string
		if err := rows.Scan(&a.ID, &a.MemberID, &period, &status, &genealogy, &a.MonthsSinceLastSale,
			&a.LastSaleDate, &a.FourMonthsSales, &a.RecordedAt); err != nil {
			return nil, err
		}
		a.Period = periodOf(period)
		a.ActiveStatus = domain.ActiveStatus(status)
		a.Genealogy = domain.Genealogy(genealogy)
		out = append(out, a)
	}
	return out, rows.Err()
}
