package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"payin-backend/internal/domain"
)

type HistoryRepository struct {
	q pgxQuerier
}

const historyColumns = `
	id, member_id, period, personal_bb, personal_puer, team_bb, team_puer, active_descendant_count, team_promoted,
	active_status, genealogy, manager_id, manager_code, distributor_code, promoted_by_id, personal_sales_promotion,
	team_sales_promotion, active_sfm_promotion, active_80, personal_80, team_80, manager_promote_active_consultants,
	manager_promoted_sales_above, pbm_promoted_active_consultants, pbm_promoted_managers_active_promotion,
	pbm_promoted_managers_team_sales_above, pbm_team_sales_above, created_at, updated_at`

func scanHistory(row pgx.Row) (*domain.HistoryRecord, error) {
	var h domain.HistoryRecord
	var period time.Time
	var status, genealogy string
	f := &h.Flags
	err := row.Scan(&h.ID, &h.MemberID, &period, &h.PersonalBB, &h.PersonalPuer, &h.TeamBB, &h.TeamPuer,
		&h.ActiveDescendantCount, &h.TeamPromoted, &status, &genealogy, &h.ManagerID, &h.ManagerCode,
		&h.DistributorCode, &h.PromotedByID, &f.PersonalSalesPromotion, &f.TeamSalesPromotion, &f.ActiveSFMPromotion,
		&f.Active80, &f.Personal80, &f.Team80, &f.ManagerPromoteActiveConsultants, &f.ManagerPromotedSalesAbove,
		&f.PBMPromotedActiveConsultants, &f.PBMPromotedManagersActivePromotion, &f.PBMPromotedManagersTeamSalesAbove,
		&f.PBMTeamSalesAbove, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	h.Period = periodOf(period)
	h.ActiveStatus = domain.ActiveStatus(status)
	h.Genealogy = domain.Genealogy(genealogy)
	return &h, nil
}

// LockHistory is lookup-or-create keyed by (member, period) followed by a row lock,
// so concurrent aggregations touching the same ancestor serialize here.
func (r HistoryRepository) LockHistory(ctx context.Context, seed domain.HistoryRecord) (*domain.HistoryRecord, bool, error) {
	var id int64
	err := r.q.QueryRow(ctx, `
		INSERT INTO history_records (member_id, period, team_promoted, active_status, genealogy, manager_id,
			manager_code, distributor_code, promoted_by_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now(), now())
		ON CONFLICT (member_id, period) DO NOTHING
		RETURNING id
	`, seed.MemberID, seed.Period.Start(), seed.TeamPromoted, string(seed.ActiveStatus), string(seed.Genealogy),
		seed.ManagerID, seed.ManagerCode, seed.DistributorCode, seed.PromotedByID).Scan(&id)
	created := true
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, err
		}
		created = false
	}
	h, err := scanHistory(r.q.QueryRow(ctx, `SELECT `+historyColumns+` FROM history_records
		WHERE member_id=$1 AND period=$2 FOR UPDATE`, seed.MemberID, seed.Period.Start()))
	if err != nil {
		return nil, false, err
	}
	return h, created, nil
}

func (r HistoryRepository) GetHistory(ctx context.Context, memberID int64, p domain.Period) (*domain.HistoryRecord, error) {
	h, err := scanHistory(r.q.QueryRow(ctx, `SELECT `+historyColumns+` FROM history_records WHERE member_id=$1 AND period=$2`,
		memberID, p.Start()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return h, nil
}

func (r HistoryRepository) SaveHistory(ctx context.Context, h *domain.HistoryRecord) error {
	f := h.Flags
	err := r.q.QueryRow(ctx, `
		UPDATE history_records
		SET personal_bb=$1, personal_puer=$2, team_bb=$3, team_puer=$4, active_descendant_count=$5, team_promoted=$6,
			active_status=$7, genealogy=$8, manager_id=$9, manager_code=$10, distributor_code=$11, promoted_by_id=$12,
			personal_sales_promotion=$13, team_sales_promotion=$14, active_sfm_promotion=$15, active_80=$16,
			personal_80=$17, team_80=$18, manager_promote_active_consultants=$19, manager_promoted_sales_above=$20,
			pbm_promoted_active_consultants=$21, pbm_promoted_managers_active_promotion=$22,
			pbm_promoted_managers_team_sales_above=$23, pbm_team_sales_above=$24, updated_at=now()
		WHERE id=$25
		RETURNING updated_at
	`, h.PersonalBB, h.PersonalPuer, h.TeamBB, h.TeamPuer, h.ActiveDescendantCount, h.TeamPromoted,
		string(h.ActiveStatus), string(h.Genealogy), h.ManagerID, h.ManagerCode, h.DistributorCode, h.PromotedByID,
		f.PersonalSalesPromotion, f.TeamSalesPromotion, f.ActiveSFMPromotion, f.Active80, f.Personal80, f.Team80,
		f.ManagerPromoteActiveConsultants, f.ManagerPromotedSalesAbove, f.PBMPromotedActiveConsultants,
		f.PBMPromotedManagersActivePromotion, f.PBMPromotedManagersTeamSalesAbove, f.PBMTeamSalesAbove,
		h.ID).Scan(&h.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r HistoryRepository) ListHistory(ctx context.Context, f HistoryFilter) ([]domain.HistoryRecord, error) {
	var a args
	where := []string{"TRUE"}
	if f.MemberID != nil {
		where = append(where, "member_id = "+a.add(*f.MemberID))
	}
	if f.Period != nil {
		where = append(where, "period = "+a.add(f.Period.Start()))
	}
	if f.UpTo != nil {
		where = append(where, "period <= "+a.add(f.UpTo.Start()))
	}
	if f.Before != nil {
		where = append(where, "period < "+a.add(f.Before.Start()))
	}
	if f.PersonalNonZero {
		where = append(where, "(personal_bb + personal_puer) <> 0")
	}
	if f.UpdatedSince != nil {
		where = append(where, "updated_at > "+a.add(*f.UpdatedSince))
	}
	limit := a.add(limitOr(f.Limit, 1000))
	rows, err := r.q.Query(ctx, `SELECT `+historyColumns+` FROM history_records WHERE `+strings.Join(where, " AND ")+
		` ORDER BY period DESC, member_id ASC LIMIT `+limit, a...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []domain.HistoryRecord
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *h)
	}
	return items, rows.Err()
}
