package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"payin-backend/internal/domain"
)

type MemberRepository struct {
	q pgxQuerier
}

const memberColumns = `
	id, name, code, genealogy, previous_genealogy, manager_id, previous_manager_id, recruiter_id, promoter_id,
	related_distributor_id, related_prospective_manager_id, related_prospective_distributor_id, active_status,
	last_sale_date, previous_last_sale_date, first_sale_date, months_since_last_sale, most_recent_months_sales,
	four_months_sales, sold_previous_month, has_sale, promotion_date, demotion_date, move_date, archived,
	created_at, updated_at`

func scanMember(row pgx.Row) (*domain.Member, error) {
	var m domain.Member
	var genealogy, status string
	var previous pgtype.Text
	err := row.Scan(&m.ID, &m.Name, &m.Code, &genealogy, &previous, &m.ManagerID, &m.PreviousManagerID, &m.RecruiterID,
		&m.PromoterID, &m.RelatedDistributorID, &m.RelatedProspectiveManagerID, &m.RelatedProspectiveDistributorID,
		&status, &m.LastSaleDate, &m.PreviousLastSaleDate, &m.FirstSaleDate, &m.MonthsSinceLastSale,
		&m.MostRecentMonthsSales, &m.FourMonthsSales, &m.SoldPreviousMonth, &m.HasSale, &m.PromotionDate,
		&m.DemotionDate, &m.MoveDate, &m.Archived, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Genealogy = domain.Genealogy(genealogy)
	m.ActiveStatus = domain.ActiveStatus(status)
	if previous.Valid {
		g := domain.Genealogy(previous.String)
		m.PreviousGenealogy = &g
	}
	return &m, nil
}

func (r MemberRepository) GetMember(ctx context.Context, id int64) (*domain.Member, error) {
	m, err := scanMember(r.q.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r MemberRepository) ListMembers(ctx context.Context, f MemberFilter) ([]domain.Member, error) {
	var a args
	where := []string{"TRUE"}
	if !f.IncludeArchived {
		where = append(where, "archived = FALSE")
	}
	if len(f.IDs) > 0 {
		where = append(where, "id = ANY("+a.add(f.IDs)+")")
	}
	if f.ManagerID != nil {
		where = append(where, "manager_id = "+a.add(*f.ManagerID))
	}
	if f.RecruiterID != nil {
		where = append(where, "recruiter_id = "+a.add(*f.RecruiterID))
	}
	if f.PromoterID != nil {
		where = append(where, "promoter_id = "+a.add(*f.PromoterID))
	}
	if f.ProspectiveManagerID != nil {
		where = append(where, "related_prospective_manager_id = "+a.add(*f.ProspectiveManagerID))
	}
	if f.ProspectiveDistributorID != nil {
		where = append(where, "related_prospective_distributor_id = "+a.add(*f.ProspectiveDistributorID))
	}
	if f.DistributorID != nil {
		where = append(where, "related_distributor_id = "+a.add(*f.DistributorID))
	}
	if len(f.Genealogies) > 0 {
		levels := make([]string, 0, len(f.Genealogies))
		for _, g := range f.Genealogies {
			levels = append(levels, string(g))
		}
		where = append(where, "genealogy = ANY("+a.add(levels)+")")
	}
	if f.LastSaleBefore != nil {
		where = append(where, "(last_sale_date IS NULL OR last_sale_date < "+a.add(*f.LastSaleBefore)+")")
	}
	if f.UpdatedSince != nil {
		where = append(where, "updated_at > "+a.add(*f.UpdatedSince))
	}
	limit := a.add(limitOr(f.Limit, 10000))

	rows, err := r.q.Query(ctx, `SELECT `+memberColumns+` FROM members WHERE `+strings.Join(where, " AND ")+
		` ORDER BY id ASC LIMIT `+limit, a...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []domain.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *m)
	}
	return items, rows.Err()
}

func (r MemberRepository) CreateMember(ctx context.Context, m *domain.Member) error {
	return r.q.QueryRow(ctx, `
		INSERT INTO members (name, code, genealogy, previous_genealogy, manager_id, previous_manager_id, recruiter_id,
			promoter_id, related_distributor_id, related_prospective_manager_id, related_prospective_distributor_id,
			active_status, last_sale_date, previous_last_sale_date, first_sale_date, months_since_last_sale,
			most_recent_months_sales, four_months_sales, sold_previous_month, has_sale, promotion_date, demotion_date,
			move_date, archived, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24, now(), now())
		RETURNING id, created_at, updated_at
	`, memberValues(m)...).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
}

func (r MemberRepository) UpdateMember(ctx context.Context, m *domain.Member) error {
	values := append(memberValues(m), m.ID)
	err := r.q.QueryRow(ctx, `
		UPDATE members
		SET name=$1, code=$2, genealogy=$3, previous_genealogy=$4, manager_id=$5, previous_manager_id=$6,
			recruiter_id=$7, promoter_id=$8, related_distributor_id=$9, related_prospective_manager_id=$10,
			related_prospective_distributor_id=$11, active_status=$12, last_sale_date=$13,
			previous_last_sale_date=$14, first_sale_date=$15, months_since_last_sale=$16,
			most_recent_months_sales=$17, four_months_sales=$18, sold_previous_month=$19, has_sale=$20,
			promotion_date=$21, demotion_date=$22, move_date=$23, archived=$24, updated_at=now()
		WHERE id=$25
		RETURNING updated_at
	`, values...).Scan(&m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func memberValues(m *domain.Member) []any {
	var previous *string
	if m.PreviousGenealogy != nil {
		s := string(*m.PreviousGenealogy)
		previous = &s
	}
	status := m.ActiveStatus
	if status == "" {
		status = domain.StatusPotentialConsultant
	}
	return []any{m.Name, m.Code, string(m.Genealogy), previous, m.ManagerID, m.PreviousManagerID, m.RecruiterID,
		m.PromoterID, m.RelatedDistributorID, m.RelatedProspectiveManagerID, m.RelatedProspectiveDistributorID,
		string(status), m.LastSaleDate, m.PreviousLastSaleDate, m.FirstSaleDate, m.MonthsSinceLastSale,
		m.MostRecentMonthsSales, m.FourMonthsSales, m.SoldPreviousMonth, m.HasSale, m.PromotionDate,
		m.DemotionDate, m.MoveDate, m.Archived}
}
