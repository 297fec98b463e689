package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func (h HistoryRecord) PersonalSales() decimal.Decimal {
	return h.PersonalBB.Add(h.PersonalPuer)
}

func (h HistoryRecord) TeamSales() decimal.Decimal {
	return h.TeamBB.Add(h.TeamPuer)
}

// NewHistoryRecord snapshots the member onto an empty record for the period.
func NewHistoryRecord(m *Member, p Period) HistoryRecord {
	h := HistoryRecord{
		MemberID:     m.ID,
		Period:       p,
		PersonalBB:   decimal.Zero,
		PersonalPuer: decimal.Zero,
		TeamBB:       decimal.Zero,
		TeamPuer:     decimal.Zero,
	}
	h.Snapshot(m)
	return h
}

// Snapshot copies the member's current rank and placement onto the record.
func (h *HistoryRecord) Snapshot(m *Member) {
	h.ActiveStatus = m.ActiveStatus
	h.Genealogy = m.Genealogy
	h.ManagerID = m.ManagerID
	h.PromotedByID = m.PromoterID
}

func (r PromotionRule) Excludes(m time.Month) bool {
	for _, x := range r.ExcludedMonths {
		if x == m {
			return true
		}
	}
	return false
}

// Validate enforces the window lengths each level is evaluated with.
func (r PromotionRule) Validate() error {
	if !r.CurrentLevel.Valid() {
		return Invalid("promotion rule", r.ID, "current_genealogy_level", fmt.Sprintf("%q is not a genealogy level", r.CurrentLevel))
	}
	if r.NextLevel != "" && !r.NextLevel.Valid() {
		return Invalid("promotion rule", r.ID, "next_genealogy_level", fmt.Sprintf("%q is not a genealogy level", r.NextLevel))
	}
	if r.CurrentLevel.IsConsultantLevel() && r.SalesMonth <= 0 {
		return Invalid("promotion rule", r.ID, "sales_month", "must be greater than zero")
	}
	if r.CurrentLevel.IsManagerLevel() && r.ManagerSalesMonth <= 0 {
		return Invalid("promotion rule", r.ID, "manager_sales_month", "must be greater than zero")
	}
	for name, v := range map[string]decimal.Decimal{
		"own_sales_value":                       r.OwnSalesValue,
		"team_sales_value":                      r.TeamSalesValue,
		"team_sales_value_per_promoted_manager": r.TeamSalesValuePerPromotedManager,
	} {
		if v.IsNegative() {
			return Invalid("promotion rule", r.ID, name, "must not be negative")
		}
	}
	for name, v := range map[string]int{
		"sales_month":                         r.SalesMonth,
		"retained_consultants":                r.RetainedConsultants,
		"months_retained_consultants":         r.MonthsRetainedConsultants,
		"promoted_managers":                   r.PromotedManagers,
		"promoted_managers_months":            r.PromotedManagersMonths,
		"promoted_manager_active_consultants": r.PromotedManagerActiveConsultants,
		"manager_sales_month":                 r.ManagerSalesMonth,
		"promoted_team_sales_month":           r.PromotedTeamSalesMonth,
	} {
		if v < 0 {
			return Invalid("promotion rule", r.ID, name, "must not be negative")
		}
	}
	for _, m := range r.ExcludedMonths {
		if m < time.January || m > time.December {
			return Invalid("promotion rule", r.ID, "excluded_months", fmt.Sprintf("%d is not a calendar month", m))
		}
	}
	return nil
}
