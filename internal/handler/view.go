package handler

import (
	"time"

	"payin-backend/internal/domain"
)

func memberJSON(m domain.Member) map[string]any {
	return map[string]any{
		"id":                              m.ID,
		"name":                            m.Name,
		"code":                            m.Code,
		"genealogy":                       m.Genealogy,
		"genealogyLabel":                  m.Genealogy.Label(),
		"previousGenealogy":               m.PreviousGenealogy,
		"managerId":                       m.ManagerID,
		"previousManagerId":               m.PreviousManagerID,
		"recruiterId":                     m.RecruiterID,
		"promoterId":                      m.PromoterID,
		"relatedDistributorId":            m.RelatedDistributorID,
		"relatedProspectiveManagerId":     m.RelatedProspectiveManagerID,
		"relatedProspectiveDistributorId": m.RelatedProspectiveDistributorID,
		"activeStatus":                    m.ActiveStatus,
		"lastSaleDate":                    dateOrNil(m.LastSaleDate),
		"firstSaleDate":                   dateOrNil(m.FirstSaleDate),
		"monthsSinceLastSale":             m.MonthsSinceLastSale,
		"mostRecentMonthsSales":           m.MostRecentMonthsSales,
		"fourMonthsSales":                 m.FourMonthsSales,
		"soldPreviousMonth":               m.SoldPreviousMonth,
		"hasSale":                         m.HasSale,
		"promotionDate":                   dateOrNil(m.PromotionDate),
		"demotionDate":                    dateOrNil(m.DemotionDate),
		"moveDate":                        dateOrNil(m.MoveDate),
		"archived":                        m.Archived,
		"updatedAt":                       m.UpdatedAt,
	}
}

func membersJSON(items []domain.Member) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, m := range items {
		out = append(out, memberJSON(m))
	}
	return out
}

func sheetJSON(s domain.CaptureSheet, withLines bool) map[string]any {
	resp := map[string]any{
		"id":                  s.ID,
		"name":                s.Name,
		"managerId":           s.ManagerID,
		"distributorId":       s.DistributorID,
		"period":              s.Period,
		"state":               s.State,
		"registeredDate":      s.RegisteredDate,
		"capturedBy":          s.CapturedBy,
		"capturedDate":        s.CapturedDate,
		"verifiedDate":        s.VerifiedDate,
		"isLocked":            s.IsLocked,
		"isNoSales":           s.IsNoSales,
		"timerRunning":        s.TimerRunning,
		"captureStartDate":    s.CaptureStartDate,
		"captureTime":         s.CaptureTime,
		"bbTotal":             s.Totals.BBTotal,
		"puerTotal":           s.Totals.PuerTotal,
		"subTotal":            s.Totals.SubTotal,
		"consultantsCaptured": s.Totals.ConsultantsCaptured,
		"consultantsSales":    s.Totals.ConsultantsSales,
		"updatedAt":           s.UpdatedAt,
	}
	if withLines {
		lines := make([]map[string]any, 0, len(s.Lines))
		for _, l := range s.Lines {
			lines = append(lines, map[string]any{
				"id":           l.ID,
				"consultantId": l.ConsultantID,
				"bbSales":      l.BBSales,
				"bbReturns":    l.BBReturns,
				"bbTotal":      l.BBTotal(),
				"puerSales":    l.PuerSales,
				"puerReturns":  l.PuerReturns,
				"puerTotal":    l.PuerTotal(),
				"subTotal":     l.SubTotal(),
				"comment":      l.Comment,
			})
		}
		resp["lines"] = lines
	}
	return resp
}

func summaryJSON(s domain.DistributorSummary, withLines bool) map[string]any {
	resp := map[string]any{
		"id":                s.ID,
		"name":              s.Name,
		"distributorId":     s.DistributorID,
		"period":            s.Period,
		"state":             s.State,
		"registeredDate":    s.RegisteredDate,
		"capturedBy":        s.CapturedBy,
		"capturedDate":      s.CapturedDate,
		"verifiedDate":      s.VerifiedDate,
		"isLocked":          s.IsLocked,
		"timerRunning":      s.TimerRunning,
		"captureTime":       s.CaptureTime,
		"totalCaptured":     s.Totals.TotalCaptured,
		"actualSales":       s.Totals.ActualSales,
		"salesDifference":   s.Totals.SalesDifference,
		"managersWithSales": s.Totals.ManagersWithSales,
		"updatedAt":         s.UpdatedAt,
	}
	if withLines {
		lines := make([]map[string]any, 0, len(s.Lines))
		for _, l := range s.Lines {
			lines = append(lines, map[string]any{
				"id":              l.ID,
				"managerId":       l.ManagerID,
				"sheetId":         l.SheetID,
				"totalCaptured":   l.TotalCaptured,
				"actualSales":     l.ActualSales,
				"salesDifference": l.SalesDifference(),
				"comment":         l.Comment,
			})
		}
		resp["lines"] = lines
	}
	return resp
}

func historyJSON(h domain.HistoryRecord) map[string]any {
	f := h.Flags
	return map[string]any{
		"id":                    h.ID,
		"memberId":              h.MemberID,
		"period":                h.Period,
		"personalBb":            h.PersonalBB,
		"personalPuer":          h.PersonalPuer,
		"personalSales":         h.PersonalSales(),
		"teamBb":                h.TeamBB,
		"teamPuer":              h.TeamPuer,
		"teamSales":             h.TeamSales(),
		"activeDescendantCount": h.ActiveDescendantCount,
		"teamPromoted":          h.TeamPromoted,
		"activeStatus":          h.ActiveStatus,
		"genealogy":             h.Genealogy,
		"managerId":             h.ManagerID,
		"managerCode":           h.ManagerCode,
		"distributorCode":       h.DistributorCode,
		"promotedById":          h.PromotedByID,
		"flags": map[string]any{
			"personalSalesPromotion":             f.PersonalSalesPromotion,
			"teamSalesPromotion":                 f.TeamSalesPromotion,
			"activeSfmPromotion":                 f.ActiveSFMPromotion,
			"active80":                           f.Active80,
			"personal80":                         f.Personal80,
			"team80":                             f.Team80,
			"managerPromoteActiveConsultants":    f.ManagerPromoteActiveConsultants,
			"managerPromotedSalesAbove":          f.ManagerPromotedSalesAbove,
			"pbmPromotedActiveConsultants":       f.PBMPromotedActiveConsultants,
			"pbmPromotedManagersActivePromotion": f.PBMPromotedManagersActivePromotion,
			"pbmPromotedManagersTeamSalesAbove":  f.PBMPromotedManagersTeamSalesAbove,
			"pbmTeamSalesAbove":                  f.PBMTeamSalesAbove,
		},
		"updatedAt": h.UpdatedAt,
	}
}

func historiesJSON(items []domain.HistoryRecord) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, h := range items {
		out = append(out, historyJSON(h))
	}
	return out
}

func ruleJSON(r domain.PromotionRule) map[string]any {
	excluded := make([]int, 0, len(r.ExcludedMonths))
	for _, m := range r.ExcludedMonths {
		excluded = append(excluded, int(m))
	}
	return map[string]any{
		"id":                               r.ID,
		"currentLevel":                     r.CurrentLevel,
		"nextLevel":                        r.NextLevel,
		"salesMonth":                       r.SalesMonth,
		"ownSalesValue":                    r.OwnSalesValue,
		"teamSalesValue":                   r.TeamSalesValue,
		"teamSalesValuePerPromotedManager": r.TeamSalesValuePerPromotedManager,
		"retainedConsultants":              r.RetainedConsultants,
		"monthsRetainedConsultants":        r.MonthsRetainedConsultants,
		"promotedManagers":                 r.PromotedManagers,
		"promotedManagersMonths":           r.PromotedManagersMonths,
		"promotedManagerActiveConsultants": r.PromotedManagerActiveConsultants,
		"managerSalesMonth":                r.ManagerSalesMonth,
		"promotedTeamSalesMonth":           r.PromotedTeamSalesMonth,
		"excludedMonths":                   excluded,
		"updatedAt":                        r.UpdatedAt,
	}
}

func eventJSON(e domain.Event) map[string]any {
	return map[string]any{
		"id":         e.ID,
		"type":       e.Type,
		"entityType": e.EntityType,
		"entityId":   e.EntityID,
		"actor":      e.Actor,
		"message":    e.Message,
		"oldTotal":   e.OldTotal,
		"newTotal":   e.NewTotal,
		"elapsedSec": e.ElapsedSec,
		"payload":    e.Payload,
		"occurredAt": e.OccurredAt,
	}
}

func pagesJSON(pages []domain.PageTotal) []map[string]any {
	out := make([]map[string]any, 0, len(pages))
	for _, p := range pages {
		out = append(out, map[string]any{
			"page":      p.Page,
			"lines":     p.Lines,
			"bbTotal":   p.BBTotal,
			"puerTotal": p.PuerTotal,
			"subTotal":  p.SubTotal,
		})
	}
	return out
}

func dateOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}
