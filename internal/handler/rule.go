package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"payin-backend/internal/domain"
	"payin-backend/internal/service"
)

// RuleHandler manages promotion rules and runs the batch jobs on demand.
type RuleHandler struct {
	Rules  service.RuleService
	Status service.ActiveStatusService
}

func (h RuleHandler) RegisterRoutes(r chi.Router) {
	r.Get("/rules", h.list)
	r.Get("/rules/{level}", h.get)
	r.Put("/rules/{level}", h.save)
	r.Post("/evaluate", h.evaluate)
	r.Post("/active-status", h.activeStatus)
}

func (h RuleHandler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.Rules.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := make([]map[string]any, 0, len(items))
	for _, rule := range items {
		resp = append(resp, ruleJSON(rule))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h RuleHandler) get(w http.ResponseWriter, r *http.Request) {
	level, ok := domain.ParseGenealogy(chi.URLParam(r, "level"))
	if !ok {
		writeServiceError(w, domain.Invalid("request", 0, "level", "is not a genealogy level"))
		return
	}
	rule, err := h.Rules.Get(r.Context(), level)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ruleJSON(*rule))
}

func (h RuleHandler) save(w http.ResponseWriter, r *http.Request) {
	level, ok := domain.ParseGenealogy(chi.URLParam(r, "level"))
	if !ok {
		writeServiceError(w, domain.Invalid("request", 0, "level", "is not a genealogy level"))
		return
	}
	var req struct {
		NextLevel                        string          `json:"nextLevel"`
		SalesMonth                       int             `json:"salesMonth" validate:"gte=0,lte=24"`
		OwnSalesValue                    decimal.Decimal `json:"ownSalesValue"`
		TeamSalesValue                   decimal.Decimal `json:"teamSalesValue"`
		TeamSalesValuePerPromotedManager decimal.Decimal `json:"teamSalesValuePerPromotedManager"`
		RetainedConsultants              int             `json:"retainedConsultants" validate:"gte=0"`
		MonthsRetainedConsultants        int             `json:"monthsRetainedConsultants" validate:"gte=0,lte=24"`
		PromotedManagers                 int             `json:"promotedManagers" validate:"gte=0"`
		PromotedManagersMonths           int             `json:"promotedManagersMonths" validate:"gte=0,lte=24"`
		PromotedManagerActiveConsultants int             `json:"promotedManagerActiveConsultants" validate:"gte=0"`
		ManagerSalesMonth                int             `json:"managerSalesMonth" validate:"gte=0,lte=24"`
		PromotedTeamSalesMonth           int             `json:"promotedTeamSalesMonth" validate:"gte=0,lte=24"`
		ExcludedMonths                   []int           `json:"excludedMonths" validate:"dive,min=1,max=12"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	rule := domain.PromotionRule{
		CurrentLevel:                     level,
		NextLevel:                        domain.Genealogy(req.NextLevel),
		SalesMonth:                       req.SalesMonth,
		OwnSalesValue:                    req.OwnSalesValue,
		TeamSalesValue:                   req.TeamSalesValue,
		TeamSalesValuePerPromotedManager: req.TeamSalesValuePerPromotedManager,
		RetainedConsultants:              req.RetainedConsultants,
		MonthsRetainedConsultants:        req.MonthsRetainedConsultants,
		PromotedManagers:                 req.PromotedManagers,
		PromotedManagersMonths:           req.PromotedManagersMonths,
		PromotedManagerActiveConsultants: req.PromotedManagerActiveConsultants,
		ManagerSalesMonth:                req.ManagerSalesMonth,
		PromotedTeamSalesMonth:           req.PromotedTeamSalesMonth,
	}
	for _, m := range req.ExcludedMonths {
		rule.ExcludedMonths = append(rule.ExcludedMonths, time.Month(m))
	}
	saved, err := h.Rules.Save(r.Context(), rule)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ruleJSON(*saved))
}

func (h RuleHandler) evaluate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Period   domain.Period `json:"period"`
		MemberID *int64        `json:"memberId" validate:"omitempty,gt=0"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	if req.Period.IsZero() {
		writeServiceError(w, domain.Invalid("request", 0, "period", "is required"))
		return
	}
	n, err := h.Rules.Evaluate(r.Context(), req.Period, req.MemberID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"period": req.Period, "evaluated": n})
}

func (h RuleHandler) activeStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Period domain.Period `json:"period"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	if req.Period.IsZero() {
		writeServiceError(w, domain.Invalid("request", 0, "period", "is required"))
		return
	}
	report, err := h.Status.Run(r.Context(), req.Period)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"period":   report.Period,
		"examined": report.Examined,
		"updated":  report.Updated,
	})
}
