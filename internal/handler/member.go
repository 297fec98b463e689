package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"payin-backend/internal/domain"
	"payin-backend/internal/repository"
	"payin-backend/internal/service"
)

type MemberHandler struct {
	Members    service.MemberService
	Promotions service.PromotionService
	Status     service.ActiveStatusService
}

func (h MemberHandler) RegisterRoutes(r chi.Router) {
	r.Get("/members", h.list)
	r.Post("/members", h.create)
	r.Post("/members/move", h.move)
	r.Get("/members/{id}", h.get)
	r.Patch("/members/{id}", h.update)
	r.Post("/members/{id}/promote", h.promote)
	r.Post("/members/{id}/demote", h.demote)
	r.Get("/members/{id}/audits", h.audits)
}

func (h MemberHandler) list(w http.ResponseWriter, r *http.Request) {
	f := repository.MemberFilter{
		IncludeArchived: r.URL.Query().Get("includeArchived") == "true",
		Limit:           parseLimit(r),
	}
	var err error
	if f.ManagerID, err = parseIDQuery(r, "managerId"); err != nil {
		writeServiceError(w, err)
		return
	}
	if f.DistributorID, err = parseIDQuery(r, "distributorId"); err != nil {
		writeServiceError(w, err)
		return
	}
	if raw := r.URL.Query().Get("genealogy"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			g, ok := domain.ParseGenealogy(strings.TrimSpace(part))
			if !ok {
				writeServiceError(w, domain.Invalid("request", 0, "genealogy", "unknown value "+part))
				return
			}
			f.Genealogies = append(f.Genealogies, g)
		}
	}
	items, err := h.Members.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, membersJSON(items))
}

func (h MemberHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	m, err := h.Members.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, memberJSON(*m))
}

func (h MemberHandler) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string `json:"name" validate:"required,max=128"`
		Code         string `json:"code" validate:"max=32"`
		Genealogy    string `json:"genealogy" validate:"required"`
		ManagerID    *int64 `json:"managerId" validate:"omitempty,gt=0"`
		RecruiterID  *int64 `json:"recruiterId" validate:"omitempty,gt=0"`
		PromoterID   *int64 `json:"promoterId" validate:"omitempty,gt=0"`
		ActiveStatus string `json:"activeStatus"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	m, err := h.Members.Create(r.Context(), service.CreateMemberInput{
		Name:         req.Name,
		Code:         req.Code,
		Genealogy:    domain.Genealogy(req.Genealogy),
		ManagerID:    req.ManagerID,
		RecruiterID:  req.RecruiterID,
		PromoterID:   req.PromoterID,
		ActiveStatus: domain.ActiveStatus(req.ActiveStatus),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, memberJSON(*m))
}

func (h MemberHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req struct {
		Name         *string `json:"name" validate:"omitempty,min=1,max=128"`
		Code         *string `json:"code" validate:"omitempty,max=32"`
		ManagerID    *int64  `json:"managerId" validate:"omitempty,gt=0"`
		RecruiterID  *int64  `json:"recruiterId" validate:"omitempty,gt=0"`
		PromoterID   *int64  `json:"promoterId" validate:"omitempty,gt=0"`
		ActiveStatus *string `json:"activeStatus"`
		Archived     *bool   `json:"archived"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	in := service.UpdateMemberInput{
		Name:        req.Name,
		Code:        req.Code,
		ManagerID:   req.ManagerID,
		RecruiterID: req.RecruiterID,
		PromoterID:  req.PromoterID,
		Archived:    req.Archived,
	}
	if req.ActiveStatus != nil {
		s := domain.ActiveStatus(*req.ActiveStatus)
		in.ActiveStatus = &s
	}
	m, err := h.Members.Update(r.Context(), id, in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, memberJSON(*m))
}

func (h MemberHandler) promote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req struct {
		Genealogy     string `json:"genealogy" validate:"required"`
		EffectiveDate string `json:"effectiveDate" validate:"omitempty,datetime=2006-01-02"`
		PromoterID    *int64 `json:"promoterId" validate:"omitempty,gt=0"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	res, err := h.Promotions.Promote(r.Context(), service.PromoteRequest{
		MemberID:      id,
		NewGenealogy:  domain.Genealogy(req.Genealogy),
		EffectiveDate: effectiveDate(req.EffectiveDate),
		PromoterID:    req.PromoterID,
		Actor:         actorFrom(r),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultJSON(res))
}

func (h MemberHandler) demote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req struct {
		Genealogy     string `json:"genealogy" validate:"required"`
		EffectiveDate string `json:"effectiveDate" validate:"omitempty,datetime=2006-01-02"`
		MoveToID      *int64 `json:"moveToId" validate:"omitempty,gt=0"`
		ManagerID     *int64 `json:"managerId" validate:"omitempty,gt=0"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	res, err := h.Promotions.Demote(r.Context(), service.DemoteRequest{
		MemberID:      id,
		NewGenealogy:  domain.Genealogy(req.Genealogy),
		EffectiveDate: effectiveDate(req.EffectiveDate),
		MoveToID:      req.MoveToID,
		ManagerID:     req.ManagerID,
		Actor:         actorFrom(r),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultJSON(res))
}

func (h MemberHandler) move(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberIDs []int64 `json:"memberIds" validate:"required,min=1,dive,gt=0"`
		ManagerID int64   `json:"managerId" validate:"required,gt=0"`
		Reason    string  `json:"reason" validate:"max=256"`
		Date      string  `json:"date" validate:"omitempty,datetime=2006-01-02"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	res, err := h.Promotions.Move(r.Context(), service.MoveRequest{
		MemberIDs: req.MemberIDs,
		ManagerID: req.ManagerID,
		Reason:    req.Reason,
		Date:      effectiveDate(req.Date),
		Actor:     actorFrom(r),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultJSON(res))
}

func (h MemberHandler) audits(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	items, err := h.Status.Audits(r.Context(), id, parseLimit(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := make([]map[string]any, 0, len(items))
	for _, a := range items {
		resp = append(resp, map[string]any{
			"period":              a.Period,
			"activeStatus":        a.ActiveStatus,
			"genealogy":           a.Genealogy,
			"monthsSinceLastSale": a.MonthsSinceLastSale,
			"lastSaleDate":        dateOrNil(a.LastSaleDate),
			"fourMonthsSales":     a.FourMonthsSales,
			"recordedAt":          a.RecordedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func resultJSON(res *service.Result) map[string]any {
	return map[string]any{
		"member":   memberJSON(*res.Member),
		"affected": membersJSON(res.Affected),
	}
}

// effectiveDate has already passed the datetime tag; empty means today.
func effectiveDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(dateLayout, s)
	return t
}
