package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"payin-backend/internal/domain"
	"payin-backend/internal/repository"
	"payin-backend/internal/service"
	"payin-backend/internal/sheetio"
)

// HistoryHandler serves history, the event trail and the sync feeds.
type HistoryHandler struct {
	History service.HistoryService
	Members service.MemberService
}

func (h HistoryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/history", h.list)
	r.Get("/history/export", h.export)
	r.Get("/events", h.events)
	r.Get("/sync/members", h.syncMembers)
	r.Get("/sync/history", h.syncHistory)
}

func (h HistoryHandler) filter(r *http.Request) (repository.HistoryFilter, error) {
	f := repository.HistoryFilter{Limit: parseLimit(r)}
	var err error
	if f.MemberID, err = parseIDQuery(r, "memberId"); err != nil {
		return f, err
	}
	if f.Period, err = parsePeriodQuery(r, "period"); err != nil {
		return f, err
	}
	return f, nil
}

func (h HistoryHandler) list(w http.ResponseWriter, r *http.Request) {
	f, err := h.filter(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	items, err := h.History.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historiesJSON(items))
}

func (h HistoryHandler) export(w http.ResponseWriter, r *http.Request) {
	f, err := h.filter(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	items, err := h.History.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	seen := map[int64]bool{}
	var ids []int64
	for _, rec := range items {
		if !seen[rec.MemberID] {
			seen[rec.MemberID] = true
			ids = append(ids, rec.MemberID)
		}
	}
	members := map[int64]domain.Member{}
	if len(ids) > 0 {
		list, err := h.Members.List(r.Context(), repository.MemberFilter{IDs: ids, IncludeArchived: true, Limit: len(ids)})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		for _, m := range list {
			members[m.ID] = m
		}
	}
	var buf bytes.Buffer
	if err := sheetio.WriteHistory(&buf, items, members); err != nil {
		writeErrorWithErr(w, http.StatusInternalServerError, "failed to export", err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"history-%s.xlsx\"", time.Now().Format("20060102")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h HistoryHandler) events(w http.ResponseWriter, r *http.Request) {
	f := repository.EventFilter{
		EntityType: r.URL.Query().Get("entityType"),
		Type:       domain.EventType(r.URL.Query().Get("type")),
		Limit:      parseLimit(r),
	}
	var err error
	if f.EntityID, err = parseIDQuery(r, "entityId"); err != nil {
		writeServiceError(w, err)
		return
	}
	items, err := h.History.Events(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := make([]map[string]any, 0, len(items))
	for _, e := range items {
		resp = append(resp, eventJSON(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h HistoryHandler) syncMembers(w http.ResponseWriter, r *http.Request) {
	since, err := sinceQuery(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	items, err := h.History.MembersSince(r.Context(), since, parseLimit(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, membersJSON(items))
}

func (h HistoryHandler) syncHistory(w http.ResponseWriter, r *http.Request) {
	since, err := sinceQuery(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	items, err := h.History.HistorySince(r.Context(), since, parseLimit(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historiesJSON(items))
}

// sinceQuery defaults to the zero time so a first sync gets everything.
func sinceQuery(r *http.Request) (time.Time, error) {
	since, err := parseDateQuery(r, "since")
	if err != nil || since == nil {
		return time.Time{}, err
	}
	return *since, nil
}
