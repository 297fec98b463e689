package handler

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"payin-backend/internal/domain"
	"payin-backend/internal/repository"
	"payin-backend/internal/service"
	"payin-backend/internal/sheetio"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	maxUploadBytes  = 8 << 20
)

type SheetHandler struct {
	Capture service.CaptureService
	Members service.MemberService
	Prints  service.PrintService
}

func (h SheetHandler) RegisterRoutes(r chi.Router) {
	r.Get("/sheets", h.list)
	r.Post("/sheets", h.ensure)
	r.Route("/sheets/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Delete("/", h.delete)
		r.Get("/open", h.open)
		r.Post("/register", h.register)
		r.Post("/capture", h.capture)
		r.Post("/verify", h.verify)
		r.Post("/lock", h.setLocked(true))
		r.Post("/unlock", h.setLocked(false))
		r.Post("/timer/{action}", h.timer)
		r.Post("/lines", h.upsertLine)
		r.Put("/lines/{lineID}", h.upsertLine)
		r.Delete("/lines/{lineID}", h.deleteLine)
		r.Get("/pages", h.pages)
		r.Get("/export", h.export)
		r.Post("/import", h.importLines)
		r.Post("/print", h.print)
	})
}

func (h SheetHandler) list(w http.ResponseWriter, r *http.Request) {
	f := repository.SheetFilter{Limit: parseLimit(r)}
	var err error
	if f.ManagerID, err = parseIDQuery(r, "managerId"); err != nil {
		writeServiceError(w, err)
		return
	}
	if f.DistributorID, err = parseIDQuery(r, "distributorId"); err != nil {
		writeServiceError(w, err)
		return
	}
	if f.Period, err = parsePeriodQuery(r, "period"); err != nil {
		writeServiceError(w, err)
		return
	}
	if raw := r.URL.Query().Get("state"); raw != "" {
		st := domain.SheetState(raw)
		if !st.Valid() {
			writeServiceError(w, domain.Invalid("request", 0, "state", "unknown value "+raw))
			return
		}
		f.State = &st
	}
	items, err := h.Capture.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := make([]map[string]any, 0, len(items))
	for _, s := range items {
		resp = append(resp, sheetJSON(s, false))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h SheetHandler) ensure(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ManagerID int64         `json:"managerId" validate:"required,gt=0"`
		Period    domain.Period `json:"period"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	if req.Period.IsZero() {
		writeServiceError(w, domain.Invalid("request", 0, "period", "is required"))
		return
	}
	sheet, err := h.Capture.EnsureSheet(r.Context(), req.ManagerID, req.Period)
	h.respond(w, sheet, err)
}

func (h SheetHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sheet, err := h.Capture.Get(r.Context(), id)
	h.respond(w, sheet, err)
}

func (h SheetHandler) open(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sheet, err := h.Capture.Open(r.Context(), id)
	h.respond(w, sheet, err)
}

func (h SheetHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := h.Capture.DeleteSheet(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h SheetHandler) register(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sheet, err := h.Capture.Register(r.Context(), id)
	h.respond(w, sheet, err)
}

func (h SheetHandler) capture(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req struct {
		ConfirmNoSales bool `json:"confirmNoSales"`
	}
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	sheet, err := h.Capture.Capture(r.Context(), id, actorFrom(r), req.ConfirmNoSales)
	h.respond(w, sheet, err)
}

func (h SheetHandler) verify(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sheet, err := h.Capture.Verify(r.Context(), id, actorFrom(r))
	h.respond(w, sheet, err)
}

func (h SheetHandler) setLocked(locked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeServiceError(w, err)
			return
		}
		sheet, err := h.Capture.SetLocked(r.Context(), id, locked)
		h.respond(w, sheet, err)
	}
}

func (h SheetHandler) timer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	action, err := timerAction(chi.URLParam(r, "action"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sheet, err := h.Capture.Timer(r.Context(), id, action, actorFrom(r))
	h.respond(w, sheet, err)
}

type lineRequest struct {
	ConsultantID int64           `json:"consultantId" validate:"required,gt=0"`
	BBSales      decimal.Decimal `json:"bbSales"`
	BBReturns    decimal.Decimal `json:"bbReturns"`
	PuerSales    decimal.Decimal `json:"puerSales"`
	PuerReturns  decimal.Decimal `json:"puerReturns"`
	Comment      string          `json:"comment" validate:"max=512"`
}

func (h SheetHandler) upsertLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	in := service.LineInput{}
	if chi.URLParam(r, "lineID") != "" {
		if in.ID, err = pathID(r, "lineID"); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	var req lineRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	in.ConsultantID = req.ConsultantID
	in.BBSales, in.BBReturns = req.BBSales, req.BBReturns
	in.PuerSales, in.PuerReturns = req.PuerSales, req.PuerReturns
	in.Comment = req.Comment
	sheet, err := h.Capture.UpsertLine(r.Context(), id, in, actorFrom(r))
	h.respond(w, sheet, err)
}

func (h SheetHandler) deleteLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	lineID, err := pathID(r, "lineID")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sheet, err := h.Capture.DeleteLine(r.Context(), id, lineID, actorFrom(r))
	h.respond(w, sheet, err)
}

func (h SheetHandler) pages(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pages, err := h.Capture.Pages(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pagesJSON(pages))
}

func (h SheetHandler) export(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sheet, err := h.Capture.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	ids := make([]int64, 0, len(sheet.Lines))
	for _, l := range sheet.Lines {
		ids = append(ids, l.ConsultantID)
	}
	members := map[int64]domain.Member{}
	if len(ids) > 0 {
		items, err := h.Members.List(r.Context(), repository.MemberFilter{IDs: ids, IncludeArchived: true, Limit: len(ids)})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		for _, m := range items {
			members[m.ID] = m
		}
	}
	var buf bytes.Buffer
	if err := sheetio.WriteSheet(&buf, sheet, members); err != nil {
		writeErrorWithErr(w, http.StatusInternalServerError, "failed to export", err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"sheet-%d-%s.xlsx\"", sheet.ID, sheet.Period.String()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h SheetHandler) importLines(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	body, closeBody, err := upload(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer closeBody()
	rows, err := sheetio.ReadLines(body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	in := make([]service.LineInput, 0, len(rows))
	for _, row := range rows {
		in = append(in, service.LineInput{
			ConsultantID: row.ConsultantID,
			BBSales:      row.BBSales,
			BBReturns:    row.BBReturns,
			PuerSales:    row.PuerSales,
			PuerReturns:  row.PuerReturns,
			Comment:      row.Comment,
		})
	}
	sheet, err := h.Capture.ImportLines(r.Context(), id, in, actorFrom(r))
	h.respond(w, sheet, err)
}

func (h SheetHandler) print(w http.ResponseWriter, r *http.Request) {
	recordPrint(w, r, h.Prints, domain.PrintSheet)
}

func (h SheetHandler) respond(w http.ResponseWriter, sheet *domain.CaptureSheet, err error) {
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sheetJSON(*sheet, true))
}

func recordPrint(w http.ResponseWriter, r *http.Request, prints service.PrintService, kind domain.PrintKind) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rec, err := prints.RecordPrint(r.Context(), kind, id, actorFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kind":     rec.Kind,
		"targetId": rec.TargetID,
		"count":    rec.Count,
		"state":    rec.State,
	})
}

func timerAction(raw string) (service.TimerAction, error) {
	switch a := service.TimerAction(raw); a {
	case service.TimerStart, service.TimerPause, service.TimerResume, service.TimerStop:
		return a, nil
	}
	return "", domain.Invalid("request", 0, "action", "must be start, pause, resume or stop")
}

// upload accepts either a multipart "file" field or the raw workbook as the body.
func upload(r *http.Request) (io.Reader, func(), error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, nil, domain.Invalid("request", 0, "file", err.Error())
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			return nil, nil, domain.Invalid("request", 0, "file", "is required")
		}
		return f, func() { _ = f.Close() }, nil
	}
	return io.LimitReader(r.Body, maxUploadBytes), func() {}, nil
}
