package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"payin-backend/internal/domain"
	"payin-backend/internal/repository"
	"payin-backend/internal/service"
)

type SummaryHandler struct {
	Summaries service.SummaryService
	Prints    service.PrintService
}

func (h SummaryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/summaries", h.list)
	r.Post("/summaries", h.ensure)
	r.Route("/summaries/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Post("/register", h.register)
		r.Post("/capture", h.capture)
		r.Post("/verify", h.verify)
		r.Post("/timer/{action}", h.timer)
		r.Put("/lines/{lineID}", h.setActual)
		r.Get("/pages", h.pages)
		r.Post("/print", h.print)
	})
}

func (h SummaryHandler) list(w http.ResponseWriter, r *http.Request) {
	f := repository.SummaryFilter{Limit: parseLimit(r)}
	var err error
	if f.DistributorID, err = parseIDQuery(r, "distributorId"); err != nil {
		writeServiceError(w, err)
		return
	}
	if f.Period, err = parsePeriodQuery(r, "period"); err != nil {
		writeServiceError(w, err)
		return
	}
	items, err := h.Summaries.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := make([]map[string]any, 0, len(items))
	for _, s := range items {
		resp = append(resp, summaryJSON(s, false))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h SummaryHandler) ensure(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DistributorID int64         `json:"distributorId" validate:"required,gt=0"`
		Period        domain.Period `json:"period"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	if req.Period.IsZero() {
		writeServiceError(w, domain.Invalid("request", 0, "period", "is required"))
		return
	}
	sum, err := h.Summaries.EnsureSummary(r.Context(), req.DistributorID, req.Period)
	h.respond(w, sum, err)
}

func (h SummaryHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sum, err := h.Summaries.Get(r.Context(), id)
	h.respond(w, sum, err)
}

func (h SummaryHandler) register(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sum, err := h.Summaries.Register(r.Context(), id)
	h.respond(w, sum, err)
}

func (h SummaryHandler) capture(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sum, err := h.Summaries.Capture(r.Context(), id, actorFrom(r))
	h.respond(w, sum, err)
}

func (h SummaryHandler) verify(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sum, err := h.Summaries.Verify(r.Context(), id, actorFrom(r))
	h.respond(w, sum, err)
}

func (h SummaryHandler) timer(w http.ResponseWriter, r *http.Request) {
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
	sum, err := h.Summaries.Timer(r.Context(), id, action)
	h.respond(w, sum, err)
}

func (h SummaryHandler) setActual(w http.ResponseWriter, r *http.Request) {
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
	var req struct {
		ActualSales decimal.Decimal `json:"actualSales"`
		Comment     string          `json:"comment" validate:"max=512"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	sum, err := h.Summaries.SetActualSales(r.Context(), id, lineID, req.ActualSales, req.Comment)
	h.respond(w, sum, err)
}

func (h SummaryHandler) pages(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pages, err := h.Summaries.Pages(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pagesJSON(pages))
}

func (h SummaryHandler) print(w http.ResponseWriter, r *http.Request) {
	recordPrint(w, r, h.Prints, domain.PrintSummary)
}

func (h SummaryHandler) respond(w http.ResponseWriter, sum *domain.DistributorSummary, err error) {
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryJSON(*sum, true))
}
