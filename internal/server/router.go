package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"payin-backend/internal/config"
	"payin-backend/internal/handler"
)

// Handlers groups every route owner mounted by NewRouter.
type Handlers struct {
	Health    handler.HealthHandler
	Members   handler.MemberHandler
	Sheets    handler.SheetHandler
	Summaries handler.SummaryHandler
	History   handler.HistoryHandler
	Rules     handler.RuleHandler
}

// NewRouter wires HTTP routes and middleware.
func NewRouter(cfg config.Config, logger *slog.Logger, h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Actor", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	rate := cfg.RateLimit
	if rate <= 0 {
		rate = 200
	}
	r.Use(httprate.LimitByIP(rate, 1*time.Minute))

	h.Health.RegisterRoutes(r)
	r.Method("GET", "/metrics", promhttp.Handler())

	h.Members.RegisterRoutes(r)
	h.Sheets.RegisterRoutes(r)
	h.Summaries.RegisterRoutes(r)
	h.History.RegisterRoutes(r)
	h.Rules.RegisterRoutes(r)

	return r
}
