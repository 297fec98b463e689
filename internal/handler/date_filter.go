package handler

import (
	"net/http"
	"strconv"
	"time"

	"payin-backend/internal/domain"
)

const dateLayout = "2006-01-02"

const defaultLimit = 200

func parseDateQuery(r *http.Request, key string) (*time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		if parsed, err = time.Parse(time.RFC3339, value); err != nil {
			return nil, domain.Invalid("request", 0, key, "must be YYYY-MM-DD or RFC3339")
		}
	}
	return &parsed, nil
}

// parsePeriodQuery reads a YYYY-MM period.
func parsePeriodQuery(r *http.Request, key string) (*domain.Period, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, nil
	}
	p, err := domain.ParsePeriod(value)
	if err != nil {
		return nil, domain.Invalid("request", 0, key, err.Error())
	}
	return &p, nil
}

func parseIDQuery(r *http.Request, key string) (*int64, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, domain.Invalid("request", 0, key, "must be an integer")
	}
	return &id, nil
}

func parseLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > 1000 {
		return 1000
	}
	return n
}
