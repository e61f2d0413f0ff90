package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"dexgrad/pkg/utils"
)

// HealthCheck проверяет одну зависимость (БД, хранилище брокеров, redis)
type HealthCheck func(ctx context.Context) error

// HealthHandler отвечает на GET /health
type HealthHandler struct {
	checks  map[string]HealthCheck
	timeout time.Duration
}

// NewHealthHandler создает HealthHandler. Без проверок всегда отвечает OK.
func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		timeout: 3 * time.Second,
	}
}

// HealthResponse ответ health check
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health проверяет зависимости
// GET /health
//
// Response:
// - 200 OK: все проверки прошли
// - 503 Service Unavailable: хотя бы одна зависимость недоступна
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := HealthResponse{Status: "ok"}
	if len(names) > 0 {
		resp.Checks = make(map[string]string, len(names))
	}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks[name] = "unavailable"
			requestLogger(r, "health").Warn("health check failed", utils.String("check", name), utils.Err(err))
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	respondWithJSON(w, status, resp)
}
