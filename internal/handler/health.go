package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"reddit_relay/internal/domain"
)

type StatusProvider interface {
	Health() domain.Health
	Stats() domain.LifetimeStats
}

type LedgerStatsProvider interface {
	Stats() domain.LedgerStats
}

// HealthHandler serves the read-only status endpoints.
type HealthHandler struct {
	status StatusProvider
	ledger LedgerStatsProvider
}

// NewHealthHandler creates a new health handler. ledger may be nil.
func NewHealthHandler(status StatusProvider, ledger LedgerStatsProvider) *HealthHandler {
	return &HealthHandler{status: status, ledger: ledger}
}

// Health processes the /health endpoint. Unhealthy maps to 503.
func (h *HealthHandler) Health(c echo.Context) error {
	health := h.status.Health()

	code := http.StatusOK
	if health.Status == domain.HealthUnhealthy {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, health)
}

type statsResponse struct {
	Sync   domain.LifetimeStats `json:"sync"`
	Ledger *domain.LedgerStats  `json:"ledger,omitempty"`
}

// Stats processes the /stats endpoint.
func (h *HealthHandler) Stats(c echo.Context) error {
	resp := statsResponse{Sync: h.status.Stats()}
	if h.ledger != nil {
		ls := h.ledger.Stats()
		resp.Ledger = &ls
	}
	return c.JSON(http.StatusOK, resp)
}
