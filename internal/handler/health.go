package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"backend-relay-go/internal/config"
	"backend-relay-go/internal/endpoint"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	table   []endpoint.Endpoint
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, table []endpoint.Endpoint, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, table: table, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns relay status information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":         "ok",
		"version":        string(h.version),
		"backend_origin": h.cfg.Backend.Origin,
		"endpoints":      strconv.Itoa(len(h.table)),
	})
}
