package handler

import (
	"github.com/labstack/echo/v4"

	"backend-relay-go/internal/endpoint"
)

// RegisterRoutes wires the health endpoints and every entry of the relay
// endpoint table onto the Echo instance.
func RegisterRoutes(e *echo.Echo, table []endpoint.Endpoint, relay *RelayHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/relay/status", health.Status)

	for _, ep := range table {
		e.Add(ep.Method, ep.Route, relay.HandlerFor(ep))
	}
}
