package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"backend-relay-go/internal/endpoint"
	"backend-relay-go/internal/metrics"
	"backend-relay-go/internal/model"
	"backend-relay-go/internal/relay"
)

// streamHeaders are the backend response headers relayed in stream mode.
// Endpoints supply fallback values for headers the backend omits.
var streamHeaders = []string{
	"Content-Type",
	"Content-Disposition",
	"Cache-Control",
}

// RelayHandler serves all relay endpoints from their descriptors.
type RelayHandler struct {
	service *relay.Service
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRelayHandler creates a RelayHandler. The metrics parameter is optional;
// pass nil to disable relay failure counters.
func NewRelayHandler(svc *relay.Service, logger *slog.Logger, m *metrics.Metrics) *RelayHandler {
	return &RelayHandler{
		service: svc,
		logger:  logger.With("component", "relay_handler"),
		metrics: m,
	}
}

// HandlerFor returns the echo handler for one endpoint descriptor.
func (h *RelayHandler) HandlerFor(ep endpoint.Endpoint) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()

		// Echo hands param values over in raw (possibly percent-encoded)
		// form; unescape here so the relay encodes them exactly once when
		// substituting into the backend path.
		params := make(map[string]string, len(c.ParamNames()))
		for i, name := range c.ParamNames() {
			val := c.ParamValues()[i]
			if unescaped, err := url.PathUnescape(val); err == nil {
				val = unescaped
			}
			params[name] = val
		}

		in := &model.InboundRequest{
			Ctx:      req.Context(),
			Method:   req.Method,
			Params:   params,
			RawQuery: req.URL.RawQuery,
			Header:   req.Header,
			Body:     req.Body,
		}

		resp, err := h.service.Forward(&ep, in)
		if err != nil {
			return h.mapError(c, &ep, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if ep.ResponseMode == endpoint.ResponseStream {
			return h.relayStream(c, &ep, resp)
		}
		return h.relayJSON(c, &ep, resp)
	}
}

// relayJSON reads the backend body as text and re-emits it as JSON with the
// backend's original status code. An empty or unparsable body is reported as
// a 502 diagnostic; any other status, including backend errors, passes
// through transparently.
func (h *RelayHandler) relayJSON(c echo.Context, ep *endpoint.Endpoint, resp *model.BackendResponse) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return h.diagnostic(c, ep, model.Diagnostic{
			Error:      model.ErrCodeBackendUnreachable,
			BackendURL: resp.URL,
			Detail:     "reading backend response: " + err.Error(),
		})
	}

	text := strings.TrimSpace(string(raw))
	if text == "" {
		return h.diagnostic(c, ep, model.Diagnostic{
			Error:      model.ErrCodeEmptyBackendBody,
			BackendURL: resp.URL,
			Status:     resp.StatusCode,
		})
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return h.diagnostic(c, ep, model.Diagnostic{
			Error:      model.ErrCodeNonJSONBackendBody,
			BackendURL: resp.URL,
			Status:     resp.StatusCode,
			ParseError: err.Error(),
			Body:       relay.Snippet(string(raw)),
		})
	}

	return c.JSON(resp.StatusCode, parsed)
}

// relayStream copies the backend status and body bytes unmodified, relaying
// only the stream header subset with per-endpoint fallbacks.
func (h *RelayHandler) relayStream(c echo.Context, ep *endpoint.Endpoint, resp *model.BackendResponse) error {
	header := c.Response().Header()
	for _, name := range streamHeaders {
		if v := resp.Header.Get(name); v != "" {
			header.Set(name, v)
		} else if fallback := ep.FallbackHeaders[name]; fallback != "" {
			header.Set(name, fallback)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// If the copy fails mid-stream the status has already been sent, so
	// the client sees a truncated body. Nothing to do but log it.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"endpoint", ep.Name,
		)
	}

	return nil
}

func (h *RelayHandler) mapError(c echo.Context, ep *endpoint.Endpoint, err error) error {
	var invalidBody *relay.InvalidBodyError
	if errors.As(err, &invalidBody) {
		return h.diagnosticStatus(c, ep, http.StatusBadRequest, model.Diagnostic{
			Error:  model.ErrCodeInvalidRequestBody,
			Detail: invalidBody.Err.Error(),
		})
	}

	var transport *relay.TransportError
	if errors.As(err, &transport) {
		return h.diagnostic(c, ep, model.Diagnostic{
			Error:      model.ErrCodeBackendUnreachable,
			BackendURL: transport.URL,
			Detail:     transport.Err.Error(),
		})
	}

	h.logger.Error("relay error",
		"err", err,
		"endpoint", ep.Name,
	)
	return echo.NewHTTPError(http.StatusInternalServerError, "relay failure")
}

// diagnostic emits a relay-synthesized envelope with the fixed 502 status
// used for all "backend contract violated" classes.
func (h *RelayHandler) diagnostic(c echo.Context, ep *endpoint.Endpoint, d model.Diagnostic) error {
	return h.diagnosticStatus(c, ep, http.StatusBadGateway, d)
}

func (h *RelayHandler) diagnosticStatus(c echo.Context, ep *endpoint.Endpoint, status int, d model.Diagnostic) error {
	d.OK = false

	h.logger.Warn("relay diagnostic",
		"endpoint", ep.Name,
		"error", d.Error,
		"backend_url", d.BackendURL,
		"detail", d.Detail,
	)
	if h.metrics != nil {
		h.metrics.RelayFailures.WithLabelValues(ep.Name, d.Error).Inc()
	}

	return c.JSON(status, d)
}
