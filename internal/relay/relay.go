// Package relay implements the core forwarding logic: backend URL
// construction, header precedence, and body handling for one endpoint
// descriptor. Each Forward call makes exactly one backend request; there
// are no retries and no shared state between invocations.
package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"backend-relay-go/internal/client"
	"backend-relay-go/internal/config"
	"backend-relay-go/internal/endpoint"
	"backend-relay-go/internal/model"
)

const userAgent = "backend-relay-go/1.0"

// BodySnippetLimit caps the raw-body excerpt included in
// NON_JSON_BACKEND_RESPONSE diagnostics.
const BodySnippetLimit = 2000

// TransportError reports that the backend could not be reached at all,
// as opposed to a backend response with an abnormal status or body.
type TransportError struct {
	URL string // full backend URL attempted
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("backend unreachable at %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// InvalidBodyError reports an inbound body that fails to parse as JSON on
// an endpoint whose body mode requires parse-and-reserialize.
type InvalidBodyError struct {
	Err error
}

func (e *InvalidBodyError) Error() string {
	return fmt.Sprintf("invalid request body: %v", e.Err)
}

func (e *InvalidBodyError) Unwrap() error { return e.Err }

// Service forwards inbound requests to the backend origin according to
// an endpoint descriptor.
type Service struct {
	client  *client.BackendClient
	logger  *slog.Logger
	baseURL *url.URL
}

// NewService creates a Service for the configured backend origin.
func NewService(c *client.BackendClient, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	u, err := url.Parse(cfg.Backend.Origin)
	if err != nil {
		return nil, fmt.Errorf("parse backend origin: %w", err)
	}

	return &Service{
		client:  c,
		logger:  logger.With("component", "relay"),
		baseURL: u,
	}, nil
}

// Origin returns the configured backend origin.
func (s *Service) Origin() string {
	return s.baseURL.String()
}

// Forward sends the inbound request to the backend and returns the response.
// The caller is responsible for closing the response body.
//
// A network-level failure is returned as *TransportError carrying the URL
// attempted. A backend response is returned as-is regardless of status code;
// classifying abnormal bodies is the caller's concern.
func (s *Service) Forward(ep *endpoint.Endpoint, in *model.InboundRequest) (*model.BackendResponse, error) {
	backendURL, err := s.buildBackendURL(ep, in)
	if err != nil {
		return nil, err
	}

	body, err := prepareBody(ep, in)
	if err != nil {
		return nil, err
	}

	header := applyHeaderRules(ep.HeaderRules, in.Header)

	s.logger.Debug("forwarding request",
		"endpoint", ep.Name,
		"method", ep.Method,
		"url", backendURL,
	)

	resp, err := s.client.DoStream(in.Ctx, ep.Method, backendURL, header, body)
	if err != nil {
		return nil, &TransportError{URL: backendURL, Err: err}
	}

	return resp, nil
}

// buildBackendURL substitutes path parameters into the endpoint's backend
// path template and appends the inbound query string unmodified.
func (s *Service) buildBackendURL(ep *endpoint.Endpoint, in *model.InboundRequest) (string, error) {
	path, err := expandPath(ep.BackendPath, in.Params)
	if err != nil {
		return "", err
	}

	u := *s.baseURL
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""

	raw := u.String() + strings.TrimSuffix(s.baseURL.Path, "/") + path
	if in.RawQuery != "" {
		raw += "?" + in.RawQuery
	}
	return raw, nil
}

// expandPath replaces each {name} placeholder with the percent-encoded
// parameter value. Values are encoded exactly once, so a parameter of
// "a/b" becomes a single path segment "a%2Fb".
func expandPath(template string, params map[string]string) (string, error) {
	var missing string
	expanded := placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		name := m[1 : len(m)-1]
		val, ok := params[name]
		if !ok {
			missing = name
			return m
		}
		return url.PathEscape(val)
	})
	if missing != "" {
		return "", fmt.Errorf("path parameter %q not bound by route", missing)
	}
	return expanded, nil
}

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// applyHeaderRules builds the outbound header set. Rules are evaluated in
// order; for each rule the first present source header is forwarded under
// its own canonical name, so listing {"Authorization", "X-User-Id"} forwards
// only Authorization when both are present.
func applyHeaderRules(rules []endpoint.HeaderRule, src http.Header) http.Header {
	dst := make(http.Header)
	for _, rule := range rules {
		for _, name := range rule.Sources {
			if vals := src.Values(name); len(vals) > 0 {
				dst[http.CanonicalHeaderKey(name)] = vals
				break
			}
		}
	}
	dst.Set("User-Agent", userAgent)
	return dst
}

// prepareBody returns the outbound request body per the endpoint's body mode.
// JSON mode reads the inbound body fully and re-serializes it; raw mode
// passes the stream through untouched.
func prepareBody(ep *endpoint.Endpoint, in *model.InboundRequest) (io.Reader, error) {
	if ep.BodyMode != endpoint.BodyJSON || in.Body == nil {
		return in.Body, nil
	}

	raw, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return http.NoBody, nil
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &InvalidBodyError{Err: err}
	}
	reencoded, err := json.Marshal(parsed)
	if err != nil {
		return nil, fmt.Errorf("re-encode request body: %w", err)
	}
	return bytes.NewReader(reencoded), nil
}

// Snippet returns the first BodySnippetLimit characters of s, measured in
// runes so multi-byte sequences are never split.
func Snippet(s string) string {
	runes := []rune(s)
	if len(runes) <= BodySnippetLimit {
		return s
	}
	return string(runes[:BodySnippetLimit])
}
