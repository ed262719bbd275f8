// Package model defines shared types for the relay.
package model

import (
	"context"
	"io"
	"net/http"
)

// InboundRequest represents a client request to be forwarded to the backend.
type InboundRequest struct {
	Ctx      context.Context
	Method   string
	Params   map[string]string // route path parameters, unescaped
	RawQuery string            // inbound query string, appended to the backend URL as-is
	Header   http.Header
	Body     io.ReadCloser
}

// BackendResponse represents the backend response to be relayed back.
type BackendResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
	URL        string // full backend URL the request was sent to
}

// Relay-level error codes surfaced in diagnostic envelopes.
const (
	ErrCodeBackendUnreachable = "BACKEND_UNREACHABLE"
	ErrCodeEmptyBackendBody   = "EMPTY_BACKEND_RESPONSE"
	ErrCodeNonJSONBackendBody = "NON_JSON_BACKEND_RESPONSE"
	ErrCodeInvalidRequestBody = "INVALID_REQUEST_BODY"
)

// Diagnostic is the JSON error body synthesized by the relay itself,
// as opposed to error payloads passed through from the backend.
type Diagnostic struct {
	OK         bool   `json:"ok"`
	Error      string `json:"error"`
	BackendURL string `json:"backend_url,omitempty"`
	Status     int    `json:"status,omitempty"`
	Detail     string `json:"detail,omitempty"`
	ParseError string `json:"parse_error,omitempty"`
	Body       string `json:"body,omitempty"`
}
