// Package endpoint defines the declarative relay endpoint descriptors.
//
// An Endpoint describes one proxied route: the inbound route pattern, the
// backend path template it maps to, which headers are forwarded and in what
// precedence order, and how the request and response bodies are treated.
// The relay dispatches on this table instead of per-route handler code.
package endpoint

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// BodyMode controls how the inbound request body is forwarded.
type BodyMode string

const (
	// BodyJSON parses the inbound body as JSON and re-serializes it.
	BodyJSON BodyMode = "json"
	// BodyRaw forwards the inbound body bytes unmodified.
	BodyRaw BodyMode = "raw"
)

// ResponseMode controls how the backend response is relayed back.
type ResponseMode string

const (
	// ResponseJSON decodes the backend body as JSON and re-emits it,
	// synthesizing a diagnostic envelope when the body is empty or unparsable.
	ResponseJSON ResponseMode = "json"
	// ResponseStream copies the backend body bytes unmodified.
	ResponseStream ResponseMode = "stream"
)

// HeaderRule forwards the first present source header under its own name.
// Listing alternatives expresses precedence: {"Authorization", "X-User-Id"}
// forwards Authorization when both are present.
type HeaderRule struct {
	Sources []string `toml:"sources"`
}

// Endpoint is one declarative relay route.
type Endpoint struct {
	Name            string            `toml:"name"`
	Method          string            `toml:"method"`
	Route           string            `toml:"route"`        // echo pattern, e.g. /api/artifacts/:id/file
	BackendPath     string            `toml:"backend_path"` // template, e.g. /api/artifacts/{id}/file
	HeaderRules     []HeaderRule      `toml:"header_rules"`
	BodyMode        BodyMode          `toml:"body_mode"`
	ResponseMode    ResponseMode      `toml:"response_mode"`
	FallbackHeaders map[string]string `toml:"fallback_headers"` // stream mode: defaults when the backend omits a header
}

// DefaultHeaderRules is applied to endpoints that declare no rules:
// Authorization wins over X-User-Id, and Content-Type passes through.
var DefaultHeaderRules = []HeaderRule{
	{Sources: []string{"Authorization", "X-User-Id"}},
	{Sources: []string{"Content-Type"}},
}

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

var knownMethods = []any{
	http.MethodGet, http.MethodPost, http.MethodPut,
	http.MethodDelete, http.MethodPatch, http.MethodHead,
}

// Normalize fills zero-valued fields with defaults and canonicalizes the method.
func (e *Endpoint) Normalize() {
	e.Method = strings.ToUpper(e.Method)
	if e.BodyMode == "" {
		e.BodyMode = BodyRaw
	}
	if e.ResponseMode == "" {
		e.ResponseMode = ResponseJSON
	}
	if e.HeaderRules == nil {
		e.HeaderRules = DefaultHeaderRules
	}
}

// Validate checks the descriptor for internal consistency.
func (e Endpoint) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Name,
			validation.Required,
			validation.Match(regexp.MustCompile(`^[a-z][a-z0-9_]*$`)).
				Error("must be lowercase snake_case"),
		),
		validation.Field(&e.Method,
			validation.Required,
			validation.In(knownMethods...),
		),
		validation.Field(&e.Route,
			validation.Required,
			validation.By(validatePath),
		),
		validation.Field(&e.BackendPath,
			validation.Required,
			validation.By(validatePath),
			validation.By(e.validatePlaceholders),
		),
		validation.Field(&e.BodyMode,
			validation.In(BodyJSON, BodyRaw),
		),
		validation.Field(&e.ResponseMode,
			validation.In(ResponseJSON, ResponseStream),
		),
		validation.Field(&e.HeaderRules,
			validation.Each(validation.By(validateHeaderRule)),
		),
	)
}

// ValidateSet validates each endpoint and rejects duplicate names and
// duplicate method+route pairs across the table.
func ValidateSet(eps []Endpoint) error {
	names := make(map[string]bool, len(eps))
	routes := make(map[string]bool, len(eps))
	for i := range eps {
		if err := eps[i].Validate(); err != nil {
			return fmt.Errorf("endpoint %q: %w", eps[i].Name, err)
		}
		if names[eps[i].Name] {
			return fmt.Errorf("endpoint %q: duplicate name", eps[i].Name)
		}
		names[eps[i].Name] = true
		key := eps[i].Method + " " + eps[i].Route
		if routes[key] {
			return fmt.Errorf("endpoint %q: duplicate route %s", eps[i].Name, key)
		}
		routes[key] = true
	}
	return nil
}

// Placeholders returns the parameter names referenced by the backend path template.
func (e Endpoint) Placeholders() []string {
	matches := placeholderPattern.FindAllStringSubmatch(e.BackendPath, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// RouteParams returns the parameter names declared by the echo route pattern.
func (e Endpoint) RouteParams() map[string]bool {
	params := make(map[string]bool)
	for _, seg := range strings.Split(e.Route, "/") {
		if name, ok := strings.CutPrefix(seg, ":"); ok && name != "" {
			params[name] = true
		}
	}
	return params
}

func (e Endpoint) validatePlaceholders(any) error {
	params := e.RouteParams()
	for _, name := range e.Placeholders() {
		if !params[name] {
			return fmt.Errorf("placeholder {%s} has no matching :%s route parameter", name, name)
		}
	}
	return nil
}

func validatePath(value any) error {
	s, _ := value.(string)
	if !strings.HasPrefix(s, "/") {
		return fmt.Errorf("must start with '/'")
	}
	return nil
}

func validateHeaderRule(value any) error {
	rule, ok := value.(HeaderRule)
	if !ok {
		return fmt.Errorf("must be a HeaderRule")
	}
	if len(rule.Sources) == 0 {
		return fmt.Errorf("must list at least one source header")
	}
	for _, src := range rule.Sources {
		if strings.TrimSpace(src) == "" {
			return fmt.Errorf("source header name must not be blank")
		}
	}
	return nil
}

// Defaults returns the built-in endpoint table. Config-declared endpoints
// are appended to this set at load time.
func Defaults() []Endpoint {
	eps := []Endpoint{
		{
			Name:        "login",
			Method:      http.MethodPost,
			Route:       "/api/auth/login",
			BackendPath: "/api/auth/login",
			HeaderRules: []HeaderRule{{Sources: []string{"Content-Type"}}},
			BodyMode:    BodyJSON,
		},
		{
			Name:        "accept_offer",
			Method:      http.MethodPost,
			Route:       "/api/legal/offers/:offer_id/accept",
			BackendPath: "/api/legal/offers/{offer_id}/accept",
			BodyMode:    BodyJSON,
		},
		{
			Name:        "vacancy",
			Method:      http.MethodGet,
			Route:       "/api/vacancies/:id",
			BackendPath: "/api/vacancies/{id}",
		},
		{
			Name:         "artifact_download",
			Method:       http.MethodGet,
			Route:        "/api/artifacts/:id/file",
			BackendPath:  "/api/artifacts/{id}/file",
			ResponseMode: ResponseStream,
			FallbackHeaders: map[string]string{
				"Content-Type":  "application/octet-stream",
				"Cache-Control": "no-store",
			},
		},
		{
			Name:        "artifact_delete",
			Method:      http.MethodDelete,
			Route:       "/api/artifacts/:id",
			BackendPath: "/api/artifacts/{id}",
			HeaderRules: []HeaderRule{{Sources: []string{"X-Admin-Token"}}},
		},
	}
	for i := range eps {
		eps[i].Normalize()
	}
	return eps
}
