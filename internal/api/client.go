// Package api is a typed HTTP client for the Atenex API gateway. Every
// operation of the ingest, query and admin services goes through a single
// request path that handles auth headers, error mapping and JSON decoding.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	u "github.com/gofrs/uuid/v5"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"atenex-cli/internal/errs"
)

const (
	apiPrefix     = "/api/v1/"
	loginEndpoint = "/api/v1/users/login"
	adminPrefix   = "/api/v1/admin"

	defaultTimeout = 30 * time.Second
)

// endpoints reachable without the versioned prefix check.
var openEndpoints = map[string]bool{
	"/api/v1/docs":  true,
	"/openapi.json": true,
}

// Error is the typed failure returned for every unsuccessful request.
// Status 0 means the gateway was never reached.
type Error struct {
	Status  int
	Message string
	Detail  json.RawMessage
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("api: %s", e.Message)
	}
	return fmt.Sprintf("api (%d): %s", e.Status, e.Message)
}

// Unwrap maps HTTP statuses onto the shared sentinels so callers can use
// errors.Is without inspecting status codes.
func (e *Error) Unwrap() error {
	switch e.Status {
	case 0:
		return errs.ErrUnreachable
	case http.StatusUnauthorized, http.StatusForbidden:
		return errs.ErrUnauthorized
	case http.StatusNotFound:
		return errs.ErrNotFound
	case http.StatusConflict:
		return errs.ErrDuplicate
	case http.StatusTooManyRequests:
		return errs.ErrRateLimited
	}
	return nil
}

// TokenSource supplies the current bearer token, empty when signed out.
// The session store implements it.
type TokenSource interface {
	Token() string
}

// TenantAuth carries the tenant identification headers required by
// tenant-scoped endpoints.
type TenantAuth struct {
	UserID    string
	CompanyID string
}

// Client calls the API gateway. Safe for concurrent use.
type Client struct {
	base   string
	httpc  *http.Client
	tokens TokenSource
	log    *zap.Logger

	// adminCache holds slow-changing admin lookups (company select list,
	// platform stats) for a short TTL.
	adminCache *gocache.Cache
}

// New builds a Client for the given gateway base URL (no trailing slash).
func New(base string, tokens TokenSource, log *zap.Logger) *Client {
	return &Client{
		base:       strings.TrimSuffix(base, "/"),
		httpc:      &http.Client{Timeout: defaultTimeout},
		tokens:     tokens,
		log:        log,
		adminCache: gocache.New(time.Minute, 5*time.Minute),
	}
}

type requestSpec struct {
	method   string
	endpoint string
	query    url.Values
	body     any       // JSON-marshaled unless raw is set
	raw      io.Reader // pre-encoded body (multipart upload)
	rawType  string
	tenant   *TenantAuth
	noAuth   bool // login: never attach a token
}

// do performs one request and decodes a JSON response into out (out may be
// nil for endpoints whose response body is irrelevant). 204 and empty bodies
// decode to nothing.
func (c *Client) do(ctx context.Context, spec requestSpec, out any) error {
	endpoint := spec.endpoint
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	if !strings.HasPrefix(endpoint, apiPrefix) && !openEndpoints[endpoint] {
		return &Error{Status: http.StatusBadRequest, Message: fmt.Sprintf("invalid API endpoint %q: must start with %s", endpoint, apiPrefix)}
	}

	full := c.base + endpoint
	if len(spec.query) > 0 {
		full += "?" + spec.query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case spec.raw != nil:
		body = spec.raw
		contentType = spec.rawType
	case spec.body != nil:
		buf, err := json.Marshal(spec.body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(buf)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, spec.method, full, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if reqID, err := u.NewV4(); err == nil {
		req.Header.Set("X-Request-Id", reqID.String())
	}
	if spec.tenant != nil {
		req.Header.Set("X-User-ID", spec.tenant.UserID)
		req.Header.Set("X-Company-ID", spec.tenant.CompanyID)
	}

	token := ""
	if !spec.noAuth && c.tokens != nil {
		token = c.tokens.Token()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else if c.protectedEndpoint(endpoint) {
		c.log.Warn("request to protected endpoint without authorization",
			zap.String("endpoint", endpoint),
		)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &Error{Status: 0, Message: "network error or API gateway unreachable: " + err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.errorFromResponse(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || resp.ContentLength == 0 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Status: resp.StatusCode, Message: "could not read response body"}
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.log.Error("invalid JSON response",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
		)
		return &Error{Status: resp.StatusCode, Message: "invalid JSON response received from server"}
	}
	return nil
}

// protectedEndpoint reports whether a missing token is worth a warning.
// Login and docs endpoints are public; admin endpoints are left to the
// gateway's own rejection.
func (c *Client) protectedEndpoint(endpoint string) bool {
	if endpoint == loginEndpoint || openEndpoints[endpoint] {
		return false
	}
	return !strings.HasPrefix(endpoint, adminPrefix)
}

// errorBody is the structured error shape the gateway emits: either a plain
// detail string, a list of field validation entries, or a message.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
}

type errorDetailItem struct {
	Msg  string `json:"msg"`
	Type string `json:"type"`
	Loc  []any  `json:"loc"`
}

const maxErrorTextLen = 200

// errorFromResponse extracts the most specific human-readable message from a
// non-2xx response: structured JSON detail preferred, then raw text, then the
// status text.
func (c *Client) errorFromResponse(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	apiErr := &Error{Status: resp.StatusCode, Message: fmt.Sprintf("API error (%d)", resp.StatusCode)}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil {
			apiErr.Detail = eb.Detail
			if msg := messageFromDetail(eb); msg != "" {
				apiErr.Message = msg
				return apiErr
			}
		}
	}

	if text := strings.TrimSpace(string(data)); text != "" {
		apiErr.Message = truncate(text, maxErrorTextLen)
		return apiErr
	}
	if st := http.StatusText(resp.StatusCode); st != "" {
		apiErr.Message = st
	}
	return apiErr
}

func messageFromDetail(eb errorBody) string {
	if len(eb.Detail) > 0 {
		var s string
		if json.Unmarshal(eb.Detail, &s) == nil && s != "" {
			return s
		}
		var items []errorDetailItem
		if json.Unmarshal(eb.Detail, &items) == nil && len(items) > 0 && items[0].Msg != "" {
			parts := make([]string, 0, len(items))
			for _, it := range items {
				if len(it.Loc) > 0 {
					locs := make([]string, 0, len(it.Loc))
					for _, l := range it.Loc {
						locs = append(locs, fmt.Sprint(l))
					}
					parts = append(parts, strings.Join(locs, ".")+": "+it.Msg)
				} else {
					parts = append(parts, it.Msg)
				}
			}
			return strings.Join(parts, "; ")
		}
	}
	if eb.Message != "" {
		return eb.Message
	}
	if len(eb.Detail) > 0 {
		return truncate(string(eb.Detail), maxErrorTextLen)
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// IsStatus reports whether err is an api.Error with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}
