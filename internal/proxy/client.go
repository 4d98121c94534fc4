// Package proxy provides the authenticated HTTP client used to forward
// requests to downstream LFX microservices. The gateway treats downstream
// services as opaque HTTP peers: it attaches a bearer token, forwards the
// shaped request, and hands back status, headers, and body.
package proxy

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/linuxfoundation/lfx-gateway/internal/errors"
)

const (
	maxResponseBytes  = 8 << 20  // 8 MiB
	maxErrorBodyBytes = 32 << 10 // 32 KiB
)

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// M2MToken is attached when a request carries no caller bearer token.
	M2MToken string
}

// Client is a generic request/response proxy for one downstream service.
type Client struct {
	baseURL    string
	m2mToken   string
	httpClient *http.Client
}

// Request describes a downstream call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is JSON-marshaled when non-nil.
	Body interface{}
	// Bearer overrides the configured M2M token for this call.
	Bearer string
	Header http.Header
}

// Response is the downstream outcome. Status may be any HTTP status; the
// caller decides how non-2xx responses map to errors (see AsError).
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// NewClient creates a Client for the given downstream base URL.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	transport := http.DefaultTransport
	if base, ok := http.DefaultTransport.(*http.Transport); ok {
		cloned := base.Clone()
		if cloned.TLSClientConfig == nil {
			cloned.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		} else if cloned.TLSClientConfig.MinVersion < tls.VersionTLS12 {
			cloned.TLSClientConfig = cloned.TLSClientConfig.Clone()
			cloned.TLSClientConfig.MinVersion = tls.VersionTLS12
		}
		transport = cloned
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		m2mToken: cfg.M2MToken,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// Do forwards the request downstream. Network-level failures are classified
// (timeout vs. unreachable); HTTP error statuses are returned in the
// Response for the caller to interpret.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	u := c.baseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var bodyReader *bytes.Reader
	if req.Body != nil {
		jsonBody, err := json.Marshal(req.Body)
		if err != nil {
			return nil, errors.Internal("Failed to marshal request body", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, bodyReader)
	if err != nil {
		return nil, errors.Internal("Failed to create request", err)
	}

	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	token := req.Bearer
	if token == "" {
		token = c.m2mToken
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) || isClientTimeout(err) {
			return nil, errors.Timeout("Downstream request timed out", err).
				WithDetails("path", req.Path)
		}
		return nil, errors.Unavailable("Downstream service unreachable", err).
			WithDetails("path", req.Path)
	}
	defer resp.Body.Close()

	limit := int64(maxResponseBytes)
	if resp.StatusCode >= 400 {
		limit = maxErrorBodyBytes
	}
	body, truncated, err := ReadAllWithLimit(resp.Body, limit)
	if err != nil {
		return nil, errors.Internal("Failed to read downstream response", err)
	}
	if truncated && resp.StatusCode < 400 {
		return nil, errors.Internal("Downstream response too large", fmt.Errorf("body exceeds %d bytes", limit))
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   body,
	}, nil
}

// Get performs a GET request with the caller's bearer token.
func (c *Client) Get(ctx context.Context, path string, query url.Values, bearer string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query, Bearer: bearer})
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body interface{}, bearer string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body, Bearer: bearer})
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body interface{}, bearer string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body, Bearer: bearer})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, bearer string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path, Bearer: bearer})
}

// AsError maps a non-2xx Response to the service error taxonomy, preserving
// the upstream status and any machine code the upstream body carries.
func AsError(resp *Response) error {
	if resp.Status < 400 {
		return nil
	}

	message := strings.TrimSpace(string(resp.Body))
	upstreamCode := ""
	if gjson.ValidBytes(resp.Body) {
		parsed := gjson.ParseBytes(resp.Body)
		if m := parsed.Get("error"); m.Exists() {
			message = m.String()
		} else if m := parsed.Get("message"); m.Exists() {
			message = m.String()
		}
		upstreamCode = parsed.Get("code").String()
	}

	var svcErr *errors.ServiceError
	switch resp.Status {
	case http.StatusNotFound:
		svcErr = errors.NotFound(message)
	case http.StatusPreconditionFailed, http.StatusConflict:
		svcErr = errors.PreconditionFailed(message)
	case http.StatusUnauthorized:
		svcErr = errors.Unauthorized(message)
	case http.StatusForbidden:
		svcErr = errors.Forbidden(message)
	default:
		svcErr = errors.Microservice(resp.Status, message, nil)
	}

	if upstreamCode != "" {
		svcErr.WithDetails("upstream_code", upstreamCode)
	}
	return svcErr.WithDetails("upstream_status", resp.Status)
}

func isClientTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	var te timeouter
	if stderrors.As(err, &te) {
		return te.Timeout()
	}
	return false
}
