// Package etag implements the optimistic-concurrency protocol used for
// every mutating call against the LFX resource API: fetch the resource and
// its version tag, mutate in memory, then write conditionally with If-Match.
//
// A stale tag surfaces as a distinct precondition-failed error so callers
// can re-fetch and retry; it is never masked as a generic failure. The
// service performs no retries itself.
package etag

import (
	"context"
	"net/http"

	"github.com/linuxfoundation/lfx-gateway/internal/errors"
	"github.com/linuxfoundation/lfx-gateway/internal/proxy"
)

// Resource is a fetched upstream resource together with its version tag.
type Resource struct {
	Body   []byte
	ETag   string
	Header http.Header
}

// Service wraps a downstream proxy client with the conditional-write
// protocol.
type Service struct {
	client *proxy.Client
}

// NewService creates a Service over the given downstream client.
func NewService(client *proxy.Client) *Service {
	return &Service{client: client}
}

// Fetch performs a GET and requires the response to carry an ETag header.
// A missing header is an upstream contract violation (ETAG_MISSING) and is
// reported distinctly from a missing resource (NOT_FOUND).
func (s *Service) Fetch(ctx context.Context, path, bearer string) (*Resource, error) {
	resp, err := s.client.Get(ctx, path, nil, bearer)
	if err != nil {
		return nil, err
	}
	if err := proxy.AsError(resp); err != nil {
		return nil, err
	}

	tag := resp.Header.Get("ETag")
	if tag == "" {
		return nil, errors.ETagMissing(path)
	}

	return &Resource{
		Body:   resp.Body,
		ETag:   tag,
		Header: resp.Header,
	}, nil
}

// Update performs a conditional PUT using the previously fetched tag as the
// If-Match precondition. The upstream rejects the write with 412 (or 409)
// when the resource changed since the fetch; that outcome is surfaced as a
// PRECONDITION_FAILED error and the caller must re-fetch to retry.
func (s *Service) Update(ctx context.Context, path, tag string, payload interface{}, bearer string) ([]byte, error) {
	if tag == "" {
		return nil, errors.Validation("If-Match tag is required for update")
	}

	resp, err := s.client.Do(ctx, proxy.Request{
		Method: http.MethodPut,
		Path:   path,
		Body:   payload,
		Bearer: bearer,
		Header: http.Header{"If-Match": []string{tag}},
	})
	if err != nil {
		return nil, err
	}
	if err := proxy.AsError(resp); err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Delete performs a conditional DELETE with the If-Match precondition.
func (s *Service) Delete(ctx context.Context, path, tag, bearer string) error {
	if tag == "" {
		return errors.Validation("If-Match tag is required for delete")
	}

	resp, err := s.client.Do(ctx, proxy.Request{
		Method: http.MethodDelete,
		Path:   path,
		Bearer: bearer,
		Header: http.Header{"If-Match": []string{tag}},
	})
	if err != nil {
		return err
	}
	return proxy.AsError(resp)
}
