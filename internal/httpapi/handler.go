// Package httpapi exposes the gateway's REST surface. Controllers marshal
// request parameters into service calls, forward to the right backend, and
// reshape responses; they never swallow errors and never invent statuses.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/linuxfoundation/lfx-gateway/internal/config"
	"github.com/linuxfoundation/lfx-gateway/internal/errors"
	"github.com/linuxfoundation/lfx-gateway/internal/etag"
	"github.com/linuxfoundation/lfx-gateway/internal/httputil"
	"github.com/linuxfoundation/lfx-gateway/internal/identity"
	"github.com/linuxfoundation/lfx-gateway/internal/logging"
	"github.com/linuxfoundation/lfx-gateway/internal/middleware"
	"github.com/linuxfoundation/lfx-gateway/internal/proxy"
	"github.com/linuxfoundation/lfx-gateway/internal/warehouse"
)

const maxRequestBodyBytes = 1 << 20 // 1 MiB

// Handler bundles the gateway's controllers.
type Handler struct {
	logger   *logging.Logger
	query    *proxy.Client
	etags    *etag.Service
	exec     *warehouse.Executor
	identity *identity.Client
	catalog  *config.QueryCatalog
}

// New creates the Handler. exec and identityClient may be nil when the
// corresponding backend is not configured; their endpoints then report the
// configuration error on use.
func New(logger *logging.Logger, queryClient *proxy.Client, exec *warehouse.Executor, identityClient *identity.Client, catalog *config.QueryCatalog) *Handler {
	if catalog == nil {
		catalog = config.DefaultQueryCatalog()
	}
	return &Handler{
		logger:   logger,
		query:    queryClient,
		etags:    etag.NewService(queryClient),
		exec:     exec,
		identity: identityClient,
		catalog:  catalog,
	}
}

// Register mounts all routes on the router.
func (h *Handler) Register(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()

	// Meetings
	api.HandleFunc("/meetings", h.listMeetings).Methods(http.MethodGet)
	api.HandleFunc("/meetings", h.createMeeting).Methods(http.MethodPost)
	api.HandleFunc("/meetings/{uid}", h.getMeeting).Methods(http.MethodGet)
	api.HandleFunc("/meetings/{uid}", h.updateMeeting).Methods(http.MethodPut)
	api.HandleFunc("/meetings/{uid}", h.deleteMeeting).Methods(http.MethodDelete)
	api.HandleFunc("/meetings/{uid}/registrants", h.listRegistrants).Methods(http.MethodGet)
	api.HandleFunc("/meetings/{uid}/registrants", h.createRegistrant).Methods(http.MethodPost)
	api.HandleFunc("/meetings/{uid}/registrants/{rid}", h.updateRegistrant).Methods(http.MethodPut)
	api.HandleFunc("/meetings/{uid}/registrants/{rid}", h.deleteRegistrant).Methods(http.MethodDelete)

	// Committees
	api.HandleFunc("/committees", h.listCommittees).Methods(http.MethodGet)
	api.HandleFunc("/committees", h.createCommittee).Methods(http.MethodPost)
	api.HandleFunc("/committees/{uid}", h.getCommittee).Methods(http.MethodGet)
	api.HandleFunc("/committees/{uid}", h.updateCommittee).Methods(http.MethodPut)
	api.HandleFunc("/committees/{uid}", h.deleteCommittee).Methods(http.MethodDelete)
	api.HandleFunc("/committees/{uid}/members", h.listCommitteeMembers).Methods(http.MethodGet)
	api.HandleFunc("/committees/{uid}/members", h.createCommitteeMember).Methods(http.MethodPost)
	api.HandleFunc("/committees/{uid}/members/{mid}", h.updateCommitteeMember).Methods(http.MethodPut)
	api.HandleFunc("/committees/{uid}/members/{mid}", h.deleteCommitteeMember).Methods(http.MethodDelete)

	// Projects and organizations (read-only pass-through)
	api.HandleFunc("/projects", h.listProjects).Methods(http.MethodGet)
	api.HandleFunc("/projects/{uid}", h.getProject).Methods(http.MethodGet)
	api.HandleFunc("/organizations", h.listOrganizations).Methods(http.MethodGet)
	api.HandleFunc("/organizations/{uid}", h.getOrganization).Methods(http.MethodGet)

	// Users (identity service)
	api.HandleFunc("/users/me", h.getCurrentUser).Methods(http.MethodGet)
	api.HandleFunc("/users/me", h.updateCurrentUser).Methods(http.MethodPatch)
	api.HandleFunc("/users/me/email", h.linkEmail).Methods(http.MethodPost)

	// Analytics (warehouse)
	api.HandleFunc("/analytics/query", h.analyticsQuery).Methods(http.MethodPost)
	api.HandleFunc("/analytics/queries/{name}", h.analyticsNamedQuery).Methods(http.MethodGet)
	api.HandleFunc("/analytics/stats", h.analyticsStats).Methods(http.MethodGet)

	// Public, unauthenticated meeting lookup
	r.HandleFunc("/public/api/meetings/{uid}", h.getPublicMeeting).Methods(http.MethodGet)
}

// bearer returns the caller's bearer token from the request context.
func bearer(r *http.Request) string {
	return middleware.GetBearerToken(r.Context())
}

// decodeJSON decodes a bounded JSON request body.
func decodeJSON(r *http.Request, target interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		return errors.Validation("Failed to read request body")
	}
	if len(body) == 0 {
		return errors.Validation("Request body is required")
	}
	if err := json.Unmarshal(body, target); err != nil {
		return errors.Validation("Request body is not valid JSON")
	}
	return nil
}

// respondError logs the failure with operation context and writes the
// mapped error response.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	h.logger.WithContext(r.Context()).WithError(err).
		WithField("operation", operation).
		Error("Request failed")
	httputil.WriteServiceError(w, err)
}

// forward proxies a response body straight through with the given status.
func forwardJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// passthrough forwards a GET to the query service and relays the response.
func (h *Handler) passthrough(w http.ResponseWriter, r *http.Request, operation, path string) {
	resp, err := h.query.Get(r.Context(), path, r.URL.Query(), bearer(r))
	if err != nil {
		h.respondError(w, r, operation, err)
		return
	}
	if err := proxy.AsError(resp); err != nil {
		h.respondError(w, r, operation, err)
		return
	}
	forwardJSON(w, resp.Status, resp.Body)
}

func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}
