package httpapi

import (
	"net/http"

	"github.com/linuxfoundation/lfx-gateway/internal/errors"
	"github.com/linuxfoundation/lfx-gateway/internal/httputil"
	"github.com/linuxfoundation/lfx-gateway/internal/identity"
	"github.com/linuxfoundation/lfx-gateway/internal/middleware"
)

func (h *Handler) getCurrentUser(w http.ResponseWriter, r *http.Request) {
	if h.identity == nil {
		h.respondError(w, r, "get_current_user", errors.Configuration("Identity service is not configured"))
		return
	}

	username := middleware.GetUserID(r.Context())
	if username == "" {
		h.respondError(w, r, "get_current_user", errors.Unauthorized("No authenticated user"))
		return
	}

	meta, err := h.identity.GetUserMetadata(r.Context(), username)
	if err != nil {
		h.respondError(w, r, "get_current_user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, meta)
}

func (h *Handler) updateCurrentUser(w http.ResponseWriter, r *http.Request) {
	if h.identity == nil {
		h.respondError(w, r, "update_current_user", errors.Configuration("Identity service is not configured"))
		return
	}

	username := middleware.GetUserID(r.Context())
	if username == "" {
		h.respondError(w, r, "update_current_user", errors.Unauthorized("No authenticated user"))
		return
	}

	var meta identity.UserMetadata
	if err := decodeJSON(r, &meta); err != nil {
		h.respondError(w, r, "update_current_user", err)
		return
	}

	updated, err := h.identity.UpdateUserMetadata(r.Context(), username, meta)
	if err != nil {
		h.respondError(w, r, "update_current_user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) linkEmail(w http.ResponseWriter, r *http.Request) {
	if h.identity == nil {
		h.respondError(w, r, "link_email", errors.Configuration("Identity service is not configured"))
		return
	}

	username := middleware.GetUserID(r.Context())
	if username == "" {
		h.respondError(w, r, "link_email", errors.Unauthorized("No authenticated user"))
		return
	}

	var payload struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		h.respondError(w, r, "link_email", err)
		return
	}
	if payload.Email == "" {
		h.respondError(w, r, "link_email", errors.Validation("email is required"))
		return
	}

	if err := h.identity.LinkEmail(r.Context(), username, payload.Email); err != nil {
		h.respondError(w, r, "link_email", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "linked", "email": payload.Email})
}
