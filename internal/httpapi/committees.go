package httpapi

import (
	"net/http"

	"github.com/linuxfoundation/lfx-gateway/internal/errors"
	"github.com/linuxfoundation/lfx-gateway/internal/proxy"
)

func (h *Handler) listCommittees(w http.ResponseWriter, r *http.Request) {
	h.passthrough(w, r, "list_committees", "/committees")
}

func (h *Handler) getCommittee(w http.ResponseWriter, r *http.Request) {
	h.passthrough(w, r, "get_committee", "/committees/"+pathVar(r, "uid"))
}

func (h *Handler) createCommittee(w http.ResponseWriter, r *http.Request) {
	var payload map[string]interface{}
	if err := decodeJSON(r, &payload); err != nil {
		h.respondError(w, r, "create_committee", err)
		return
	}
	if payload["name"] == nil || payload["name"] == "" {
		h.respondError(w, r, "create_committee", errors.Validation("name is required"))
		return
	}

	resp, err := h.query.Post(r.Context(), "/committees", payload, bearer(r))
	if err != nil {
		h.respondError(w, r, "create_committee", err)
		return
	}
	if err := proxy.AsError(resp); err != nil {
		h.respondError(w, r, "create_committee", err)
		return
	}
	forwardJSON(w, resp.Status, resp.Body)
}

func (h *Handler) updateCommittee(w http.ResponseWriter, r *http.Request) {
	h.conditionalUpdate(w, r, "update_committee", "/committees/"+pathVar(r, "uid"), "")
}

func (h *Handler) deleteCommittee(w http.ResponseWriter, r *http.Request) {
	h.conditionalDelete(w, r, "delete_committee", "/committees/"+pathVar(r, "uid"))
}

func (h *Handler) listCommitteeMembers(w http.ResponseWriter, r *http.Request) {
	h.passthrough(w, r, "list_committee_members", "/committees/"+pathVar(r, "uid")+"/members")
}

func (h *Handler) createCommitteeMember(w http.ResponseWriter, r *http.Request) {
	var payload map[string]interface{}
	if err := decodeJSON(r, &payload); err != nil {
		h.respondError(w, r, "create_committee_member", err)
		return
	}
	if payload["email"] == nil || payload["email"] == "" {
		h.respondError(w, r, "create_committee_member", errors.Validation("email is required"))
		return
	}

	resp, err := h.query.Post(r.Context(), "/committees/"+pathVar(r, "uid")+"/members", payload, bearer(r))
	if err != nil {
		h.respondError(w, r, "create_committee_member", err)
		return
	}
	if err := proxy.AsError(resp); err != nil {
		h.respondError(w, r, "create_committee_member", err)
		return
	}
	forwardJSON(w, resp.Status, resp.Body)
}

func (h *Handler) updateCommitteeMember(w http.ResponseWriter, r *http.Request) {
	path := "/committees/" + pathVar(r, "uid") + "/members/" + pathVar(r, "mid")
	h.conditionalUpdate(w, r, "update_committee_member", path, "")
}

func (h *Handler) deleteCommitteeMember(w http.ResponseWriter, r *http.Request) {
	path := "/committees/" + pathVar(r, "uid") + "/members/" + pathVar(r, "mid")
	h.conditionalDelete(w, r, "delete_committee_member", path)
}
