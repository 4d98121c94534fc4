package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/linuxfoundation/lfx-gateway/internal/errors"
	"github.com/linuxfoundation/lfx-gateway/internal/proxy"
)

func (h *Handler) listMeetings(w http.ResponseWriter, r *http.Request) {
	h.passthrough(w, r, "list_meetings", "/meetings")
}

func (h *Handler) getMeeting(w http.ResponseWriter, r *http.Request) {
	h.passthrough(w, r, "get_meeting", "/meetings/"+pathVar(r, "uid"))
}

func (h *Handler) createMeeting(w http.ResponseWriter, r *http.Request) {
	var payload map[string]interface{}
	if err := decodeJSON(r, &payload); err != nil {
		h.respondError(w, r, "create_meeting", err)
		return
	}
	if payload["project_uid"] == nil || payload["project_uid"] == "" {
		h.respondError(w, r, "create_meeting", errors.Validation("project_uid is required"))
		return
	}

	resp, err := h.query.Post(r.Context(), "/meetings", payload, bearer(r))
	if err != nil {
		h.respondError(w, r, "create_meeting", err)
		return
	}
	if err := proxy.AsError(resp); err != nil {
		h.respondError(w, r, "create_meeting", err)
		return
	}
	forwardJSON(w, resp.Status, resp.Body)
}

// updateMeeting follows the conditional-write protocol: read the current
// meeting and its version tag, merge the caller's changes over it, then
// write back with If-Match. Organizer lists are merged, not replaced, so a
// partial update cannot drop organizers added since the client's last read.
func (h *Handler) updateMeeting(w http.ResponseWriter, r *http.Request) {
	h.conditionalUpdate(w, r, "update_meeting", "/meetings/"+pathVar(r, "uid"), "organizers")
}

func (h *Handler) deleteMeeting(w http.ResponseWriter, r *http.Request) {
	h.conditionalDelete(w, r, "delete_meeting", "/meetings/"+pathVar(r, "uid"))
}

func (h *Handler) listRegistrants(w http.ResponseWriter, r *http.Request) {
	h.passthrough(w, r, "list_registrants", "/meetings/"+pathVar(r, "uid")+"/registrants")
}

func (h *Handler) createRegistrant(w http.ResponseWriter, r *http.Request) {
	var payload map[string]interface{}
	if err := decodeJSON(r, &payload); err != nil {
		h.respondError(w, r, "create_registrant", err)
		return
	}
	if payload["email"] == nil || payload["email"] == "" {
		h.respondError(w, r, "create_registrant", errors.Validation("email is required"))
		return
	}

	resp, err := h.query.Post(r.Context(), "/meetings/"+pathVar(r, "uid")+"/registrants", payload, bearer(r))
	if err != nil {
		h.respondError(w, r, "create_registrant", err)
		return
	}
	if err := proxy.AsError(resp); err != nil {
		h.respondError(w, r, "create_registrant", err)
		return
	}
	forwardJSON(w, resp.Status, resp.Body)
}

func (h *Handler) updateRegistrant(w http.ResponseWriter, r *http.Request) {
	path := "/meetings/" + pathVar(r, "uid") + "/registrants/" + pathVar(r, "rid")
	h.conditionalUpdate(w, r, "update_registrant", path, "")
}

func (h *Handler) deleteRegistrant(w http.ResponseWriter, r *http.Request) {
	path := "/meetings/" + pathVar(r, "uid") + "/registrants/" + pathVar(r, "rid")
	h.conditionalDelete(w, r, "delete_registrant", path)
}

// conditionalUpdate applies the fetch / merge / If-Match write protocol to
// any resource path. mergeList, when non-empty, names a list field that is
// unioned instead of replaced.
func (h *Handler) conditionalUpdate(w http.ResponseWriter, r *http.Request, operation, path, mergeList string) {
	var payload map[string]interface{}
	if err := decodeJSON(r, &payload); err != nil {
		h.respondError(w, r, operation, err)
		return
	}

	res, err := h.etags.Fetch(r.Context(), path, bearer(r))
	if err != nil {
		h.respondError(w, r, operation, err)
		return
	}

	merged, err := mergeResource(res.Body, payload, mergeList)
	if err != nil {
		h.respondError(w, r, operation, err)
		return
	}

	updated, err := h.etags.Update(r.Context(), path, res.ETag, merged, bearer(r))
	if err != nil {
		h.respondError(w, r, operation, err)
		return
	}
	forwardJSON(w, http.StatusOK, updated)
}

func (h *Handler) conditionalDelete(w http.ResponseWriter, r *http.Request, operation, path string) {
	res, err := h.etags.Fetch(r.Context(), path, bearer(r))
	if err != nil {
		h.respondError(w, r, operation, err)
		return
	}
	if err := h.etags.Delete(r.Context(), path, res.ETag, bearer(r)); err != nil {
		h.respondError(w, r, operation, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// mergeResource overlays payload onto the fetched resource document. When
// mergeList names a field, the existing and submitted lists are unioned
// (preserving existing order, appending new entries).
func mergeResource(current []byte, payload map[string]interface{}, mergeList string) (map[string]interface{}, error) {
	var existing map[string]interface{}
	if err := json.Unmarshal(current, &existing); err != nil {
		return nil, errors.Internal("Upstream resource is not a JSON object", err)
	}

	var unionWith []interface{}
	if mergeList != "" {
		if submitted, ok := payload[mergeList].([]interface{}); ok {
			unionWith = submitted
		}
	}

	for k, v := range payload {
		existing[k] = v
	}

	if unionWith != nil {
		seen := make(map[string]bool)
		merged := make([]interface{}, 0)
		for _, item := range gjson.GetBytes(current, mergeList).Array() {
			merged = append(merged, item.Value())
			seen[item.String()] = true
		}
		for _, item := range unionWith {
			if s, ok := item.(string); ok && seen[s] {
				continue
			}
			merged = append(merged, item)
		}
		existing[mergeList] = merged
	}

	return existing, nil
}
