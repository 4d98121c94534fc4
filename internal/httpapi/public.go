package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/linuxfoundation/lfx-gateway/internal/errors"
	"github.com/linuxfoundation/lfx-gateway/internal/proxy"
)

// publicMeetingFields is the subset of a meeting document exposed without
// authentication.
var publicMeetingFields = []string{
	"uid", "title", "description", "start_time", "duration",
	"timezone", "project_uid", "visibility", "join_url",
}

// getPublicMeeting serves the unauthenticated meeting lookup. The upstream
// call runs under the gateway's machine token, and the response is
// projected down to the public field set so registrant and organizer data
// never leaks.
func (h *Handler) getPublicMeeting(w http.ResponseWriter, r *http.Request) {
	uid := pathVar(r, "uid")

	// Empty bearer: the proxy client falls back to the M2M token.
	resp, err := h.query.Get(r.Context(), "/meetings/"+uid, nil, "")
	if err != nil {
		h.respondError(w, r, "get_public_meeting", err)
		return
	}
	if err := proxy.AsError(resp); err != nil {
		h.respondError(w, r, "get_public_meeting", err)
		return
	}

	// Private meetings do not exist as far as anonymous callers know.
	if gjson.GetBytes(resp.Body, "visibility").String() == "private" {
		h.respondError(w, r, "get_public_meeting", errors.NotFound("Meeting not found"))
		return
	}

	forwardJSON(w, http.StatusOK, projectFields(resp.Body, publicMeetingFields))
}

// projectFields copies the named top-level fields out of a JSON document.
func projectFields(doc []byte, fields []string) []byte {
	out := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		if v := gjson.GetBytes(doc, f); v.Exists() {
			out[f] = v.Value()
		}
	}
	body, _ := json.Marshal(out)
	return body
}
