package httpapi

import (
	"net/http"

	"github.com/linuxfoundation/lfx-gateway/internal/errors"
	"github.com/linuxfoundation/lfx-gateway/internal/httputil"
)

// analyticsQuery runs a named warehouse query with caller-supplied bind
// values. Free-form SQL is never accepted over the API; the catalog is the
// authority on what may run.
func (h *Handler) analyticsQuery(w http.ResponseWriter, r *http.Request) {
	if h.exec == nil {
		h.respondError(w, r, "analytics_query", errors.Configuration("Analytics warehouse is not configured"))
		return
	}

	var payload struct {
		Name   string                 `json:"name"`
		Params map[string]interface{} `json:"params"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		h.respondError(w, r, "analytics_query", err)
		return
	}
	if payload.Name == "" {
		h.respondError(w, r, "analytics_query", errors.Validation("name is required"))
		return
	}

	query, ok := h.catalog.Get(payload.Name)
	if !ok {
		h.respondError(w, r, "analytics_query", errors.NotFound("Unknown query: "+payload.Name))
		return
	}

	binds, err := bindParams(query.Params, payload.Params)
	if err != nil {
		h.respondError(w, r, "analytics_query", err)
		return
	}

	result, err := h.exec.Execute(r.Context(), query.SQL, binds)
	if err != nil {
		h.respondError(w, r, "analytics_query", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// analyticsNamedQuery is the GET form: bind values come from the query
// string, one per declared parameter.
func (h *Handler) analyticsNamedQuery(w http.ResponseWriter, r *http.Request) {
	if h.exec == nil {
		h.respondError(w, r, "analytics_named_query", errors.Configuration("Analytics warehouse is not configured"))
		return
	}

	name := pathVar(r, "name")
	query, ok := h.catalog.Get(name)
	if !ok {
		h.respondError(w, r, "analytics_named_query", errors.NotFound("Unknown query: "+name))
		return
	}

	params := make(map[string]interface{}, len(query.Params))
	for _, p := range query.Params {
		if v := r.URL.Query().Get(p); v != "" {
			params[p] = v
		}
	}
	binds, err := bindParams(query.Params, params)
	if err != nil {
		h.respondError(w, r, "analytics_named_query", err)
		return
	}

	result, err := h.exec.Execute(r.Context(), query.SQL, binds)
	if err != nil {
		h.respondError(w, r, "analytics_named_query", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) analyticsStats(w http.ResponseWriter, r *http.Request) {
	if h.exec == nil {
		h.respondError(w, r, "analytics_stats", errors.Configuration("Analytics warehouse is not configured"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.exec.Stats())
}

// bindParams orders the caller's values to match the query's declared
// parameter list. Every declared parameter is required.
func bindParams(declared []string, supplied map[string]interface{}) ([]interface{}, error) {
	binds := make([]interface{}, 0, len(declared))
	for _, name := range declared {
		v, ok := supplied[name]
		if !ok {
			return nil, errors.Validation("Missing query parameter: " + name)
		}
		binds = append(binds, v)
	}
	return binds, nil
}
