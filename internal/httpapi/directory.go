package httpapi

import "net/http"

// Projects and organizations are read-only through the gateway; writes go
// through dedicated onboarding tooling, not this API.

func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	h.passthrough(w, r, "list_projects", "/projects")
}

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	h.passthrough(w, r, "get_project", "/projects/"+pathVar(r, "uid"))
}

func (h *Handler) listOrganizations(w http.ResponseWriter, r *http.Request) {
	h.passthrough(w, r, "list_organizations", "/organizations")
}

func (h *Handler) getOrganization(w http.ResponseWriter, r *http.Request) {
	h.passthrough(w, r, "get_organization", "/organizations/"+pathVar(r, "uid"))
}
