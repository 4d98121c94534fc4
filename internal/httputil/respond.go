// Package httputil provides shared HTTP response helpers.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/linuxfoundation/lfx-gateway/internal/errors"
)

// ErrorResponse is the wire shape of every error the gateway returns.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// WriteErrorResponse writes a `{error, code}` JSON error.
func WriteErrorResponse(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	WriteJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

// WriteServiceError maps any error onto the taxonomy and writes it. Errors
// that are not ServiceErrors surface as INTERNAL_ERROR without leaking
// their text.
func WriteServiceError(w http.ResponseWriter, err error) {
	svcErr := errors.GetServiceError(err)
	if svcErr == nil {
		svcErr = errors.Internal("Internal server error", err)
		WriteErrorResponse(w, svcErr.HTTPStatus, string(svcErr.Code), svcErr.Message, nil)
		return
	}
	WriteErrorResponse(w, svcErr.HTTPStatus, string(svcErr.Code), svcErr.Message, svcErr.Details)
}

// Unauthorized writes a 401 error.
func Unauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Unauthorized"
	}
	WriteErrorResponse(w, http.StatusUnauthorized, string(errors.CodeUnauthorized), message, nil)
}
