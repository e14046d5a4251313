package transport

import (
	"encoding/json"
	"net/http"

	"github.com/rhuss/chatserver/pkg/api"
)

// WriteErrorResponse writes apiErr in the ErrorResponse envelope with an
// explicit status, for the few cases (415, 413) where the status is not
// implied by the error type.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, statusCode int) {
	WriteJSON(w, statusCode, api.ErrorResponse{Error: apiErr})
}

// WriteAPIError writes apiErr with the status its type maps to.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteErrorResponse(w, apiErr, apiErr.HTTPStatus())
}

// WriteJSON writes v as a JSON body with the given status. API responses
// carry tokens and account data, so they are never cacheable.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}
