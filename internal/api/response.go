package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/inventura/internal/apperr"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("error encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// errorResponse is the body written for categorized errors.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps an error code to its HTTP status.
func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeConflictExhausted, apperr.CodeInvalidState:
		return http.StatusConflict
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeNoMatchingItem:
		return http.StatusUnprocessableEntity
	case apperr.CodeUnauthorized:
		return http.StatusForbidden
	case apperr.CodeNetworkUnavailable:
		return http.StatusServiceUnavailable
	case apperr.CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the status matching err's code. Uncategorized
// errors are logged and reported as internal errors.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorBody(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	jsonResponse(w, status, body)
}

func errorBody(err error) (int, errorResponse) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError, errorResponse{Error: "internal error"}
	}
	return statusFor(ae.Code), errorResponse{Error: ae.Message, Code: string(ae.Code)}
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}
