// Package response renders JSON payloads and the error envelope, mapping
// domain error kinds to HTTP statuses.
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/facet-dev/facet/internal/convert"
	"github.com/facet-dev/facet/internal/entity"
	"github.com/facet-dev/facet/internal/meta"
	"github.com/facet-dev/facet/internal/repo"
	"github.com/facet-dev/facet/internal/store"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ValidationErrorResponse represents validation errors
type ValidationErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Code    string              `json:"code"`
	Fields  map[string][]string `json:"fields"`
}

// RenderJSON renders a payload with the given status code
func RenderJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

// RenderError renders a standard error response
func RenderError(w http.ResponseWriter, statusCode int, err error) {
	RenderJSON(w, statusCode, &ErrorResponse{
		Error:   "error",
		Message: err.Error(),
		Code:    errorCodeFromStatus(statusCode),
	})
}

// RenderBadRequest renders a 400 Bad Request error
func RenderBadRequest(w http.ResponseWriter, message string) {
	RenderError(w, http.StatusBadRequest, errors.New(message))
}

// RenderNotFound renders a 404 Not Found error
func RenderNotFound(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Resource not found"
	}
	RenderError(w, http.StatusNotFound, errors.New(message))
}

// RenderValidationError renders constraint violations as a 400 response
func RenderValidationError(w http.ResponseWriter, errs *repo.ValidationErrors) {
	RenderJSON(w, http.StatusBadRequest, &ValidationErrorResponse{
		Error:   "validation_failed",
		Message: "The request contains invalid data",
		Code:    "validation_error",
		Fields:  errs.Fields,
	})
}

// RenderDomainError maps a domain error to its HTTP response: unknown
// metadata and missing rows are 404, conversion and validation failures
// are 400, class resolution is an internal configuration error.
func RenderDomainError(w http.ResponseWriter, err error) {
	var validationErrs *repo.ValidationErrors
	if errors.As(err, &validationErrs) {
		RenderValidationError(w, validationErrs)
		return
	}

	switch {
	case errors.Is(err, meta.ErrNotFound), errors.Is(err, store.ErrNotFound):
		RenderError(w, http.StatusNotFound, err)
	case errors.Is(err, convert.ErrConversion):
		RenderError(w, http.StatusBadRequest, err)
	case errors.Is(err, entity.ErrClassNotFound):
		RenderError(w, http.StatusInternalServerError, err)
	default:
		RenderError(w, http.StatusInternalServerError, err)
	}
}

// errorCodeFromStatus maps HTTP status codes to error codes
func errorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return "conflict"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return "error"
	}
}
