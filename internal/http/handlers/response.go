package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"

	"github.com/rs/zerolog/hlog"

	"github.com/forensicnotes/server/internal/apperr"
)

const maxBodyBytes = 10 << 20

// successResponse is the envelope of every 2xx response
type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type errorDetail struct {
	Message    string              `json:"message"`
	StatusCode int                 `json:"statusCode"`
	Details    []apperr.FieldError `json:"details,omitempty"`
}

// errorResponse is the envelope of every failed request
type errorResponse struct {
	Success bool        `json:"success"`
	Error   errorDetail `json:"error"`
}

func respondJSON(w http.ResponseWriter, statusCode int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(successResponse{Success: true, Message: message, Data: data})
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string, details ...apperr.FieldError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error: errorDetail{Message: message, StatusCode: statusCode, Details: details},
	})
}

// writeError maps a service error to its status. Internal causes are logged
// and replaced by a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.Status(kind)

	logger := hlog.FromRequest(r)
	switch kind {
	case apperr.KindInternal:
		logger.Error().Err(err).Msg("request failed")
	case apperr.KindAuth, apperr.KindForbidden:
		logger.Info().Err(err).Msg("request rejected")
	}

	respondWithError(w, status, apperr.PublicMessage(err), apperr.Details(err)...)
}

// decodeJSON reads a JSON body into dst. Type mismatches become field errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &typeErr):
		return apperr.Validation(msgValidationFailed, apperr.FieldError{
			Field:   typeErr.Field,
			Message: typeErr.Field + " must be " + describeType(typeErr.Type),
		})
	case errors.As(err, &maxErr):
		return apperr.Validation("request body too large")
	case errors.Is(err, io.EOF):
		return apperr.Validation("request body is required")
	default:
		return apperr.Validation("invalid request body")
	}
}

func describeType(t reflect.Type) string {
	if t == nil {
		return "valid"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return "an array"
	case reflect.String:
		return "a string"
	case reflect.Int, reflect.Int32, reflect.Int64, reflect.Float32, reflect.Float64:
		return "a number"
	case reflect.Bool:
		return "a boolean"
	case reflect.Struct, reflect.Map:
		return "an object"
	default:
		return "valid"
	}
}
