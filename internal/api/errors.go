package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"veloskill/internal/service"
	"veloskill/internal/strava"
)

// Error codes returned in the JSON error body
const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodeNotConnected      = "not_connected"
	ErrCodeReconnectRequired = "reconnect_required"
	ErrCodeRateLimited       = "rate_limited"
	ErrCodeUpstream          = "upstream"
	ErrCodeInternal          = "internal"
)

// APIError is a structured error returned by the API
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError for JSON serialization
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// statusFor maps a service error to an HTTP status and error code
func statusFor(err error) (int, string) {
	var apiErr *strava.APIError
	switch {
	case errors.Is(err, service.ErrNoUser):
		return http.StatusBadRequest, ErrCodeBadRequest
	case errors.Is(err, service.ErrNotConnected):
		return http.StatusNotFound, ErrCodeNotConnected
	case errors.Is(err, service.ErrReconnectRequired), errors.Is(err, strava.ErrUnauthorized):
		return http.StatusUnauthorized, ErrCodeReconnectRequired
	case errors.Is(err, strava.ErrRateLimited):
		return http.StatusTooManyRequests, ErrCodeRateLimited
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, ErrCodeUpstream
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

func writeError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	status, code := statusFor(err)
	if status >= 500 {
		log.WithError(err).Error("Request failed")
	}
	writeJSON(w, log, status, ErrorResponse{Error: APIError{Code: code, Message: err.Error()}})
}

func writeJSON(w http.ResponseWriter, log logrus.FieldLogger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Warn("Writing response failed")
	}
}
