package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sanskarpan/Latexy/internal/domain"
)

const msgInternal = "Internal server error"

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Success: false, Error: msg})
}

func statusFor(err error) int {
	var tooBig *http.MaxBytesError
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPayloadTooLarge), errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, domain.ErrQueueUnavailable),
		errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// fail maps err onto a status. notFound overrides the 404 message; server-side
// failures never leak their cause to the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	status := statusFor(err)
	msg := err.Error()
	switch {
	case status == http.StatusNotFound && notFound != "":
		msg = notFound
	case status == http.StatusServiceUnavailable:
		msg = "Service temporarily unavailable"
	case status >= http.StatusInternalServerError:
		msg = msgInternal
	}
	if status >= http.StatusInternalServerError {
		s.logger(r).Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeError(w, status, msg)
}
