package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/goliatone/go-docforge/pkg/assembly"
	"github.com/goliatone/go-docforge/pkg/auth"
	"github.com/goliatone/go-docforge/pkg/store"
)

// HTTPError is an error that carries its response status.
type HTTPError interface {
	error
	StatusCode() int
}

// StatusError pairs an error with the status it should be answered with.
type StatusError struct {
	Code int
	Err  error
}

func (e StatusError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return http.StatusText(e.Code)
}

func (e StatusError) Unwrap() error { return e.Err }

func (e StatusError) StatusCode() int {
	if e.Code <= 0 {
		return http.StatusInternalServerError
	}
	return e.Code
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors onto response codes. Invalid tokens are
// checked before forbidden because the JWT authorizer wraps both.
func statusFor(err error) int {
	var httpErr HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.StatusCode()
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, assembly.ErrNoVariants):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, err error) int {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = http.StatusText(code)
	}
	writeJSON(w, code, errorResponse{Error: msg})
	return code
}
