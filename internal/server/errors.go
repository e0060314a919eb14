package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/DanielBronsky/cnpf-feeder/internal/auth"
	"github.com/DanielBronsky/cnpf-feeder/internal/forms"
	"github.com/DanielBronsky/cnpf-feeder/internal/store"
)

// httpError carries an explicit status and client-facing message.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func conflict(msg string) error { return &httpError{status: http.StatusConflict, msg: msg} }

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type okBody struct {
	OK bool   `json:"ok"`
	ID string `json:"id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter) error {
	writeJSON(w, http.StatusOK, okBody{OK: true})
	return nil
}

// classify maps an error onto a status and the body sent to the client.
func classify(err error) (int, errorBody) {
	var he *httpError
	var fe *forms.Error
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &he):
		return he.status, errorBody{Error: he.msg}
	case errors.As(err, &fe):
		return http.StatusBadRequest, errorBody{Error: fe.Message, Fields: fe.Fields}
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge, errorBody{Error: "Request body too large"}
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, errorBody{Error: "Unauthorized"}
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, errorBody{Error: "Forbidden"}
	case errors.Is(err, auth.ErrLastAdmin):
		return http.StatusConflict, errorBody{Error: "At least one admin must remain"}
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrInvalidID):
		return http.StatusNotFound, errorBody{Error: "Not found"}
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict, errorBody{Error: "Already exists"}
	default:
		return http.StatusInternalServerError, errorBody{Error: "Internal server error"}
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestIDFrom(r.Context()),
			"err", err,
		)
	}
	writeJSON(w, status, body)
}

// handle adapts an error-returning handler. Every failure is translated here.
func (s *Server) handle(fn func(w http.ResponseWriter, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			s.writeError(w, r, err)
		}
	}
}
