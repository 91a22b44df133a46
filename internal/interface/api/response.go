package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/zinrai/fabric-portal/internal/domain"
	"github.com/zinrai/fabric-portal/internal/log"
)

const (
	statusOK    = 0
	statusError = 1

	// maxBodyBytes caps request payloads.
	maxBodyBytes = 1 << 20
)

type envelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func respond(w http.ResponseWriter, code int, message string, data any) {
	writeJSON(w, code, envelope{Status: statusOK, Message: message, Data: data})
}

// respondError maps err onto a status code. Only validation messages are
// passed through to the caller; everything else gets a fixed message and is
// logged in full.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	code, message := classify(err)
	body := envelope{Status: statusError, Message: message}

	var partial *domain.PartialApplicationError
	if errors.As(err, &partial) {
		body.Data = map[string]any{"phase": partial.Phase, "completed": partial.Completed}
	}
	if verr, ok := domain.IsValidation(err); ok {
		body.Field = verr.Field
	}

	entry := log.G(r.Context()).WithError(err).WithField("status", code)
	if code >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Info("request rejected")
	}
	writeJSON(w, code, body)
}

func classify(err error) (int, string) {
	var partial *domain.PartialApplicationError
	if errors.As(err, &partial) {
		return http.StatusBadGateway, "changes were only partially applied"
	}
	if verr, ok := domain.IsValidation(err); ok {
		return http.StatusUnprocessableEntity, verr.Error()
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflicting change, retry the request"
	case errors.Is(err, domain.ErrAllocationExhausted):
		return http.StatusConflict, "no vlan id available"
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable, "fabric service unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// decode reads a JSON body into dst. Unknown fields are rejected.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &domain.ValidationError{Message: "malformed request body: " + err.Error()}
	}
	return nil
}

// pathUUID returns the named path value, rejecting anything that is not a uuid.
func pathUUID(r *http.Request, name string) (string, error) {
	value := r.PathValue(name)
	id, err := uuid.Parse(value)
	if err != nil {
		return "", &domain.ValidationError{Field: name, Message: "must be a uuid"}
	}
	return id.String(), nil
}
