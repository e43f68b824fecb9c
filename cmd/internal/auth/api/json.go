package authapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"linkup/cmd/internal/auth/session"
)

type apiError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: msg}})
}

// writeServiceError maps the session error taxonomy onto HTTP. Credential and
// token failures carry no detail beyond their code.
func writeServiceError(w http.ResponseWriter, log *slog.Logger, op string, err error) {
	var verr *session.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: apiError{
			Code:    "validation_failed",
			Message: "invalid request",
			Fields:  verr.Fields,
		}})
	case errors.Is(err, session.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid request")
	case errors.Is(err, session.ErrAccountExists):
		writeError(w, http.StatusConflict, "account_exists", "account already exists")
	case errors.Is(err, session.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
	case errors.Is(err, session.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid_token", "invalid token")
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "account not found")
	case errors.Is(err, session.ErrStoreUnavailable):
		log.Warn("api."+op+".unavailable", slog.Any("err", err))
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "unavailable", "please retry later")
	case errors.Is(err, session.ErrRegistrationFailed):
		writeError(w, http.StatusInternalServerError, "registration_failed", "registration failed")
	default:
		log.Error("api."+op+".fail", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer func() { _ = r.Body.Close() }()

	body := http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after JSON object")
	}
	return nil
}
