package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/sukryu/auth-service/internal/errs"
)

// envelope is the body of every API response.
type envelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Status: status, Message: message, Data: data})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrValidation),
		errors.Is(err, errs.ErrAlreadyExists),
		errors.Is(err, errs.ErrAlreadyRevoked):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

type fieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// writeError answers with the mapped status. Internal failures are logged
// and never leak their text to the client.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	status := statusFor(err)
	body := envelope{Status: status, Message: http.StatusText(status)}

	var ve *errs.ValidationError
	switch {
	case status == http.StatusInternalServerError:
		log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestIDFromCtx(r.Context())),
			zap.Error(err),
		)
		body.Message = "internal error"
	case errors.Is(err, errs.ErrInvalidToken):
		body.Error = errs.ErrInvalidToken.Error()
	case errors.As(err, &ve):
		body.Error = fieldError{Field: ve.Field, Reason: ve.Reason}
	default:
		body.Error = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// maxBody bounds JSON request bodies.
const maxBody = 1 << 20

// decode reads a single JSON object into dst, refusing unknown fields.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errs.Invalid("body", "empty request body")
		}
		return errs.Invalid("body", err.Error())
	}
	return nil
}
