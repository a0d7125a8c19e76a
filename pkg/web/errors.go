package web

import (
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/paramon/pkg/blob"
	"github.com/oneconcern/paramon/pkg/errors"
	"github.com/oneconcern/paramon/pkg/status"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type apiError struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps the status taxonomy onto HTTP responses. Internal
// failures are logged but never echoed to the client.
func writeError(w http.ResponseWriter, l *zap.Logger, err error) {
	var (
		code    int
		payload apiError
	)

	switch {
	case errors.Is(err, status.ErrValidation):
		code, payload = http.StatusBadRequest, apiError{Code: "VALIDATION", Message: err.Error()}
	case errors.Is(err, status.ErrToken):
		code, payload = http.StatusForbidden, apiError{Code: "TOKEN_INVALID", Message: err.Error()}
	case errors.Is(err, status.ErrCIDMismatch):
		code, payload = http.StatusForbidden, apiError{Code: "CID_MISMATCH", Message: err.Error()}
	case errors.Is(err, status.ErrAuthorization):
		code, payload = http.StatusForbidden, apiError{Code: "FORBIDDEN", Message: err.Error()}
	case errors.Is(err, status.ErrNotFound):
		code, payload = http.StatusNotFound, apiError{Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, blob.ErrObjectTooBig):
		code, payload = http.StatusRequestEntityTooLarge, apiError{Code: "PAYLOAD_TOO_LARGE", Message: err.Error()}
	case errors.Is(err, status.ErrSerialConflict):
		code, payload = http.StatusConflict, apiError{Code: "SERIAL_CONFLICT", Message: err.Error()}
	case errors.Is(err, status.ErrConflict):
		code, payload = http.StatusConflict, apiError{Code: "CONFLICT", Message: err.Error()}
	case errors.Is(err, status.ErrRateLimited):
		payload = apiError{Code: "RATE_LIMITED", Message: err.Error()}
		if remaining, ok := status.RetryAfter(err); ok {
			payload.RetryAfterSeconds = int((remaining + time.Second - 1) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(payload.RetryAfterSeconds))
		}
		code = http.StatusForbidden
	default:
		l.Error("request failed", zap.Error(err))
		code, payload = http.StatusInternalServerError, apiError{Code: "INTERNAL", Message: "internal error"}
	}

	writeJSON(w, code, payload)
}
