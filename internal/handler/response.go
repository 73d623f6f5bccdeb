package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/generatororacle/backend/internal/domain"
	"github.com/generatororacle/backend/internal/lib/sl"
)

const maxBodyBytes = 1 << 20

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", sl.Err(err))
		}
	}
}

// Error writes an error JSON response, using AppError status codes when available.
// Internal details are logged, never returned.
func Error(w http.ResponseWriter, err error) {
	if appErr, ok := domain.AsAppError(err); ok {
		if appErr.Code >= http.StatusInternalServerError {
			slog.Error(appErr.Message, slog.String("kind", string(appErr.Kind)), sl.Err(appErr.Err))
		}
		JSON(w, appErr.Code, map[string]string{"error": appErr.Message})
		return
	}
	slog.Error("unhandled error", sl.Err(err))
	JSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

// DecodeJSON decodes a JSON request body into the given struct.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.ErrBadRequest("request body too large")
		}
		return domain.ErrBadRequest("invalid JSON body")
	}
	return nil
}
