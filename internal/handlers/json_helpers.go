package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/apperrors"
)

// JSONResponse writes data as JSON with the given status code
func JSONResponse(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	JSONResponse(w, code, map[string]string{"error": message})
}

// respondWithServiceError maps the application error taxonomy onto HTTP
// status codes. Persistence failures are logged and masked.
func respondWithServiceError(w http.ResponseWriter, err error) {
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		respondWithError(w, http.StatusBadRequest, err.Error())
	case apperrors.KindNotFound:
		respondWithError(w, http.StatusNotFound, err.Error())
	case apperrors.KindConflict:
		respondWithError(w, http.StatusConflict, err.Error())
	case apperrors.KindInvariant:
		respondWithError(w, http.StatusConflict, err.Error())
	case apperrors.KindForbidden:
		respondWithError(w, http.StatusForbidden, err.Error())
	default:
		slog.Error("Internal error", "error", err)
		respondWithError(w, http.StatusInternalServerError, ErrMsgInternal)
	}
}

// decodeJSON parses the request body into dst, responding 400 on failure
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return false
	}
	return true
}
