package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"coedit/internal/auth"
	apperrors "coedit/internal/errors"
	"coedit/internal/logging"

	"go.uber.org/zap"
)

const maxBodyBytes = 4 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders typed errors as they are. Anything else is logged and
// replaced with a generic internal error.
func writeError(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	e, ok := apperrors.From(err)
	if !ok {
		logger.WithRequestID(r.Context()).Error("unhandled error",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		e = apperrors.Internal()
	}
	writeJSON(w, e.Code, map[string]any{"success": false, "error": e})
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.ValidationError("invalid request body", nil)
	}
	return nil
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
