package api

import (
	"net/http"
	"strconv"

	"coedit/internal/execution"
	"coedit/internal/logging"
)

type CompileHandler struct {
	svc    *execution.Service
	logger *logging.Logger
}

func NewCompileHandler(svc *execution.Service, logger *logging.Logger) *CompileHandler {
	return &CompileHandler{svc: svc, logger: logger}
}

// Compile answers {stdout} or {error, status} with no success envelope.
func (h *CompileHandler) Compile(w http.ResponseWriter, r *http.Request) {
	var req execution.Request
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.svc.Run(r.Context(), principal(r), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *CompileHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.svc.History(r.Context(), principal(r), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "executions": list})
}
