package api

import (
	"net/http"

	"coedit/internal/commit"
	"coedit/internal/logging"
)

type CommitHandler struct {
	svc    *commit.Service
	logger *logging.Logger
}

func NewCommitHandler(svc *commit.Service, logger *logging.Logger) *CommitHandler {
	return &CommitHandler{svc: svc, logger: logger}
}

func (h *CommitHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req commit.SaveRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	c, err := h.svc.SaveCommit(r.Context(), principal(r), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "commit": c})
}

func (h *CommitHandler) History(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.GetCommitHistory(r.Context(), principal(r), r.URL.Query().Get("fileId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "commit": views})
}

func (h *CommitHandler) ForFile(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.GetCommitsForFile(r.Context(), principal(r), r.PathValue("fileId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "commits": views})
}

func (h *CommitHandler) Revert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CommitID string `json:"commitId"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.CommitID == "" {
		req.CommitID = r.URL.Query().Get("commitId")
	}

	if err := h.svc.RevertCommit(r.Context(), principal(r), req.CommitID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Commit deleted successfully"})
}

func (h *CommitHandler) Restore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileID   string `json:"fileId"`
		CommitID string `json:"commitId"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	c, err := h.svc.RestoreCommit(r.Context(), principal(r), req.FileID, req.CommitID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "commit": c})
}

func (h *CommitHandler) Diff(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view, err := h.svc.DiffCommits(r.Context(), principal(r), q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "diff": view})
}
