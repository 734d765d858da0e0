package api

import (
	"net/http"

	"coedit/internal/directory"
	"coedit/internal/logging"
)

type DirectoryHandler struct {
	svc    *directory.Service
	logger *logging.Logger
}

func NewDirectoryHandler(svc *directory.Service, logger *logging.Logger) *DirectoryHandler {
	return &DirectoryHandler{svc: svc, logger: logger}
}

type createNodeRequest struct {
	Name            string `json:"name"`
	IsFolder        bool   `json:"isFolder"`
	CurrentFolderID string `json:"currentFolderId"`
}

type shareRequest struct {
	Email string         `json:"email"`
	Role  directory.Role `json:"role"`
}

func (h *DirectoryHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req createNodeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	n, err := h.svc.CreateNode(r.Context(), principal(r), "", req.Name, req.IsFolder)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "project": n.Project})
}

func (h *DirectoryHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListProjects(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "projects": list})
}

func (h *DirectoryHandler) Contents(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.ListContents(r.Context(), principal(r), r.PathValue("id"), r.URL.Query().Get("currentFolderId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*directory.Contents
	}{true, c})
}

// CreateNode creates a folder or a file in currentFolderId, or at the top of
// the project when it is absent.
func (h *DirectoryHandler) CreateNode(w http.ResponseWriter, r *http.Request) {
	var req createNodeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	parent := req.CurrentFolderID
	if parent == "" {
		parent = r.PathValue("id")
	}

	n, err := h.svc.CreateNode(r.Context(), principal(r), parent, req.Name, req.IsFolder)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		Success bool `json:"success"`
		*directory.Node
	}{true, n})
}

func (h *DirectoryHandler) Breadcrumb(w http.ResponseWriter, r *http.Request) {
	crumbs, err := h.svc.Breadcrumb(r.Context(), principal(r), r.PathValue("id"), r.URL.Query().Get("folderId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "breadcrumb": crumbs})
}

func (h *DirectoryHandler) Move(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NodeID   string `json:"nodeId"`
		ParentID string `json:"parentId"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	n, err := h.svc.MoveNode(r.Context(), principal(r), req.NodeID, req.ParentID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*directory.Node
	}{true, n})
}

func (h *DirectoryHandler) ShareProject(w http.ResponseWriter, r *http.Request) {
	h.share(w, r, directory.Target{Kind: directory.TargetProject, ID: r.PathValue("id")})
}

func (h *DirectoryHandler) ShareFile(w http.ResponseWriter, r *http.Request) {
	h.share(w, r, directory.Target{Kind: directory.TargetFile, ID: r.PathValue("id")})
}

func (h *DirectoryHandler) share(w http.ResponseWriter, r *http.Request, target directory.Target) {
	var req shareRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	list, err := h.svc.AddCollaborator(r.Context(), principal(r), target, req.Email, req.Role)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "collaborators": list})
}

func (h *DirectoryHandler) Activity(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ProjectActivity(r.Context(), principal(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "activity": list})
}

func (h *DirectoryHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.GetFile(r.Context(), principal(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "file": f})
}

func (h *DirectoryHandler) UpdateContent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	f, err := h.svc.UpdateFileContent(r.Context(), principal(r), r.PathValue("id"), req.Content)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "file": f})
}

func (h *DirectoryHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteFile(r.Context(), principal(r), r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "File deleted successfully"})
}
