package api

import (
	"net/http"

	"coedit/internal/logging"
	"coedit/internal/middleware"
)

type Handlers struct {
	Auth      *AuthHandler
	Commits   *CommitHandler
	Directory *DirectoryHandler
	Compile   *CompileHandler
}

type RouterConfig struct {
	AllowedOrigin string
	Verifier      middleware.TokenVerifier
	Logger        *logging.Logger
}

// NewRouter mounts every endpoint. Everything except health and the auth
// endpoints requires a token.
func NewRouter(h Handlers, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	protected := middleware.Auth(cfg.Verifier, cfg.Logger)
	guard := func(fn http.HandlerFunc) http.Handler {
		return protected(fn)
	}

	// Health checks
	mux.HandleFunc("GET /health", healthCheck)

	// Auth endpoints
	mux.HandleFunc("POST /auth/register", h.Auth.Register)
	mux.HandleFunc("POST /auth/login", h.Auth.Login)
	mux.HandleFunc("POST /auth/logout", h.Auth.Logout)

	// Commit endpoints
	mux.Handle("POST /api/commit/save-commit", guard(h.Commits.Save))
	mux.Handle("GET /api/commit/getCommits", guard(h.Commits.History))
	mux.Handle("GET /api/commit/getCode/{fileId}", guard(h.Commits.ForFile))
	mux.Handle("DELETE /api/commit/revert", guard(h.Commits.Revert))
	mux.Handle("POST /api/commit/restore", guard(h.Commits.Restore))
	mux.Handle("GET /api/commit/diff", guard(h.Commits.Diff))

	// Execution endpoints
	mux.Handle("POST /compile", guard(h.Compile.Compile))
	mux.Handle("GET /compile/history", guard(h.Compile.History))

	// Project endpoints
	mux.Handle("POST /projects/create", guard(h.Directory.CreateProject))
	mux.Handle("GET /projects/list", guard(h.Directory.ListProjects))
	mux.Handle("GET /projects/{id}/contents", guard(h.Directory.Contents))
	mux.Handle("POST /projects/{id}/create", guard(h.Directory.CreateNode))
	mux.Handle("GET /projects/{id}/breadcrumb", guard(h.Directory.Breadcrumb))
	mux.Handle("POST /projects/{id}/move", guard(h.Directory.Move))
	mux.Handle("POST /projects/{id}/collaborators", guard(h.Directory.ShareProject))
	mux.Handle("GET /projects/{id}/activity", guard(h.Directory.Activity))

	// File endpoints
	mux.Handle("GET /files/{id}", guard(h.Directory.GetFile))
	mux.Handle("PUT /files/{id}/content", guard(h.Directory.UpdateContent))
	mux.Handle("DELETE /files/{id}", guard(h.Directory.DeleteFile))
	mux.Handle("POST /files/{id}/collaborators", guard(h.Directory.ShareFile))

	return middleware.Chain(
		mux,
		middleware.Recover(cfg.Logger),
		middleware.Logger(cfg.Logger),
		middleware.RequestID,
		middleware.CORS(cfg.AllowedOrigin),
	)
}
