package api

import (
	"net/http"
	"time"

	"coedit/internal/auth"
	"coedit/internal/logging"
	"coedit/internal/middleware"
)

type AuthHandler struct {
	svc          *auth.Service
	secureCookie bool
	logger       *logging.Logger
}

// NewAuthHandler serves register, login and logout. secureCookie marks the
// session cookie Secure, which production deployments behind TLS want.
func NewAuthHandler(svc *auth.Service, secureCookie bool, logger *logging.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, secureCookie: secureCookie, logger: logger}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	u, err := h.svc.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "User registered successfully",
		"user":    u.Summary(),
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	s, err := h.svc.Login(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    s.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(h.svc.TokenTTL() / time.Second),
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"user":      s.User,
		"token":     s.Token,
		"expiresAt": s.ExpiresAt,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out"})
}
