package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"coedit/internal/execution"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"token":   "tok",
			"user":    map[string]string{"id": "u1", "name": "Ann", "email": "ann@example.com"},
		})
	})
	mux.HandleFunc("POST /api/commit/save-commit", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var in map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"commit":  map[string]string{"id": "c1", "file": in["fileId"], "content": in["content"]},
		})
	})
	mux.HandleFunc("GET /api/commit/getCode/{fileId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   map[string]any{"type": "NOT_FOUND", "message": "No commits found for this file", "code": 404},
		})
	})
	mux.HandleFunc("GET /api/commit/getCommits", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "f1", r.URL.Query().Get("fileId"))
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"commit":  []map[string]any{{"id": "c1", "content": "x", "committedBy": map[string]string{"id": "u1", "name": "Ann"}}},
		})
	})
	mux.HandleFunc("POST /compile", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "boom", "status": "Runtime Error (NZEC)"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	c := New(srv.URL + "/")

	login, err := c.Login(ctx, "ann@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok", login.Token)
	assert.Equal(t, "Ann", login.User.Name)

	c = c.WithToken(login.Token)

	cm, err := c.SaveCommit(ctx, "f1", "print(1)")
	require.NoError(t, err)
	assert.Equal(t, "c1", cm.ID)
	assert.Equal(t, "print(1)", cm.Content)

	history, err := c.History(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Ann", history[0].CommittedBy.Name)

	_, err = c.CommitsForFile(ctx, "f1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "NOT_FOUND", apiErr.Type)

	res, err := c.Run(ctx, execution.Request{Code: "raise", LanguageID: 71})
	require.NoError(t, err)
	assert.Nil(t, res.Stdout)
	assert.Equal(t, "boom", res.Error)

	// No route: the plain-text 404 still becomes an APIError.
	err = c.Revert(ctx, "c1")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "HTTP", apiErr.Type)
}
