package execution

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// fakeJudge0 answers submissions with token "tok" and reports pending for
// the first `pending` polls, then final.
func fakeJudge0(t *testing.T, pending int32, final map[string]any) (*httptest.Server, *int32) {
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-RapidAPI-Key"))
		assert.NotEmpty(t, r.Header.Get("X-RapidAPI-Host"))
		assert.Equal(t, "true", r.URL.Query().Get("base64_encoded"))

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/submissions":
			assert.Equal(t, "false", r.URL.Query().Get("wait"))
			var body submitPayload
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, b64("print(1)"), body.SourceCode)
			assert.Equal(t, 71, body.LanguageID)
			assert.False(t, body.EnableNetwork)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
		case r.Method == http.MethodGet && r.URL.Path == "/submissions/tok":
			n := atomic.AddInt32(&polls, 1)
			if n <= pending {
				json.NewEncoder(w).Encode(map[string]any{"status": map[string]any{"id": 2, "description": "Processing"}})
				return
			}
			json.NewEncoder(w).Encode(final)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &polls
}

func newTestJudge0(t *testing.T, url string) *Judge0 {
	j, err := NewJudge0(Judge0Config{URL: url + "/submissions", APIKey: "secret", MaxAttempts: 10}, nil)
	require.NoError(t, err)
	return j
}

func TestJudge0Run(t *testing.T) {
	sub := Submission{Code: "print(1)", LanguageID: 71}

	t.Run("Accepted", func(t *testing.T) {
		srv, polls := fakeJudge0(t, 2, map[string]any{
			"stdout": b64("1\n"),
			"status": map[string]any{"id": 3, "description": "Accepted"},
		})
		out, err := newTestJudge0(t, srv.URL).Run(context.Background(), sub)
		require.NoError(t, err)
		assert.True(t, out.Accepted())
		assert.Equal(t, "1\n", out.Stdout)
		assert.Equal(t, int32(3), atomic.LoadInt32(polls))
	})

	t.Run("CompileError", func(t *testing.T) {
		srv, _ := fakeJudge0(t, 0, map[string]any{
			"compile_output": b64("syntax error"),
			"status":         map[string]any{"id": 6, "description": "Compilation Error"},
		})
		out, err := newTestJudge0(t, srv.URL).Run(context.Background(), sub)
		require.NoError(t, err)
		assert.False(t, out.Accepted())
		assert.Equal(t, "syntax error", out.CompileOutput)
		assert.Equal(t, "Compilation Error", out.StatusDescription)
	})

	t.Run("WrappedBase64", func(t *testing.T) {
		long := make([]byte, 200)
		for i := range long {
			long[i] = 'x'
		}
		enc := b64(string(long))
		wrapped := enc[:76] + "\n" + enc[76:152] + "\n" + enc[152:]
		srv, _ := fakeJudge0(t, 0, map[string]any{
			"stdout": wrapped,
			"status": map[string]any{"id": 3, "description": "Accepted"},
		})
		out, err := newTestJudge0(t, srv.URL).Run(context.Background(), sub)
		require.NoError(t, err)
		assert.Equal(t, string(long), out.Stdout)
	})

	t.Run("PollingExhausted", func(t *testing.T) {
		srv, polls := fakeJudge0(t, 100, nil)
		_, err := newTestJudge0(t, srv.URL).Run(context.Background(), sub)
		assert.ErrorIs(t, err, ErrPending)
		assert.Equal(t, int32(10), atomic.LoadInt32(polls))
	})

	t.Run("UpstreamError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}))
		defer srv.Close()
		_, err := newTestJudge0(t, srv.URL).Run(context.Background(), sub)
		assert.ErrorIs(t, err, ErrUpstream)
	})

	t.Run("Unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		_, err := newTestJudge0(t, url).Run(context.Background(), sub)
		assert.ErrorIs(t, err, ErrUpstream)
	})

	t.Run("Cancelled", func(t *testing.T) {
		srv, _ := fakeJudge0(t, 100, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := newTestJudge0(t, srv.URL).Run(ctx, sub)
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	})
}

func TestNewJudge0RejectsBadURL(t *testing.T) {
	_, err := NewJudge0(Judge0Config{URL: "not a url"}, nil)
	assert.Error(t, err)
}
