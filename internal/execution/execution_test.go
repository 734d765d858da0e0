package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"coedit/internal/activity"
	"coedit/internal/auth"
	apperrors "coedit/internal/errors"
	"coedit/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	out   *Outcome
	err   error
	calls int
}

func (s *stubRunner) Run(context.Context, Submission) (*Outcome, error) {
	s.calls++
	return s.out, s.err
}

type stubFiles struct{}

func (stubFiles) AuthorizeFile(_ context.Context, p auth.Principal, fileID string, _ bool) (string, error) {
	if fileID != "f1" {
		return "", apperrors.NotFound("File not found")
	}
	if p.ID != "u1" {
		return "", apperrors.Forbidden("You do not have access to this file")
	}
	return "p1", nil
}

var runner = auth.Principal{ID: "u1", Name: "Ann", Email: "ann@example.com"}

func newTestService(r *stubRunner) (*Service, *MockBox, *activity.MockBox) {
	box := NewMockBox()
	acts := activity.NewMockBox()
	return NewService(r, box, stubFiles{}, activity.NewRecorder(acts, logging.Nop()), logging.Nop()), box, acts
}

func TestRunValidation(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"empty code", Request{Code: "  ", LanguageID: 71}},
		{"no language", Request{Code: "print(1)"}},
		{"os", Request{Code: "import os\nos.remove('x')", LanguageID: 71}},
		{"subprocess", Request{Code: "subprocess.run(['ls'])", LanguageID: 71}},
		{"sys", Request{Code: "sys.exit(1)", LanguageID: 71}},
		{"eval", Request{Code: "eval('1')", LanguageID: 71}},
		{"exec", Request{Code: "exec('1')", LanguageID: 71}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &stubRunner{}
			svc, box, _ := newTestService(r)
			_, err := svc.Run(context.Background(), runner, tt.req)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrorTypeValidation))
			assert.Zero(t, r.calls)
			list, _ := box.ListByUser(context.Background(), runner.ID, 0)
			assert.Empty(t, list)
		})
	}
}

func TestRunOutcomes(t *testing.T) {
	ctx := context.Background()

	t.Run("Accepted", func(t *testing.T) {
		svc, box, acts := newTestService(&stubRunner{out: &Outcome{StatusID: 3, StatusDescription: "Accepted", Stdout: "hi\n"}})
		res, err := svc.Run(ctx, runner, Request{Code: "print('hi')", LanguageID: 71, FileID: "f1"})
		require.NoError(t, err)

		body, err := json.Marshal(res)
		require.NoError(t, err)
		assert.JSONEq(t, `{"stdout":"hi\n"}`, string(body))

		list, err := box.ListByUser(ctx, runner.ID, 10)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "python", list[0].Language)
		assert.Equal(t, "f1", list[0].File)
		assert.Equal(t, []activity.Action{activity.Executed}, acts.Actions())
	})

	t.Run("RuntimeError", func(t *testing.T) {
		svc, _, _ := newTestService(&stubRunner{out: &Outcome{
			StatusID: 11, StatusDescription: "Runtime Error (NZEC)", Stderr: "boom", Message: "exit 1",
		}})
		res, err := svc.Run(ctx, runner, Request{Code: "raise", LanguageID: 71})
		require.NoError(t, err)

		body, err := json.Marshal(res)
		require.NoError(t, err)
		assert.JSONEq(t, `{"error":"boom","status":"Runtime Error (NZEC)"}`, string(body))
	})

	t.Run("CompileOutputFallback", func(t *testing.T) {
		svc, _, _ := newTestService(&stubRunner{out: &Outcome{StatusID: 6, StatusDescription: "Compilation Error", CompileOutput: "bad"}})
		res, err := svc.Run(ctx, runner, Request{Code: "int main(", LanguageID: 50})
		require.NoError(t, err)
		assert.Equal(t, "bad", res.Error)
	})

	t.Run("Timeout", func(t *testing.T) {
		svc, box, _ := newTestService(&stubRunner{err: fmt.Errorf("submission tok: %w", ErrPending)})
		_, err := svc.Run(ctx, runner, Request{Code: "while True: pass", LanguageID: 71})
		assert.True(t, apperrors.Is(err, apperrors.ErrorTypeUpstreamTimeout))
		list, _ := box.ListByUser(ctx, runner.ID, 0)
		assert.Empty(t, list)
	})

	t.Run("ClientGone", func(t *testing.T) {
		svc, box, _ := newTestService(&stubRunner{err: fmt.Errorf("polling tok: %w", context.Canceled)})
		_, err := svc.Run(ctx, runner, Request{Code: "print(1)", LanguageID: 71})
		assert.True(t, apperrors.Is(err, apperrors.ErrorTypeCanceled))
		assert.False(t, apperrors.Is(err, apperrors.ErrorTypeUpstream))
		list, _ := box.ListByUser(ctx, runner.ID, 0)
		assert.Empty(t, list)
	})

	t.Run("Upstream", func(t *testing.T) {
		svc, _, _ := newTestService(&stubRunner{err: fmt.Errorf("%w: 500", ErrUpstream)})
		_, err := svc.Run(ctx, runner, Request{Code: "print(1)", LanguageID: 71})
		assert.True(t, apperrors.Is(err, apperrors.ErrorTypeUpstream))
	})

	t.Run("ForeignFile", func(t *testing.T) {
		r := &stubRunner{}
		svc, _, _ := newTestService(r)
		_, err := svc.Run(ctx, auth.Principal{ID: "u2"}, Request{Code: "print(1)", LanguageID: 71, FileID: "f1"})
		assert.True(t, apperrors.Is(err, apperrors.ErrorTypeForbidden))
		assert.Zero(t, r.calls)
	})
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(&stubRunner{out: &Outcome{StatusID: 3, StatusDescription: "Accepted"}})

	for i := 0; i < 3; i++ {
		_, err := svc.Run(ctx, runner, Request{Code: fmt.Sprintf("print(%d)", i), LanguageID: 60})
		require.NoError(t, err)
	}

	list, err := svc.History(ctx, runner, 2)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, "go", list[0].Language)

	_, err = svc.History(ctx, auth.Principal{}, 0)
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeUnauthorized))
}
