package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBinding(t *testing.T) {
	tests := []struct {
		arg     string
		id      string
		path    string
		wantErr bool
	}{
		{arg: "f1=main.py", id: "f1", path: "main.py"},
		{arg: "f1=dir/a=b.txt", id: "f1", path: "dir/a=b.txt"},
		{arg: "main.py", wantErr: true},
		{arg: "=main.py", wantErr: true},
		{arg: "f1=", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			id, path, err := parseBinding(tt.arg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.path, path)
		})
	}
}

func TestLanguageFor(t *testing.T) {
	id, ok := languageFor("src/Main.PY")
	assert.True(t, ok)
	assert.Equal(t, 71, id)

	_, ok = languageFor("README")
	assert.False(t, ok)
}

func TestSession(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	serverFlag, tokenFlag = "", ""
	t.Cleanup(func() { serverFlag, tokenFlag = "", "" })

	_, err := newClient(true)
	assert.Error(t, err, "no session yet")

	s, err := loadSession()
	require.NoError(t, err)
	assert.Equal(t, defaultServer, s.server())

	require.NoError(t, (&session{Server: "http://coedit.test", Token: "tok"}).save())
	s, err = loadSession()
	require.NoError(t, err)
	assert.Equal(t, "http://coedit.test", s.server())
	assert.Equal(t, "tok", s.Token)

	serverFlag = "http://other.test"
	assert.Equal(t, "http://other.test", s.server())

	_, err = newClient(true)
	assert.NoError(t, err)

	require.NoError(t, clearSession())
	require.NoError(t, clearSession())
	s, err = loadSession()
	require.NoError(t, err)
	assert.Empty(t, s.Token)
}
