package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"coedit/client"
)

const defaultServer = "http://localhost:5000"

// session is what login leaves behind for later commands.
type session struct {
	Server string `json:"server"`
	Token  string `json:"token"`
	Email  string `json:"email,omitempty"`
}

// server picks the --server flag, then the saved server, then the default.
func (s *session) server() string {
	switch {
	case serverFlag != "":
		return serverFlag
	case s.Server != "":
		return s.Server
	}
	return defaultServer
}

func sessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config directory: %w", err)
	}
	return filepath.Join(dir, "coedit", "session.json"), nil
}

func loadSession() (*session, error) {
	path, err := sessionPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &session{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}
	var s session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing session %s: %w", path, err)
	}
	return &s, nil
}

func (s *session) save() error {
	path, err := sessionPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func clearSession() error {
	path, err := sessionPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session: %w", err)
	}
	return nil
}

// newClient builds a client from the flags, falling back to the saved session.
func newClient(authenticated bool) (*client.Client, error) {
	s, err := loadSession()
	if err != nil {
		return nil, err
	}

	server := s.server()
	token := tokenFlag
	if token == "" {
		token = s.Token
	}
	if authenticated && token == "" {
		return nil, fmt.Errorf("not logged in, run 'coedit login' first")
	}
	return client.New(server).WithToken(token), nil
}

var extensionLanguages = map[string]int{
	".c":    50,
	".cpp":  54,
	".cc":   54,
	".go":   60,
	".java": 62,
	".js":   63,
	".py":   71,
	".rs":   73,
	".ts":   74,
}

func languageFor(path string) (int, bool) {
	id, ok := extensionLanguages[strings.ToLower(filepath.Ext(path))]
	return id, ok
}

// parseBinding reads a fileId=path argument.
func parseBinding(arg string) (string, string, error) {
	id, path, ok := strings.Cut(arg, "=")
	if !ok || id == "" || path == "" {
		return "", "", fmt.Errorf("expected fileId=path, got %q", arg)
	}
	return id, path, nil
}
