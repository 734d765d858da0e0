// Package client is a small HTTP client for the coedit API, used by the CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"coedit/internal/commit"
	"coedit/internal/directory"
	"coedit/internal/execution"
	"coedit/internal/user"
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// Runs poll the execution service for up to ten seconds.
			Timeout: time.Second * 30,
		},
	}
}

// WithToken returns a copy of c that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Type, e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, in any, want int, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&envelope) == nil && envelope.Error != nil {
			envelope.Error.Status = resp.StatusCode
			return envelope.Error
		}
		return &APIError{Status: resp.StatusCode, Type: "HTTP", Message: resp.Status}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type LoginResult struct {
	User  user.Summary `json:"user"`
	Token string       `json:"token"`
}

func (c *Client) Register(ctx context.Context, name, email, password string) error {
	in := map[string]string{"name": name, "email": email, "password": password}
	return c.do(ctx, http.MethodPost, "/auth/register", in, http.StatusCreated, nil)
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out LoginResult
	in := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", in, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Commit operations
func (c *Client) SaveCommit(ctx context.Context, fileID, content string) (*commit.Commit, error) {
	var out struct {
		Commit *commit.Commit `json:"commit"`
	}
	in := commit.SaveRequest{FileID: fileID, Content: content}
	if err := c.do(ctx, http.MethodPost, "/api/commit/save-commit", in, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return out.Commit, nil
}

func (c *Client) History(ctx context.Context, fileID string) ([]commit.HistoryView, error) {
	path := "/api/commit/getCommits"
	if fileID != "" {
		path += "?fileId=" + url.QueryEscape(fileID)
	}
	var out struct {
		Commits []commit.HistoryView `json:"commit"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Commits, nil
}

func (c *Client) CommitsForFile(ctx context.Context, fileID string) ([]commit.FileView, error) {
	var out struct {
		Commits []commit.FileView `json:"commits"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/commit/getCode/"+url.PathEscape(fileID), nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Commits, nil
}

func (c *Client) Revert(ctx context.Context, commitID string) error {
	in := map[string]string{"commitId": commitID}
	return c.do(ctx, http.MethodDelete, "/api/commit/revert", in, http.StatusOK, nil)
}

func (c *Client) Restore(ctx context.Context, fileID, commitID string) (*commit.Commit, error) {
	var out struct {
		Commit *commit.Commit `json:"commit"`
	}
	in := map[string]string{"fileId": fileID, "commitId": commitID}
	if err := c.do(ctx, http.MethodPost, "/api/commit/restore", in, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return out.Commit, nil
}

func (c *Client) Diff(ctx context.Context, fromID, toID string) (*commit.DiffView, error) {
	q := url.Values{"from": {fromID}, "to": {toID}}
	var out struct {
		Diff *commit.DiffView `json:"diff"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/commit/diff?"+q.Encode(), nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Diff, nil
}

// File operations
func (c *Client) GetFile(ctx context.Context, fileID string) (*directory.File, error) {
	var out struct {
		File *directory.File `json:"file"`
	}
	if err := c.do(ctx, http.MethodGet, "/files/"+url.PathEscape(fileID), nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.File, nil
}

// RunResult has Stdout set for an accepted run and Error/Status otherwise.
type RunResult struct {
	Stdout *string `json:"stdout"`
	Error  string  `json:"error"`
	Status string  `json:"status"`
}

func (c *Client) Run(ctx context.Context, req execution.Request) (*RunResult, error) {
	var out RunResult
	if err := c.do(ctx, http.MethodPost, "/compile", req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
