package execution

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Judge0 status ids that mean the submission has not finished yet.
const (
	statusQueued     = 1
	statusProcessing = 2
	statusAccepted   = 3
)

var (
	// ErrPending is returned when the submission was still queued or running
	// after the last poll.
	ErrPending = errors.New("execution still pending")
	// ErrUpstream wraps transport failures and non-2xx answers.
	ErrUpstream = errors.New("execution service failed")
)

type Submission struct {
	Code       string
	LanguageID int
	Stdin      string
}

// Outcome is a finished submission with its base64 fields decoded.
type Outcome struct {
	Token             string
	StatusID          int
	StatusDescription string
	Stdout            string
	Stderr            string
	CompileOutput     string
	Message           string
}

func (o *Outcome) Accepted() bool {
	return o.StatusID == statusAccepted
}

type Judge0Config struct {
	URL          string
	APIKey       string
	PollInterval time.Duration
	MaxAttempts  int
}

// Judge0 talks to a Judge0 submissions endpoint, RapidAPI hosted or not.
type Judge0 struct {
	url         string
	host        string
	apiKey      string
	interval    time.Duration
	maxAttempts int
	httpClient  *http.Client
}

func NewJudge0(cfg Judge0Config, httpClient *http.Client) (*Judge0, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid execution url %q", cfg.URL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &Judge0{
		url:         strings.TrimRight(cfg.URL, "/"),
		host:        u.Host,
		apiKey:      cfg.APIKey,
		interval:    cfg.PollInterval,
		maxAttempts: cfg.MaxAttempts,
		httpClient:  httpClient,
	}, nil
}

type submitPayload struct {
	LanguageID    int    `json:"language_id"`
	SourceCode    string `json:"source_code"`
	Stdin         string `json:"stdin"`
	EnableNetwork bool   `json:"enable_network"`
}

type submissionResponse struct {
	Token         string  `json:"token"`
	Stdout        *string `json:"stdout"`
	Stderr        *string `json:"stderr"`
	CompileOutput *string `json:"compile_output"`
	Message       *string `json:"message"`
	Status        struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
}

// Run submits the code and polls until the submission leaves the queued and
// processing states or the attempts run out.
func (j *Judge0) Run(ctx context.Context, s Submission) (*Outcome, error) {
	token, err := j.submit(ctx, s)
	if err != nil {
		return nil, err
	}

	var last *submissionResponse
	for i := 0; i < j.maxAttempts; i++ {
		if err := sleep(ctx, j.interval); err != nil {
			return nil, err
		}
		last, err = j.fetch(ctx, token)
		if err != nil {
			return nil, err
		}
		if last.Status.ID != statusQueued && last.Status.ID != statusProcessing {
			return decode(token, last)
		}
	}
	return nil, fmt.Errorf("submission %s: %w", token, ErrPending)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (j *Judge0) submit(ctx context.Context, s Submission) (string, error) {
	body, err := json.Marshal(submitPayload{
		LanguageID: s.LanguageID,
		SourceCode: base64.StdEncoding.EncodeToString([]byte(s.Code)),
		Stdin:      base64.StdEncoding.EncodeToString([]byte(s.Stdin)),
	})
	if err != nil {
		return "", err
	}

	q := url.Values{"base64_encoded": {"true"}, "wait": {"false"}, "fields": {"*"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.url+"?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp submissionResponse
	if err := j.do(req, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("%w: submission returned no token", ErrUpstream)
	}
	return resp.Token, nil
}

func (j *Judge0) fetch(ctx context.Context, token string) (*submissionResponse, error) {
	q := url.Values{"base64_encoded": {"true"}, "fields": {"*"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.url+"/"+url.PathEscape(token)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp submissionResponse
	if err := j.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (j *Judge0) do(req *http.Request, out any) error {
	req.Header.Set("X-RapidAPI-Host", j.host)
	if j.apiKey != "" {
		req.Header.Set("X-RapidAPI-Key", j.apiKey)
	}

	resp, err := j.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s: %s", ErrUpstream, resp.Status, bytes.TrimSpace(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrUpstream, err)
	}
	return nil
}

func decode(token string, r *submissionResponse) (*Outcome, error) {
	o := &Outcome{
		Token:             token,
		StatusID:          r.Status.ID,
		StatusDescription: r.Status.Description,
	}
	for _, f := range []struct {
		src *string
		dst *string
	}{
		{r.Stdout, &o.Stdout},
		{r.Stderr, &o.Stderr},
		{r.CompileOutput, &o.CompileOutput},
		{r.Message, &o.Message},
	} {
		if f.src == nil || *f.src == "" {
			continue
		}
		// Judge0 wraps long base64 output at 76 columns.
		b, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(*f.src, "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("%w: decoding output: %v", ErrUpstream, err)
		}
		*f.dst = string(b)
	}
	return o, nil
}
