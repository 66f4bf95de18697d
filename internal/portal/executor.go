package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL   = "https://supplier.meesho.com"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36"

	browserID     = "NnMgKyAyMnQgKyAxaGN1MDFoY3Iwbw=="
	maxErrorBody  = 512
	clientTimeout = 60 * time.Second
)

var (
	ErrNoSupplier = errors.New("no supplier identity for account")
	ErrEmptyBody  = errors.New("empty response body")
)

// Request is one authenticated JSON POST against the portal origin.
type Request struct {
	Path       string
	Identifier string
	Body       any
}

// Executor sends a Request with the session's credentials attached and
// returns the raw response body of a 2xx answer.
type Executor interface {
	Do(ctx context.Context, req Request) ([]byte, error)
}

// Session is an authenticated portal session; Close releases the browser
// behind it and is safe to call more than once.
type Session interface {
	Executor() Executor
	Close() error
}

type StatusError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("portal %s: HTTP error! Status: %d", e.Path, e.StatusCode)
}

func (e *StatusError) HTTPStatus() int { return e.StatusCode }

func NewStatusError(path string, code int, body []byte) *StatusError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &StatusError{StatusCode: code, Path: path, Body: string(body)}
}

// Headers is the fixed header set every portal call carries.
func Headers(identifier string) map[string]string {
	h := map[string]string{
		"accept":          "application/json, text/plain, */*",
		"accept-language": "en-GB,en-US;q=0.9,en;q=0.8",
		"browser-id":      browserID,
		"client-type":     "d-web",
		"client-version":  "v1",
		"content-type":    "application/json;charset=UTF-8",
	}
	if identifier != "" {
		h["identifier"] = identifier
	}
	return h
}

// HTTPExecutor calls the portal directly with cookies lifted from a browser
// session.
type HTTPExecutor struct {
	BaseURL   string
	Cookie    string
	UserAgent string
	Client    *http.Client
}

func NewHTTPExecutor(baseURL, cookie string) *HTTPExecutor {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &HTTPExecutor{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		Cookie:    cookie,
		UserAgent: DefaultUserAgent,
		Client:    &http.Client{Timeout: clientTimeout},
	}
}

func (e *HTTPExecutor) Do(ctx context.Context, req Request) ([]byte, error) {
	payload, err := json.Marshal(req.Body)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", req.Path, err)
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+req.Path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", req.Path, err)
	}
	for k, v := range Headers(req.Identifier) {
		hreq.Header.Set(k, v)
	}
	if e.Cookie != "" {
		hreq.Header.Set("Cookie", e.Cookie)
	}
	if e.UserAgent != "" {
		hreq.Header.Set("User-Agent", e.UserAgent)
	}

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", req.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, NewStatusError(req.Path, resp.StatusCode, body)
	}
	return body, nil
}
