// Package backend is a client for the assistant backend's REST API: realtime
// session negotiation, chat, PDF handling and CV/job-description matching.
//
// Every method is one independent request/response cycle. Non-2xx responses
// are returned as [*StatusError]; transport failures are wrapped with the
// method and path.
//
// Typical usage:
//
//	c, err := backend.New("http://localhost:8001", backend.WithTimeout(30*time.Second))
//	answer, err := c.Chat(ctx, "What is on page 2?")
package backend

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
)

const (
	defaultTimeout = 60 * time.Second

	// maxBodyBytes bounds every response body read.
	maxBodyBytes = 32 << 20

	rtcConnectEndpoint    = "/rtc-connect"
	pdfInfoEndpoint       = "/pdf-info"
	uploadPDFEndpoint     = "/upload-pdf"
	processPDFEndpoint    = "/process-pdf"
	clearPDFEndpoint      = "/clear-pdf"
	chatEndpoint          = "/chat"
	clearChatEndpoint     = "/clear-chat"
	uploadJDEndpoint      = "/upload-jd"
	uploadCVsEndpoint     = "/upload-cvs"
	compareCVsEndpoint    = "/compare-cvs"
	clearMatchingEndpoint = "/clear-matching"
)

// Breaker guards outgoing calls. *resilience.CircuitBreaker satisfies it.
type Breaker interface {
	Execute(fn func() error) error
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. The client's Timeout is
// left untouched unless [WithTimeout] is also given.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout. Default: 60s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithBreaker routes every call through b. Transport errors and 5xx responses
// count as failures; 4xx responses do not.
func WithBreaker(b Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

// Client talks to one backend instance. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	breaker    Breaker
}

// New creates a Client for baseURL, which must be an absolute http(s) URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("backend: parse base url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("backend: base url %q must be an absolute http(s) url", baseURL)
	}
	c := &Client{baseURL: strings.TrimRight(baseURL, "/")}
	for _, o := range opts {
		o(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
		if c.timeout <= 0 {
			c.timeout = defaultTimeout
		}
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c, nil
}

// BaseURL returns the normalised base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Negotiate posts the local SDP offer to /rtc-connect and returns the remote
// SDP answer.
func (c *Client) Negotiate(ctx context.Context, offer string) (string, error) {
	body, err := c.do(ctx, http.MethodPost, rtcConnectEndpoint, strings.NewReader(offer), "application/sdp")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// PDFInfo fetches the page count and text preview of the uploaded PDF. On a
// non-2xx response carrying a JSON body, that body is returned together with
// the [*StatusError] so callers can relay the server's own error object.
func (c *Client) PDFInfo(ctx context.Context) (json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodGet, pdfInfoEndpoint, nil, "")
	if err != nil {
		if body != nil && json.Valid(body) {
			return json.RawMessage(body), err
		}
		return nil, err
	}
	return validJSON(http.MethodGet, pdfInfoEndpoint, body)
}

// UploadPDF uploads the document used by chat and voice sessions.
func (c *Client) UploadPDF(ctx context.Context, f File) (json.RawMessage, error) {
	body, err := c.postFiles(ctx, uploadPDFEndpoint, "file", []File{f})
	if err != nil {
		return nil, err
	}
	return validJSON(http.MethodPost, uploadPDFEndpoint, body)
}

// ProcessPDF asks the server to extract structured information from the
// uploaded PDF.
func (c *Client) ProcessPDF(ctx context.Context) (json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodPost, processPDFEndpoint, nil, "")
	if err != nil {
		return nil, err
	}
	return validJSON(http.MethodPost, processPDFEndpoint, body)
}

// ClearPDF forgets the uploaded PDF and the server-side chat history.
func (c *Client) ClearPDF(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, clearPDFEndpoint, nil, "")
	return err
}

// Chat asks one question about the uploaded document.
func (c *Client) Chat(ctx context.Context, question string) (string, error) {
	payload, err := json.Marshal(struct {
		Question string `json:"question"`
	}{question})
	if err != nil {
		return "", fmt.Errorf("backend: marshal chat request: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, chatEndpoint, bytes.NewReader(payload), "application/json")
	if err != nil {
		return "", err
	}
	var resp struct {
		Response string `json:"response"`
	}
	if err := decode(http.MethodPost, chatEndpoint, body, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

// ClearChat clears the server-side chat history.
func (c *Client) ClearChat(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, clearChatEndpoint, nil, "")
	return err
}

// UploadJD uploads the job description CVs are compared against.
func (c *Client) UploadJD(ctx context.Context, f File) (*JDUpload, error) {
	body, err := c.postFiles(ctx, uploadJDEndpoint, "file", []File{f})
	if err != nil {
		return nil, err
	}
	var resp JDUpload
	if err := decode(http.MethodPost, uploadJDEndpoint, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadCVs replaces the server's CV set with files.
func (c *Client) UploadCVs(ctx context.Context, files []File) (*CVUpload, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("backend: POST %s: no files", uploadCVsEndpoint)
	}
	body, err := c.postFiles(ctx, uploadCVsEndpoint, "files", files)
	if err != nil {
		return nil, err
	}
	var resp CVUpload
	if err := decode(http.MethodPost, uploadCVsEndpoint, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CompareCVs scores every uploaded CV against the job description.
func (c *Client) CompareCVs(ctx context.Context) (*Comparison, error) {
	body, err := c.do(ctx, http.MethodPost, compareCVsEndpoint, nil, "")
	if err != nil {
		return nil, err
	}
	var resp Comparison
	if err := decode(http.MethodPost, compareCVsEndpoint, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearMatching forgets the job description and every CV.
func (c *Client) ClearMatching(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, clearMatchingEndpoint, nil, "")
	return err
}

// Ping reports whether the backend answers HTTP at all. Any status code
// counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("backend: create ping request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: ping: %w", err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.Body.Close()
}

// do performs one request and returns the response body. For non-2xx
// responses the body is returned alongside the *StatusError.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	var (
		respBody  []byte
		statusErr *StatusError
		attempted bool
	)
	call := func() error {
		attempted = true
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return fmt.Errorf("backend: create %s %s request: %w", method, path, err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if contentType != "application/sdp" {
			req.Header.Set("Accept", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("backend: %s %s: %w", method, path, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fmt.Errorf("backend: read %s %s response: %w", method, path, err)
		}
		respBody = data
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			statusErr = newStatusError(method, path, resp.StatusCode, data)
			if resp.StatusCode >= http.StatusInternalServerError {
				return statusErr
			}
		}
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	switch {
	case statusErr != nil:
		return respBody, statusErr
	case err != nil && !attempted:
		return nil, fmt.Errorf("backend: %s %s: %w", method, path, err)
	case err != nil:
		return nil, err
	}
	return respBody, nil
}

func (c *Client) postFiles(ctx context.Context, path, field string, files []File) ([]byte, error) {
	body, contentType, err := encodeMultipart(field, files)
	if err != nil {
		return nil, fmt.Errorf("backend: POST %s: %w", path, err)
	}
	return c.do(ctx, http.MethodPost, path, body, contentType)
}

func decode(method, path string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("backend: decode %s %s response: %w", method, path, err)
	}
	return nil
}

func validJSON(method, path string, body []byte) (json.RawMessage, error) {
	if !json.Valid(body) {
		return nil, fmt.Errorf("backend: decode %s %s response: invalid JSON", method, path)
	}
	return json.RawMessage(body), nil
}
