package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"time"

	"github.com/Runetap54/edit-stream-manager-sub000/apperrors"
	"github.com/Runetap54/edit-stream-manager-sub000/internal/platform"
)

const (
	maxAttempts    = 3
	backoffBase    = 250 * time.Millisecond
	requestTimeout = 30 * time.Second
	snippetLimit   = 256
)

// Client talks to the external video generation API. It is stateless
// and safe for concurrent use.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient builds a client from the environment.
func NewClient() *Client {
	return &Client{
		BaseURL:    platform.Env("VIDEO_PROVIDER_URL", "https://api.lumalabs.ai/dream-machine/v1"),
		APIKey:     platform.Env("VIDEO_PROVIDER_API_KEY", ""),
		HTTPClient: &http.Client{Timeout: requestTimeout},
	}
}

// Submit sends a generation job and returns the provider job id.
// 5xx responses and transport failures are retried up to 3 attempts
// with 250/500/1000ms backoff; any 4xx is terminal immediately.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	body, err := json.Marshal(filterParams(req))
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeServer, "encode provider payload", err)
	}

	endpoint := c.BaseURL + "/generations"
	var lastErr *apperrors.Error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, respBody, callErr := c.do(ctx, http.MethodPost, endpoint, body)
		if callErr == nil && status >= 200 && status < 300 {
			var resp submitResponse
			if err := json.Unmarshal(respBody, &resp); err != nil || resp.ID == "" {
				return "", apperrors.New(apperrors.CodeAPI, userMessage(apperrors.CodeAPI, "")).
					WithUpstream(&apperrors.Upstream{Endpoint: endpoint, Status: status, BodySnippet: snippet(respBody)})
			}
			return resp.ID, nil
		}

		code := Classify(status)
		lastErr = apperrors.New(code, userMessage(code, upstreamDetail(respBody))).
			WithUpstream(&apperrors.Upstream{Endpoint: endpoint, Status: status, BodySnippet: snippet(respBody)})
		if callErr != nil {
			lastErr = apperrors.Wrap(code, userMessage(code, ""), callErr).
				WithUpstream(&apperrors.Upstream{Endpoint: endpoint, Status: status})
		}

		if !Retryable(code) {
			return "", lastErr
		}
		if attempt < maxAttempts {
			delay := backoffBase << (attempt - 1)
			log.Printf("provider submit attempt %d/%d failed (%s), retrying in %s", attempt, maxAttempts, code, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", apperrors.Wrap(apperrors.CodeNetwork, userMessage(apperrors.CodeNetwork, ""), ctx.Err())
			}
		}
	}
	return "", lastErr
}

// Status fetches the current state of a provider job. Not retried: each
// poll tick performs at most one status request.
func (c *Client) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	endpoint := fmt.Sprintf("%s/generations/%s", c.BaseURL, jobID)
	status, respBody, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeNetwork, userMessage(apperrors.CodeNetwork, ""), err).
			WithUpstream(&apperrors.Upstream{Endpoint: endpoint})
	}
	if status < 200 || status >= 300 {
		code := Classify(status)
		return nil, apperrors.New(code, userMessage(code, upstreamDetail(respBody))).
			WithUpstream(&apperrors.Upstream{Endpoint: endpoint, Status: status, BodySnippet: snippet(respBody)})
	}

	var js JobStatus
	if err := json.Unmarshal(respBody, &js); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeAPI, userMessage(apperrors.CodeAPI, ""), err).
			WithUpstream(&apperrors.Upstream{Endpoint: endpoint, Status: status, BodySnippet: snippet(respBody)})
	}
	return &js, nil
}

// do performs one HTTP round trip. A transport failure returns status 0.
func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

type upstreamErrorBody struct {
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

// upstreamDetail pulls a human-readable detail out of an error body.
func upstreamDetail(body []byte) string {
	var ub upstreamErrorBody
	if err := json.Unmarshal(body, &ub); err != nil {
		return ""
	}
	if ub.Detail != "" {
		return ub.Detail
	}
	return ub.Error
}

var urlPattern = regexp.MustCompile(`https?://[^\s"']+`)

// snippet truncates and redacts a response body for diagnostics. Signed
// URLs must never end up in logs or error envelopes.
func snippet(body []byte) string {
	s := urlPattern.ReplaceAllString(string(body), "[redacted-url]")
	if len(s) > snippetLimit {
		s = s[:snippetLimit] + "..."
	}
	return s
}
