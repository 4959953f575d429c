package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/elonfeng/sentiradar/internal/logging"
	"github.com/elonfeng/sentiradar/internal/metrics"
)

// DefaultAPIBaseURL is the authenticated Reddit API host.
const DefaultAPIBaseURL = "https://oauth.reddit.com"

// maxAttempts caps tries per logical request, token refreshes included.
const maxAttempts = 3

const maxErrorBody = 512

// ErrRetriesExhausted is wrapped by FetchError when every attempt was
// answered with a retryable status.
var ErrRetriesExhausted = errors.New("retries exhausted")

// FetchError is a failed listing or comment request. The pipeline records it
// as a warning instead of failing the run.
type FetchError struct {
	URL        string
	StatusCode int
	Body       string
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fetch %s", e.URL)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	return b.String()
}

func (e *FetchError) Unwrap() error { return e.Err }

// TokenSource supplies and renews the bearer token. *TokenManager implements it.
type TokenSource interface {
	Token() string
	Refresh(ctx context.Context) (string, error)
}

// ClientOptions configure a Client. Zero values fall back to defaults.
type ClientOptions struct {
	BaseURL        string
	UserAgent      string
	Timeout        time.Duration
	RetryBaseDelay time.Duration
	HTTPClient     *http.Client
}

// Client performs authenticated GETs against the Reddit API, retrying on
// 401 (after a token refresh) and on 429/403 (after a linear backoff).
type Client struct {
	http      *http.Client
	tokens    TokenSource
	baseURL   string
	baseDelay time.Duration
}

// NewClient creates an API client.
func NewClient(tokens TokenSource, opts ClientOptions) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultAPIBaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryBaseDelay == 0 {
		opts.RetryBaseDelay = 2 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		http:      withUserAgent(hc, opts.UserAgent),
		tokens:    tokens,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		baseDelay: opts.RetryBaseDelay,
	}
}

// GetJSON fetches path and decodes the body into out. It returns a
// *FetchError once the request fails for good, or the *AuthError of a token
// refresh that failed along the way.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var last *FetchError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return &FetchError{URL: reqURL, Attempts: attempt, Err: err}
		}
		req.Header.Set("Authorization", "bearer "+c.tokens.Token())
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			metrics.UpstreamRequests.WithLabelValues("error").Inc()
			return &FetchError{URL: reqURL, Attempts: attempt, Err: err}
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			metrics.UpstreamRequests.WithLabelValues("error").Inc()
			return &FetchError{URL: reqURL, StatusCode: resp.StatusCode, Attempts: attempt, Err: fmt.Errorf("read body: %w", err)}
		}

		switch status := resp.StatusCode; {
		case status >= 200 && status < 300:
			metrics.UpstreamRequests.WithLabelValues("ok").Inc()
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				return &FetchError{URL: reqURL, StatusCode: status, Attempts: attempt, Err: fmt.Errorf("decode: %w", err)}
			}
			return nil

		case status == http.StatusUnauthorized:
			metrics.UpstreamRequests.WithLabelValues("unauthorized").Inc()
			last = &FetchError{URL: reqURL, StatusCode: status, Body: snippet(body), Attempts: attempt}
			if attempt == maxAttempts {
				break
			}
			if _, err := c.tokens.Refresh(ctx); err != nil {
				return err
			}
			metrics.UpstreamRetries.WithLabelValues("token_refresh").Inc()
			logging.Debug().Str("url", reqURL).Int("attempt", attempt).Msg("token rejected, refreshed and retrying")

		case status == http.StatusTooManyRequests || status == http.StatusForbidden:
			metrics.UpstreamRequests.WithLabelValues("rate_limited").Inc()
			last = &FetchError{URL: reqURL, StatusCode: status, Body: snippet(body), Attempts: attempt}
			if attempt == maxAttempts {
				break
			}
			delay := c.baseDelay * time.Duration(attempt)
			metrics.UpstreamRetries.WithLabelValues("rate_limited").Inc()
			logging.Warn().Str("url", reqURL).Int("status", status).Int("attempt", attempt).Dur("retry_delay", delay).Msg("upstream throttled, backing off")
			if err := Sleep(ctx, delay); err != nil {
				return &FetchError{URL: reqURL, StatusCode: status, Attempts: attempt, Err: err}
			}

		default:
			metrics.UpstreamRequests.WithLabelValues("error").Inc()
			return &FetchError{URL: reqURL, StatusCode: status, Body: snippet(body), Attempts: attempt}
		}
	}

	last.Err = ErrRetriesExhausted
	return last
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
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

// snippet trims body to at most maxErrorBody bytes without splitting a rune.
func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= maxErrorBody {
		return s
	}
	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
