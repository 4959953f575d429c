package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/elonfeng/sentiradar/internal/metrics"
)

type fakeTokens struct {
	token     atomic.Value
	refreshes atomic.Int32
	next      []string
	err       error
}

func newFakeTokens(initial string, next ...string) *fakeTokens {
	f := &fakeTokens{next: next}
	f.token.Store(initial)
	return f
}

func (f *fakeTokens) Token() string { return f.token.Load().(string) }

func (f *fakeTokens) Refresh(ctx context.Context) (string, error) {
	n := f.refreshes.Add(1)
	if f.err != nil {
		return "", f.err
	}
	tok := "refreshed"
	if int(n) <= len(f.next) {
		tok = f.next[n-1]
	}
	f.token.Store(tok)
	return tok, nil
}

func newTestClient(t *testing.T, h http.HandlerFunc, tokens TokenSource) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(tokens, ClientOptions{
		BaseURL:        srv.URL,
		UserAgent:      "sentiradar-test/1.0",
		RetryBaseDelay: 10 * time.Millisecond,
	})
}

func TestGetJSONSuccess(t *testing.T) {
	var (
		mu             sync.Mutex
		gotAuth, gotUA string
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotAuth = r.Header.Get("Authorization")
		gotUA = r.UserAgent()
		w.Write([]byte(`{"kind":"Listing"}`))
	}, newFakeTokens("tok"))

	var out struct {
		Kind string `json:"kind"`
	}
	if err := c.GetJSON(context.Background(), "/r/golang/new", nil, &out); err != nil {
		t.Fatal(err)
	}
	if out.Kind != "Listing" {
		t.Errorf("Kind = %q", out.Kind)
	}
	mu.Lock()
	defer mu.Unlock()
	if gotAuth != "bearer tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotUA != "sentiradar-test/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestGetJSONRefreshesOn401(t *testing.T) {
	var calls atomic.Int32
	tokens := newFakeTokens("stale", "fresh")
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{}`))
	}, tokens)

	start := time.Now()
	if err := c.GetJSON(context.Background(), "/x", nil, nil); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if calls.Load() != 2 || tokens.refreshes.Load() != 1 {
		t.Errorf("calls = %d refreshes = %d, want 2 and 1", calls.Load(), tokens.refreshes.Load())
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("401 retry should not back off")
	}
}

func TestGetJSONRefreshFailureIsAuthError(t *testing.T) {
	tokens := newFakeTokens("stale")
	tokens.err = &AuthError{Grant: GrantClientCredentials, Err: errors.New("rejected")}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, tokens)

	err := c.GetJSON(context.Background(), "/x", nil, nil)
	var aerr *AuthError
	if !errors.As(err, &aerr) {
		t.Fatalf("GetJSON() = %v, want *AuthError", err)
	}
}

func TestGetJSONBacksOffOn429And403(t *testing.T) {
	var (
		calls atomic.Int32
		mu    sync.Mutex
		times []time.Time
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		times = append(times, time.Now())
		mu.Unlock()
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusForbidden)
		default:
			w.Write([]byte(`{}`))
		}
	}, newFakeTokens("tok"))

	before := testutil.ToFloat64(metrics.UpstreamRetries.WithLabelValues("rate_limited"))
	if err := c.GetJSON(context.Background(), "/x", nil, nil); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	// base 10ms * attempt: 10ms then 20ms.
	if d := times[1].Sub(times[0]); d < 10*time.Millisecond {
		t.Errorf("first backoff %v < 10ms", d)
	}
	if d := times[2].Sub(times[1]); d < 20*time.Millisecond {
		t.Errorf("second backoff %v < 20ms", d)
	}
	after := testutil.ToFloat64(metrics.UpstreamRetries.WithLabelValues("rate_limited"))
	if after-before != 2 {
		t.Errorf("rate_limited retries metric moved by %v, want 2", after-before)
	}
}

func TestGetJSONExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`slow down`))
	}, newFakeTokens("tok"))

	err := c.GetJSON(context.Background(), "/x", nil, nil)
	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("GetJSON() = %v, want *FetchError", err)
	}
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("expected ErrRetriesExhausted, got %v", err)
	}
	if calls.Load() != maxAttempts || ferr.Attempts != maxAttempts {
		t.Errorf("calls = %d attempts = %d, want %d", calls.Load(), ferr.Attempts, maxAttempts)
	}
	if ferr.StatusCode != http.StatusTooManyRequests || ferr.Body != "slow down" {
		t.Errorf("unexpected error detail: %+v", ferr)
	}
}

func TestGetJSONOtherStatusFailsImmediately(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Not Found","error":404}`))
	}, newFakeTokens("tok"))

	err := c.GetJSON(context.Background(), "/r/nope/new", nil, nil)
	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("GetJSON() = %v, want *FetchError", err)
	}
	if calls.Load() != 1 {
		t.Errorf("404 must not be retried, calls = %d", calls.Load())
	}
	if !strings.Contains(err.Error(), "Not Found") {
		t.Errorf("error should carry the body: %v", err)
	}
}

func TestGetJSONDecodeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}, newFakeTokens("tok"))

	var out map[string]any
	err := c.GetJSON(context.Background(), "/x", nil, &out)
	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("GetJSON() = %v, want *FetchError", err)
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep on cancelled ctx = %v", err)
	}
	if err := Sleep(context.Background(), 0); err != nil {
		t.Errorf("Sleep(0) = %v", err)
	}
}

func TestSnippetKeepsRunesWhole(t *testing.T) {
	// "é" is two bytes and straddles the cut.
	body := strings.Repeat("a", maxErrorBody-1) + "é" + strings.Repeat("b", 10)
	got := snippet([]byte(body))
	if !utf8.ValidString(got) {
		t.Fatalf("snippet produced invalid UTF-8: %q", got[len(got)-8:])
	}
	if want := strings.Repeat("a", maxErrorBody-1) + "..."; got != want {
		t.Errorf("snippet tail = %q", got[len(got)-8:])
	}
	if short := snippet([]byte("  nope  ")); short != "nope" {
		t.Errorf("snippet(short) = %q", short)
	}
}
