package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type tokenServer struct {
	mu          sync.Mutex
	grants      []string
	userAgents  []string
	passwordErr string // oauth error code returned for password grants
	ccStatus    int    // status for client_credentials, 0 = 200
}

func (s *tokenServer) handler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, secret, ok := r.BasicAuth()
	if !ok || id != "cid" || secret != "csecret" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_client"}`))
		return
	}

	grant := r.PostForm.Get("grant_type")
	s.mu.Lock()
	s.grants = append(s.grants, grant)
	s.userAgents = append(s.userAgents, r.UserAgent())
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch grant {
	case GrantPassword:
		if s.passwordErr != "" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"` + s.passwordErr + `"}`))
			return
		}
		w.Write([]byte(`{"access_token":"user-token","token_type":"bearer","expires_in":3600}`))
	case GrantClientCredentials:
		if s.ccStatus != 0 {
			w.WriteHeader(s.ccStatus)
			w.Write([]byte(`{"error":"server_error"}`))
			return
		}
		w.Write([]byte(`{"access_token":"app-token","token_type":"bearer","expires_in":3600}`))
	default:
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"unsupported_grant_type"}`))
	}
}

func (s *tokenServer) seen() (grants, userAgents []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.grants...), append([]string(nil), s.userAgents...)
}

func newTokenServer(t *testing.T, ts *tokenServer) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(ts.handler))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestRefreshPasswordGrant(t *testing.T) {
	ts := &tokenServer{}
	m := NewTokenManager(Credentials{
		ClientID: "cid", ClientSecret: "csecret",
		Username: "bot", Password: "pw",
		UserAgent: "sentiradar-test/1.0",
		TokenURL:  newTokenServer(t, ts),
	}, nil)

	tok, err := m.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	grants, agents := ts.seen()
	if tok != "user-token" || m.Token() != "user-token" || m.Grant() != GrantPassword {
		t.Errorf("got token %q grant %q", m.Token(), m.Grant())
	}
	if len(grants) != 1 || grants[0] != GrantPassword {
		t.Errorf("grants = %v", grants)
	}
	if agents[0] != "sentiradar-test/1.0" {
		t.Errorf("User-Agent = %q", agents[0])
	}
}

func TestRefreshFallsBackOnUnauthorizedClient(t *testing.T) {
	ts := &tokenServer{passwordErr: "unauthorized_client"}
	m := NewTokenManager(Credentials{
		ClientID: "cid", ClientSecret: "csecret",
		Username: "bot", Password: "pw",
		TokenURL: newTokenServer(t, ts),
	}, nil)

	tok, err := m.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	grants, _ := ts.seen()
	if tok != "app-token" || m.Grant() != GrantClientCredentials {
		t.Errorf("token %q grant %q, want app-token via client_credentials", tok, m.Grant())
	}
	if len(grants) != 2 || grants[0] != GrantPassword || grants[1] != GrantClientCredentials {
		t.Errorf("grants = %v", grants)
	}
}

func TestRefreshOtherPasswordErrorIsFatal(t *testing.T) {
	ts := &tokenServer{passwordErr: "invalid_grant"}
	m := NewTokenManager(Credentials{
		ClientID: "cid", ClientSecret: "csecret",
		Username: "bot", Password: "wrong",
		TokenURL: newTokenServer(t, ts),
	}, nil)

	_, err := m.Refresh(context.Background())
	var aerr *AuthError
	if !errors.As(err, &aerr) {
		t.Fatalf("Refresh() = %v, want *AuthError", err)
	}
	grants, _ := ts.seen()
	if aerr.Grant != GrantPassword {
		t.Errorf("Grant = %q", aerr.Grant)
	}
	if len(grants) != 1 {
		t.Errorf("must not fall back on invalid_grant, grants = %v", grants)
	}
	if m.Token() != "" {
		t.Errorf("token should stay empty, got %q", m.Token())
	}
}

func TestRefreshClientCredentialsOnly(t *testing.T) {
	ts := &tokenServer{}
	m := NewTokenManager(Credentials{ClientID: "cid", ClientSecret: "csecret", TokenURL: newTokenServer(t, ts)}, nil)

	tok, err := m.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	grants, _ := ts.seen()
	if tok != "app-token" || len(grants) != 1 || grants[0] != GrantClientCredentials {
		t.Errorf("token %q grants %v", tok, grants)
	}
}

func TestRefreshRejected(t *testing.T) {
	ts := &tokenServer{ccStatus: http.StatusInternalServerError}
	m := NewTokenManager(Credentials{ClientID: "cid", ClientSecret: "csecret", TokenURL: newTokenServer(t, ts)}, nil)

	_, err := m.Refresh(context.Background())
	var aerr *AuthError
	if !errors.As(err, &aerr) || aerr.Grant != GrantClientCredentials {
		t.Fatalf("Refresh() = %v, want client_credentials AuthError", err)
	}
}

func TestRefreshMissingCredentials(t *testing.T) {
	m := NewTokenManager(Credentials{}, nil)
	_, err := m.Refresh(context.Background())
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("Refresh() = %v, want ErrMissingCredentials", err)
	}
	var aerr *AuthError
	if !errors.As(err, &aerr) {
		t.Error("missing credentials should surface as *AuthError")
	}
}
