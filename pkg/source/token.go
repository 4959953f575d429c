package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/elonfeng/sentiradar/internal/logging"
	"github.com/elonfeng/sentiradar/internal/metrics"
)

// DefaultTokenURL is Reddit's OAuth token endpoint.
const DefaultTokenURL = "https://www.reddit.com/api/v1/access_token"

const (
	GrantPassword          = "password"
	GrantClientCredentials = "client_credentials"
)

// ErrMissingCredentials means no client id/secret were configured.
var ErrMissingCredentials = errors.New("missing client credentials")

// AuthError is a failed token acquisition. It aborts the run.
type AuthError struct {
	Grant string
	Err   error
}

func (e *AuthError) Error() string {
	if e.Grant == "" {
		return fmt.Sprintf("reddit auth: %v", e.Err)
	}
	return fmt.Sprintf("reddit auth (%s grant): %v", e.Grant, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Credentials configure the token grants.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
	TokenURL     string
}

// TokenManager holds the single live bearer token for a run and replaces it
// in place when a caller hits an authorization failure.
type TokenManager struct {
	creds  Credentials
	client *http.Client

	mu    sync.RWMutex
	token string
	grant string
}

// NewTokenManager creates a token manager. A nil client gets a default one.
func NewTokenManager(creds Credentials, client *http.Client) *TokenManager {
	if creds.TokenURL == "" {
		creds.TokenURL = DefaultTokenURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &TokenManager{
		creds:  creds,
		client: withUserAgent(client, creds.UserAgent),
	}
}

// Token returns the current token, empty before the first Refresh.
func (m *TokenManager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// Grant returns the grant type that produced the current token.
func (m *TokenManager) Grant() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.grant
}

// Refresh acquires a new token. With user credentials it tries the password
// grant first and falls back to client_credentials only when the upstream
// answers unauthorized_client.
func (m *TokenManager) Refresh(ctx context.Context) (string, error) {
	if m.creds.ClientID == "" || m.creds.ClientSecret == "" {
		return "", &AuthError{Err: ErrMissingCredentials}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)

	if m.creds.Username != "" && m.creds.Password != "" {
		tok, err := m.passwordGrant(ctx)
		if err == nil {
			return m.store(tok, GrantPassword), nil
		}
		if !isUnauthorizedClient(err) {
			metrics.TokenRefreshes.WithLabelValues(GrantPassword, "error").Inc()
			return "", &AuthError{Grant: GrantPassword, Err: err}
		}
		metrics.TokenRefreshes.WithLabelValues(GrantPassword, "unauthorized_client").Inc()
		logging.Warn().Err(err).Msg("password grant rejected as unauthorized_client, falling back to client credentials")
	}

	tok, err := m.clientCredentialsGrant(ctx)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues(GrantClientCredentials, "error").Inc()
		return "", &AuthError{Grant: GrantClientCredentials, Err: err}
	}
	return m.store(tok, GrantClientCredentials), nil
}

func (m *TokenManager) passwordGrant(ctx context.Context) (*oauth2.Token, error) {
	cfg := &oauth2.Config{
		ClientID:     m.creds.ClientID,
		ClientSecret: m.creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  m.creds.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
	return cfg.PasswordCredentialsToken(ctx, m.creds.Username, m.creds.Password)
}

func (m *TokenManager) clientCredentialsGrant(ctx context.Context) (*oauth2.Token, error) {
	cfg := &clientcredentials.Config{
		ClientID:     m.creds.ClientID,
		ClientSecret: m.creds.ClientSecret,
		TokenURL:     m.creds.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	return cfg.Token(ctx)
}

func (m *TokenManager) store(tok *oauth2.Token, grant string) string {
	metrics.TokenRefreshes.WithLabelValues(grant, "ok").Inc()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = tok.AccessToken
	m.grant = grant
	return m.token
}

// isUnauthorizedClient detects the OAuth error code that means the app type
// may not use the password grant.
func isUnauthorizedClient(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.ErrorCode == "unauthorized_client" {
		return true
	}
	return strings.Contains(err.Error(), "unauthorized_client")
}

// userAgentTransport sets User-Agent on every request; Reddit rejects
// requests without a descriptive one.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(req)
}

func withUserAgent(client *http.Client, userAgent string) *http.Client {
	if userAgent == "" {
		return client
	}
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c := *client
	c.Transport = &userAgentTransport{base: base, userAgent: userAgent}
	return &c
}
