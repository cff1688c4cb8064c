package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"curbenergy/internal/tokenstore"
)

// DefaultExpiryLeeway is the safety margin before the declared expiry at
// which a token is treated as stale. The vendor does not document a margin;
// a conservative fixed window avoids racing in-flight requests against
// expiry.
const DefaultExpiryLeeway = 30 * time.Second

// State is the lifecycle state of a TokenManager.
type State int

const (
	// StateUnauthenticated means no token is held; a login is required.
	StateUnauthenticated State = iota
	// StateAuthenticated means a non-expired access token is held.
	StateAuthenticated
	// StateExpired means a token is held but its access token is past the
	// expiry margin; the next use triggers a refresh.
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Credentials identifies the calling application and the user. Either
// Username/Password or an existing token pair must be supplied; ClientID and
// ClientSecret are always required. Immutable once passed to NewTokenManager.
type Credentials struct {
	ClientID     string
	ClientSecret string

	// Password-grant credentials.
	Username string
	Password string

	// Pre-supplied token pair, used instead of a password login.
	AccessToken  string
	RefreshToken string
}

func (c Credentials) hasPassword() bool { return c.Username != "" && c.Password != "" }

func (c Credentials) hasToken() bool { return c.AccessToken != "" || c.RefreshToken != "" }

// Option is a functional option for configuring TokenManager.
type Option func(*TokenManager)

// WithHTTPClient sets the HTTP client used for token-endpoint requests.
// Defaults to a client with a 30 second timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(m *TokenManager) {
		m.httpClient = client
	}
}

// WithExpiryLeeway overrides the safety margin before declared expiry at
// which a token is considered stale.
func WithExpiryLeeway(leeway time.Duration) Option {
	return func(m *TokenManager) {
		m.leeway = leeway
	}
}

// WithTokenStore enables refresh-token persistence: rotated refresh tokens
// are written back to the store after each successful login or refresh, and
// removed on Logout.
func WithTokenStore(store tokenstore.TokenStore) Option {
	return func(m *TokenManager) {
		m.store = store
	}
}

// TokenManager owns the OAuth2 credential state for one client instance and
// hands out valid access tokens, logging in or refreshing transparently.
// It is safe for concurrent use: token acquisition is single-flight, so
// concurrent callers that find a refresh in progress await its completion
// instead of issuing a redundant one.
type TokenManager struct {
	conf       *oauth2.Config
	creds      Credentials
	leeway     time.Duration
	httpClient *http.Client
	store      tokenstore.TokenStore

	mu    sync.RWMutex
	token *oauth2.Token
	group singleflight.Group
}

// NewTokenManager creates a TokenManager for the given token endpoint.
// No I/O is performed until the first Token or Login call.
func NewTokenManager(tokenURL string, creds Credentials, opts ...Option) (*TokenManager, error) {
	if tokenURL == "" {
		return nil, errors.New("token URL is required")
	}
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, errors.New("client ID and client secret are required")
	}
	if !creds.hasPassword() && !creds.hasToken() {
		return nil, errors.New("either username/password or a token pair is required")
	}

	m := &TokenManager{
		conf: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL: tokenURL,
				// Client id/secret travel as HTTP Basic auth
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		creds:  creds,
		leeway: DefaultExpiryLeeway,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(m)
	}

	if creds.hasToken() {
		m.token = &oauth2.Token{
			AccessToken:  creds.AccessToken,
			RefreshToken: creds.RefreshToken,
			// Expiry unknown: trusted until a request is rejected
		}
	}

	return m, nil
}

// Token returns a valid access token, logging in or refreshing if necessary.
//
// If the manager is unauthenticated and holds password credentials, it logs
// in; if the held token is expired, it refreshes. A rejected refresh token
// returns *TokenRefreshError and resets the manager to unauthenticated.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	// Fast path: valid cached token under read lock
	m.mu.RLock()
	if m.usable() {
		token := m.token.AccessToken
		m.mu.RUnlock()
		return token, nil
	}
	m.mu.RUnlock()

	// Collapse concurrent acquisitions into a single token-endpoint call
	v, err, _ := m.group.Do("token", func() (any, error) {
		return m.acquire(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// acquire obtains a fresh access token, holding the write lock across the
// token-endpoint call so state transitions are atomic.
func (m *TokenManager) acquire(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Another caller may have won the flight before us
	if m.usable() {
		return m.token.AccessToken, nil
	}

	if m.token != nil && m.token.RefreshToken != "" {
		token, err := m.refreshLocked(ctx, m.token.RefreshToken)
		if err != nil {
			var refreshErr *TokenRefreshError
			if errors.As(err, &refreshErr) {
				// Rejected refresh token: back to unauthenticated, the
				// caller has to log in again with password credentials.
				m.token = nil
			}
			return "", err
		}
		m.setTokenLocked(ctx, token)
		return token.AccessToken, nil
	}

	if !m.creds.hasPassword() {
		return "", &AuthenticationError{Err: errors.New("no credentials held: login required")}
	}

	token, err := m.loginLocked(ctx, m.creds.Username, m.creds.Password)
	if err != nil {
		return "", err
	}
	m.setTokenLocked(ctx, token)
	return token.AccessToken, nil
}

// Login authenticates with the given username and password, replacing any
// held token. Concurrent calls serialize behind the same lock that guards
// refreshes, so at most one token-endpoint request is in flight.
func (m *TokenManager) Login(ctx context.Context, username, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, err := m.loginLocked(ctx, username, password)
	if err != nil {
		return err
	}

	m.creds.Username = username
	m.creds.Password = password
	m.setTokenLocked(ctx, token)
	return nil
}

// Logout releases all held token state and removes any persisted refresh
// token. The manager returns to the unauthenticated state.
func (m *TokenManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = nil

	if m.store != nil {
		if err := m.store.Delete(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Invalidate marks the held access token as expired, forcing the next Token
// call to refresh (or log in again). Called after an API request is rejected
// with an authorization failure.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == nil {
		return
	}
	if m.token.RefreshToken == "" {
		// Nothing left to refresh with
		m.token = nil
		return
	}
	m.token.AccessToken = ""
	m.token.Expiry = time.Now().Add(-time.Second)
}

// State reports the current lifecycle state.
func (m *TokenManager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch {
	case m.token == nil:
		return StateUnauthenticated
	case m.usable():
		return StateAuthenticated
	default:
		return StateExpired
	}
}

// usable reports whether the held token is still good for use, honoring the
// expiry leeway. Caller must hold at least the read lock.
func (m *TokenManager) usable() bool {
	if m.token == nil || m.token.AccessToken == "" {
		return false
	}
	// Zero expiry means the lifetime is unknown (injected token); trust it
	// until a request is rejected.
	if m.token.Expiry.IsZero() {
		return true
	}
	return time.Until(m.token.Expiry) > m.leeway
}

// loginLocked performs a password-grant exchange. Caller must hold the write
// lock.
func (m *TokenManager) loginLocked(ctx context.Context, username, password string) (*oauth2.Token, error) {
	token, err := m.conf.PasswordCredentialsToken(m.exchangeContext(ctx), username, password)
	if err != nil {
		return nil, classifyExchangeError(err, false)
	}
	slog.DebugContext(ctx, "obtained access token via password grant", "expiry", token.Expiry)
	return token, nil
}

// refreshLocked performs a refresh-grant exchange. Caller must hold the
// write lock.
func (m *TokenManager) refreshLocked(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	source := m.conf.TokenSource(m.exchangeContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, classifyExchangeError(err, true)
	}
	slog.DebugContext(ctx, "refreshed access token", "expiry", token.Expiry,
		"refresh_token_rotated", token.RefreshToken != refreshToken)
	return token, nil
}

// setTokenLocked replaces the token state wholesale and persists a rotated
// refresh token. Caller must hold the write lock.
func (m *TokenManager) setTokenLocked(ctx context.Context, token *oauth2.Token) {
	previous := ""
	if m.token != nil {
		previous = m.token.RefreshToken
	}
	m.token = token

	if m.store == nil || token.RefreshToken == "" || token.RefreshToken == previous {
		return
	}
	if err := m.store.Write(ctx, token.RefreshToken); err != nil {
		// The in-memory token is still valid; only future runs are affected
		slog.ErrorContext(ctx, "failed to persist refresh token", "error", err)
	}
}

// exchangeContext injects the manager's HTTP client into the context the
// oauth2 package uses for token-endpoint requests.
func (m *TokenManager) exchangeContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

// classifyExchangeError maps token-endpoint failures onto the error
// taxonomy: credential rejections become *AuthenticationError (login) or
// *TokenRefreshError (refresh), everything else is a *TransportError.
func classifyExchangeError(err error, refresh bool) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		code := retrieveErr.Response.StatusCode
		switch code {
		// OAuth2 servers report bad credentials as 400 invalid_grant as
		// often as 401/403
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			if refresh {
				return &TokenRefreshError{StatusCode: code, Err: err}
			}
			return &AuthenticationError{StatusCode: code, Err: err}
		}
	}
	return &TransportError{Err: err}
}
