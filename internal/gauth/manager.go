package gauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"solarbill/internal/config"
	"solarbill/internal/domain"
	"solarbill/internal/httpretry"
)

const (
	jwtBearerGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionLifetime  = time.Hour
	tokenMaxAttempts   = 2
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
}

// Manager exchanges a service-account credential for short-lived bearer
// tokens and serves them from a shared TokenCache until near expiry.
type Manager struct {
	account  ServiceAccount
	tokenURL string
	scope    string
	cache    *TokenCache
	client   *http.Client
	retry    httpretry.Policy
	now      func() time.Time
	log      zerolog.Logger

	degraded atomic.Int64
}

// Option customizes a Manager.
type Option func(*Manager)

// WithHTTPClient overrides the HTTP client used for the token exchange.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.client = c }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithSleeper overrides the backoff sleeper.
func WithSleeper(s httpretry.Sleeper) Option {
	return func(m *Manager) { m.retry.Sleep = s }
}

// NewManager creates a token manager. The token endpoint falls back to the
// account's token_uri and then the configured URL.
func NewManager(account ServiceAccount, gcfg config.GoogleConfig, pcfg config.ProcessingConfig, cache *TokenCache, log zerolog.Logger, opts ...Option) *Manager {
	tokenURL := gcfg.TokenURL
	if tokenURL == "" {
		tokenURL = account.TokenURI
	}
	if cache == nil {
		cache = NewTokenCache()
	}
	timeout := pcfg.APITimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	m := &Manager{
		account:  account,
		tokenURL: tokenURL,
		scope:    gcfg.Scope,
		cache:    cache,
		client:   &http.Client{Timeout: timeout},
		retry: httpretry.Policy{
			MaxAttempts: tokenMaxAttempts,
			BaseDelay:   pcfg.RetryDelay,
			Backoff:     httpretry.Linear,
		},
		now: time.Now,
		log: log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Token returns a bearer token, hitting the network only on a cache miss.
func (m *Manager) Token(ctx context.Context) (string, error) {
	if tok, ok := m.cache.Get(m.now()); ok {
		return tok, nil
	}

	assertion, err := m.signAssertion()
	if err != nil {
		return "", fmt.Errorf("%w: signing assertion: %v", domain.ErrAuthFailure, err)
	}

	var resp *tokenResponse
	err = httpretry.Do(ctx, m.retry, m.log, func(attempt int) error {
		r, err := m.exchange(ctx, assertion)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		m.log.Error().Err(err).Str("token_url", m.tokenURL).Msg("token exchange failed")
		return "", fmt.Errorf("%w: %v", domain.ErrAuthFailure, err)
	}

	expiresAt := m.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	m.cache.Set(resp.AccessToken, expiresAt)
	m.log.Debug().Time("expires_at", expiresAt).Msg("bearer token refreshed")
	return resp.AccessToken, nil
}

// DegradedSignings counts assertions signed without the RSA key.
func (m *Manager) DegradedSignings() int64 {
	return m.degraded.Load()
}

func (m *Manager) signAssertion() (string, error) {
	now := m.now()
	claims := jwt.MapClaims{
		"iss":   m.account.ClientEmail,
		"scope": m.scope,
		"aud":   m.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionLifetime).Unix(),
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(m.account.PrivateKey))
	if err == nil {
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		if m.account.PrivateKeyID != "" {
			tok.Header["kid"] = m.account.PrivateKeyID
		}
		return tok.SignedString(key)
	}

	// DEGRADED: the key material is not a usable RSA key. The HMAC signature
	// below will not verify at the identity provider; it only lets the
	// exchange be attempted so the failure surfaces as AuthFailure.
	m.degraded.Add(1)
	m.log.Warn().Bool("degraded", true).Err(err).Str("issuer", m.account.ClientEmail).
		Msg("RSA signing unavailable, using degraded HMAC assertion")
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.account.PrivateKey))
}

func (m *Manager) exchange(ctx context.Context, assertion string) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", jwtBearerGrantType)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		if httpretry.IsTimeout(err) {
			return nil, httpretry.Transient(fmt.Errorf("calling token endpoint: %w", err), 0)
		}
		return nil, fmt.Errorf("calling token endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		baseErr := fmt.Errorf("token endpoint error (status %d): %s", resp.StatusCode, truncate(string(body), 300))
		if httpretry.ShouldRetry(resp.StatusCode) {
			return nil, httpretry.Transient(baseErr, resp.StatusCode)
		}
		return nil, baseErr
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response has no access_token")
	}
	if tr.ExpiresIn <= 0 {
		tr.ExpiresIn = int64(assertionLifetime / time.Second)
	}
	return &tr, nil
}

// TokenSource adapts the manager to oauth2 for SDK clients. Tokens still
// come from the shared cache.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &managerTokenSource{ctx: ctx, m: m}
}

type managerTokenSource struct {
	ctx context.Context
	m   *Manager
}

func (s *managerTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.m.Token(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: tok,
		TokenType:   "Bearer",
		Expiry:      s.m.cache.ExpiresAt(),
	}, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
