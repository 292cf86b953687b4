package oauth

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/brandon/mailsync/internal/config"
)

const tokenCacheSize = 128

// Manager exchanges refresh tokens for access tokens and caches the results by refresh token
type Manager struct {
	mu        sync.RWMutex
	providers map[string]config.OAuthProvider

	tokens     *lru.Cache[string, *oauth2.Token]
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewManager creates a token manager for the configured providers.
// A nil httpClient uses http.DefaultClient.
func NewManager(providers map[string]config.OAuthProvider, httpClient *http.Client, logger *logrus.Logger) (*Manager, error) {
	tokens, err := lru.New[string, *oauth2.Token](tokenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create token cache: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Manager{
		providers:  providers,
		tokens:     tokens,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// AccessToken returns a valid access token for refreshToken, exchanging it with the
// provider's token endpoint when nothing usable is cached. The returned token's
// RefreshToken differs from the argument when the provider rotated it.
func (m *Manager) AccessToken(ctx context.Context, provider, refreshToken string) (*oauth2.Token, error) {
	if token, ok := m.tokens.Get(refreshToken); ok && token.Valid() {
		return token, nil
	}

	m.mu.RLock()
	settings, ok := m.providers[provider]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown oauth provider: %s", provider)
	}

	conf := &oauth2.Config{
		ClientID:     settings.ClientID,
		ClientSecret: settings.ClientSecret,
		Scopes:       settings.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   settings.AuthURL,
			TokenURL:  settings.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh %s access token: %w", provider, err)
	}

	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}

	m.tokens.Add(refreshToken, token)
	if token.RefreshToken != refreshToken {
		m.tokens.Add(token.RefreshToken, token)
		m.logger.WithField("provider", provider).Info("OAuth refresh token rotated")
	}

	m.logger.WithFields(logrus.Fields{
		"provider": provider,
		"expiry":   token.Expiry,
	}).Debug("Refreshed OAuth access token")
	return token, nil
}

// Invalidate drops the cached access token so the next request exchanges the refresh token again
func (m *Manager) Invalidate(refreshToken string) {
	m.tokens.Remove(refreshToken)
}

// SetProviders replaces the provider settings and forgets every cached access token
func (m *Manager) SetProviders(providers map[string]config.OAuthProvider) {
	m.mu.Lock()
	m.providers = providers
	m.mu.Unlock()
	m.tokens.Purge()
}
