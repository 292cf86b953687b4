package email

import (
	"context"
	"fmt"
	"net/smtp"
	"sync"

	"golang.org/x/oauth2"
)

// TokenSource hands out OAuth access tokens for refresh tokens
type TokenSource interface {
	AccessToken(ctx context.Context, provider, refreshToken string) (*oauth2.Token, error)
	Invalidate(refreshToken string)
}

// credentials authenticate one account endpoint with either a password or OAuth.
// The refresh token is replaced in place when the provider rotates it.
type credentials struct {
	account  string
	host     string
	username string
	password string

	provider string
	tokens   TokenSource
	onRotate func(refreshToken string)

	mu           sync.Mutex
	refreshToken string
}

func (c *credentials) usesOAuth() bool {
	return c.provider != ""
}

// accessToken returns a current access token, noting any refresh token rotation
func (c *credentials) accessToken(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	refreshToken := c.refreshToken
	c.mu.Unlock()

	if refreshToken == "" {
		return nil, &SettingsError{Account: c.account, Reason: fmt.Sprintf("no OAuth refresh token for %s", c.host)}
	}
	if c.tokens == nil {
		return nil, &SettingsError{Account: c.account, Reason: "OAuth is not configured"}
	}

	token, err := c.tokens.AccessToken(ctx, c.provider, refreshToken)
	if err != nil {
		return nil, err
	}

	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		c.mu.Lock()
		c.refreshToken = token.RefreshToken
		c.mu.Unlock()
		if c.onRotate != nil {
			c.onRotate(token.RefreshToken)
		}
	}
	return token, nil
}

// login authenticates an IMAP session
func (c *credentials) login(ctx context.Context, t Transport) error {
	if !c.usesOAuth() {
		if c.password == "" {
			return &SettingsError{Account: c.account, Reason: fmt.Sprintf("no password for %s", c.host)}
		}
		return t.Login(c.username, c.password)
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	if err := t.Authenticate(NewXOAuth2Client(c.username, token.AccessToken)); err != nil {
		// The cached token may have been revoked; exchange again next time
		c.tokens.Invalidate(token.RefreshToken)
		return fmt.Errorf("failed to authenticate with OAuth: %w", err)
	}
	return nil
}

// smtpAuth returns the SMTP authentication mechanism for this endpoint
func (c *credentials) smtpAuth(ctx context.Context) (smtp.Auth, error) {
	if !c.usesOAuth() {
		if c.password == "" {
			return nil, &SettingsError{Account: c.account, Reason: fmt.Sprintf("no password for %s", c.host)}
		}
		return smtp.PlainAuth("", c.username, c.password, c.host), nil
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	return &xoauth2Auth{username: c.username, token: token.AccessToken, refreshToken: token.RefreshToken}, nil
}

// rejected drops the access token behind an SMTP login the server refused
func (c *credentials) rejected(auth smtp.Auth) {
	if oauth, ok := auth.(*xoauth2Auth); ok && c.tokens != nil {
		c.tokens.Invalidate(oauth.refreshToken)
	}
}
