package authgateway

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrOAuthNotConfigured is returned when Google sign-in is requested without client credentials.
var ErrOAuthNotConfigured = errors.New("authgateway: google oauth is not configured")

// ErrOAuthCancelled is returned when the user backs out of the Google consent screen.
var ErrOAuthCancelled = errors.New("authgateway: google sign-in cancelled")

// GoogleOAuthConfig holds the OAuth client registered with Google.
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint overrides google.Endpoint (tests).
	Endpoint *oauth2.Endpoint
}

// GoogleOAuth drives the authorization code flow that feeds SignUpWithGmail.
type GoogleOAuth struct {
	cfg *oauth2.Config
}

// NewGoogleOAuth returns nil when the client ID is empty so callers can treat Google sign-in as disabled.
func NewGoogleOAuth(cfg GoogleOAuthConfig) *GoogleOAuth {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil
	}
	endpoint := google.Endpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	return &GoogleOAuth{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
	}
}

// Enabled reports whether the flow can be started.
func (g *GoogleOAuth) Enabled() bool {
	return g != nil && g.cfg != nil
}

// AuthCodeURL builds the consent screen URL bound to state.
func (g *GoogleOAuth) AuthCodeURL(state string) (string, error) {
	if !g.Enabled() {
		return "", ErrOAuthNotConfigured
	}
	return g.cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account")), nil
}

// Exchange trades the callback code for a credential usable with SignUpWithGmail.
func (g *GoogleOAuth) Exchange(ctx context.Context, code string) (OAuthCredential, error) {
	if !g.Enabled() {
		return OAuthCredential{}, ErrOAuthNotConfigured
	}
	if strings.TrimSpace(code) == "" {
		return OAuthCredential{}, NewProviderError(CodeInvalidCredential, errors.New("missing authorization code"))
	}
	token, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return OAuthCredential{}, NewProviderError(CodeInvalidCredential, err)
	}
	idToken, _ := token.Extra("id_token").(string)
	return OAuthCredential{
		ProviderID:  ProviderGoogle,
		IDToken:     idToken,
		AccessToken: token.AccessToken,
	}, nil
}
