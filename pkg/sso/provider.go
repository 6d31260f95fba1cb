// Package sso implements OpenID Connect login against an institutional
// identity provider. SSO only authenticates; accounts must already
// exist in the user store, and roles always come from the stored
// record, never from provider claims.
package sso

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Config holds the relying-party settings for one OIDC provider.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Scopes must include "openid". Defaults to openid/profile/email
	// when empty.
	Scopes []string
}

// Validate checks the relying-party settings before discovery.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}
	if c.IssuerURL == "" {
		return fmt.Errorf("issuer_url is required")
	}
	if c.RedirectURL == "" {
		return fmt.Errorf("redirect_url is required")
	}
	if len(c.Scopes) == 0 {
		return nil
	}
	for _, scope := range c.Scopes {
		if scope == oidc.ScopeOpenID {
			return nil
		}
	}
	return fmt.Errorf("'openid' scope is required")
}

// Profile is what the provider asserts about the caller. Only the
// email is used to locate the local account; the rest is audit
// context.
type Profile struct {
	Subject string
	Email   string
	Name    string
}

// Authenticator is the part of the provider the HTTP handlers use.
// Split out so handler tests can stub the code exchange.
type Authenticator interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*Profile, error)
}

// Provider wraps OIDC discovery, the authorization-code flow, and ID
// token verification for a single configured issuer.
type Provider struct {
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewProvider validates the config and runs OIDC discovery against the
// issuer.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	return &Provider{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
	}, nil
}

// AuthCodeURL builds the authorization redirect for the given state.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

// Exchange trades the authorization code for tokens and verifies the
// ID token against the issuer's keys.
func (p *Provider) Exchange(ctx context.Context, code string) (*Profile, error) {
	oauth2Token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("missing id_token in token response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse ID token claims: %w", err)
	}

	return profileFromClaims(claims, idToken.Subject)
}

// profileFromClaims maps standard OIDC claims onto a Profile. The
// subject comes from the verified token, not the claims map.
func profileFromClaims(claims map[string]interface{}, subject string) (*Profile, error) {
	profile := &Profile{
		Subject: subject,
		Email:   stringClaim(claims, "email"),
		Name:    stringClaim(claims, "name"),
	}
	if profile.Name == "" {
		profile.Name = stringClaim(claims, "preferred_username")
	}

	if profile.Subject == "" {
		return nil, fmt.Errorf("missing subject in ID token")
	}
	if profile.Email == "" {
		return nil, fmt.Errorf("missing email claim in ID token")
	}
	profile.Email = strings.ToLower(strings.TrimSpace(profile.Email))
	return profile, nil
}

func stringClaim(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
