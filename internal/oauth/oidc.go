package oauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/iliyamo/shipping-auth/internal/service"
)

const googleIssuer = "https://accounts.google.com"

// OIDCProvider signs users in through OpenID Connect. The identity comes
// from the verified ID token, never from an unauthenticated userinfo call.
type OIDCProvider struct {
	name     string
	oauth2   *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewGoogleProvider discovers Google's OIDC configuration and builds a
// provider whose callback is redirectURL.
func NewGoogleProvider(ctx context.Context, clientID, clientSecret, redirectURL string) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("discover google oidc: %w", err)
	}
	return newOIDCProvider("google", provider, clientID, clientSecret, redirectURL), nil
}

func newOIDCProvider(name string, provider *oidc.Provider, clientID, clientSecret, redirectURL string) *OIDCProvider {
	return &OIDCProvider{
		name: name,
		oauth2: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  redirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}
}

func (p *OIDCProvider) Name() string { return p.name }

func (p *OIDCProvider) AuthCodeURL(state string) string {
	return p.oauth2.AuthCodeURL(state)
}

type idClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

func (p *OIDCProvider) Exchange(ctx context.Context, code string) (service.ExternalIdentity, error) {
	if code == "" {
		return service.ExternalIdentity{}, errors.New("missing authorization code")
	}
	tok, err := p.oauth2.Exchange(ctx, code)
	if err != nil {
		return service.ExternalIdentity{}, fmt.Errorf("exchange %s code: %w", p.name, err)
	}
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return service.ExternalIdentity{}, fmt.Errorf("%s: missing id_token in response", p.name)
	}
	idToken, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return service.ExternalIdentity{}, fmt.Errorf("verify %s id token: %w", p.name, err)
	}

	var c idClaims
	if err := idToken.Claims(&c); err != nil {
		return service.ExternalIdentity{}, fmt.Errorf("decode %s claims: %w", p.name, err)
	}
	return service.ExternalIdentity{
		Provider:      p.name,
		Subject:       idToken.Subject,
		Email:         c.Email,
		Name:          c.Name,
		EmailVerified: c.EmailVerified,
	}, nil
}
