package social

import (
	"context"
	"errors"
	"fmt"

	"github.com/chirino/memory-journal/internal/config"
	registrystore "github.com/chirino/memory-journal/internal/registry/store"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Google signs users in with OpenID Connect.
type Google struct {
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewGoogle performs provider discovery against cfg.GoogleIssuer.
func NewGoogle(ctx context.Context, cfg *config.Config) (*Google, error) {
	provider, err := oidc.NewProvider(ctx, cfg.GoogleIssuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  CallbackURL(cfg, ProviderGoogle),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}
	return NewGoogleWithVerifier(oauthCfg, provider.Verifier(&oidc.Config{ClientID: cfg.GoogleClientID})), nil
}

// NewGoogleWithVerifier builds a connector from an explicit OAuth2 config and
// ID token verifier.
func NewGoogleWithVerifier(oauthCfg *oauth2.Config, verifier *oidc.IDTokenVerifier) *Google {
	return &Google{oauth: oauthCfg, verifier: verifier}
}

func (g *Google) Provider() Provider { return ProviderGoogle }

func (g *Google) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (g *Google) Exchange(ctx context.Context, code string) (*registrystore.SocialLogin, error) {
	token, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Join(errExchange, err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.Join(errInvalidToken, errors.New("token response has no id_token"))
	}
	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Join(errInvalidToken, err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Join(errInvalidToken, err)
	}
	email, _ := claims["email"].(string)
	return &registrystore.SocialLogin{
		Provider:  string(ProviderGoogle),
		UID:       idToken.Subject,
		Email:     email,
		ExtraData: claims,
	}, nil
}
