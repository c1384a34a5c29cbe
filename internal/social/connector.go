package social

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/memory-journal/internal/config"
	registrystore "github.com/chirino/memory-journal/internal/registry/store"
)

var (
	errExchange      = errors.New("authorization code exchange failed")
	errInvalidToken  = errors.New("invalid ID token")
	errProfileLookup = errors.New("profile lookup failed")
)

// Connector runs the authorization code flow against one provider.
type Connector interface {
	Provider() Provider
	// AuthCodeURL is the provider consent page the browser is sent to.
	AuthCodeURL(state string) string
	// Exchange trades an authorization code for the signed-in account.
	Exchange(ctx context.Context, code string) (*registrystore.SocialLogin, error)
}

// Connectors holds the configured connectors by provider.
type Connectors map[Provider]Connector

// Get returns the connector for p.
func (c Connectors) Get(p Provider) (Connector, bool) {
	conn, ok := c[p]
	return conn, ok
}

// Enabled lists the configured providers in display order.
func (c Connectors) Enabled() []Provider {
	var out []Provider
	for _, p := range Providers {
		if _, ok := c[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// CallbackURL is the redirect URI registered with provider p.
func CallbackURL(cfg *config.Config, p Provider) string {
	return fmt.Sprintf("%s/accounts/%s/login/callback/", cfg.ResolvedBaseURL(), p)
}

// NewConnectors builds a connector for every provider with a client ID.
// A provider whose discovery fails is logged and left out.
func NewConnectors(ctx context.Context, cfg *config.Config) Connectors {
	out := Connectors{}
	if cfg.GoogleClientID != "" {
		google, err := NewGoogle(ctx, cfg)
		if err != nil {
			log.Error("Failed to initialize Google login; provider disabled", "issuer", cfg.GoogleIssuer, "err", err)
		} else {
			out[ProviderGoogle] = google
			log.Info("Google login enabled", "issuer", cfg.GoogleIssuer)
		}
	}
	if cfg.VKClientID != "" {
		out[ProviderVK] = NewVK(cfg)
		log.Info("VK login enabled", "apiVersion", cfg.VKAPIVersion)
	}
	if len(out) == 0 {
		log.Warn("No identity providers configured; nobody can log in")
	}
	return out
}
