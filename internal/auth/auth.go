// Package auth turns bearer tokens into verified identities. Two verifiers
// exist: ProviderVerifier asks the external identity provider's API, and
// JWTVerifier checks an HMAC-signed token locally for self-hosted setups.
package auth

import (
	"context"
	"fmt"

	"ragchat/internal/config"
	"ragchat/internal/models"
	"ragchat/pkg/httpclient"
	"ragchat/pkg/logger"
)

// Verifier resolves a bearer token to an identity or an AuthError.
type Verifier interface {
	Verify(ctx context.Context, token string) (*models.Identity, error)
}

// NewVerifier creates the verifier selected by configuration.
func NewVerifier(cfg config.AuthConfig, hc *httpclient.Client, log *logger.Logger) (Verifier, error) {
	switch cfg.Method {
	case "provider":
		if cfg.ProviderURL == "" || cfg.ProviderSecret == "" {
			return nil, fmt.Errorf("provider auth requires providerURL and providerSecret")
		}
		return NewProviderVerifier(cfg.ProviderURL, cfg.ProviderSecret, hc, log), nil
	case "jwt":
		if cfg.JwtSecret == "" {
			return nil, fmt.Errorf("jwt auth requires jwtSecret")
		}
		return NewJWTVerifier(cfg.JwtSecret), nil
	default:
		return nil, fmt.Errorf("unsupported auth method: %s", cfg.Method)
	}
}
