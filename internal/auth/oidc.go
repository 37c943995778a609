package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/kpcloud/kpcloud/internal/config"
)

// OIDCVerifier validates ID tokens against an OpenID Connect provider
// discovered from its issuer URL.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier performs provider discovery.
func NewOIDCVerifier(ctx context.Context, cfg config.AuthConfig) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc provider: %w", err)
	}
	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.OIDCClientID}),
	}, nil
}

// Verify validates the token and reads the profile claims.
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (Claims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return Claims{}, ErrUnauthorized
	}
	if idToken.Subject == "" {
		return Claims{}, ErrMissingSubject
	}

	var profile struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&profile); err != nil {
		return Claims{}, fmt.Errorf("decode claims: %w", err)
	}

	return Claims{
		Subject:   idToken.Subject,
		Email:     profile.Email,
		Name:      profile.Name,
		ExpiresAt: idToken.Expiry,
		IssuedAt:  idToken.IssuedAt,
	}, nil
}

// NewVerifier selects the verifier configured by cfg.Mode.
func NewVerifier(ctx context.Context, cfg config.AuthConfig) (Verifier, error) {
	switch cfg.Mode {
	case "oidc":
		return NewOIDCVerifier(ctx, cfg)
	case "hmac":
		return NewHMACVerifier(cfg), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}
