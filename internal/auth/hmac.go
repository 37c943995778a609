package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kpcloud/kpcloud/internal/config"
)

// HMACVerifier validates HS256 tokens signed with a secret shared with the
// identity provider.
type HMACVerifier struct {
	secret  []byte
	nowFunc func() time.Time
	parser  *jwt.Parser
}

// NewHMACVerifier creates a verifier from cfg. Issuer and audience are only
// enforced when configured.
func NewHMACVerifier(cfg config.AuthConfig) *HMACVerifier {
	v := &HMACVerifier{
		secret:  []byte(cfg.JWTSecret),
		nowFunc: time.Now,
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return v.nowFunc() }),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	v.parser = jwt.NewParser(opts...)
	return v
}

type tokenClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// Verify checks the signature and expiry and extracts the identity.
func (v *HMACVerifier) Verify(_ context.Context, tokenString string) (Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrUnauthorized
	}

	var claims tokenClaims
	parsed, err := v.parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, ErrUnauthorized
	}
	if claims.Subject == "" {
		return Claims{}, ErrMissingSubject
	}

	out := Claims{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}
