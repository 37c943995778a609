package auth

import (
	"context"
	"time"
)

// Claims describes the validated identity extracted from a bearer token.
type Claims struct {
	Subject   string
	Email     string
	Name      string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// Verifier validates a raw bearer token issued by the identity provider.
type Verifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}
