package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/kpcloud/kpcloud/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-with-enough-entropy"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestHMACVerifierAcceptsValidToken(t *testing.T) {
	v := NewHMACVerifier(config.AuthConfig{JWTSecret: testSecret})
	now := time.Now()

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":   "firebase-uid-1",
		"email": "user@example.com",
		"name":  "Kovacs Anna",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	})

	claims, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "firebase-uid-1", claims.Subject)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "Kovacs Anna", claims.Name)
}

func TestHMACVerifierRejectsExpiredToken(t *testing.T) {
	v := NewHMACVerifier(config.AuthConfig{JWTSecret: testSecret})
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})

	_, err := v.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestHMACVerifierRejectsWrongSecret(t *testing.T) {
	v := NewHMACVerifier(config.AuthConfig{JWTSecret: testSecret})
	token := signToken(t, "other-secret", jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := v.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestHMACVerifierRequiresSubject(t *testing.T) {
	v := NewHMACVerifier(config.AuthConfig{JWTSecret: testSecret})
	token := signToken(t, testSecret, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := v.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestHMACVerifierEnforcesIssuer(t *testing.T) {
	v := NewHMACVerifier(config.AuthConfig{JWTSecret: testSecret, Issuer: "https://securetoken.example"})
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "u1",
		"iss": "https://attacker.example",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := v.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

type fakeVerifier struct {
	claims Claims
	err    error
}

func (f fakeVerifier) Verify(context.Context, string) (Claims, error) {
	return f.claims, f.err
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(v Verifier) *gin.Engine {
		r := gin.New()
		r.Use(AuthMiddleware(v))
		r.GET("/me", func(c *gin.Context) {
			id, _, ok := RequireUser(c)
			if !ok {
				c.Status(http.StatusInternalServerError)
				return
			}
			c.String(http.StatusOK, id)
		})
		return r
	}

	t.Run("missing header", func(t *testing.T) {
		rr := httptest.NewRecorder()
		newRouter(fakeVerifier{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("not a bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
		rr := httptest.NewRecorder()
		newRouter(fakeVerifier{}).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("rejected token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer abc")
		rr := httptest.NewRecorder()
		newRouter(fakeVerifier{err: ErrUnauthorized}).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("accepted token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer abc")
		rr := httptest.NewRecorder()
		newRouter(fakeVerifier{claims: Claims{Subject: "u-42"}}).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "u-42", rr.Body.String())
	})
}
