// Package middleware provides HTTP middleware for the gateway
package middleware

import (
	"context"
	"crypto/rsa"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/linuxfoundation/lfx-gateway/internal/errors"
	"github.com/linuxfoundation/lfx-gateway/internal/httputil"
	"github.com/linuxfoundation/lfx-gateway/internal/logging"
)

// Claims represents the bearer token claims the gateway reads. Session
// lifecycle (refresh, expiry handling) belongs to the auth provider; the
// gateway only verifies what it is handed.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware verifies bearer JWTs on authenticated routes.
type AuthMiddleware struct {
	publicKey    *rsa.PublicKey
	logger       *logging.Logger
	skipPaths    []string
	skipPrefixes []string
}

// NewAuthMiddleware creates an authentication middleware. Entries in skip
// ending with "/" are prefix matches; others are exact.
func NewAuthMiddleware(publicKey *rsa.PublicKey, logger *logging.Logger, skip []string) *AuthMiddleware {
	m := &AuthMiddleware{publicKey: publicKey, logger: logger}
	for _, path := range skip {
		if strings.HasSuffix(path, "/") {
			m.skipPrefixes = append(m.skipPrefixes, path)
		} else {
			m.skipPaths = append(m.skipPaths, path)
		}
	}
	return m
}

// LoadPublicKey reads an RSA public key in PEM form from a file.
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPublicKeyFromPEM(data)
}

// Handler returns the middleware handler
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipped(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.respondError(w, r, errors.Unauthorized("Missing Authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.respondError(w, r, errors.Unauthorized("Invalid Authorization header format"))
			return
		}

		claims, err := m.validateToken(parts[1])
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Warn("Token validation failed")
			m.respondError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), logging.UserIDKey, claims.Subject)
		if claims.Role != "" {
			ctx = context.WithValue(ctx, logging.RoleKey, claims.Role)
		}
		ctx = WithBearerToken(ctx, parts[1])
		if claims.Email != "" {
			ctx = WithUserEmail(ctx, claims.Email)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) skipped(path string) bool {
	for _, p := range m.skipPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range m.skipPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// validateToken validates a JWT token and returns claims
func (m *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.InvalidToken(nil).WithDetails("method", token.Header["alg"])
		}
		return m.publicKey, nil
	})
	if err != nil {
		return nil, errors.InvalidToken(err)
	}
	if !token.Valid {
		return nil, errors.InvalidToken(nil)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.InvalidToken(nil).WithDetails("reason", "invalid claims type")
	}
	if claims.Subject == "" {
		return nil, errors.InvalidToken(nil).WithDetails("reason", "missing subject")
	}
	return claims, nil
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteServiceError(w, err)

	m.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
	}).Warn("Authentication failed")
}

type contextKey string

const (
	bearerTokenKey contextKey = "bearer_token"
	userEmailKey   contextKey = "user_email"
)

// WithBearerToken stores the caller's raw bearer token for downstream
// forwarding.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerTokenKey, token)
}

// GetBearerToken returns the caller's bearer token, or "".
func GetBearerToken(ctx context.Context) string {
	if v, ok := ctx.Value(bearerTokenKey).(string); ok {
		return v
	}
	return ""
}

// WithUserEmail stores the authenticated email in the context.
func WithUserEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, userEmailKey, email)
}

// GetUserEmail returns the authenticated email, or "".
func GetUserEmail(ctx context.Context) string {
	if v, ok := ctx.Value(userEmailKey).(string); ok {
		return v
	}
	return ""
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}
