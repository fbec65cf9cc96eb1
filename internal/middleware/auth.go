package middleware

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rub-lamp/oracle_layer/internal/errors"
	internalhttputil "github.com/rub-lamp/oracle_layer/internal/httputil"
	"github.com/rub-lamp/oracle_layer/internal/logging"
)

// RoleAdmin is the role allowed on /admin routes.
const RoleAdmin = "admin"

// Claims represents JWT claims
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware provides JWT authentication. The verification key is either
// an *rsa.PublicKey (RS256) or an HMAC secret as []byte (HS256).
type AuthMiddleware struct {
	verifyKey interface{}
	logger    *logging.Logger
	skipPaths map[string]bool
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(verifyKey interface{}, logger *logging.Logger, skipPaths []string) *AuthMiddleware {
	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}

	return &AuthMiddleware{
		verifyKey: verifyKey,
		logger:    logger,
		skipPaths: skip,
	}
}

// Handler returns the middleware handler
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.respondError(w, r, errors.Unauthorized("Missing Authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			m.respondError(w, r, errors.Unauthorized("Invalid Authorization header format"))
			return
		}

		claims, err := m.validateToken(parts[1])
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Warn("Token validation failed")
			m.respondError(w, r, err)
			return
		}

		userID := claims.UserID
		if userID == "" {
			userID = claims.Subject
		}
		ctx := context.WithValue(r.Context(), logging.UserIDKey, userID)
		if claims.Role != "" {
			ctx = context.WithValue(ctx, logging.RoleKey, claims.Role)
		}

		m.logger.WithContext(ctx).WithField("role", claims.Role).Debug("Authentication successful")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA:
			if key, ok := m.verifyKey.(*rsa.PublicKey); ok {
				return key, nil
			}
		case *jwt.SigningMethodHMAC:
			if key, ok := m.verifyKey.([]byte); ok && len(key) > 0 {
				return key, nil
			}
		}
		return nil, errors.InvalidToken(nil).WithDetails("method", token.Header["alg"])
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
	return claims, nil
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("Authentication failed", err)
	}

	internalhttputil.WriteErrorResponse(w, r, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)

	m.logger.LogSecurityEvent(r.Context(), "authentication_failed", map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": serviceErr.HTTPStatus,
	})
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

// GetUserRole extracts user role from context
func GetUserRole(ctx context.Context) string {
	return logging.GetRole(ctx)
}

// RequireRole rejects authenticated requests whose role differs from role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetUserID(r.Context()) == "" {
				internalhttputil.WriteError(w, r, errors.Unauthorized(""))
				return
			}
			if GetUserRole(r.Context()) != role {
				internalhttputil.WriteError(w, r, errors.Forbidden(fmt.Sprintf("role %q required", role)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TokenIssuer signs operator tokens for the admin routes.
type TokenIssuer struct {
	method jwt.SigningMethod
	key    interface{}
	expiry time.Duration
}

// NewHMACTokenIssuer signs HS256 tokens with secret.
func NewHMACTokenIssuer(secret []byte, expiry time.Duration) *TokenIssuer {
	return &TokenIssuer{method: jwt.SigningMethodHS256, key: secret, expiry: expiry}
}

// NewRSATokenIssuer signs RS256 tokens with key.
func NewRSATokenIssuer(key *rsa.PrivateKey, expiry time.Duration) *TokenIssuer {
	return &TokenIssuer{method: jwt.SigningMethodRS256, key: key, expiry: expiry}
}

// Issue returns a signed token for userID with role.
func (g *TokenIssuer) Issue(userID, role string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.expiry)),
		},
	}
	return jwt.NewWithClaims(g.method, claims).SignedString(g.key)
}
