package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rub-lamp/oracle_layer/internal/logging"
)

func generateTestKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}
	return privateKey, &privateKey.PublicKey
}

func generateTestToken(t *testing.T, privateKey *rsa.PrivateKey, userID string, expired bool) string {
	claims := &Claims{
		UserID: userID,
		Role:   RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	if expired {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-1 * time.Hour))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tokenString, err := token.SignedString(privateKey)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	return tokenString
}

func TestNewAuthMiddleware(t *testing.T) {
	_, publicKey := generateTestKeys(t)
	m := NewAuthMiddleware(publicKey, logging.NewDiscard("test"), []string{"/health", "/metrics"})

	if m.verifyKey != publicKey {
		t.Error("verifyKey not set correctly")
	}
	if !m.skipPaths["/health"] || !m.skipPaths["/metrics"] || len(m.skipPaths) != 2 {
		t.Errorf("skipPaths = %v", m.skipPaths)
	}
}

func TestAuthMiddleware_Handler(t *testing.T) {
	privateKey, publicKey := generateTestKeys(t)
	otherKey, _ := generateTestKeys(t)
	m := NewAuthMiddleware(publicKey, logging.NewDiscard("test"), []string{"/health"})

	var seenUser string
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name     string
		path     string
		method   string
		header   string
		want     int
		wantUser string
	}{
		{name: "skip path", path: "/health", want: http.StatusOK},
		{name: "preflight", path: "/admin/wish-logs", method: http.MethodOptions, want: http.StatusOK},
		{name: "missing header", path: "/admin/wish-logs", want: http.StatusUnauthorized},
		{name: "no bearer prefix", path: "/admin/wish-logs", header: "token123", want: http.StatusUnauthorized},
		{name: "basic scheme", path: "/admin/wish-logs", header: "Basic token123", want: http.StatusUnauthorized},
		{name: "empty token", path: "/admin/wish-logs", header: "Bearer ", want: http.StatusUnauthorized},
		{name: "garbage token", path: "/admin/wish-logs", header: "Bearer invalid.token.here", want: http.StatusUnauthorized},
		{name: "expired", path: "/admin/wish-logs", header: "Bearer " + generateTestToken(t, privateKey, "ops", true), want: http.StatusUnauthorized},
		{name: "foreign key", path: "/admin/wish-logs", header: "Bearer " + generateTestToken(t, otherKey, "ops", false), want: http.StatusUnauthorized},
		{name: "valid", path: "/admin/wish-logs", header: "Bearer " + generateTestToken(t, privateKey, "ops", false), want: http.StatusOK, wantUser: "ops"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seenUser = ""
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req := httptest.NewRequest(method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("Status code = %d, want %d", rec.Code, tt.want)
			}
			if seenUser != tt.wantUser {
				t.Errorf("user = %q, want %q", seenUser, tt.wantUser)
			}
		})
	}
}

func TestGetUserID(t *testing.T) {
	if got := GetUserID(logging.WithUserID(context.Background(), "ops")); got != "ops" {
		t.Errorf("GetUserID() = %q", got)
	}
	if got := GetUserID(context.Background()); got != "" {
		t.Errorf("GetUserID() = %q, want empty", got)
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	adminCtx := context.WithValue(logging.WithUserID(context.Background(), "ops"), logging.RoleKey, RoleAdmin)
	userCtx := context.WithValue(logging.WithUserID(context.Background(), "ops"), logging.RoleKey, "viewer")

	tests := []struct {
		name       string
		ctx        context.Context
		wantStatus int
	}{
		{
			name:       "admin",
			ctx:        adminCtx,
			wantStatus: http.StatusOK,
		},
		{
			name:       "other role",
			ctx:        userCtx,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "anonymous",
			ctx:        context.Background(),
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/admin/wish-logs", nil)
			req = req.WithContext(tt.ctx)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("Status code = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestAuthMiddleware_Handler_PreservesTraceID(t *testing.T) {
	privateKey, publicKey := generateTestKeys(t)
	logger := logging.New("test", "info", "json")

	middleware := NewAuthMiddleware(publicKey, logger, nil)

	var capturedTraceID string
	handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedTraceID = logging.GetTraceID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	token := generateTestToken(t, privateKey, "user-123", false)

	req := httptest.NewRequest("GET", "/admin/hoard", nil)
	ctx := logging.WithTraceID(req.Context(), "trace-456")
	req = req.WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", rec.Code, http.StatusOK)
	}

	if capturedTraceID != "trace-456" {
		t.Errorf("Trace ID = %v, want trace-456", capturedTraceID)
	}
}

func TestTokenIssuer_HMAC(t *testing.T) {
	secret := []byte("lamp-secret")
	logger := logging.New("test", "info", "json")
	middleware := NewAuthMiddleware(secret, logger, nil)

	token, err := NewHMACTokenIssuer(secret, time.Hour).Issue("operator", RoleAdmin)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	var role, userID string
	handler := middleware.Handler(RequireRole(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role = GetUserRole(r.Context())
		userID = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest("GET", "/admin/hoard", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status code = %d, want %d", rec.Code, http.StatusOK)
	}
	if role != RoleAdmin || userID != "operator" {
		t.Errorf("role = %q user = %q", role, userID)
	}
}

func TestAuthMiddleware_RejectsAlgorithmMismatch(t *testing.T) {
	privateKey, _ := generateTestKeys(t)
	logger := logging.New("test", "info", "json")

	// An RS256 token must not verify against an HMAC secret.
	middleware := NewAuthMiddleware([]byte("secret"), logger, nil)
	token := generateTestToken(t, privateKey, "user-123", false)

	if _, err := middleware.validateToken(token); err == nil {
		t.Fatal("validateToken() accepted a token signed with the wrong algorithm")
	}
}

func TestTokenIssuer_RSA(t *testing.T) {
	privateKey, publicKey := generateTestKeys(t)
	middleware := NewAuthMiddleware(publicKey, logging.New("test", "info", "json"), nil)

	token, err := NewRSATokenIssuer(privateKey, time.Minute).Issue("operator", RoleAdmin)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	claims, err := middleware.validateToken(token)
	if err != nil {
		t.Fatalf("validateToken() error = %v", err)
	}
	if claims.Subject != "operator" || claims.Role != RoleAdmin {
		t.Errorf("claims = %+v", claims)
	}
	if claims.ExpiresAt == nil || claims.ExpiresAt.Time.Before(time.Now()) {
		t.Errorf("expiry not set")
	}
}
