package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const secret = "unit-secret"

func signed(t *testing.T, method jwt.SigningMethod, key []byte, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func protectedRouter(secret, audience string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/whoami", JWTMiddleware(secret, audience), func(c *gin.Context) {
		subject, _ := GetUserID(c.Request.Context())
		c.String(http.StatusOK, subject)
	})
	return router
}

func call(router *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestJWTMiddlewareAcceptsValidToken(t *testing.T) {
	token := signed(t, jwt.SigningMethodHS256, []byte(secret), jwt.RegisteredClaims{
		Subject:   "user-1",
		Audience:  jwt.ClaimStrings{"face-verify"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	resp := call(protectedRouter(secret, "face-verify"), "bearer "+token)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if resp.Body.String() != "user-1" {
		t.Fatalf("expected subject user-1, got %q", resp.Body.String())
	}
}

func TestJWTMiddlewareRejects(t *testing.T) {
	valid := jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}

	tests := []struct {
		name          string
		secret        string
		audience      string
		authorization string
	}{
		{"missing header", secret, "", ""},
		{"wrong scheme", secret, "", "Basic abc"},
		{"empty token", secret, "", "Bearer "},
		{"bad signature", secret, "", "Bearer " + signed(t, jwt.SigningMethodHS256, []byte("other"), valid)},
		{"expired", secret, "", "Bearer " + signed(t, jwt.SigningMethodHS256, []byte(secret), jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		})},
		{"wrong audience", secret, "face-verify", "Bearer " + signed(t, jwt.SigningMethodHS256, []byte(secret), valid)},
		{"missing subject", secret, "", "Bearer " + signed(t, jwt.SigningMethodHS256, []byte(secret), jwt.RegisteredClaims{})},
		{"no secret configured", "", "", "Bearer " + signed(t, jwt.SigningMethodHS256, []byte(secret), valid)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := call(protectedRouter(tt.secret, tt.audience), tt.authorization)
			if resp.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", resp.Code)
			}
		})
	}
}

func TestGetUserID(t *testing.T) {
	if _, ok := GetUserID(nil); ok { //nolint:staticcheck
		t.Fatal("expected no subject on nil context")
	}

	ctx := WithUserID(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "abc")
	if got, ok := GetUserID(ctx); !ok || got != "abc" {
		t.Fatalf("expected abc, got %q (%v)", got, ok)
	}
}
