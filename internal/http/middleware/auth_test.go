package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/dcengine/internal/platform/ctxutil"
	"github.com/yungbote/dcengine/internal/platform/logger"
)

func newAuth(t *testing.T) *AuthMiddleware {
	t.Helper()
	am, err := NewAuthMiddleware(logger.Nop(), AuthConfig{Secret: "test-secret", Issuer: "dcengine"})
	if err != nil {
		t.Fatalf("NewAuthMiddleware: %v", err)
	}
	return am
}

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	am := newAuth(t)
	actor := uuid.New()

	valid, err := am.Issue(actor, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	expired, _ := am.Issue(actor, -time.Minute)
	other, _ := (&AuthMiddleware{secret: []byte("other"), issuer: "dcengine"}).Issue(actor, time.Minute)
	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "dcengine",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("test-secret"))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "valid", header: "Bearer " + valid, want: http.StatusOK},
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, want: http.StatusUnauthorized},
		{name: "wrong key", header: "Bearer " + other, want: http.StatusUnauthorized},
		{name: "no subject", header: "Bearer " + noSubject, want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen uuid.UUID
			r := gin.New()
			r.Use(am.RequireAuth())
			r.GET("/whoami", func(c *gin.Context) {
				if ad := ctxutil.GetActorData(c.Request.Context()); ad != nil {
					seen = ad.ActorID
				}
				c.Status(http.StatusOK)
			})
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status: want=%d got=%d body=%s", tt.want, rec.Code, rec.Body.String())
			}
			if tt.want == http.StatusOK && seen != actor {
				t.Fatalf("actor: want=%s got=%s", actor, seen)
			}
		})
	}
}

func TestNewAuthMiddlewareRequiresSecret(t *testing.T) {
	if _, err := NewAuthMiddleware(logger.Nop(), AuthConfig{Secret: "  "}); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
