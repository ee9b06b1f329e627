package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/dcengine/internal/platform/ctxutil"
	"github.com/yungbote/dcengine/internal/platform/logger"
)

type AuthConfig struct {
	Secret string
	Issuer string
}

// AuthMiddleware authenticates bearer tokens whose subject is the actor's
// principal id. Authorization happens later, per command.
type AuthMiddleware struct {
	log    *logger.Logger
	secret []byte
	issuer string
}

func NewAuthMiddleware(log *logger.Logger, cfg AuthConfig) (*AuthMiddleware, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: token secret is required")
	}
	return &AuthMiddleware{
		log:    log.With("Middleware", "AuthMiddleware"),
		secret: []byte(secret),
		issuer: strings.TrimSpace(cfg.Issuer),
	}, nil
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			abortAuth(c, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		actorID, err := am.Parse(tokenString)
		if err != nil {
			am.log.Debug("token rejected", "error", err)
			abortAuth(c, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		ctx := ctxutil.WithActorData(c.Request.Context(), &ctxutil.ActorData{ActorID: actorID})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Parse verifies the signature, expiry and issuer and returns the subject.
func (am *AuthMiddleware) Parse(tokenString string) (uuid.UUID, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if am.issuer != "" {
		opts = append(opts, jwt.WithIssuer(am.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	if _, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return am.secret, nil
	}, opts...); err != nil {
		return uuid.Nil, err
	}
	actorID, err := uuid.Parse(claims.Subject)
	if err != nil || actorID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("token subject is not a principal id: %q", claims.Subject)
	}
	return actorID, nil
}

// Issue signs a token for actorID. Used by operator tooling and tests.
func (am *AuthMiddleware) Issue(actorID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   actorID.String(),
		Issuer:    am.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(am.secret)
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

func abortAuth(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{"message": msg, "code": "unauthorized"},
	})
}
