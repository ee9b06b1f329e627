package ticket

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	types "github.com/yungbote/dcengine/internal/domain"
	dtransfer "github.com/yungbote/dcengine/internal/domain/transfer"
)

// Claims are what the host image agent trusts a ticket for.
type Claims struct {
	SessionID string   `json:"sid"`
	ImageID   string   `json:"img"`
	Direction string   `json:"dir"`
	Ops       []string `json:"ops"`
	Size      int64    `json:"size"`
	jwt.RegisteredClaims
}

type Signer struct {
	key    []byte
	issuer string
}

func NewSigner(key, issuer string) (*Signer, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("ticket signing key is required")
	}
	if strings.TrimSpace(issuer) == "" {
		issuer = "dcengine"
	}
	return &Signer{key: []byte(key), issuer: issuer}, nil
}

// OpsFor lists the agent operations a direction allows.
func OpsFor(d dtransfer.Direction) []string {
	if d == dtransfer.DirectionDownload {
		return []string{"read"}
	}
	return []string{"write"}
}

func (s *Signer) Sign(sess *types.TransferSession, now time.Time) (string, error) {
	claims := Claims{
		SessionID: sess.ID.String(),
		ImageID:   sess.ImageID.String(),
		Direction: string(sess.Direction),
		Ops:       OpsFor(sess.Direction),
		Size:      sess.SizeBytes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   sess.OwnerID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.key)
}

func (s *Signer) Parse(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(s.issuer))
	parsed, err := parser.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return s.key, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid ticket")
	}
	return claims, nil
}
