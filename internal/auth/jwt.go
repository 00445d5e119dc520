package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "mindengage-training"

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuthenticator issues and verifies HS256 bearer tokens.
type JWTAuthenticator struct {
	hmac []byte
	ttl  time.Duration
	now  func() time.Time
}

func NewJWTAuthenticator(secret string, ttl time.Duration) *JWTAuthenticator {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &JWTAuthenticator{hmac: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for id and returns it with its expiry.
func (a *JWTAuthenticator) Issue(id Identity) (string, time.Time, error) {
	now := a.now()
	exp := now.Add(a.ttl)
	claims := &Claims{
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.AccountID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.hmac)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return s, exp, nil
}

func (a *JWTAuthenticator) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.hmac, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	c, ok := token.Claims.(*Claims)
	if !ok || c.Subject == "" {
		return nil, ErrInvalidToken
	}
	return c, nil
}

func (a *JWTAuthenticator) Authenticate(r *http.Request) (Identity, error) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return Identity{}, ErrNoCredentials
	}
	c, err := a.Parse(strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")))
	if err != nil {
		return Identity{}, err
	}
	return Identity{AccountID: c.Subject, Role: c.Role}, nil
}
