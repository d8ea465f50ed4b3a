// Package session owns the dashboard session: a provider-issued token pair
// stored in cookies. The Manager is the single place that decodes, refreshes
// and invalidates it; handlers only see the resolved copy placed in the
// request context.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrSessionAbsent = errors.New("session absent")
	ErrTokenInvalid  = errors.New("access token invalid")
)

type Session struct {
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
}

// Expired reports whether the access token is past expiry, or within leeway of it.
func (s Session) Expired(now time.Time, leeway time.Duration) bool {
	return !now.Add(leeway).Before(s.ExpiresAt)
}

// Claims is the access token payload issued by the identity provider.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenDecoder verifies provider access tokens (HS256 with the project's
// shared JWT secret).
type TokenDecoder struct {
	secret   []byte
	audience string
}

func NewTokenDecoder(secret, audience string) *TokenDecoder {
	return &TokenDecoder{secret: []byte(secret), audience: audience}
}

// Decode verifies the signature and audience. Expiry is not enforced here:
// an expired but authentic token still identifies the user for a refresh.
func (d *TokenDecoder) Decode(tokenStr string) (*Claims, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, ErrTokenInvalid
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return d.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: subject missing", ErrTokenInvalid)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: expiry missing", ErrTokenInvalid)
	}
	if d.audience != "" && !containsAudience(claims.Audience, d.audience) {
		return nil, fmt.Errorf("%w: unexpected audience", ErrTokenInvalid)
	}
	return claims, nil
}

func containsAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

// FromTokens builds a Session from a provider token pair.
func (d *TokenDecoder) FromTokens(access, refresh string) (Session, error) {
	claims, err := d.Decode(access)
	if err != nil {
		return Session{}, err
	}
	return Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    claims.ExpiresAt.Time,
		UserID:       claims.Subject,
		Email:        claims.Email,
	}, nil
}
