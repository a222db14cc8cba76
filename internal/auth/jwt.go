// Package auth provides JWT issuing and validation, bcrypt password hashing,
// GitHub sign-in and the bearer-token middleware for the API.
//
// TOKEN FLOW:
//  1. POST /api/token with email + password → access and refresh token pair
//  2. Every protected call sends "Authorization: Bearer <access>"
//  3. When the access token expires, POST /api/token/refresh with the
//     refresh token → a new pair
//
// Both tokens are HS256-signed JWTs carrying the user ID in "sub". A "typ"
// claim separates them, so a refresh token is never accepted as an access
// token and vice versa.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "movie-tracker"

	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenKind is the value of the "typ" claim.
type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

// ErrInvalidToken is returned for any token that fails validation.
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService creates a TokenService. Non-positive TTLs use the defaults.
// The secret must be at least 16 characters.
func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &TokenService{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}, nil
}

type claims struct {
	Kind TokenKind `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair is what a successful login or refresh returns.
type TokenPair struct {
	Access    string    `json:"access"`
	Refresh   string    `json:"refresh"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IssuePair signs a new access and refresh token for userID.
func (s *TokenService) IssuePair(userID string) (*TokenPair, error) {
	now := s.now()
	access, err := s.sign(userID, AccessToken, now, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(userID, RefreshToken, now, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh, ExpiresAt: now.Add(s.accessTTL)}, nil
}

// GenerateWithDuration signs a single token of the given kind with a custom
// lifetime. Used by tests to mint expired tokens.
func (s *TokenService) GenerateWithDuration(userID string, kind TokenKind, d time.Duration) (string, error) {
	return s.sign(userID, kind, s.now(), d)
}

func (s *TokenService) sign(userID string, kind TokenKind, now time.Time, ttl time.Duration) (string, error) {
	c := claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// ValidateAccess returns the user ID of a valid access token.
func (s *TokenService) ValidateAccess(tokenStr string) (string, error) {
	return s.validate(tokenStr, AccessToken)
}

// ValidateRefresh returns the user ID of a valid refresh token.
func (s *TokenService) ValidateRefresh(tokenStr string) (string, error) {
	return s.validate(tokenStr, RefreshToken)
}

// validate checks signature, algorithm, issuer, expiry and token kind.
func (s *TokenService) validate(tokenStr string, want TokenKind) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: token expired", ErrInvalidToken)
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("%w: bad claims", ErrInvalidToken)
	}
	if c.Kind != want {
		return "", fmt.Errorf("%w: expected %s token, got %q", ErrInvalidToken, want, c.Kind)
	}
	if c.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}
	return c.Subject, nil
}
