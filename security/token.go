package security

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"alocubano-ticketing/internal/status"
)

// TokenSigner issues and verifies the HS256 tokens used at the door and on
// the admin surface.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenSigner(secret string, ttl time.Duration) *TokenSigner {
	return &TokenSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// SignRedemptionToken wraps a ticket's validation code in a signed,
// expiring credential. The code never travels in the clear.
func (s *TokenSigner) SignRedemptionToken(validationCode string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   validationCode,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		Issuer:    "alocubano-ticketing",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// VerifyRedemptionToken checks signature and expiry and returns the
// validation code. Any failure collapses to ErrInvalidCredential so callers
// leak nothing about why a forged token was rejected.
func (s *TokenSigner) VerifyRedemptionToken(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", status.ErrInvalidCredential
	}
	return claims.Subject, nil
}

type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// SignAdminToken issues a staff credential for the admin endpoints.
func (s *TokenSigner) SignAdminToken(subject, role string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := adminClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "alocubano-ticketing",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// VerifyAdminToken checks a staff credential and returns its role claim.
func (s *TokenSigner) VerifyAdminToken(token string) (string, error) {
	claims := &adminClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid || claims.Role == "" {
		return "", status.ErrInvalidCredential
	}
	return claims.Role, nil
}
