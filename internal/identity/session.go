package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"vortx/internal/apperr"
)

const DefaultSessionTTL = 7 * 24 * time.Hour

type sessionClaims struct {
	CustomerID string `json:"customer_id"`
	jwt.RegisteredClaims
}

// Sessions issues and parses HS256 customer session tokens.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessions(secret string, ttl time.Duration) (*Sessions, error) {
	if secret == "" {
		return nil, errors.New("session secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a session for customerID.
func (s *Sessions) Issue(customerID string) (string, error) {
	if customerID == "" {
		return "", apperr.Validation("customer_id", "is required")
	}
	now := s.now().UTC()
	claims := sessionClaims{
		CustomerID: customerID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Parse validates a session token and returns its customer id.
func (s *Sessions) Parse(raw string) (string, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", apperr.Auth("invalid token", err)
	}
	if claims.CustomerID == "" {
		return "", apperr.Auth("invalid token", errors.New("customer_id claim missing"))
	}
	return claims.CustomerID, nil
}
