package tellergo

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Sessions issues and checks the bearer tokens handed out after a successful
// PIN login. A token's subject is the account number it was issued for.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	clock  Clock
}

func NewSessions(secret string, ttl time.Duration, clock Clock) (*Sessions, error) {
	if secret == "" {
		return nil, errors.New("session secret is required")
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Sessions{
		secret: []byte(secret),
		ttl:    ttl,
		clock:  clock,
	}, nil
}

func (s *Sessions) Issue(number string) (string, error) {
	now := s.clock.Now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   number,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Parse validates token and returns the account number it was issued for.
func (s *Sessions) Parse(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.clock.Now), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if !ValidAccountNumber(claims.Subject) {
		return "", ErrAuthFailed
	}
	return claims.Subject, nil
}
