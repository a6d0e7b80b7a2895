package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken  = errors.New("invalid session token")
	ErrMissingSecret = errors.New("jwt secret is not configured")
)

// Session is what a verified token tells us about its bearer.
type Session struct {
	AccountID uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Claims carries the account id in the subject.
type Claims struct {
	jwt.RegisteredClaims
}

// SessionIssuer mints and verifies bearer session tokens.
type SessionIssuer interface {
	Issue(accountID uuid.UUID) (string, *Session, error)
	Verify(token string) (*Session, error)
}

type jwtIssuer struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewJWTIssuer returns an HS256 issuer. now may be nil.
func NewJWTIssuer(secret string, expiry time.Duration, now func() time.Time) (SessionIssuer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if now == nil {
		now = time.Now
	}
	return &jwtIssuer{secret: []byte(secret), expiry: expiry, now: now}, nil
}

func (j *jwtIssuer) Issue(accountID uuid.UUID) (string, *Session, error) {
	issuedAt := j.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(j.expiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, &Session{AccountID: accountID, IssuedAt: issuedAt, ExpiresAt: expiresAt}, nil
}

func (j *jwtIssuer) Verify(token string) (*Session, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	accountID, err := uuid.Parse(claims.Subject)
	if err != nil || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}

	session := &Session{AccountID: accountID, IssuedAt: claims.IssuedAt.Time}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

// IsStale reports whether a session minted at issuedAt predates the last
// password change.
func IsStale(passwordChangedAt *time.Time, issuedAt time.Time) bool {
	if passwordChangedAt == nil {
		return false
	}
	return passwordChangedAt.After(issuedAt)
}
