package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/requisition-service/internal/domain"
)

var errMissingSubject = errors.New("token has no subject")

// TokenManager validates HS256 JWTs minted by the identity provider. Issuing is
// kept for tooling and tests.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	leeway time.Duration
}

// TokenOption customizes a TokenManager.
type TokenOption func(*TokenManager)

// WithIssuer requires tokens to carry iss and stamps it on generated ones.
func WithIssuer(issuer string) TokenOption {
	return func(tm *TokenManager) { tm.issuer = issuer }
}

// WithLeeway tolerates clock skew between the identity provider and this service.
func WithLeeway(d time.Duration) TokenOption {
	return func(tm *TokenManager) {
		if d > 0 {
			tm.leeway = d
		}
	}
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, ttlMinutes int, opts ...TokenOption) *TokenManager {
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	tm := &TokenManager{secret: []byte(secret), ttl: time.Duration(ttlMinutes) * time.Minute}
	for _, opt := range opts {
		opt(tm)
	}
	return tm
}

// Claims is the token payload. The subject is the directory user ID; role and
// department are informational, the directory record is authoritative.
type Claims struct {
	Role         domain.Role `json:"role"`
	DepartmentID string      `json:"department_id,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken builds and signs a JWT for userID.
func (tm *TokenManager) GenerateToken(userID string, role domain.Role, departmentID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(tm.ttl)
	claims := &Claims{
		Role:         role,
		DepartmentID: departmentID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    tm.issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseToken validates signature, expiry and issuer, and returns the claims.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if tm.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tm.issuer))
	}
	if tm.leeway > 0 {
		opts = append(opts, jwt.WithLeeway(tm.leeway))
	}

	claims := &Claims{}
	if _, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return tm.secret, nil
	}, opts...); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errMissingSubject
	}
	return claims, nil
}
