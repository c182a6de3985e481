// Package identity resolves the authenticated worker behind a request.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/KDHBuddhika/suwatha/internal/apperr"
)

// Resolver returns the identity string (a worker email) of the caller.
type Resolver interface {
	Resolve(r *http.Request) (string, error)
}

type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// JWTResolver verifies HS256 bearer tokens signed with a shared secret.
type JWTResolver struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewJWTResolver(secret, issuer string) (*JWTResolver, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &JWTResolver{secret: []byte(secret), issuer: strings.TrimSpace(issuer), now: time.Now}, nil
}

func (j *JWTResolver) Resolve(r *http.Request) (string, error) {
	raw, err := bearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return "", err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
		jwt.WithExpirationRequired(),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	var parsed claims
	_, err = jwt.ParseWithClaims(raw, &parsed, func(*jwt.Token) (any, error) {
		return j.secret, nil
	}, opts...)
	if err != nil {
		return "", mapJWTError(err)
	}

	subject := strings.TrimSpace(parsed.Email)
	if subject == "" {
		subject = strings.TrimSpace(parsed.Subject)
	}
	if subject == "" {
		return "", fmt.Errorf("%w: token carries no email or subject", apperr.ErrUnauthenticated)
	}
	return strings.ToLower(subject), nil
}

func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", fmt.Errorf("%w: missing bearer token", apperr.ErrUnauthenticated)
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: malformed authorization header", apperr.ErrUnauthenticated)
	}
	return strings.TrimSpace(token), nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: token is expired", apperr.ErrUnauthenticated)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: token signature is invalid", apperr.ErrUnauthenticated)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return fmt.Errorf("%w: token issuer mismatch", apperr.ErrUnauthenticated)
	default:
		return fmt.Errorf("%w: %v", apperr.ErrUnauthenticated, err)
	}
}
