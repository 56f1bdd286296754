// Package auth proves that a caller controls the identity it claims.
//
// A caller signs a short-lived EdDSA JWT with the ed25519 private key behind
// its identity and puts the identity in the "sub" claim. The verifier checks
// the signature against that same key, so no shared secret or key registry is
// involved.
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/elo-ledger/internal/config"
	"github.com/elo-ledger/internal/domain"
)

// Verifier validates identity tokens.
type Verifier struct {
	audience string
	leeway   time.Duration
	maxAge   time.Duration
	now      func() time.Time
}

// NewVerifier creates a verifier from auth configuration. now may be nil.
func NewVerifier(cfg *config.AuthConfig, now func() time.Time) *Verifier {
	if now == nil {
		now = time.Now
	}
	return &Verifier{
		audience: cfg.Audience,
		leeway:   cfg.Leeway,
		maxAge:   cfg.MaxTokenAge,
		now:      now,
	}
}

// Verify returns the identity proven by token.
func (v *Verifier) Verify(token string) (domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Identity{}, fmt.Errorf("%w: token is required", domain.ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var claims jwt.RegisteredClaims
	var subject domain.Identity
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		id, err := domain.ParseIdentity(claims.Subject)
		if err != nil {
			return nil, err
		}
		subject = id
		return id.PublicKey(), nil
	}, opts...)
	if err != nil {
		return domain.Identity{}, mapJWTError(err)
	}

	if v.maxAge > 0 && claims.IssuedAt != nil {
		if v.now().Sub(claims.IssuedAt.Time) > v.maxAge+v.leeway {
			return domain.Identity{}, fmt.Errorf("%w: token is too old", domain.ErrInvalidToken)
		}
	}
	return subject, nil
}

// VerifyBearer accepts an Authorization header value.
func (v *Verifier) VerifyBearer(header string) (domain.Identity, error) {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return domain.Identity{}, fmt.Errorf("%w: missing bearer token", domain.ErrInvalidToken)
	}
	return v.Verify(header[len(prefix):])
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: token expired", domain.ErrInvalidToken)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrEd25519Verification):
		return fmt.Errorf("%w: signature is invalid", domain.ErrInvalidToken)
	case errors.Is(err, domain.ErrInvalidIdentity):
		return fmt.Errorf("%w: subject is not an identity", domain.ErrInvalidToken)
	}
	return fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
}

// Sign issues a token for the identity behind key. Clients and the load
// generator use it; the server only verifies.
func Sign(key ed25519.PrivateKey, audience string, issuedAt time.Time, ttl time.Duration) (string, error) {
	id, err := domain.IdentityFromPublicKey(key.Public().(ed25519.PublicKey))
	if err != nil {
		return "", err
	}
	claims := jwt.RegisteredClaims{
		Subject:   id.String(),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("signing identity token: %w", err)
	}
	return signed, nil
}
