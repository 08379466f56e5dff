// Package auth verifies bearer tokens. Session issuance lives with the
// external identity provider; this side only accepts already-signed HS256
// tokens and extracts the principal identity from the subject claim.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"shrinktrack/pkg/domain"
	dErrors "shrinktrack/pkg/domain-errors"
)

type Authenticator struct {
	signingKey []byte
}

func NewAuthenticator(signingKey string) *Authenticator {
	return &Authenticator{signingKey: []byte(signingKey)}
}

// Authenticate validates the token and returns the principal identity from
// the sub claim. The caller resolves the identity against the directory.
func (a *Authenticator) Authenticate(tokenString string) (domain.PrincipalID, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return a.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.PrincipalID{}, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return domain.PrincipalID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return domain.PrincipalID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return domain.PrincipalID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	id, err := domain.ParsePrincipalID(claims.Subject)
	if err != nil {
		return domain.PrincipalID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}
	return id, nil
}

// IssueToken signs a token for a principal. Used by the dev login path and
// tests; production tokens come from the identity provider.
func (a *Authenticator) IssueToken(id domain.PrincipalID, expiresIn time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   id.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		ID:        uuid.NewString(),
	})
	return token.SignedString(a.signingKey)
}
