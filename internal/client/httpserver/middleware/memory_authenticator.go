package middleware

import (
	"context"
	"errors"
	"strings"

	"finitefield.org/bookstore-client/internal/client/authgateway"
)

// TokenVerifier is satisfied by authgateway.MemoryGateway.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*authgateway.UserRecord, error)
}

// MemoryAuthenticator verifies the development gateway's HS256 ID tokens.
type MemoryAuthenticator struct {
	verifier TokenVerifier
}

// NewMemoryAuthenticator wraps a TokenVerifier.
func NewMemoryAuthenticator(verifier TokenVerifier) *MemoryAuthenticator {
	if verifier == nil {
		panic("token verifier is required")
	}
	return &MemoryAuthenticator{verifier: verifier}
}

// Authenticate implements Authenticator.
func (m *MemoryAuthenticator) Authenticate(ctx context.Context, token string) (*User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, NewAuthError(ReasonMissingToken, ErrUnauthorized)
	}
	record, err := m.verifier.VerifyToken(ctx, token)
	if err != nil {
		if errors.Is(err, authgateway.ErrTokenExpired) {
			return nil, NewAuthError(ReasonTokenExpired, err)
		}
		return nil, NewAuthError(ReasonTokenInvalid, err)
	}
	return &User{
		UID:         record.UID,
		Email:       record.Email,
		DisplayName: record.DisplayName,
		Token:       token,
	}, nil
}
