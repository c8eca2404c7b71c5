package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"finitefield.org/bookstore-client/internal/client/authgateway"
)

type stubFirebaseVerifier struct {
	token *firebaseauth.Token
	err   error
}

func (s *stubFirebaseVerifier) VerifyIDToken(context.Context, string) (*firebaseauth.Token, error) {
	return s.token, s.err
}

func TestFirebaseAuthenticatorSuccess(t *testing.T) {
	auth := NewFirebaseAuthenticator(&stubFirebaseVerifier{
		token: &firebaseauth.Token{
			UID: "user-123",
			Claims: map[string]interface{}{
				"email": "reader@example.com",
				"name":  "Reader",
			},
		},
	})

	user, err := auth.Authenticate(context.Background(), "good-token")
	require.NoError(t, err)
	require.Equal(t, "user-123", user.UID)
	require.Equal(t, "reader@example.com", user.Email)
	require.Equal(t, "Reader", user.DisplayName)
}

func TestFirebaseAuthenticatorInvalidToken(t *testing.T) {
	auth := NewFirebaseAuthenticator(&stubFirebaseVerifier{err: errors.New("bad signature")})

	_, err := auth.Authenticate(context.Background(), "forged")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, ReasonTokenInvalid, authErr.Reason)

	_, err = auth.Authenticate(context.Background(), " ")
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, ReasonMissingToken, authErr.Reason)
}

func TestMemoryAuthenticator(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	gw := authgateway.NewMemoryGateway(
		authgateway.WithSigningSecret([]byte("test-secret")),
		authgateway.WithClock(func() time.Time { return now }),
		authgateway.WithBcryptCost(bcrypt.MinCost),
	)
	res, err := gw.CreateUser(context.Background(), "reader@example.com", "xK9#mQ2$vL7@pR4!")
	require.NoError(t, err)

	auth := NewMemoryAuthenticator(gw)
	user, err := auth.Authenticate(context.Background(), res.IDToken)
	require.NoError(t, err)
	require.Equal(t, res.User.UID, user.UID)
	require.Equal(t, "reader@example.com", user.Email)

	now = now.Add(2 * time.Hour)
	_, err = auth.Authenticate(context.Background(), res.IDToken)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, ReasonTokenExpired, authErr.Reason)

	_, err = auth.Authenticate(context.Background(), "not-a-jwt")
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, ReasonTokenInvalid, authErr.Reason)
}
