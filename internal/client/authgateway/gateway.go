package authgateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider identifiers reported on UserRecord.ProviderID.
const (
	ProviderPassword = "password"
	ProviderGoogle   = "google.com"
)

// Error codes surfaced on ProviderError. They follow the identity provider's client SDK naming.
const (
	CodeInvalidEmail        = "auth/invalid-email"
	CodeUserNotFound        = "auth/user-not-found"
	CodeWrongPassword       = "auth/wrong-password"
	CodeInvalidCredential   = "auth/invalid-credential"
	CodeUserDisabled        = "auth/user-disabled"
	CodeEmailAlreadyInUse   = "auth/email-already-in-use"
	CodeWeakPassword        = "auth/weak-password"
	CodeMissingPassword     = "auth/missing-password"
	CodeTooManyRequests     = "auth/too-many-requests"
	CodeOperationNotAllowed = "auth/operation-not-allowed"
	CodeNetworkRequest      = "auth/network-request-failed"
	CodeInternal            = "auth/internal-error"
	CodeTokenExpired        = "auth/user-token-expired"
	CodeInvalidUserToken    = "auth/invalid-user-token"
)

// Gateway wraps the identity provider's sign-in, sign-up and OAuth operations.
type Gateway interface {
	Login(ctx context.Context, email, password string) (*Result, error)
	CreateUser(ctx context.Context, email, password string) (*Result, error)
	SignUpWithGmail(ctx context.Context, cred OAuthCredential) (*Result, error)
}

// TokenRefresher trades a refresh token for a new ID token. The returned refresh token
// replaces the one presented.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Result, error)
}

// UserRecord is the identity returned by the provider. Callers treat it as opaque.
type UserRecord struct {
	UID           string
	Email         string
	DisplayName   string
	PhotoURL      string
	EmailVerified bool
	ProviderID    string
}

// Result is the successful outcome of a gateway call.
type Result struct {
	User         UserRecord
	IDToken      string
	RefreshToken string
	ExpiresIn    int
	NewUser      bool
}

// OAuthCredential is the third-party credential handed to SignUpWithGmail.
type OAuthCredential struct {
	ProviderID  string
	IDToken     string
	AccessToken string
}

// ProviderError is a failure reported by the identity provider. Message is shown to users verbatim.
type ProviderError struct {
	Code    string
	Message string
	Err     error
}

// Error returns the provider message.
func (e *ProviderError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "authentication failed"
}

// Unwrap returns the transport or decoding error, if any.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError builds a ProviderError whose message mirrors the provider SDK format.
func NewProviderError(code string, err error) *ProviderError {
	return &ProviderError{
		Code:    code,
		Message: fmt.Sprintf("Firebase: Error (%s).", code),
		Err:     err,
	}
}

// ErrorCode extracts the provider code from err, or "" when err is not a ProviderError.
func ErrorCode(err error) string {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Code
	}
	return ""
}

// MessageFor returns the user-facing text for err.
func MessageFor(err error) string {
	if err == nil {
		return ""
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Error()
	}
	return err.Error()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
