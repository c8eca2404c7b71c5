package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"finitefield.org/bookstore-client/internal/client/authgateway"
	appsession "finitefield.org/bookstore-client/internal/client/session"
	"finitefield.org/bookstore-client/internal/platform/requestctx"
)

type authContextKey string

const userContextKey authContextKey = "auth.user"

// MessageSessionExpired is flashed when a stored ID token is no longer accepted.
const MessageSessionExpired = "Your session has expired. Please log in again."

// User represents the verified signed-in account.
type User struct {
	UID         string
	Email       string
	DisplayName string
	Token       string
}

// Authenticator verifies a stored ID token and resolves it into a User.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*User, error)
}

// ErrUnauthorized is returned when authentication fails.
var ErrUnauthorized = errors.New("unauthorized")

// AuthError contains reason codes for failed authentication attempts.
type AuthError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return e.Reason + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// NewAuthError constructs an AuthError with the provided reason.
func NewAuthError(reason string, err error) error {
	return &AuthError{Reason: reason, Err: err}
}

const (
	// ReasonMissingToken indicates a visit without a stored ID token.
	ReasonMissingToken = "missing_token"
	// ReasonTokenInvalid indicates a malformed or invalid token.
	ReasonTokenInvalid = "token_invalid"
	// ReasonTokenExpired indicates an expired token.
	ReasonTokenExpired = "token_expired"
)

// RequireUser verifies the session's ID token. An expired token is exchanged once through
// refresher when the session holds a refresh token. Anonymous visitors are sent to loginPath
// with the requested path captured in the from query parameter.
func RequireUser(authenticator Authenticator, refresher authgateway.TokenRefresher, loginPath string) func(http.Handler) http.Handler {
	if authenticator == nil {
		panic("authenticator is required")
	}
	if loginPath == "" {
		loginPath = "/login"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := requestctx.Logger(r.Context())
			sess, ok := SessionFromContext(r.Context())
			token := ""
			if ok {
				token = strings.TrimSpace(sess.IDToken())
			}
			if token == "" {
				logger.Debug("auth required", zap.String("reason", ReasonMissingToken))
				handleUnauthorized(w, r, loginPath)
				return
			}

			user, err := authenticator.Authenticate(r.Context(), token)
			reason := failureReason(err)
			if reason == ReasonTokenExpired && refresher != nil && sess.RefreshToken() != "" {
				user, err = refreshUser(r.Context(), authenticator, refresher, sess)
				if err != nil {
					logger.Info("token refresh failed", zap.Error(err))
				} else {
					logger.Debug("id token refreshed", zap.String("uid", user.UID))
				}
			}
			if err != nil || user == nil {
				logger.Info("auth failure", zap.String("reason", reason), zap.Error(err))
				sess.SignOut()
				if reason == ReasonTokenExpired {
					sess.SetFlash(appsession.FlashError, MessageSessionExpired)
				}
				handleUnauthorized(w, r, loginPath)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			ctx = requestctx.WithUserID(ctx, user.UID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func failureReason(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) && authErr.Reason != "" {
		return authErr.Reason
	}
	return ReasonTokenInvalid
}

// refreshUser trades the session's refresh token for a new ID token, stores the pair and
// verifies the new token.
func refreshUser(ctx context.Context, authenticator Authenticator, refresher authgateway.TokenRefresher, sess *appsession.Session) (*User, error) {
	res, err := refresher.Refresh(ctx, sess.RefreshToken())
	if err != nil {
		return nil, NewAuthError(ReasonTokenExpired, err)
	}
	sess.UpdateTokens(res.IDToken, res.RefreshToken)
	user, err := authenticator.Authenticate(ctx, res.IDToken)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, NewAuthError(ReasonTokenInvalid, nil)
	}
	return user, nil
}

// UserFromContext retrieves the authenticated user if present.
func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userContextKey).(*User)
	return user, ok && user != nil
}

// LoginURL builds loginPath?from=<requested path and query>.
func LoginURL(loginPath string, r *http.Request) string {
	from := r.URL.Path
	if r.URL.RawQuery != "" {
		from += "?" + r.URL.RawQuery
	}
	u := url.URL{Path: loginPath}
	if from != "" && from != "/" {
		u.RawQuery = url.Values{"from": {from}}.Encode()
	}
	return u.String()
}

func handleUnauthorized(w http.ResponseWriter, r *http.Request, loginPath string) {
	target := LoginURL(loginPath, r)
	if IsHTMXRequest(r.Context()) {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
