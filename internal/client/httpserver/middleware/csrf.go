package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"

	"finitefield.org/bookstore-client/internal/platform/requestctx"
)

type csrfContextKey struct{}

// CSRFFormField is the hidden form field carrying the token on plain form posts.
const CSRFFormField = "_csrf"

const defaultCSRFHeader = "X-CSRF-Token"

// CSRFConfig names the header htmx uses to echo the token.
type CSRFConfig struct {
	HeaderName string
}

// CSRF validates unsafe methods against the token stored in the session. Session.SignIn
// rotates that token, so forms rendered before sign-in stop validating afterwards. Must run
// after Session.
func CSRF(cfg CSRFConfig) func(http.Handler) http.Handler {
	if cfg.HeaderName == "" {
		cfg.HeaderName = defaultCSRFHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := requestctx.Logger(r.Context())
			sess, ok := SessionFromContext(r.Context())
			if !ok {
				logger.Error("csrf: no session on request")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			token, err := sess.EnsureCSRFToken()
			if err != nil {
				logger.Error("issue csrf token", zap.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			if mutates(r.Method) && !cfg.matches(r, token) {
				logger.Warn("csrf token mismatch",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
				)
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfContextKey{}, token)))
		})
	}
}

// CSRFTokenFromContext returns the token to embed in forms and the htmx header config. The
// session's current value wins so pages rendered after SignIn carry the rotated token.
func CSRFTokenFromContext(ctx context.Context) string {
	if sess, ok := SessionFromContext(ctx); ok && sess.CSRFToken() != "" {
		return sess.CSRFToken()
	}
	token, _ := ctx.Value(csrfContextKey{}).(string)
	return token
}

func (c CSRFConfig) matches(r *http.Request, token string) bool {
	submitted := r.Header.Get(c.HeaderName)
	if submitted == "" {
		submitted = r.PostFormValue(CSRFFormField)
	}
	return submitted != "" && subtle.ConstantTimeCompare([]byte(submitted), []byte(token)) == 1
}

func mutates(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	}
	return true
}
