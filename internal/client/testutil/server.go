// Package testutil spins up the full HTTP stack for integration tests.
package testutil

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"finitefield.org/bookstore-client/internal/client/authgateway"
	"finitefield.org/bookstore-client/internal/client/credentials"
	"finitefield.org/bookstore-client/internal/client/httpserver"
	custommw "finitefield.org/bookstore-client/internal/client/httpserver/middleware"
	"finitefield.org/bookstore-client/internal/client/navigation"
	"finitefield.org/bookstore-client/internal/client/passwordpolicy"
	appsession "finitefield.org/bookstore-client/internal/client/session"
)

// ServerOptions collects the collaborators injected into the test server.
type ServerOptions struct {
	Gateway       authgateway.Gateway
	Estimator     passwordpolicy.Estimator
	Authenticator custommw.Authenticator
	GoogleOAuth   httpserver.OAuthProvider
	RatePerMinute int
	RateBurst     int
}

// ServerOption customises the HTTP server configuration for tests.
type ServerOption func(*ServerOptions)

// WithGateway overrides the identity provider. Pair it with WithAuthenticator unless the
// gateway is a *authgateway.MemoryGateway.
func WithGateway(gw authgateway.Gateway) ServerOption {
	return func(o *ServerOptions) {
		o.Gateway = gw
	}
}

// WithEstimator overrides the password strength estimator.
func WithEstimator(estimator passwordpolicy.Estimator) ServerOption {
	return func(o *ServerOptions) {
		o.Estimator = estimator
	}
}

// WithAuthenticator overrides the authenticator guarding protected pages.
func WithAuthenticator(auth custommw.Authenticator) ServerOption {
	return func(o *ServerOptions) {
		o.Authenticator = auth
	}
}

// WithGoogleOAuth enables the Google sign-in flow.
func WithGoogleOAuth(provider httpserver.OAuthProvider) ServerOption {
	return func(o *ServerOptions) {
		o.GoogleOAuth = provider
	}
}

// WithRateLimit throttles auth POSTs.
func WithRateLimit(perMinute, burst int) ServerOption {
	return func(o *ServerOptions) {
		o.RatePerMinute = perMinute
		o.RateBurst = burst
	}
}

// NewMemoryGateway returns a fast in-memory provider for tests.
func NewMemoryGateway() *authgateway.MemoryGateway {
	return authgateway.NewMemoryGateway(
		authgateway.WithSigningSecret([]byte("integration-test-secret")),
		authgateway.WithBcryptCost(bcrypt.MinCost),
	)
}

// NewServer constructs an httptest server running the full HTTP stack with sensible defaults.
func NewServer(t testing.TB, opts ...ServerOption) *httptest.Server {
	t.Helper()

	options := ServerOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Gateway == nil {
		options.Gateway = NewMemoryGateway()
	}
	if options.Authenticator == nil {
		verifier, ok := options.Gateway.(custommw.TokenVerifier)
		if !ok {
			t.Fatalf("testutil: gateway %T cannot verify tokens; use WithAuthenticator", options.Gateway)
		}
		options.Authenticator = custommw.NewMemoryAuthenticator(verifier)
	}

	sessions, err := appsession.NewManager(appsession.Config{
		CookieName: "bookstore_session",
		HashKey:    []byte("0123456789abcdef0123456789abcdef"),
		BlockKey:   []byte("abcdef0123456789abcdef0123456789"),
	})
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}

	var policy *passwordpolicy.Policy
	if options.Estimator != nil {
		policy = passwordpolicy.New(options.Estimator)
	}
	controller := credentials.NewController(credentials.Dependencies{
		Gateway:    options.Gateway,
		Policy:     policy,
		Redirector: navigation.NewRedirector("/login", "/create-user"),
	})

	var limiter *custommw.RateLimiter
	if options.RatePerMinute > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		limiter = custommw.NewRateLimiter(ctx, options.RatePerMinute, options.RateBurst)
	}

	refresher, _ := options.Gateway.(authgateway.TokenRefresher)

	srv, err := httpserver.New(httpserver.Config{
		Address:        ":0",
		Sessions:       sessions,
		Controller:     controller,
		Authenticator:  options.Authenticator,
		Refresher:      refresher,
		GoogleOAuth:    options.GoogleOAuth,
		RateLimiter:    limiter,
		CSRFHeaderName: "X-CSRF-Token",
	})
	if err != nil {
		t.Fatalf("httpserver.New: %v", err)
	}

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

// NewClient returns a cookie-keeping client that does not follow redirects.
func NewClient(t testing.TB) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// PostForm submits values as an urlencoded form, optionally as an htmx request.
func PostForm(t testing.TB, client *http.Client, target string, values url.Values, htmx bool) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("post %s: %v", target, err)
	}
	return resp
}
