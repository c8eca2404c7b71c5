// Package httpserver wires the chi router, middleware stack and page handlers.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"finitefield.org/bookstore-client/internal/client/authgateway"
	"finitefield.org/bookstore-client/internal/client/credentials"
	custommw "finitefield.org/bookstore-client/internal/client/httpserver/middleware"
	"finitefield.org/bookstore-client/internal/platform/observability"
	"finitefield.org/bookstore-client/public"
)

const (
	loginPath    = "/login"
	signupPath   = "/create-user"
	homePath     = "/"
	callbackPath = "/auth/google/callback"
)

// OAuthProvider is the Google authorization code flow; *authgateway.GoogleOAuth satisfies it.
type OAuthProvider interface {
	Enabled() bool
	AuthCodeURL(state string) (string, error)
	Exchange(ctx context.Context, code string) (authgateway.OAuthCredential, error)
}

// Config holds runtime options for the HTTP server.
type Config struct {
	Address        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration

	Logger        *zap.Logger
	Sessions      custommw.SessionStore
	Controller    *credentials.Controller
	Authenticator custommw.Authenticator
	Refresher     authgateway.TokenRefresher // nil signs out on expired ID tokens
	GoogleOAuth   OAuthProvider
	// RateLimiter throttles auth POSTs; nil disables throttling.
	RateLimiter *custommw.RateLimiter

	CSRFHeaderName string
}

// New constructs the HTTP server with middleware stack and embedded assets.
func New(cfg Config) (*http.Server, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("httpserver: session store is required")
	}
	if cfg.Controller == nil {
		return nil, fmt.Errorf("httpserver: credentials controller is required")
	}
	if cfg.Authenticator == nil {
		return nil, fmt.Errorf("httpserver: authenticator is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}

	staticContent, err := public.StaticFS()
	if err != nil {
		return nil, fmt.Errorf("httpserver: embed static: %w", err)
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(observability.TraceMiddleware())
	router.Use(observability.InjectLoggerMiddleware(logger))
	router.Use(observability.RequestLoggerMiddleware())
	router.Use(observability.RecoveryMiddleware(logger))
	router.Use(chimw.Timeout(requestTimeout))

	router.Get("/healthz", healthz)
	router.Handle("/public/static/*", http.StripPrefix("/public/static/", http.FileServer(http.FS(staticContent))))

	h := newAuthHandlers(cfg.Controller, cfg.GoogleOAuth)
	throttle := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimiter != nil {
		throttle = cfg.RateLimiter.Middleware
	}

	router.Group(func(r chi.Router) {
		r.Use(custommw.HTMX())
		r.Use(custommw.Session(cfg.Sessions))
		r.Use(custommw.CSRF(custommw.CSRFConfig{HeaderName: cfg.CSRFHeaderName}))

		r.Get(homePath, homePage)
		r.Get(loginPath, h.LoginForm)
		r.Get(signupPath, h.SignupForm)
		r.With(throttle).Post(loginPath, h.LoginSubmit)
		r.With(throttle).Post(signupPath, h.SignupSubmit)
		r.With(throttle).Post("/auth/google", h.GoogleBegin)
		r.Get(callbackPath, h.GoogleCallback)
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(custommw.RequireUser(cfg.Authenticator, cfg.Refresher, loginPath))
			r.Get("/dashboard", dashboardPage)
		})
	})

	return &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  durationOr(cfg.ReadTimeout, 10*time.Second),
		WriteTimeout: durationOr(cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:  durationOr(cfg.IdleTimeout, 60*time.Second),
	}, nil
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}
