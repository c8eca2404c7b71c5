package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"go.uber.org/zap"
	"google.golang.org/api/idtoken"
	"google.golang.org/api/option"

	"finitefield.org/bookstore-client/internal/client/authgateway"
	"finitefield.org/bookstore-client/internal/client/credentials"
	"finitefield.org/bookstore-client/internal/client/httpserver"
	"finitefield.org/bookstore-client/internal/client/httpserver/middleware"
	"finitefield.org/bookstore-client/internal/client/navigation"
	"finitefield.org/bookstore-client/internal/client/passwordpolicy"
	appsession "finitefield.org/bookstore-client/internal/client/session"
	"finitefield.org/bookstore-client/internal/platform/config"
	"finitefield.org/bookstore-client/internal/platform/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bookstore: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.IsDevelopment())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	sessions, err := buildSessions(cfg, logger)
	if err != nil {
		return err
	}

	gateway, authenticator, err := buildIdentity(ctx, cfg, logger)
	if err != nil {
		return err
	}

	controller := credentials.NewController(credentials.Dependencies{
		Gateway:    gateway,
		Policy:     passwordpolicy.New(passwordpolicy.Zxcvbn(), passwordpolicy.WithMinScore(cfg.Auth.MinPasswordScore)),
		Redirector: navigation.NewRedirector("/login", "/create-user"),
	})

	var googleOAuth httpserver.OAuthProvider
	if g := authgateway.NewGoogleOAuth(authgateway.GoogleOAuthConfig{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURL,
	}); g != nil {
		googleOAuth = g
		logger.Info("google sign-in enabled", zap.String("redirect_url", cfg.Google.RedirectURL))
	}

	refresher, _ := gateway.(authgateway.TokenRefresher)

	srv, err := httpserver.New(httpserver.Config{
		Address:       cfg.Server.Address,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
		IdleTimeout:   cfg.Server.IdleTimeout,
		Logger:        logger,
		Sessions:      sessions,
		Controller:    controller,
		Authenticator: authenticator,
		Refresher:     refresher,
		GoogleOAuth:   googleOAuth,
		RateLimiter:   middleware.NewRateLimiter(ctx, cfg.Auth.RatePerMinute, cfg.Auth.RateBurst),
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Info("bookstore client listening",
		zap.String("address", cfg.Server.Address),
		zap.String("environment", cfg.Environment),
	)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("bookstore client stopped")
	return nil
}

func buildSessions(cfg config.Config, logger *zap.Logger) (*appsession.Manager, error) {
	hashKey := []byte(cfg.Session.HashKey)
	blockKey := []byte(cfg.Session.BlockKey)
	if len(hashKey) == 0 {
		logger.Warn("BOOKSTORE_SESSION_HASH_KEY not set; generating an ephemeral key")
		hashKey = appsession.GenerateKey(32)
		if len(blockKey) == 0 {
			blockKey = appsession.GenerateKey(32)
		}
	}
	return appsession.NewManager(appsession.Config{
		HashKey:      hashKey,
		BlockKey:     blockKey,
		CookieSecure: cfg.Session.CookieSecure,
	})
}

// buildIdentity picks Firebase when configured and the in-memory provider otherwise.
func buildIdentity(ctx context.Context, cfg config.Config, logger *zap.Logger) (authgateway.Gateway, middleware.Authenticator, error) {
	if !cfg.Firebase.Enabled() {
		logger.Warn("FIREBASE_PROJECT_ID/FIREBASE_API_KEY not set; using in-memory identity provider")
		var opts []authgateway.MemoryOption
		if cfg.Auth.DevTokenSecret != "" {
			opts = append(opts, authgateway.WithSigningSecret([]byte(cfg.Auth.DevTokenSecret)))
		}
		if cfg.Google.ClientID != "" {
			opts = append(opts, authgateway.WithGoogleVerification(cfg.Google.ClientID, idtoken.Validate))
		}
		gw := authgateway.NewMemoryGateway(opts...)
		return gw, middleware.NewMemoryAuthenticator(gw), nil
	}

	if host := cfg.Firebase.AuthEmulatorHost; host != "" {
		// the Admin SDK only reads the emulator host from the process environment
		if err := os.Setenv("FIREBASE_AUTH_EMULATOR_HOST", host); err != nil {
			return nil, nil, fmt.Errorf("set emulator host: %w", err)
		}
	}

	var appOpts []option.ClientOption
	if cfg.Firebase.CredentialsFile != "" {
		appOpts = append(appOpts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.Firebase.ProjectID}, appOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("init firebase auth client: %w", err)
	}

	gw, err := authgateway.NewFirebaseGateway(authgateway.FirebaseConfig{
		APIKey:     cfg.Firebase.APIKey,
		BaseURL:    cfg.Firebase.IdentityToolkitURL(),
		TokenURL:   cfg.Firebase.SecureTokenURL(),
		RequestURI: cfg.Google.RedirectURL,
		Users:      client,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("firebase identity provider enabled",
		zap.String("project_id", cfg.Firebase.ProjectID),
		zap.Bool("emulator", cfg.Firebase.AuthEmulatorHost != ""),
	)
	return gw, middleware.NewFirebaseAuthenticator(client), nil
}
