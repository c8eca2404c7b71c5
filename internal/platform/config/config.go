package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultEnvFile     = ".env"
	minSessionKeyBytes = 32
	environmentDev     = "development"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string `env:"BOOKSTORE_ENV" envDefault:"development"`
	Server      ServerConfig
	Session     SessionConfig
	Firebase    FirebaseConfig
	Google      GoogleConfig
	Auth        AuthConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Address      string        `env:"BOOKSTORE_HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"BOOKSTORE_HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout time.Duration `env:"BOOKSTORE_HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"BOOKSTORE_HTTP_IDLE_TIMEOUT" envDefault:"60s"`
}

// SessionConfig holds the cookie codec keys.
type SessionConfig struct {
	HashKey      string `env:"BOOKSTORE_SESSION_HASH_KEY"`
	BlockKey     string `env:"BOOKSTORE_SESSION_BLOCK_KEY"`
	CookieSecure bool   `env:"BOOKSTORE_COOKIE_SECURE"`
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID        string `env:"FIREBASE_PROJECT_ID"`
	APIKey           string `env:"FIREBASE_API_KEY"`
	CredentialsFile  string `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	AuthEmulatorHost string `env:"FIREBASE_AUTH_EMULATOR_HOST"`
}

// Enabled reports whether the Firebase gateway can be used.
func (f FirebaseConfig) Enabled() bool {
	return strings.TrimSpace(f.ProjectID) != "" && strings.TrimSpace(f.APIKey) != ""
}

// IdentityToolkitURL returns the REST base URL, honouring the auth emulator.
func (f FirebaseConfig) IdentityToolkitURL() string {
	if host := strings.TrimSpace(f.AuthEmulatorHost); host != "" {
		return "http://" + host + "/identitytoolkit.googleapis.com/v1"
	}
	return ""
}

// SecureTokenURL returns the token refresh base URL, honouring the auth emulator.
func (f FirebaseConfig) SecureTokenURL() string {
	if host := strings.TrimSpace(f.AuthEmulatorHost); host != "" {
		return "http://" + host + "/securetoken.googleapis.com/v1"
	}
	return ""
}

// GoogleConfig holds the OAuth client used for Google sign-in.
type GoogleConfig struct {
	ClientID     string `env:"GOOGLE_OAUTH_CLIENT_ID"`
	ClientSecret string `env:"GOOGLE_OAUTH_CLIENT_SECRET"`
	RedirectURL  string `env:"GOOGLE_OAUTH_REDIRECT_URL" envDefault:"http://localhost:8080/auth/google/callback"`
}

// AuthConfig tunes the credential forms.
type AuthConfig struct {
	RatePerMinute    int    `env:"BOOKSTORE_AUTH_RATE_PER_MINUTE" envDefault:"30"`
	RateBurst        int    `env:"BOOKSTORE_AUTH_RATE_BURST" envDefault:"10"`
	MinPasswordScore int    `env:"BOOKSTORE_MIN_PASSWORD_SCORE" envDefault:"3"`
	DevTokenSecret   string `env:"BOOKSTORE_DEV_TOKEN_SECRET"`
}

// IsDevelopment reports whether relaxed defaults (memory gateway, generated keys) are allowed.
func (c Config) IsDevelopment() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), environmentDev)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the dotenv file path. An empty path disables dotenv loading.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap layers explicit values on top of every other source.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load resolves configuration with precedence dotenv < OS env < explicit env map, then validates it.
func Load(_ context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	values, err := environmentValues(options)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: values}); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	normalise(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func environmentValues(options loaderOptions) (map[string]string, error) {
	values := make(map[string]string)

	if options.envFile != "" {
		fileValues, err := godotenv.Read(options.envFile)
		switch {
		case err == nil:
			for k, v := range fileValues {
				values[k] = v
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("config: read %s: %w", options.envFile, err)
		}
	}

	if options.useSystemEnv {
		for k, v := range env.ToMap(os.Environ()) {
			values[k] = v
		}
	}

	for k, v := range options.envMap {
		values[k] = v
	}
	return values, nil
}

func normalise(cfg *Config) {
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	if cfg.Environment == "" {
		cfg.Environment = environmentDev
	}
	cfg.Server.Address = strings.TrimSpace(cfg.Server.Address)
	cfg.Firebase.ProjectID = strings.TrimSpace(cfg.Firebase.ProjectID)
	cfg.Firebase.APIKey = strings.TrimSpace(cfg.Firebase.APIKey)
	cfg.Google.ClientID = strings.TrimSpace(cfg.Google.ClientID)
}

func validate(cfg Config) error {
	var fields []string

	if cfg.Server.Address == "" {
		fields = append(fields, "BOOKSTORE_HTTP_ADDR")
	}
	if cfg.Auth.MinPasswordScore < 0 || cfg.Auth.MinPasswordScore > 4 {
		fields = append(fields, "BOOKSTORE_MIN_PASSWORD_SCORE")
	}
	if cfg.Auth.RatePerMinute <= 0 {
		fields = append(fields, "BOOKSTORE_AUTH_RATE_PER_MINUTE")
	}
	if cfg.Auth.RateBurst <= 0 {
		fields = append(fields, "BOOKSTORE_AUTH_RATE_BURST")
	}
	if (cfg.Firebase.ProjectID == "") != (cfg.Firebase.APIKey == "") {
		if cfg.Firebase.ProjectID == "" {
			fields = append(fields, "FIREBASE_PROJECT_ID")
		} else {
			fields = append(fields, "FIREBASE_API_KEY")
		}
	}
	if cfg.Google.ClientID != "" && strings.TrimSpace(cfg.Google.ClientSecret) == "" {
		fields = append(fields, "GOOGLE_OAUTH_CLIENT_SECRET")
	}
	if key := cfg.Session.BlockKey; key != "" && len(key) != 16 && len(key) != 24 && len(key) != 32 {
		fields = append(fields, "BOOKSTORE_SESSION_BLOCK_KEY")
	}

	if !cfg.IsDevelopment() {
		if len(cfg.Session.HashKey) < minSessionKeyBytes {
			fields = append(fields, "BOOKSTORE_SESSION_HASH_KEY")
		}
		if !cfg.Firebase.Enabled() && !contains(fields, "FIREBASE_PROJECT_ID") && !contains(fields, "FIREBASE_API_KEY") {
			fields = append(fields, "FIREBASE_PROJECT_ID", "FIREBASE_API_KEY")
		}
	}

	if len(fields) == 0 {
		return nil
	}
	sort.Strings(fields)
	return &ValidationError{fields: fields}
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
