package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if !cfg.IsDevelopment() {
		t.Errorf("expected development environment, got %s", cfg.Environment)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("expected default address :8080, got %s", cfg.Server.Address)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Auth.MinPasswordScore != 3 {
		t.Errorf("expected min password score 3, got %d", cfg.Auth.MinPasswordScore)
	}
	if cfg.Auth.RatePerMinute != 30 || cfg.Auth.RateBurst != 10 {
		t.Errorf("unexpected rate limit defaults: %d/%d", cfg.Auth.RatePerMinute, cfg.Auth.RateBurst)
	}
	if cfg.Firebase.Enabled() {
		t.Errorf("firebase should be disabled without project and key")
	}
}

func TestLoadProductionRequiresSecrets(t *testing.T) {
	env := map[string]string{
		"BOOKSTORE_ENV":                "production",
		"BOOKSTORE_MIN_PASSWORD_SCORE": "7",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	want := []string{
		"BOOKSTORE_MIN_PASSWORD_SCORE",
		"BOOKSTORE_SESSION_HASH_KEY",
		"FIREBASE_API_KEY",
		"FIREBASE_PROJECT_ID",
	}
	got := vErr.Fields()
	if len(got) != len(want) {
		t.Fatalf("unexpected fields %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected fields %v", got)
		}
	}
}

func TestLoadFirebaseNeedsProjectAndKey(t *testing.T) {
	env := map[string]string{"FIREBASE_PROJECT_ID": "bookstore-dev"}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if fields := vErr.Fields(); len(fields) != 1 || fields[0] != "FIREBASE_API_KEY" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "BOOKSTORE_HTTP_ADDR=:9000\nFIREBASE_PROJECT_ID=from-file\nFIREBASE_API_KEY=file-key\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithEnvFile(envFile),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"FIREBASE_PROJECT_ID": "from-map"}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Address != ":9000" {
		t.Errorf("expected address from dotenv, got %s", cfg.Server.Address)
	}
	if cfg.Firebase.ProjectID != "from-map" {
		t.Errorf("expected explicit map to win, got %s", cfg.Firebase.ProjectID)
	}
	if !cfg.Firebase.Enabled() {
		t.Errorf("expected firebase to be enabled")
	}
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	_, err := Load(context.Background(), WithEnvFile(filepath.Join(t.TempDir(), "missing.env")), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("expected missing dotenv to be ignored, got %v", err)
	}
}

func TestIdentityToolkitURLUsesEmulator(t *testing.T) {
	f := FirebaseConfig{AuthEmulatorHost: "127.0.0.1:9099"}
	if got := f.IdentityToolkitURL(); got != "http://127.0.0.1:9099/identitytoolkit.googleapis.com/v1" {
		t.Fatalf("unexpected emulator url %s", got)
	}
	if got := (FirebaseConfig{}).IdentityToolkitURL(); got != "" {
		t.Fatalf("expected empty url without emulator, got %s", got)
	}
	if got := f.SecureTokenURL(); got != "http://127.0.0.1:9099/securetoken.googleapis.com/v1" {
		t.Fatalf("unexpected emulator token url %s", got)
	}
	if got := (FirebaseConfig{}).SecureTokenURL(); got != "" {
		t.Fatalf("expected empty token url without emulator, got %s", got)
	}
}
