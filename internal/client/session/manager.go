// Package session keeps the browser's auth state in a signed, optionally encrypted cookie.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

const (
	defaultCookieName  = "bookstore_session"
	defaultCookiePath  = "/"
	defaultLifetime    = 24 * time.Hour
	defaultIdleTimeout = 2 * time.Hour
	oauthStateTTL      = 10 * time.Minute
	touchInterval      = time.Minute
)

// ErrExpired indicates the stored session is no longer valid due to idle or absolute expiry.
var ErrExpired = errors.New("session expired")

// ErrInvalidConfig indicates the manager was initialised with missing or invalid options.
var ErrInvalidConfig = errors.New("session: invalid config")

// ErrOAuthStateMismatch is returned when an OAuth callback does not match the pending state.
var ErrOAuthStateMismatch = errors.New("session: oauth state mismatch")

// User is the signed-in account as shown to the pages.
type User struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	ProviderID  string `json:"providerId,omitempty"`
}

// FlashKind distinguishes success notices from errors carried across a redirect.
type FlashKind string

const (
	FlashNotice FlashKind = "notice"
	FlashError  FlashKind = "error"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Kind    FlashKind `json:"kind"`
	Message string    `json:"message"`
}

// OAuthState is the pending Google sign-in started from a login or signup page.
type OAuthState struct {
	State     string    `json:"state"`
	Page      string    `json:"page"`
	From      string    `json:"from,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Data represents the full persisted session payload.
type Data struct {
	ID           string      `json:"id"`
	CreatedAt    time.Time   `json:"createdAt"`
	LastActive   time.Time   `json:"lastActive"`
	ExpiresAt    time.Time   `json:"expiresAt,omitempty"`
	CSRFToken    string      `json:"csrfToken,omitempty"`
	User         *User       `json:"user,omitempty"`
	IDToken      string      `json:"idToken,omitempty"`
	RefreshToken string      `json:"refreshToken,omitempty"`
	Flash        *Flash      `json:"flash,omitempty"`
	OAuthState   *OAuthState `json:"oauthState,omitempty"`
}

// Session holds mutable state for the current request lifecycle.
type Session struct {
	data  Data
	dirty bool
	now   func() time.Time
}

// Config controls cookie encoding and lifecycle limits for the session manager.
type Config struct {
	CookieName     string
	HashKey        []byte
	BlockKey       []byte
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite

	IdleTimeout time.Duration
	Lifetime    time.Duration
	Now         func() time.Time
}

// Manager decodes and persists session state via signed (and optionally encrypted) cookies.
type Manager struct {
	cfg   Config
	codec *securecookie.SecureCookie
	now   func() time.Time
}

// NewManager constructs a Manager using the provided configuration.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.HashKey) == 0 {
		return nil, fmt.Errorf("%w: hash key is required", ErrInvalidConfig)
	}
	switch len(cfg.BlockKey) {
	case 0, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: block key must be 16, 24 or 32 bytes", ErrInvalidConfig)
	}

	if cfg.CookieName == "" {
		cfg.CookieName = defaultCookieName
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = defaultCookiePath
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = defaultLifetime
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.CookieSameSite == http.SameSiteDefaultMode {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}

	codec := securecookie.New(cfg.HashKey, cfg.BlockKey)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(int(cfg.Lifetime.Seconds()))

	return &Manager{cfg: cfg, codec: codec, now: nowFn}, nil
}

// GenerateKey returns n random bytes for development-only cookie keys.
func GenerateKey(n int) []byte {
	return securecookie.GenerateRandomKey(n)
}

// Load retrieves the session from the incoming request or creates a new one. A cookie that
// cannot be decoded is treated as absent.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil {
		return m.New(), nil
	}

	var stored Data
	if err := m.codec.Decode(m.cfg.CookieName, cookie.Value, &stored); err != nil {
		return m.New(), nil
	}
	if stored.ID == "" {
		return m.New(), nil
	}

	now := m.now()
	sess := &Session{data: stored, now: m.now}
	if m.isExpired(sess, now) {
		return nil, ErrExpired
	}
	// Read-only visits still extend the idle window, at most once per touchInterval.
	if now.UTC().Sub(sess.data.LastActive) >= touchInterval {
		sess.Touch(now)
	}
	return sess, nil
}

// Save writes the session back to the response as a cookie.
func (m *Manager) Save(w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return errors.New("session: nil session")
	}

	sess.Touch(m.now())
	data := sess.data

	encoded, err := m.codec.Encode(m.cfg.CookieName, data)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	cookie := &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    encoded,
		Path:     m.cfg.CookiePath,
		Domain:   m.cfg.CookieDomain,
		Secure:   m.cfg.CookieSecure,
		HttpOnly: true,
		SameSite: m.cfg.CookieSameSite,
	}
	if !data.ExpiresAt.IsZero() {
		expiry := data.ExpiresAt.UTC()
		cookie.Expires = expiry
		if remaining := expiry.Sub(m.now()); remaining <= 0 {
			cookie.MaxAge = -1
		} else {
			cookie.MaxAge = int(remaining.Round(time.Second).Seconds())
		}
	}

	http.SetCookie(w, cookie)
	sess.dirty = false
	return nil
}

// New returns a pristine session with a generated identifier.
func (m *Manager) New() *Session {
	now := m.now().UTC()
	return &Session{
		data: Data{
			ID:         mustGenerateToken(32),
			CreatedAt:  now,
			LastActive: now,
			ExpiresAt:  now.Add(m.cfg.Lifetime),
		},
		dirty: true,
		now:   m.now,
	}
}

func (m *Manager) isExpired(sess *Session, now time.Time) bool {
	now = now.UTC()
	if !sess.data.ExpiresAt.IsZero() && now.After(sess.data.ExpiresAt.UTC()) {
		return true
	}
	last := sess.data.LastActive
	if last.IsZero() {
		last = sess.data.CreatedAt
	}
	return !last.IsZero() && now.Sub(last) > m.cfg.IdleTimeout
}

// ID returns the stable session identifier.
func (s *Session) ID() string { return s.data.ID }

// CreatedAt returns the session creation timestamp.
func (s *Session) CreatedAt() time.Time { return s.data.CreatedAt }

// LastActive returns the last access timestamp.
func (s *Session) LastActive() time.Time { return s.data.LastActive }

// ExpiresAt returns the absolute expiry timestamp for the session.
func (s *Session) ExpiresAt() time.Time { return s.data.ExpiresAt }

// EnsureCSRFToken returns the existing CSRF token or generates a new one on demand.
func (s *Session) EnsureCSRFToken() (string, error) {
	if s.data.CSRFToken != "" {
		return s.data.CSRFToken, nil
	}
	token, err := generateToken(32)
	if err != nil {
		return "", err
	}
	s.data.CSRFToken = token
	s.dirty = true
	return token, nil
}

// CSRFToken returns the stored CSRF token value.
func (s *Session) CSRFToken() string { return s.data.CSRFToken }

// User returns the signed-in user, if any.
func (s *Session) User() *User { return s.data.User }

// IDToken returns the provider ID token of the signed-in user.
func (s *Session) IDToken() string { return s.data.IDToken }

// RefreshToken returns the provider refresh token of the signed-in user.
func (s *Session) RefreshToken() string { return s.data.RefreshToken }

// SignIn stores the authenticated user and tokens, rotating the session ID and CSRF token.
func (s *Session) SignIn(user User, idToken, refreshToken string) error {
	id, err := generateToken(32)
	if err != nil {
		return err
	}
	csrf, err := generateToken(32)
	if err != nil {
		return err
	}
	s.data.ID = id
	s.data.CSRFToken = csrf
	s.data.User = &user
	s.data.IDToken = idToken
	s.data.RefreshToken = refreshToken
	s.data.OAuthState = nil
	s.dirty = true
	return nil
}

// UpdateTokens swaps in a refreshed ID token. An empty refresh token keeps the current one.
func (s *Session) UpdateTokens(idToken, refreshToken string) {
	s.data.IDToken = idToken
	if refreshToken != "" {
		s.data.RefreshToken = refreshToken
	}
	s.dirty = true
}

// SignOut drops the user and tokens but keeps the session for a final flash.
func (s *Session) SignOut() {
	if s.data.User == nil && s.data.IDToken == "" && s.data.RefreshToken == "" {
		return
	}
	s.data.User = nil
	s.data.IDToken = ""
	s.data.RefreshToken = ""
	s.dirty = true
}

// SetFlash queues a message for the next rendered page, replacing any pending one.
func (s *Session) SetFlash(kind FlashKind, message string) {
	if message == "" {
		return
	}
	s.data.Flash = &Flash{Kind: kind, Message: message}
	s.dirty = true
}

// PopFlash returns and clears the pending flash.
func (s *Session) PopFlash() (Flash, bool) {
	if s.data.Flash == nil {
		return Flash{}, false
	}
	flash := *s.data.Flash
	s.data.Flash = nil
	s.dirty = true
	return flash, true
}

// BeginOAuth records a new pending OAuth flow and returns its state parameter.
func (s *Session) BeginOAuth(page, from string) (string, error) {
	state, err := generateToken(24)
	if err != nil {
		return "", err
	}
	s.data.OAuthState = &OAuthState{
		State:     state,
		Page:      page,
		From:      from,
		CreatedAt: s.clock().UTC(),
	}
	s.dirty = true
	return state, nil
}

// TakeOAuth consumes the pending OAuth flow. The stored entry is cleared even when state does
// not match so a state value can be used at most once.
func (s *Session) TakeOAuth(state string) (OAuthState, error) {
	pending := s.data.OAuthState
	if pending == nil {
		return OAuthState{}, ErrOAuthStateMismatch
	}
	s.data.OAuthState = nil
	s.dirty = true
	if state == "" || state != pending.State {
		return *pending, ErrOAuthStateMismatch
	}
	if s.clock().UTC().Sub(pending.CreatedAt) > oauthStateTTL {
		return *pending, ErrOAuthStateMismatch
	}
	return *pending, nil
}

// Touch updates the last active timestamp.
func (s *Session) Touch(now time.Time) {
	now = now.UTC()
	if now.After(s.data.LastActive) {
		s.data.LastActive = now
		s.dirty = true
	}
}

// Dirty indicates whether the session contents have changed during this request.
func (s *Session) Dirty() bool { return s.dirty }

func (s *Session) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

func mustGenerateToken(length int) string {
	token, err := generateToken(length)
	if err != nil {
		panic(err)
	}
	return token
}

func generateToken(length int) (string, error) {
	if length <= 0 {
		length = 32
	}
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
