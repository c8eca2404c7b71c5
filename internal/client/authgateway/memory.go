package authgateway

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/api/idtoken"
)

const (
	memoryIssuer     = "bookstore-client/dev"
	memoryTokenTTL   = time.Hour
	memoryMinPassLen = 6
)

// ErrInvalidToken is returned by MemoryGateway.VerifyToken for tokens it did not issue.
var ErrInvalidToken = errors.New("authgateway: invalid token")

// ErrTokenExpired is returned by MemoryGateway.VerifyToken for expired tokens.
var ErrTokenExpired = errors.New("authgateway: token expired")

type memoryUser struct {
	record UserRecord
	hash   []byte
}

// GoogleTokenValidator checks a Google ID token against audience. idtoken.Validate satisfies it.
type GoogleTokenValidator func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)

// MemoryGateway is an in-process identity provider for local development and tests.
// It issues HS256 ID tokens that VerifyToken accepts and rotating refresh tokens.
type MemoryGateway struct {
	mu     sync.RWMutex
	users  map[string]*memoryUser
	secret []byte
	now    func() time.Time
	cost   int

	refreshMu sync.Mutex
	refresh   map[string]string // refresh token -> user key

	googleAudience string
	validateGoogle GoogleTokenValidator
}

// MemoryOption customises a MemoryGateway.
type MemoryOption func(*MemoryGateway)

// WithSigningSecret fixes the HS256 secret so tokens survive restarts.
func WithSigningSecret(secret []byte) MemoryOption {
	return func(g *MemoryGateway) {
		if len(secret) > 0 {
			g.secret = append([]byte(nil), secret...)
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(g *MemoryGateway) {
		if now != nil {
			g.now = now
		}
	}
}

// WithBcryptCost overrides the hashing cost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) MemoryOption {
	return func(g *MemoryGateway) {
		g.cost = cost
	}
}

// WithGoogleVerification makes SignUpWithGmail verify Google ID tokens issued for clientID.
func WithGoogleVerification(clientID string, validate GoogleTokenValidator) MemoryOption {
	return func(g *MemoryGateway) {
		if strings.TrimSpace(clientID) != "" && validate != nil {
			g.googleAudience = strings.TrimSpace(clientID)
			g.validateGoogle = validate
		}
	}
}

// NewMemoryGateway constructs an empty in-memory provider.
func NewMemoryGateway(opts ...MemoryOption) *MemoryGateway {
	g := &MemoryGateway{
		users:   make(map[string]*memoryUser),
		refresh: make(map[string]string),
		now:     time.Now,
		cost:    bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(g)
	}
	if len(g.secret) == 0 {
		g.secret = make([]byte, 32)
		if _, err := rand.Read(g.secret); err != nil {
			panic(fmt.Errorf("authgateway: generate signing secret: %w", err))
		}
	}
	return g
}

// Login checks the stored bcrypt hash.
func (g *MemoryGateway) Login(ctx context.Context, email, password string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewProviderError(CodeNetworkRequest, err)
	}
	key := normalizeEmail(email)
	if _, err := mail.ParseAddress(key); err != nil {
		return nil, NewProviderError(CodeInvalidEmail, err)
	}
	if password == "" {
		return nil, NewProviderError(CodeMissingPassword, nil)
	}

	g.mu.RLock()
	user, ok := g.users[key]
	g.mu.RUnlock()
	if !ok {
		return nil, NewProviderError(CodeUserNotFound, nil)
	}
	if user.hash == nil {
		// federated-only account
		return nil, NewProviderError(CodeWrongPassword, nil)
	}
	if err := bcrypt.CompareHashAndPassword(user.hash, []byte(password)); err != nil {
		return nil, NewProviderError(CodeWrongPassword, nil)
	}
	return g.issue(user.record, false)
}

// CreateUser registers a new account. The provider-side minimum length matches Firebase (6).
func (g *MemoryGateway) CreateUser(ctx context.Context, email, password string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewProviderError(CodeNetworkRequest, err)
	}
	key := normalizeEmail(email)
	if _, err := mail.ParseAddress(key); err != nil {
		return nil, NewProviderError(CodeInvalidEmail, err)
	}
	if len(password) < memoryMinPassLen {
		return nil, NewProviderError(CodeWeakPassword, nil)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), g.cost)
	if err != nil {
		return nil, NewProviderError(CodeInternal, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.users[key]; exists {
		return nil, NewProviderError(CodeEmailAlreadyInUse, nil)
	}
	record := UserRecord{
		UID:        ulid.Make().String(),
		Email:      key,
		ProviderID: ProviderPassword,
	}
	g.users[key] = &memoryUser{record: record, hash: hash}
	return g.issue(record, true)
}

// SignUpWithGmail accepts a Google ID token. Without WithGoogleVerification its claims are
// read unverified, which is only acceptable for local development.
func (g *MemoryGateway) SignUpWithGmail(ctx context.Context, cred OAuthCredential) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewProviderError(CodeNetworkRequest, err)
	}
	if strings.TrimSpace(cred.IDToken) == "" {
		return nil, NewProviderError(CodeInvalidCredential, errors.New("missing id token"))
	}
	claims, err := g.googleClaims(ctx, cred.IDToken)
	if err != nil {
		return nil, NewProviderError(CodeInvalidCredential, err)
	}
	email, _ := claims["email"].(string)
	key := normalizeEmail(email)
	if key == "" {
		return nil, NewProviderError(CodeInvalidCredential, errors.New("id token has no email"))
	}
	name, _ := claims["name"].(string)
	picture, _ := claims["picture"].(string)
	verified, _ := claims["email_verified"].(bool)

	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.users[key]; ok {
		return g.issue(existing.record, false)
	}
	record := UserRecord{
		UID:           ulid.Make().String(),
		Email:         key,
		DisplayName:   name,
		PhotoURL:      picture,
		EmailVerified: verified,
		ProviderID:    ProviderGoogle,
	}
	g.users[key] = &memoryUser{record: record}
	return g.issue(record, true)
}

func (g *MemoryGateway) googleClaims(ctx context.Context, raw string) (jwt.MapClaims, error) {
	if g.validateGoogle != nil {
		payload, err := g.validateGoogle(ctx, raw, g.googleAudience)
		if err != nil {
			return nil, err
		}
		return jwt.MapClaims(payload.Claims), nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Refresh rotates a refresh token issued by this gateway. Each refresh token works once.
func (g *MemoryGateway) Refresh(ctx context.Context, refreshToken string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewProviderError(CodeNetworkRequest, err)
	}
	g.refreshMu.Lock()
	key, ok := g.refresh[refreshToken]
	delete(g.refresh, refreshToken)
	g.refreshMu.Unlock()
	if !ok {
		return nil, NewProviderError(CodeInvalidUserToken, nil)
	}

	g.mu.RLock()
	user, ok := g.users[key]
	g.mu.RUnlock()
	if !ok {
		return nil, NewProviderError(CodeUserNotFound, nil)
	}
	return g.issue(user.record, false)
}

type memoryClaims struct {
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Provider      string `json:"provider,omitempty"`
	jwt.RegisteredClaims
}

func (g *MemoryGateway) issue(user UserRecord, created bool) (*Result, error) {
	now := g.now()
	claims := memoryClaims{
		Email:         user.Email,
		Name:          user.DisplayName,
		EmailVerified: user.EmailVerified,
		Provider:      user.ProviderID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    memoryIssuer,
			Subject:   user.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(memoryTokenTTL)),
			ID:        ulid.Make().String(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return nil, NewProviderError(CodeInternal, fmt.Errorf("sign token: %w", err))
	}
	refreshToken, err := randomToken()
	if err != nil {
		return nil, NewProviderError(CodeInternal, err)
	}
	g.refreshMu.Lock()
	g.refresh[refreshToken] = normalizeEmail(user.Email)
	g.refreshMu.Unlock()

	return &Result{
		User:         user,
		IDToken:      signed,
		RefreshToken: refreshToken,
		ExpiresIn:    int(memoryTokenTTL.Seconds()),
		NewUser:      created,
	}, nil
}

// VerifyToken validates an ID token issued by this gateway and returns its user.
func (g *MemoryGateway) VerifyToken(_ context.Context, token string) (*UserRecord, error) {
	claims := &memoryClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(memoryIssuer),
		jwt.WithTimeFunc(g.now),
	)
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return g.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &UserRecord{
		UID:           claims.Subject,
		Email:         claims.Email,
		DisplayName:   claims.Name,
		EmailVerified: claims.EmailVerified,
		ProviderID:    claims.Provider,
	}, nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
