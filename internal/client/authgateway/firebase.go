package authgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultIdentityToolkitURL = "https://identitytoolkit.googleapis.com/v1"
	defaultSecureTokenURL     = "https://securetoken.googleapis.com/v1"
)

var tracer = otel.Tracer("finitefield.org/bookstore-client/internal/client/authgateway")

// HTTPClient matches the subset of http.Client used by FirebaseGateway.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// UserLookup fetches the full user record through the Firebase Admin SDK.
type UserLookup interface {
	GetUser(ctx context.Context, uid string) (*firebaseauth.UserRecord, error)
}

// FirebaseConfig configures FirebaseGateway.
type FirebaseConfig struct {
	APIKey string
	// BaseURL overrides the Identity Toolkit endpoint (emulator, tests).
	BaseURL string
	// TokenURL overrides the Secure Token endpoint used for refreshes (emulator, tests).
	TokenURL string
	// RequestURI is reported to signInWithIdp as the OAuth continue URI.
	RequestURI string
	HTTPClient HTTPClient
	// Users optionally enriches results with Admin SDK data.
	Users UserLookup
}

// FirebaseGateway implements Gateway against the Firebase Identity Toolkit REST API.
type FirebaseGateway struct {
	apiKey     string
	base       *url.URL
	tokenBase  *url.URL
	requestURI string
	client     HTTPClient
	users      UserLookup
}

// NewFirebaseGateway validates cfg and constructs the gateway.
func NewFirebaseGateway(cfg FirebaseConfig) (*FirebaseGateway, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("authgateway: firebase api key is required")
	}
	rawBase := strings.TrimSpace(cfg.BaseURL)
	if rawBase == "" {
		rawBase = defaultIdentityToolkitURL
	}
	base, err := url.Parse(strings.TrimRight(rawBase, "/"))
	if err != nil {
		return nil, fmt.Errorf("authgateway: parse base URL: %w", err)
	}
	rawToken := strings.TrimSpace(cfg.TokenURL)
	if rawToken == "" {
		rawToken = defaultSecureTokenURL
	}
	tokenBase, err := url.Parse(strings.TrimRight(rawToken, "/"))
	if err != nil {
		return nil, fmt.Errorf("authgateway: parse token URL: %w", err)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	requestURI := strings.TrimSpace(cfg.RequestURI)
	if requestURI == "" {
		requestURI = "http://localhost"
	}
	return &FirebaseGateway{
		apiKey:     cfg.APIKey,
		base:       base,
		tokenBase:  tokenBase,
		requestURI: requestURI,
		client:     client,
		users:      cfg.Users,
	}, nil
}

type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type idpRequest struct {
	PostBody            string `json:"postBody"`
	RequestURI          string `json:"requestUri"`
	ReturnIdpCredential bool   `json:"returnIdpCredential"`
	ReturnSecureToken   bool   `json:"returnSecureToken"`
}

type accountResponse struct {
	LocalID       string `json:"localId"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName"`
	PhotoURL      string `json:"photoUrl"`
	EmailVerified bool   `json:"emailVerified"`
	IDToken       string `json:"idToken"`
	RefreshToken  string `json:"refreshToken"`
	ExpiresIn     string `json:"expiresIn"`
	IsNewUser     bool   `json:"isNewUser"`
	ProviderID    string `json:"providerId"`
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Login signs in an existing email/password account.
func (g *FirebaseGateway) Login(ctx context.Context, email, password string) (*Result, error) {
	payload := passwordRequest{Email: strings.TrimSpace(email), Password: password, ReturnSecureToken: true}
	return g.call(ctx, "accounts:signInWithPassword", payload, ProviderPassword)
}

// CreateUser registers a new email/password account and signs it in.
func (g *FirebaseGateway) CreateUser(ctx context.Context, email, password string) (*Result, error) {
	payload := passwordRequest{Email: strings.TrimSpace(email), Password: password, ReturnSecureToken: true}
	res, err := g.call(ctx, "accounts:signUp", payload, ProviderPassword)
	if err != nil {
		return nil, err
	}
	res.NewUser = true
	return res, nil
}

// SignUpWithGmail exchanges a Google credential for a Firebase session, creating the account on first use.
func (g *FirebaseGateway) SignUpWithGmail(ctx context.Context, cred OAuthCredential) (*Result, error) {
	providerID := cred.ProviderID
	if providerID == "" {
		providerID = ProviderGoogle
	}
	form := url.Values{}
	form.Set("providerId", providerID)
	switch {
	case cred.IDToken != "":
		form.Set("id_token", cred.IDToken)
	case cred.AccessToken != "":
		form.Set("access_token", cred.AccessToken)
	default:
		return nil, NewProviderError(CodeInvalidCredential, errors.New("oauth credential is empty"))
	}
	payload := idpRequest{
		PostBody:            form.Encode(),
		RequestURI:          g.requestURI,
		ReturnIdpCredential: true,
		ReturnSecureToken:   true,
	}
	return g.call(ctx, "accounts:signInWithIdp", payload, providerID)
}

// Refresh exchanges a refresh token at the Secure Token endpoint.
func (g *FirebaseGateway) Refresh(ctx context.Context, refreshToken string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "securetoken.token", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	res, err := g.refresh(ctx, refreshToken)
	if err != nil {
		span.SetStatus(codes.Error, ErrorCode(err))
		return nil, err
	}
	result := &Result{
		User:         UserRecord{UID: res.UserID},
		IDToken:      res.IDToken,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    parseExpiresIn(res.ExpiresIn),
	}
	g.enrich(ctx, &result.User)
	return result, nil
}

func (g *FirebaseGateway) refresh(ctx context.Context, refreshToken string) (*refreshResponse, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, NewProviderError(CodeInvalidUserToken, errors.New("missing refresh token"))
	}
	endpoint := *g.tokenBase
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + "/token"
	q := endpoint.Query()
	q.Set("key", g.apiKey)
	endpoint.RawQuery = q.Encode()

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("authgateway: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, NewProviderError(CodeNetworkRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(resp)
	}
	var out refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, NewProviderError(CodeInternal, fmt.Errorf("decode token: %w", err))
	}
	if out.IDToken == "" {
		return nil, NewProviderError(CodeInvalidUserToken, errors.New("token response without id_token"))
	}
	return &out, nil
}

func (g *FirebaseGateway) call(ctx context.Context, method string, payload any, providerID string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "identitytoolkit."+method, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	res, err := g.do(ctx, method, payload)
	if err != nil {
		span.SetStatus(codes.Error, ErrorCode(err))
		return nil, err
	}
	if res.ProviderID != "" {
		providerID = res.ProviderID
	}

	result := &Result{
		User: UserRecord{
			UID:           res.LocalID,
			Email:         res.Email,
			DisplayName:   res.DisplayName,
			PhotoURL:      res.PhotoURL,
			EmailVerified: res.EmailVerified,
			ProviderID:    providerID,
		},
		IDToken:      res.IDToken,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    parseExpiresIn(res.ExpiresIn),
		NewUser:      res.IsNewUser,
	}
	span.SetAttributes(attribute.Bool("auth.new_user", result.NewUser))
	g.enrich(ctx, &result.User)
	return result, nil
}

func (g *FirebaseGateway) do(ctx context.Context, method string, payload any) (*accountResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("authgateway: encode %s: %w", method, err)
	}
	endpoint := *g.base
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + "/" + method
	q := endpoint.Query()
	q.Set("key", g.apiKey)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("authgateway: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, NewProviderError(CodeNetworkRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(resp)
	}

	var out accountResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, NewProviderError(CodeInternal, fmt.Errorf("decode %s: %w", method, err))
	}
	return &out, nil
}

// enrich fills profile fields from the Admin SDK. Lookup failures keep the REST data.
func (g *FirebaseGateway) enrich(ctx context.Context, user *UserRecord) {
	if g.users == nil || user.UID == "" {
		return
	}
	record, err := g.users.GetUser(ctx, user.UID)
	if err != nil || record == nil || record.UserInfo == nil {
		return
	}
	if record.DisplayName != "" {
		user.DisplayName = record.DisplayName
	}
	if record.PhotoURL != "" {
		user.PhotoURL = record.PhotoURL
	}
	if record.Email != "" {
		user.Email = record.Email
	}
	user.EmailVerified = record.EmailVerified
}

func errorFromResponse(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload errorResponse
	if err := json.Unmarshal(data, &payload); err != nil || payload.Error.Message == "" {
		return NewProviderError(CodeInternal, fmt.Errorf("firebase status %d", resp.StatusCode))
	}
	return NewProviderError(codeForRESTMessage(payload.Error.Message), fmt.Errorf("firebase: %s", payload.Error.Message))
}

// codeForRESTMessage maps Identity Toolkit messages ("WEAK_PASSWORD : ...") onto client codes.
func codeForRESTMessage(message string) string {
	key := message
	if i := strings.Index(key, " "); i >= 0 {
		key = key[:i]
	}
	switch key {
	case "EMAIL_NOT_FOUND", "USER_NOT_FOUND":
		return CodeUserNotFound
	case "INVALID_PASSWORD":
		return CodeWrongPassword
	case "INVALID_LOGIN_CREDENTIALS", "INVALID_IDP_RESPONSE":
		return CodeInvalidCredential
	case "USER_DISABLED":
		return CodeUserDisabled
	case "EMAIL_EXISTS":
		return CodeEmailAlreadyInUse
	case "WEAK_PASSWORD":
		return CodeWeakPassword
	case "INVALID_EMAIL", "MISSING_EMAIL":
		return CodeInvalidEmail
	case "MISSING_PASSWORD":
		return CodeMissingPassword
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return CodeTooManyRequests
	case "TOKEN_EXPIRED":
		return CodeTokenExpired
	case "INVALID_REFRESH_TOKEN", "MISSING_REFRESH_TOKEN", "INVALID_GRANT_TYPE":
		return CodeInvalidUserToken
	case "OPERATION_NOT_ALLOWED", "PASSWORD_LOGIN_DISABLED":
		return CodeOperationNotAllowed
	default:
		return CodeInternal
	}
}

func parseExpiresIn(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
