package authgateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	Path string
	Key  string
	Body map[string]any
}

func newToolkitServer(t *testing.T, handler func(method string, body map[string]any) (int, any)) (*httptest.Server, *[]recordedCall) {
	t.Helper()

	var calls []recordedCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		calls = append(calls, recordedCall{Path: r.URL.Path, Key: r.URL.Query().Get("key"), Body: body})

		status, payload := handler(r.URL.Path, body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func toolkitError(message string) map[string]any {
	return map[string]any{"error": map[string]any{"code": 400, "message": message}}
}

func TestFirebaseGatewayLogin(t *testing.T) {
	t.Parallel()

	srv, calls := newToolkitServer(t, func(string, map[string]any) (int, any) {
		return http.StatusOK, map[string]any{
			"localId":      "uid-1",
			"email":        "a@b.com",
			"idToken":      "id-token",
			"refreshToken": "refresh",
			"expiresIn":    "3600",
			"registered":   true,
		}
	})

	gw, err := NewFirebaseGateway(FirebaseConfig{APIKey: "key-1", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	res, err := gw.Login(context.Background(), "a@b.com", "Tr0ub4dor&3")
	require.NoError(t, err)
	require.Equal(t, "uid-1", res.User.UID)
	require.Equal(t, ProviderPassword, res.User.ProviderID)
	require.Equal(t, "id-token", res.IDToken)
	require.Equal(t, 3600, res.ExpiresIn)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	require.Equal(t, "/v1/accounts:signInWithPassword", call.Path)
	require.Equal(t, "key-1", call.Key)
	require.Equal(t, "a@b.com", call.Body["email"])
	require.Equal(t, "Tr0ub4dor&3", call.Body["password"])
	require.Equal(t, true, call.Body["returnSecureToken"])
}

func TestFirebaseGatewayMapsErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"INVALID_PASSWORD":                                        CodeWrongPassword,
		"EMAIL_NOT_FOUND":                                         CodeUserNotFound,
		"EMAIL_EXISTS":                                            CodeEmailAlreadyInUse,
		"WEAK_PASSWORD : Password should be at least 6 characters": CodeWeakPassword,
		"TOO_MANY_ATTEMPTS_TRY_LATER : Access disabled":            CodeTooManyRequests,
		"SOMETHING_NEW":                                           CodeInternal,
	}
	for restMessage, code := range cases {
		srv, _ := newToolkitServer(t, func(string, map[string]any) (int, any) {
			return http.StatusBadRequest, toolkitError(restMessage)
		})
		gw, err := NewFirebaseGateway(FirebaseConfig{APIKey: "k", BaseURL: srv.URL})
		require.NoError(t, err)

		_, err = gw.CreateUser(context.Background(), "a@b.com", "pw")
		require.Error(t, err)

		var perr *ProviderError
		require.True(t, errors.As(err, &perr), restMessage)
		require.Equal(t, code, perr.Code, restMessage)
		require.Equal(t, "Firebase: Error ("+code+").", perr.Error())
	}
}

func TestFirebaseGatewayCreateUserMarksNewUser(t *testing.T) {
	t.Parallel()

	srv, calls := newToolkitServer(t, func(string, map[string]any) (int, any) {
		return http.StatusOK, map[string]any{"localId": "uid-2", "email": "new@b.com", "idToken": "tok"}
	})
	gw, err := NewFirebaseGateway(FirebaseConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	res, err := gw.CreateUser(context.Background(), " new@b.com ", "secret-pass")
	require.NoError(t, err)
	require.True(t, res.NewUser)
	require.Equal(t, "/accounts:signUp", (*calls)[0].Path)
	require.Equal(t, "new@b.com", (*calls)[0].Body["email"])
}

func TestFirebaseGatewaySignUpWithGmail(t *testing.T) {
	t.Parallel()

	srv, calls := newToolkitServer(t, func(string, map[string]any) (int, any) {
		return http.StatusOK, map[string]any{
			"localId":     "uid-g",
			"email":       "g@gmail.com",
			"displayName": "Reader",
			"idToken":     "tok",
			"isNewUser":   true,
			"providerId":  "google.com",
		}
	})
	gw, err := NewFirebaseGateway(FirebaseConfig{APIKey: "k", BaseURL: srv.URL, RequestURI: "https://books.example.com/auth/google/callback"})
	require.NoError(t, err)

	res, err := gw.SignUpWithGmail(context.Background(), OAuthCredential{IDToken: "google-id-token"})
	require.NoError(t, err)
	require.Equal(t, ProviderGoogle, res.User.ProviderID)
	require.True(t, res.NewUser)

	call := (*calls)[0]
	require.Equal(t, "/accounts:signInWithIdp", call.Path)
	postBody, err := url.ParseQuery(call.Body["postBody"].(string))
	require.NoError(t, err)
	require.Equal(t, "google-id-token", postBody.Get("id_token"))
	require.Equal(t, "google.com", postBody.Get("providerId"))
	require.Equal(t, "https://books.example.com/auth/google/callback", call.Body["requestUri"])
}

func TestFirebaseGatewayRejectsEmptyOAuthCredential(t *testing.T) {
	t.Parallel()

	gw, err := NewFirebaseGateway(FirebaseConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	_, err = gw.SignUpWithGmail(context.Background(), OAuthCredential{})
	require.Equal(t, CodeInvalidCredential, ErrorCode(err))
}

type stubUserLookup struct {
	record *firebaseauth.UserRecord
	err    error
}

func (s *stubUserLookup) GetUser(context.Context, string) (*firebaseauth.UserRecord, error) {
	return s.record, s.err
}

func TestFirebaseGatewayEnrichesFromAdminSDK(t *testing.T) {
	t.Parallel()

	srv, _ := newToolkitServer(t, func(string, map[string]any) (int, any) {
		return http.StatusOK, map[string]any{"localId": "uid-3", "email": "a@b.com", "idToken": "tok"}
	})
	lookup := &stubUserLookup{record: &firebaseauth.UserRecord{
		UserInfo:      &firebaseauth.UserInfo{UID: "uid-3", Email: "a@b.com", DisplayName: "Avid Reader"},
		EmailVerified: true,
	}}
	gw, err := NewFirebaseGateway(FirebaseConfig{APIKey: "k", BaseURL: srv.URL, Users: lookup})
	require.NoError(t, err)

	res, err := gw.Login(context.Background(), "a@b.com", "pw")
	require.NoError(t, err)
	require.Equal(t, "Avid Reader", res.User.DisplayName)
	require.True(t, res.User.EmailVerified)

	lookup.record, lookup.err = nil, errors.New("admin sdk down")
	res, err = gw.Login(context.Background(), "a@b.com", "pw")
	require.NoError(t, err, "lookup failure must not fail the sign-in")
	require.Equal(t, "uid-3", res.User.UID)
}

func TestNewFirebaseGatewayRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewFirebaseGateway(FirebaseConfig{})
	require.Error(t, err)
}

func TestFirebaseGatewayRefresh(t *testing.T) {
	t.Parallel()

	var gotForm url.Values
	var gotKey, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		gotKey = r.URL.Query().Get("key")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("refresh_token") != "refresh-1" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(toolkitError("INVALID_REFRESH_TOKEN"))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id_token":      "id-2",
			"refresh_token": "refresh-2",
			"expires_in":    "3600",
			"user_id":       "uid-1",
			"token_type":    "Bearer",
		})
	}))
	t.Cleanup(srv.Close)

	gw, err := NewFirebaseGateway(FirebaseConfig{APIKey: "key-1", BaseURL: srv.URL + "/v1", TokenURL: srv.URL + "/st/v1"})
	require.NoError(t, err)

	res, err := gw.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)
	require.Equal(t, "/st/v1/token", gotPath)
	require.Equal(t, "key-1", gotKey)
	require.Equal(t, "refresh_token", gotForm.Get("grant_type"))
	require.Equal(t, "uid-1", res.User.UID)
	require.Equal(t, "id-2", res.IDToken)
	require.Equal(t, "refresh-2", res.RefreshToken)
	require.Equal(t, 3600, res.ExpiresIn)

	_, err = gw.Refresh(context.Background(), "revoked")
	require.Equal(t, CodeInvalidUserToken, ErrorCode(err))

	_, err = gw.Refresh(context.Background(), "")
	require.Equal(t, CodeInvalidUserToken, ErrorCode(err))
}
