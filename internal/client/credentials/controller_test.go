package credentials

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"finitefield.org/bookstore-client/internal/client/authgateway"
	"finitefield.org/bookstore-client/internal/client/navigation"
	"finitefield.org/bookstore-client/internal/client/passwordpolicy"
)

type gatewayCall struct {
	Op       string
	Email    string
	Password string
	Cred     authgateway.OAuthCredential
}

type fakeGateway struct {
	mu      sync.Mutex
	calls   []gatewayCall
	result  *authgateway.Result
	err     error
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeGateway) record(call gatewayCall) (*authgateway.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &authgateway.Result{User: authgateway.UserRecord{UID: "uid-1", Email: call.Email}}, nil
}

func (f *fakeGateway) Login(_ context.Context, email, password string) (*authgateway.Result, error) {
	return f.record(gatewayCall{Op: "login", Email: email, Password: password})
}

func (f *fakeGateway) CreateUser(_ context.Context, email, password string) (*authgateway.Result, error) {
	return f.record(gatewayCall{Op: "createUser", Email: email, Password: password})
}

func (f *fakeGateway) SignUpWithGmail(_ context.Context, cred authgateway.OAuthCredential) (*authgateway.Result, error) {
	return f.record(gatewayCall{Op: "signUpWithGmail", Cred: cred})
}

func (f *fakeGateway) Calls() []gatewayCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gatewayCall(nil), f.calls...)
}

// scoreTable returns a fixed score per password, 0 for unknown passwords.
func scoreTable(scores map[string]int) passwordpolicy.Estimator {
	return passwordpolicy.EstimatorFunc(func(pw string) int { return scores[pw] })
}

func newController(gw authgateway.Gateway) *Controller {
	return NewController(Dependencies{
		Gateway: gw,
		Policy: passwordpolicy.New(scoreTable(map[string]int{
			"abc":         0,
			"Tr0ub4dor&3": 3,
			"p2":          2,
			"p4":          4,
		})),
		Redirector: navigation.NewRedirector("/login", "/create-user"),
	})
}

func TestSubmitWeakPasswordNeverCallsGateway(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	c := newController(gw)

	out := c.Submit(context.Background(), "sess", ModeLogin, Input{Email: "a@b.com", Password: "abc"}, "")
	require.Equal(t, StateFailed, out.State)
	require.Equal(t, MessageWeakLogin, out.Error)
	require.ErrorIs(t, out.Err, passwordpolicy.ErrWeakPassword)
	require.Equal(t, 0, out.Score)
	require.Empty(t, gw.Calls())

	out = c.Submit(context.Background(), "sess", ModeSignup, Input{Email: "a@b.com", Password: "p2"}, "")
	require.Equal(t, MessageWeakSignup, out.Error)
	require.Equal(t, 2, out.Score)
	require.Empty(t, gw.Calls())
}

func TestSubmitEmptyPasswordIsWeak(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	out := newController(gw).Submit(context.Background(), "sess", ModeLogin, Input{Email: "a@b.com"}, "")
	require.ErrorIs(t, out.Err, passwordpolicy.ErrWeakPassword)
	require.Empty(t, gw.Calls())
}

func TestSubmitStrongPasswordCallsLoginOnce(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	out := newController(gw).Submit(context.Background(), "sess", ModeLogin, Input{Email: "a@b.com", Password: "Tr0ub4dor&3"}, "")

	require.True(t, out.Succeeded())
	require.Equal(t, []gatewayCall{{Op: "login", Email: "a@b.com", Password: "Tr0ub4dor&3"}}, gw.Calls())
	require.Equal(t, "/", out.Target)
	require.Equal(t, MessageLoginSuccess, out.Notice)
	require.Empty(t, out.Error)
	require.NotEmpty(t, out.AttemptID)
}

func TestSubmitSignupCallsCreateUser(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	out := newController(gw).Submit(context.Background(), "sess", ModeSignup, Input{Email: " new@b.com ", Password: "p4"}, "/dashboard")

	require.True(t, out.Succeeded())
	require.Equal(t, []gatewayCall{{Op: "createUser", Email: "new@b.com", Password: "p4"}}, gw.Calls())
	require.Equal(t, "/dashboard", out.Target)
	require.Equal(t, MessageSignupSuccess, out.Notice)
}

func TestSubmitRedirectTarget(t *testing.T) {
	t.Parallel()

	c := newController(&fakeGateway{})
	cases := map[string]string{
		"":                     "/",
		"/dashboard":           "/dashboard",
		"https://evil.example": "/",
		"/login":               "/",
	}
	for from, want := range cases {
		out := c.Submit(context.Background(), "sess", ModeLogin, Input{Email: "a@b.com", Password: "p4"}, from)
		require.Equal(t, want, out.Target, "from=%q", from)
	}
}

func TestSubmitProviderErrorShownVerbatim(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{err: &authgateway.ProviderError{Code: "auth/wrong-password", Message: "auth/wrong-password"}}
	out := newController(gw).Submit(context.Background(), "sess", ModeLogin, Input{Email: "a@b.com", Password: "Tr0ub4dor&3"}, "")

	require.Equal(t, StateFailed, out.State)
	require.Equal(t, "auth/wrong-password", out.Error)
	require.Empty(t, out.Target)
	require.Len(t, gw.Calls(), 1)
}

func TestSubmitPlainErrorMessage(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{err: errors.New("connection reset")}
	out := newController(gw).Submit(context.Background(), "sess", ModeSignup, Input{Email: "a@b.com", Password: "p4"}, "")
	require.Equal(t, "connection reset", out.Error)
}

func TestSubmitRequiresEmail(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	out := newController(gw).Submit(context.Background(), "sess", ModeLogin, Input{Email: "   ", Password: "p4"}, "")
	require.ErrorIs(t, out.Err, ErrInvalidInput)
	require.Equal(t, MessageEmailRequired, out.Error)
	require.Empty(t, gw.Calls())
}

func TestSubmitInputLimits(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   Input
		want string
	}{
		{name: "missing email", in: Input{Password: "p4"}, want: MessageEmailRequired},
		{name: "long email", in: Input{Email: strings.Repeat("a", 321), Password: "p4"}, want: MessageEmailTooLong},
		{name: "long password", in: Input{Email: "a@b.com", Password: strings.Repeat("p", 4097)}, want: MessagePasswordTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw := &fakeGateway{}
			out := newController(gw).Submit(context.Background(), "sess", ModeSignup, tc.in, "")
			require.ErrorIs(t, out.Err, ErrInvalidInput)
			require.Equal(t, tc.want, out.Error)
			require.Empty(t, gw.Calls())
		})
	}
}

func TestSubmitOAuthBypassesPasswordGate(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	c := NewController(Dependencies{
		Gateway: gw,
		Policy: passwordpolicy.New(passwordpolicy.EstimatorFunc(func(string) int {
			t.Fatalf("estimator must not run for oauth")
			return 0
		})),
	})

	cred := authgateway.OAuthCredential{ProviderID: authgateway.ProviderGoogle, IDToken: "id"}
	out := c.SubmitOAuth(context.Background(), "sess", ModeLogin, cred, "/dashboard")
	require.True(t, out.Succeeded())
	require.Empty(t, out.Notice, "login page google path redirects silently")
	require.Equal(t, "/dashboard", out.Target)

	out = c.SubmitOAuth(context.Background(), "sess", ModeSignup, cred, "")
	require.Equal(t, MessageSignupSuccess, out.Notice)
	require.Len(t, gw.Calls(), 2)
	require.Equal(t, "signUpWithGmail", gw.Calls()[0].Op)
}

func TestSubmitOAuthFailure(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{err: authgateway.NewProviderError(authgateway.CodeInvalidCredential, nil)}
	out := newController(gw).SubmitOAuth(context.Background(), "sess", ModeSignup, authgateway.OAuthCredential{IDToken: "x"}, "")
	require.Equal(t, StateFailed, out.State)
	require.Equal(t, "Firebase: Error (auth/invalid-credential).", out.Error)
}

func TestFailMapsOAuthNotConfigured(t *testing.T) {
	t.Parallel()

	out := newController(&fakeGateway{}).Fail(context.Background(), ModeLogin, authgateway.ErrOAuthNotConfigured)
	require.Equal(t, StateFailed, out.State)
	require.Equal(t, MessageOAuthNotEnabled, out.Error)

	out = newController(&fakeGateway{}).Fail(context.Background(), ModeSignup, authgateway.ErrOAuthCancelled)
	require.Equal(t, MessageOAuthCancelled, out.Error)
}

func TestSubmitRejectsConcurrentSubmissionForSameForm(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	c := newController(gw)
	in := Input{Email: "a@b.com", Password: "p4"}

	first := make(chan Outcome, 1)
	go func() {
		first <- c.Submit(context.Background(), "sess", ModeLogin, in, "")
	}()
	<-gw.entered

	second := c.Submit(context.Background(), "sess", ModeLogin, in, "")
	require.ErrorIs(t, second.Err, ErrSubmissionInFlight)
	require.Equal(t, MessageInFlight, second.Error)

	close(gw.block)
	require.True(t, (<-first).Succeeded())
	require.Len(t, gw.Calls(), 1)

	gw.block = nil
	gw.entered = nil
	third := c.Submit(context.Background(), "sess", ModeLogin, in, "")
	require.True(t, third.Succeeded(), "key is released once the first call settles")
}

func TestSubmitDifferentFormsDoNotBlockEachOther(t *testing.T) {
	t.Parallel()

	inflight := NewInFlight()
	release, ok := inflight.Acquire(formKey("sess", ModeLogin))
	require.True(t, ok)
	defer release()

	c := NewController(Dependencies{
		Gateway:  &fakeGateway{},
		Policy:   passwordpolicy.New(scoreTable(map[string]int{"p4": 4})),
		InFlight: inflight,
	})
	out := c.Submit(context.Background(), "sess", ModeSignup, Input{Email: "a@b.com", Password: "p4"}, "")
	require.True(t, out.Succeeded())

	out = c.Submit(context.Background(), "other-session", ModeLogin, Input{Email: "a@b.com", Password: "p4"}, "")
	require.True(t, out.Succeeded())
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	require.Equal(t, ModeSignup, ParseMode("signup"))
	require.Equal(t, ModeLogin, ParseMode("login"))
	require.Equal(t, ModeLogin, ParseMode(""))
	require.Equal(t, "signup", ModeSignup.String())
}
