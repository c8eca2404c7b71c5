// Package credentials runs the login and signup form flow: input validation, the password
// strength gate, the identity provider call and the post-authentication navigation target.
package credentials

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"finitefield.org/bookstore-client/internal/client/authgateway"
	"finitefield.org/bookstore-client/internal/client/navigation"
	"finitefield.org/bookstore-client/internal/client/passwordpolicy"
	"finitefield.org/bookstore-client/internal/platform/requestctx"
)

// Mode selects which page's flow is running.
type Mode int

const (
	ModeLogin Mode = iota
	ModeSignup
)

// String returns the page name used in logs and form keys.
func (m Mode) String() string {
	if m == ModeSignup {
		return "signup"
	}
	return "login"
}

// ParseMode maps a page name back to a Mode, defaulting to ModeLogin.
func ParseMode(raw string) Mode {
	if strings.EqualFold(strings.TrimSpace(raw), "signup") {
		return ModeSignup
	}
	return ModeLogin
}

// State is the position of a submission in the form state machine.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// User-facing messages.
const (
	MessageWeakLogin       = "Password is weak. Please use a stronger password."
	MessageWeakSignup      = "Password is too weak. Please choose a stronger password."
	MessageLoginSuccess    = "Login successful!"
	MessageSignupSuccess   = "Sign up successful!"
	MessageInFlight        = "A request is already in progress. Please wait."
	MessageEmailRequired   = "Please enter your email address."
	MessageEmailTooLong    = "Email address is too long."
	MessagePasswordTooLong = "Password is too long."
	MessageOAuthNotEnabled = "Google sign-in is not available right now."
	MessageOAuthCancelled  = "Google sign-in was cancelled."
)

var (
	// ErrSubmissionInFlight is returned when the same form already has a provider call pending.
	ErrSubmissionInFlight = errors.New("credentials: submission already in flight")
	// ErrInvalidInput is returned when the posted fields fail validation.
	ErrInvalidInput = errors.New("credentials: invalid input")
)

// Input is the transient credential pair read from the posted form.
type Input struct {
	Email    string `validate:"required,max=320"`
	Password string `validate:"max=4096"`
}

// Outcome describes how a submission ended. Error is the text for the page's error area and is
// empty unless this submission failed.
type Outcome struct {
	AttemptID string
	Mode      Mode
	State     State
	Score     int
	Result    *authgateway.Result
	Target    string
	Notice    string
	Error     string
	Err       error
}

// Succeeded reports whether the provider accepted the submission.
func (o Outcome) Succeeded() bool {
	return o.State == StateSucceeded
}

// Dependencies wires the controller's collaborators.
type Dependencies struct {
	Gateway    authgateway.Gateway
	Policy     *passwordpolicy.Policy
	Redirector *navigation.Redirector
	InFlight   *InFlight
	Now        func() time.Time
}

// Controller orchestrates one form submission at a time per form key.
type Controller struct {
	gateway    authgateway.Gateway
	policy     *passwordpolicy.Policy
	redirector *navigation.Redirector
	inflight   *InFlight
	validate   *validator.Validate
	now        func() time.Time
}

// NewController builds a Controller. The gateway is required.
func NewController(deps Dependencies) *Controller {
	if deps.Gateway == nil {
		panic("credentials: gateway is required")
	}
	policy := deps.Policy
	if policy == nil {
		policy = passwordpolicy.New(nil)
	}
	redirector := deps.Redirector
	if redirector == nil {
		redirector = navigation.NewRedirector()
	}
	inflight := deps.InFlight
	if inflight == nil {
		inflight = NewInFlight()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		gateway:    deps.Gateway,
		policy:     policy,
		redirector: redirector,
		inflight:   inflight,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		now:        now,
	}
}

// inputMessage picks the message for the first failed field rule.
func inputMessage(err error) string {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return MessageEmailRequired
	}
	field := fields[0]
	switch {
	case field.Field() == "Password" && field.Tag() == "max":
		return MessagePasswordTooLong
	case field.Field() == "Email" && field.Tag() == "max":
		return MessageEmailTooLong
	default:
		return MessageEmailRequired
	}
}

// Submit runs the email/password flow for mode. key identifies the form instance
// (session and page); from is the captured deep-link target.
func (c *Controller) Submit(ctx context.Context, key string, mode Mode, in Input, from string) Outcome {
	out := c.begin(mode)
	logger := c.logger(ctx, out)

	in.Email = strings.TrimSpace(in.Email)
	if err := c.validate.Struct(in); err != nil {
		logger.Info("credential input rejected", zap.Error(err))
		return c.fail(out, inputMessage(err), errors.Join(ErrInvalidInput, err))
	}

	score, err := c.policy.Check(in.Password)
	out.Score = score
	if err != nil {
		logger.Info("password rejected by strength policy", zap.Int("score", score))
		return c.fail(out, weakMessage(mode), err)
	}

	release, ok := c.inflight.Acquire(formKey(key, mode))
	if !ok {
		logger.Warn("duplicate submission rejected")
		return c.fail(out, MessageInFlight, ErrSubmissionInFlight)
	}
	defer release()

	start := c.now()
	var res *authgateway.Result
	switch mode {
	case ModeSignup:
		res, err = c.gateway.CreateUser(ctx, in.Email, in.Password)
	default:
		res, err = c.gateway.Login(ctx, in.Email, in.Password)
	}
	logger = logger.With(zap.Duration("provider_latency", c.now().Sub(start)))
	if err != nil {
		logger.Info("identity provider rejected credentials", zap.String("code", authgateway.ErrorCode(err)))
		return c.fail(out, authgateway.MessageFor(err), err)
	}

	logger.Info("credentials accepted", zap.String("uid", res.User.UID))
	return c.succeed(out, res, from, successMessage(mode))
}

// SubmitOAuth runs the Google flow for mode. The password gate does not apply.
func (c *Controller) SubmitOAuth(ctx context.Context, key string, mode Mode, cred authgateway.OAuthCredential, from string) Outcome {
	out := c.begin(mode)
	logger := c.logger(ctx, out).With(zap.String("provider", authgateway.ProviderGoogle))

	release, ok := c.inflight.Acquire(formKey(key, mode))
	if !ok {
		logger.Warn("duplicate oauth submission rejected")
		return c.fail(out, MessageInFlight, ErrSubmissionInFlight)
	}
	defer release()

	res, err := c.gateway.SignUpWithGmail(ctx, cred)
	if err != nil {
		logger.Info("identity provider rejected oauth credential", zap.String("code", authgateway.ErrorCode(err)))
		return c.fail(out, authgateway.MessageFor(err), err)
	}

	notice := ""
	if mode == ModeSignup {
		notice = MessageSignupSuccess
	}
	logger.Info("oauth credential accepted", zap.String("uid", res.User.UID), zap.Bool("new_user", res.NewUser))
	return c.succeed(out, res, from, notice)
}

// Fail records a failure that happened before the gateway could be called (e.g. a broken OAuth callback).
func (c *Controller) Fail(ctx context.Context, mode Mode, err error) Outcome {
	out := c.begin(mode)
	message := authgateway.MessageFor(err)
	switch {
	case errors.Is(err, authgateway.ErrOAuthNotConfigured):
		message = MessageOAuthNotEnabled
	case errors.Is(err, authgateway.ErrOAuthCancelled):
		message = MessageOAuthCancelled
	}
	c.logger(ctx, out).Info("submission failed before provider call", zap.Error(err))
	return c.fail(out, message, err)
}

// Target resolves the navigation target without running a submission.
func (c *Controller) Target(from string) string {
	return c.redirector.Resolve(from)
}

func (c *Controller) begin(mode Mode) Outcome {
	return Outcome{
		AttemptID: ulid.Make().String(),
		Mode:      mode,
		State:     StateSubmitting,
	}
}

func (c *Controller) fail(out Outcome, message string, err error) Outcome {
	out.State = StateFailed
	out.Error = message
	out.Err = err
	return out
}

func (c *Controller) succeed(out Outcome, res *authgateway.Result, from, notice string) Outcome {
	out.State = StateSucceeded
	out.Result = res
	out.Target = c.redirector.Resolve(from)
	out.Notice = notice
	return out
}

func (c *Controller) logger(ctx context.Context, out Outcome) *zap.Logger {
	return requestctx.Logger(ctx).With(
		zap.String("attempt_id", out.AttemptID),
		zap.String("form", out.Mode.String()),
	)
}

func weakMessage(mode Mode) string {
	if mode == ModeSignup {
		return MessageWeakSignup
	}
	return MessageWeakLogin
}

func successMessage(mode Mode) string {
	if mode == ModeSignup {
		return MessageSignupSuccess
	}
	return MessageLoginSuccess
}

func formKey(key string, mode Mode) string {
	return key + "/" + mode.String()
}
