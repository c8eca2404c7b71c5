package httpserver

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"finitefield.org/bookstore-client/internal/client/authgateway"
	"finitefield.org/bookstore-client/internal/client/credentials"
	custommw "finitefield.org/bookstore-client/internal/client/httpserver/middleware"
	"finitefield.org/bookstore-client/internal/client/navigation"
	"finitefield.org/bookstore-client/internal/client/passwordpolicy"
	appsession "finitefield.org/bookstore-client/internal/client/session"
	"finitefield.org/bookstore-client/internal/client/templates/auth"
	"finitefield.org/bookstore-client/internal/client/templates/layout"
	"finitefield.org/bookstore-client/internal/platform/observability"
	"finitefield.org/bookstore-client/internal/platform/requestctx"
)

const (
	messageFormInvalid        = "The form could not be submitted. Please try again."
	messageOAuthStateMismatch = "Google sign-in could not be verified. Please try again."
	messageLoggedOut          = "You have been logged out."
)

type authHandlers struct {
	controller *credentials.Controller
	oauth      OAuthProvider
}

func newAuthHandlers(controller *credentials.Controller, oauth OAuthProvider) *authHandlers {
	if controller == nil {
		panic("auth: controller is required")
	}
	return &authHandlers{controller: controller, oauth: oauth}
}

func (h *authHandlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.form(w, r, credentials.ModeLogin)
}

func (h *authHandlers) SignupForm(w http.ResponseWriter, r *http.Request) {
	h.form(w, r, credentials.ModeSignup)
}

func (h *authHandlers) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, credentials.ModeLogin)
}

func (h *authHandlers) SignupSubmit(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, credentials.ModeSignup)
}

func (h *authHandlers) form(w http.ResponseWriter, r *http.Request, mode credentials.Mode) {
	from := r.URL.Query().Get("from")
	sess, _ := custommw.SessionFromContext(r.Context())
	if sess != nil && sess.User() != nil {
		navigation.Redirect(w, r, h.controller.Target(from))
		return
	}

	data := h.pageData(r, mode, "", from)
	var banner *layout.Flash
	if flash, ok := popFlash(r); ok {
		if flash.Kind == appsession.FlashError {
			data.Error = flash.Message
		} else {
			banner = bannerFor(flash)
		}
	}
	h.render(w, r, http.StatusOK, mode, banner, data)
}

func (h *authHandlers) submit(w http.ResponseWriter, r *http.Request, mode credentials.Mode) {
	if err := r.ParseForm(); err != nil {
		data := h.pageData(r, mode, "", "")
		data.Error = messageFormInvalid
		h.render(w, r, http.StatusBadRequest, mode, nil, data)
		return
	}

	in := credentials.Input{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	from := r.PostFormValue("from")
	sess, _ := custommw.SessionFromContext(r.Context())

	out := h.controller.Submit(r.Context(), sessionKey(sess), mode, in, from)
	if out.Succeeded() {
		h.complete(w, r, sess, out)
		return
	}

	data := h.pageData(r, mode, strings.TrimSpace(in.Email), from)
	data.Error = out.Error
	h.render(w, r, statusFor(out.Err), mode, nil, data)
}

// GoogleBegin stores a fresh OAuth state and sends the browser to Google's consent screen.
func (h *authHandlers) GoogleBegin(w http.ResponseWriter, r *http.Request) {
	mode := credentials.ParseMode(r.PostFormValue("page"))
	from := r.PostFormValue("from")
	sess, ok := custommw.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if h.oauth == nil || !h.oauth.Enabled() {
		out := h.controller.Fail(r.Context(), mode, authgateway.ErrOAuthNotConfigured)
		h.bounce(w, r, sess, mode, from, out.Error)
		return
	}

	state, err := sess.BeginOAuth(mode.String(), from)
	if err != nil {
		requestctx.Logger(r.Context()).Error("begin oauth", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	consentURL, err := h.oauth.AuthCodeURL(state)
	if err != nil {
		out := h.controller.Fail(r.Context(), mode, err)
		h.bounce(w, r, sess, mode, from, out.Error)
		return
	}
	http.Redirect(w, r, consentURL, http.StatusSeeOther)
}

// GoogleCallback finishes the OAuth flow started by GoogleBegin.
func (h *authHandlers) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	sess, ok := custommw.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	q := r.URL.Query()
	logger := requestctx.Logger(r.Context())

	pending, err := sess.TakeOAuth(q.Get("state"))
	mode := credentials.ParseMode(pending.Page)
	if err != nil {
		logger.Warn("oauth callback state rejected", zap.Error(err))
		h.bounce(w, r, sess, mode, pending.From, messageOAuthStateMismatch)
		return
	}

	if reason := q.Get("error"); reason != "" {
		logger.Info("oauth consent declined", zap.String("reason", reason))
		out := h.controller.Fail(r.Context(), mode, authgateway.ErrOAuthCancelled)
		h.bounce(w, r, sess, mode, pending.From, out.Error)
		return
	}

	if h.oauth == nil {
		out := h.controller.Fail(r.Context(), mode, authgateway.ErrOAuthNotConfigured)
		h.bounce(w, r, sess, mode, pending.From, out.Error)
		return
	}
	cred, err := h.oauth.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		out := h.controller.Fail(r.Context(), mode, err)
		h.bounce(w, r, sess, mode, pending.From, out.Error)
		return
	}

	out := h.controller.SubmitOAuth(r.Context(), sessionKey(sess), mode, cred, pending.From)
	if !out.Succeeded() {
		h.bounce(w, r, sess, mode, pending.From, out.Error)
		return
	}
	h.complete(w, r, sess, out)
}

func (h *authHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := custommw.SessionFromContext(r.Context()); ok {
		sess.SignOut()
		sess.SetFlash(appsession.FlashNotice, messageLoggedOut)
	}
	navigation.Redirect(w, r, homePath)
}

// complete stores the authenticated identity, queues the success notice and navigates.
func (h *authHandlers) complete(w http.ResponseWriter, r *http.Request, sess *appsession.Session, out credentials.Outcome) {
	var user authgateway.UserRecord
	if out.Result != nil {
		user = out.Result.User
	}
	if sess != nil && out.Result != nil {
		err := sess.SignIn(appsession.User{
			UID:         user.UID,
			Email:       user.Email,
			DisplayName: user.DisplayName,
			ProviderID:  user.ProviderID,
		}, out.Result.IDToken, out.Result.RefreshToken)
		if err != nil {
			requestctx.Logger(r.Context()).Error("store signed-in session", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		sess.SetFlash(appsession.FlashNotice, out.Notice)
	}
	requestctx.Logger(r.Context()).Info("signed in",
		zap.String("attempt_id", out.AttemptID),
		zap.String("email", observability.MaskEmail(user.Email)),
		zap.String("target", out.Target),
	)
	navigation.Redirect(w, r, out.Target)
}

// bounce returns the browser to the originating auth page with message in its error area.
func (h *authHandlers) bounce(w http.ResponseWriter, r *http.Request, sess *appsession.Session, mode credentials.Mode, from, message string) {
	if sess != nil {
		sess.SetFlash(appsession.FlashError, message)
	}
	navigation.Redirect(w, r, pageURL(mode, from))
}

func (h *authHandlers) pageData(r *http.Request, mode credentials.Mode, email, from string) auth.LoginPageData {
	return auth.LoginPageData{
		Page:          pageName(mode),
		Email:         email,
		From:          navigation.Sanitize(from),
		CSRFToken:     custommw.CSRFTokenFromContext(r.Context()),
		GoogleEnabled: h.oauth != nil && h.oauth.Enabled(),
	}
}

func (h *authHandlers) render(w http.ResponseWriter, r *http.Request, status int, mode credentials.Mode, banner *layout.Flash, data auth.LoginPageData) {
	body := auth.LoginPage(data)
	if mode == credentials.ModeSignup {
		body = auth.SignupPage(data)
	}
	renderPage(w, r, status, data.Title(), banner, body)
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, passwordpolicy.ErrWeakPassword), errors.Is(err, credentials.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, credentials.ErrSubmissionInFlight):
		return http.StatusConflict
	default:
		return http.StatusUnauthorized
	}
}

func sessionKey(sess *appsession.Session) string {
	if sess == nil {
		return ""
	}
	return sess.ID()
}

func pageName(mode credentials.Mode) string {
	if mode == credentials.ModeSignup {
		return auth.PageSignup
	}
	return auth.PageLogin
}

func pageURL(mode credentials.Mode, from string) string {
	p := loginPath
	if mode == credentials.ModeSignup {
		p = signupPath
	}
	u := url.URL{Path: p}
	if target := navigation.Sanitize(from); target != "" {
		u.RawQuery = url.Values{"from": {target}}.Encode()
	}
	return u.String()
}
