package auth_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"finitefield.org/bookstore-client/internal/client/templates/auth"
	"finitefield.org/bookstore-client/internal/client/testutil"
)

func TestLoginPageRendersForm(t *testing.T) {
	t.Parallel()

	doc := testutil.RenderComponent(t, auth.LoginPage(auth.LoginPageData{
		Email:         "a@b.com",
		From:          "/dashboard",
		CSRFToken:     "tok",
		GoogleEnabled: true,
	}))

	require.Equal(t, "Please Login to Dashboard", doc.Find("h1").Text())
	form := doc.Find("form.credentials-form")
	require.Equal(t, 1, form.Length())
	action, _ := form.Attr("action")
	require.Equal(t, "/login", action)
	disabled, _ := form.Attr("hx-disabled-elt")
	require.Equal(t, "find button[type='submit']", disabled)

	email, _ := doc.Find("input#email").Attr("value")
	require.Equal(t, "a@b.com", email)
	_, hasValue := doc.Find("input#password").Attr("value")
	require.False(t, hasValue, "password is never echoed back")

	csrf, _ := form.Find(`input[name="_csrf"]`).Attr("value")
	require.Equal(t, "tok", csrf)
	from, _ := form.Find(`input[name="from"]`).Attr("value")
	require.Equal(t, "/dashboard", from)

	require.Equal(t, 0, doc.Find(`[data-testid="form-error"]`).Length())
	signupLink, _ := doc.Find("p.alt-link a").Attr("href")
	require.Equal(t, "/create-user", signupLink)

	google := doc.Find(`form[action="/auth/google"]`)
	require.Equal(t, 1, google.Length())
	page, _ := google.Find(`input[name="page"]`).Attr("value")
	require.Equal(t, auth.PageLogin, page)
	require.Equal(t, "Log in with Google", google.Find("button").Text())
}

func TestSignupPageShowsErrorVerbatim(t *testing.T) {
	t.Parallel()

	doc := testutil.RenderComponent(t, auth.SignupPage(auth.LoginPageData{
		Error: "Firebase: Error (auth/email-already-in-use).",
	}))

	require.Equal(t, "Please Create An Account", doc.Find("h1").Text())
	action, _ := doc.Find("form.credentials-form").Attr("action")
	require.Equal(t, "/create-user", action)
	require.Equal(t, "Firebase: Error (auth/email-already-in-use).", doc.Find(`[data-testid="form-error"]`).Text())
	require.Equal(t, 0, doc.Find(`form[action="/auth/google"]`).Length(), "google button hidden when oauth is disabled")
	require.Equal(t, 0, doc.Find(`input[name="from"]`).Length())
}

func TestPanelEscapesUserInput(t *testing.T) {
	t.Parallel()

	doc := testutil.RenderComponent(t, auth.LoginPage(auth.LoginPageData{
		Email: `"><script>alert(1)</script>`,
		Error: "<b>bad</b>",
	}))

	require.Equal(t, 0, doc.Find("script").Length())
	require.Equal(t, 0, doc.Find("b").Length())
	require.Equal(t, "<b>bad</b>", doc.Find(`[data-testid="form-error"]`).Text())
}
