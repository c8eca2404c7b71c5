// Package auth renders the login and signup pages.
package auth

import (
	"context"
	"io"

	"github.com/a-h/templ"

	"finitefield.org/bookstore-client/internal/client/templates/helpers"
)

// PanelID is the element htmx swaps when a submission is re-rendered.
const PanelID = "auth-panel"

// LoginPage renders the login form.
func LoginPage(data LoginPageData) templ.Component {
	data.Page = PageLogin
	return Panel(data)
}

// SignupPage renders the signup form.
func SignupPage(data LoginPageData) templ.Component {
	data.Page = PageSignup
	return Panel(data)
}

// Panel renders the credential form, its error area and the Google button. htmx requests
// receive only this fragment.
func Panel(data LoginPageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		t := textFor(data.Page)
		w := helpers.NewWriter(out)

		w.Raw(`<section class="auth-card"`)
		w.Attr("id", PanelID)
		w.Attr("data-page", data.Page)
		w.Raw(`><h1>`)
		w.Text(t.heading)
		w.Raw(`</h1>`)

		w.Raw(`<form method="post" class="credentials-form"`)
		w.Attr("action", t.action)
		w.Attr("hx-post", t.action)
		w.Attr("hx-target", "#"+PanelID)
		w.Raw(` hx-swap="outerHTML" hx-disabled-elt="find button[type='submit']">`)
		w.Component(ctx, helpers.HiddenInput("_csrf", data.CSRFToken))
		if data.From != "" {
			w.Component(ctx, helpers.HiddenInput("from", data.From))
		}
		w.Raw(`<div class="field"><input id="email" name="email" type="text" placeholder="Email address" autocomplete="email" required`)
		w.Attr("value", data.Email)
		w.Raw(`></div>`)
		w.Raw(`<div class="field"><input id="password" name="password" type="password" placeholder="Password" required`)
		if data.Page == PageSignup {
			w.Raw(` autocomplete="new-password"`)
		} else {
			w.Raw(` autocomplete="current-password"`)
		}
		w.Raw(`></div><div>`)
		if data.Error != "" {
			w.Raw(`<p class="form-error" role="alert" data-testid="form-error">`)
			w.Text(data.Error)
			w.Raw(`</p>`)
		}
		w.Raw(`<p class="alt-link">`)
		w.Text(t.altLead)
		w.Raw(`<a`)
		w.Attr("href", t.altHref)
		w.Raw(`>`)
		w.Text(t.altLabel)
		w.Raw(`</a>`)
		w.Text(t.altTail)
		w.Raw(`</p></div><div><button type="submit">`)
		w.Text(t.submit)
		w.Raw(`</button></div></form>`)

		if data.GoogleEnabled {
			w.Raw(`<hr><form method="post" action="/auth/google" class="social">`)
			w.Component(ctx, helpers.HiddenInput("_csrf", data.CSRFToken))
			w.Component(ctx, helpers.HiddenInput("page", data.Page))
			if data.From != "" {
				w.Component(ctx, helpers.HiddenInput("from", data.From))
			}
			w.Raw(`<button type="submit" class="google">`)
			w.Text(t.google)
			w.Raw(`</button></form>`)
		}
		w.Raw(`</section>`)
		return w.Err()
	})
}
