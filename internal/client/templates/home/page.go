// Package home renders the landing page and the signed-in dashboard.
package home

import (
	"context"
	"io"

	"github.com/a-h/templ"

	"finitefield.org/bookstore-client/internal/client/templates/helpers"
)

// PageData describes the landing page.
type PageData struct {
	SignedIn bool
	Email    string
}

// DashboardData describes the signed-in dashboard.
type DashboardData struct {
	UID         string
	Email       string
	DisplayName string
}

// Page renders the landing page.
func Page(data PageData) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, out io.Writer) error {
		w := helpers.NewWriter(out)
		w.Raw(`<section class="hero"><h1>Book Store Inventory</h1>`)
		if data.SignedIn {
			w.Raw(`<p>Welcome back, <strong>`)
			w.Text(data.Email)
			w.Raw(`</strong>.</p><a class="button" href="/dashboard">Go to dashboard</a>`)
		} else {
			w.Raw(`<p>Sign in to manage the book inventory.</p>`)
			w.Raw(`<a class="button" href="/login">Login</a> <a class="button secondary" href="/create-user">Sign Up</a>`)
		}
		w.Raw(`</section>`)
		return w.Err()
	})
}

// Dashboard renders the protected dashboard.
func Dashboard(data DashboardData) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, out io.Writer) error {
		w := helpers.NewWriter(out)
		name := data.DisplayName
		if name == "" {
			name = data.Email
		}
		w.Raw(`<section class="dashboard"><h1>Dashboard</h1><p>Signed in as <strong data-testid="dashboard-user">`)
		w.Text(name)
		w.Raw(`</strong></p><dl><dt>Email</dt><dd>`)
		w.Text(data.Email)
		w.Raw(`</dd><dt>User ID</dt><dd><code>`)
		w.Text(data.UID)
		w.Raw(`</code></dd></dl></section>`)
		return w.Err()
	})
}
