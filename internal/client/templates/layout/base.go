// Package layout renders the HTML document shell shared by every page.
package layout

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"

	"finitefield.org/bookstore-client/internal/client/templates/helpers"
)

// AppName is appended to every page title.
const AppName = "Book Store Inventory"

// HTMXConfig lets htmx swap 4xx form re-renders instead of treating them as errors.
const HTMXConfig = `{"responseHandling":[{"code":"204","swap":false},{"code":"[23]..","swap":true},{"code":"4..","swap":true,"error":false},{"code":"...","swap":false,"error":true}]}`

// Flash is a one-shot banner.
type Flash struct {
	Kind    string
	Message string
}

// UserSummary is the signed-in account shown in the header.
type UserSummary struct {
	Email       string
	DisplayName string
}

// Label prefers the display name.
func (u UserSummary) Label() string {
	if strings.TrimSpace(u.DisplayName) != "" {
		return u.DisplayName
	}
	return u.Email
}

// PageData is the chrome around a page body.
type PageData struct {
	Title     string
	CSRFToken string
	Flash     *Flash
	User      *UserSummary
}

// ComposeTitle appends the app name unless title already ends with it.
func ComposeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return AppName
	}
	if strings.HasSuffix(title, "| "+AppName) {
		return title
	}
	return title + " | " + AppName
}

// Base wraps body in the document shell.
func Base(page PageData, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := helpers.NewWriter(out)
		w.Raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		w.Raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		w.Raw(`<meta name="htmx-config"`)
		w.Attr("content", HTMXConfig)
		w.Raw(`><title>`)
		w.Text(ComposeTitle(page.Title))
		w.Raw(`</title><link rel="stylesheet" href="/public/static/app.css">`)
		w.Raw(`<script src="https://unpkg.com/htmx.org@2.0.4" defer></script></head>`)
		w.Raw(`<body`)
		if page.CSRFToken != "" {
			w.Attr("hx-headers", `{"X-CSRF-Token":"`+page.CSRFToken+`"}`)
		}
		w.Raw(`>`)
		w.Component(ctx, header(page))
		w.Raw(`<main class="page">`)
		if page.Flash != nil && page.Flash.Message != "" {
			w.Component(ctx, FlashBanner(*page.Flash))
		}
		w.Component(ctx, body)
		w.Raw(`</main></body></html>`)
		return w.Err()
	})
}

// FlashBanner renders a notice or error banner.
func FlashBanner(flash Flash) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, out io.Writer) error {
		w := helpers.NewWriter(out)
		kind := flash.Kind
		if kind != "error" {
			kind = "notice"
		}
		role := "status"
		if kind == "error" {
			role = "alert"
		}
		w.Raw(`<div`)
		w.Attr("class", "flash flash-"+kind)
		w.Attr("role", role)
		w.Raw(`>`)
		w.Text(flash.Message)
		w.Raw(`</div>`)
		return w.Err()
	})
}

func header(page PageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := helpers.NewWriter(out)
		w.Raw(`<header class="topbar"><a class="brand" href="/">`)
		w.Text(AppName)
		w.Raw(`</a><nav>`)
		if page.User != nil {
			w.Raw(`<a href="/dashboard">Dashboard</a><span class="user" data-testid="current-user">`)
			w.Text(page.User.Label())
			w.Raw(`</span><form method="post" action="/logout" class="inline">`)
			w.Component(ctx, helpers.HiddenInput("_csrf", page.CSRFToken))
			w.Raw(`<button type="submit">Log out</button></form>`)
		} else {
			w.Raw(`<a href="/login">Login</a><a href="/create-user">Sign Up</a>`)
		}
		w.Raw(`</nav></header>`)
		return w.Err()
	})
}
