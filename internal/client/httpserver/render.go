package httpserver

import (
	"net/http"

	"github.com/a-h/templ"
	"go.uber.org/zap"

	custommw "finitefield.org/bookstore-client/internal/client/httpserver/middleware"
	appsession "finitefield.org/bookstore-client/internal/client/session"
	"finitefield.org/bookstore-client/internal/client/templates/layout"
	"finitefield.org/bookstore-client/internal/platform/requestctx"
)

// renderPage writes body inside the layout, or body alone for htmx swaps.
func renderPage(w http.ResponseWriter, r *http.Request, status int, title string, flash *layout.Flash, body templ.Component) {
	component := body
	if !custommw.IsHTMXRequest(r.Context()) {
		component = layout.Base(pageChrome(r, title, flash), body)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := component.Render(r.Context(), w); err != nil {
		requestctx.Logger(r.Context()).Error("render page", zap.String("title", title), zap.Error(err))
	}
}

func pageChrome(r *http.Request, title string, flash *layout.Flash) layout.PageData {
	page := layout.PageData{
		Title:     title,
		CSRFToken: custommw.CSRFTokenFromContext(r.Context()),
		Flash:     flash,
	}
	if sess, ok := custommw.SessionFromContext(r.Context()); ok {
		if user := sess.User(); user != nil {
			page.User = &layout.UserSummary{Email: user.Email, DisplayName: user.DisplayName}
		}
	}
	return page
}

// popFlash consumes the session flash, if any.
func popFlash(r *http.Request) (appsession.Flash, bool) {
	sess, ok := custommw.SessionFromContext(r.Context())
	if !ok {
		return appsession.Flash{}, false
	}
	return sess.PopFlash()
}

func bannerFor(flash appsession.Flash) *layout.Flash {
	return &layout.Flash{Kind: string(flash.Kind), Message: flash.Message}
}
