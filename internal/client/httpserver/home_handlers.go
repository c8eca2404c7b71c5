package httpserver

import (
	"net/http"

	custommw "finitefield.org/bookstore-client/internal/client/httpserver/middleware"
	"finitefield.org/bookstore-client/internal/client/templates/home"
	"finitefield.org/bookstore-client/internal/client/templates/layout"
)

func homePage(w http.ResponseWriter, r *http.Request) {
	var banner *layout.Flash
	if flash, ok := popFlash(r); ok {
		banner = bannerFor(flash)
	}

	data := home.PageData{}
	if sess, ok := custommw.SessionFromContext(r.Context()); ok && sess.User() != nil {
		data.SignedIn = true
		data.Email = sess.User().Email
	}
	renderPage(w, r, http.StatusOK, "Home", banner, home.Page(data))
}

func dashboardPage(w http.ResponseWriter, r *http.Request) {
	var banner *layout.Flash
	if flash, ok := popFlash(r); ok {
		banner = bannerFor(flash)
	}

	user, _ := custommw.UserFromContext(r.Context())
	data := home.DashboardData{}
	if user != nil {
		data = home.DashboardData{UID: user.UID, Email: user.Email, DisplayName: user.DisplayName}
	}
	renderPage(w, r, http.StatusOK, "Dashboard", banner, home.Dashboard(data))
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte("ok"))
}
