package navigation

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

// DefaultTarget is used when no deep-link target was captured.
const DefaultTarget = "/"

// Redirector resolves post-authentication targets and issues the redirect.
type Redirector struct {
	excluded []string
}

// NewRedirector returns a Redirector that never sends users back to any of excluded
// (typically the login and signup pages themselves).
func NewRedirector(excluded ...string) *Redirector {
	cleaned := make([]string, 0, len(excluded))
	for _, p := range excluded {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return &Redirector{excluded: cleaned}
}

// Resolve returns a safe local target for from, or DefaultTarget.
func (r *Redirector) Resolve(from string) string {
	target := Sanitize(from)
	if target == "" {
		return DefaultTarget
	}
	if r != nil {
		p := pathOnly(target)
		for _, excluded := range r.excluded {
			if samePath(p, excluded) {
				return DefaultTarget
			}
		}
	}
	return target
}

// Redirect navigates the client to target without leaving the submitted form in history:
// 303 See Other for regular requests, HX-Redirect for htmx.
func Redirect(w http.ResponseWriter, r *http.Request, target string) {
	if strings.TrimSpace(target) == "" {
		target = DefaultTarget
	}
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// Sanitize keeps only same-origin absolute paths. It returns "" for anything else.
func Sanitize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if parsed.Scheme != "" || parsed.Host != "" || parsed.User != nil {
		return ""
	}

	pathValue := parsed.Path
	if pathValue == "" {
		return ""
	}

	unescaped, err := url.PathUnescape(pathValue)
	if err != nil {
		return ""
	}
	if strings.Contains(unescaped, "\\") {
		return ""
	}
	if !strings.HasPrefix(unescaped, "/") || strings.HasPrefix(unescaped, "//") {
		return ""
	}

	cleaned := path.Clean(unescaped)
	if strings.HasPrefix(cleaned, "//") {
		return ""
	}

	target := cleaned
	if parsed.RawQuery != "" {
		target += "?" + parsed.RawQuery
	}
	if parsed.Fragment != "" {
		target += "#" + parsed.Fragment
	}
	return target
}

func isHTMX(r *http.Request) bool {
	return r != nil && strings.EqualFold(r.Header.Get("HX-Request"), "true")
}

func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	trim := func(p string) string {
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		for len(p) > 1 && strings.HasSuffix(p, "/") {
			p = strings.TrimSuffix(p, "/")
		}
		return p
	}
	return trim(a) == trim(b)
}

func pathOnly(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return parsed.Path
}
