package authz

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/academyhub/academyhub/internal/platform/httpx"
	"github.com/academyhub/academyhub/internal/shared"
)

// DenialRecorder counts guard failures by kind.
type DenialRecorder interface {
	RecordDenial(kind string)
}

// Responder is the page boundary: it turns guard failures into redirects or a
// 404 and anything else into a 500. Tenant violations and missing entities
// render the same 404.
type Responder struct {
	Logger        *slog.Logger
	Metrics       DenialRecorder
	NotFound      http.HandlerFunc
	DefaultLocale string
}

// Respond writes the response for err.
func (resp *Responder) Respond(w http.ResponseWriter, r *http.Request, err error) {
	kind, ok := KindOf(err)
	if !ok {
		resp.logger().Error("request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		if httpx.WantsJSON(r) {
			httpx.Problem(w, r, http.StatusInternalServerError, "")
			return
		}
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if resp.Metrics != nil {
		resp.Metrics.RecordDenial(string(kind))
	}
	locale := resp.locale(r, err)
	switch kind {
	case KindUnauthenticated:
		if httpx.WantsJSON(r) {
			httpx.Problem(w, r, http.StatusUnauthorized, "")
			return
		}
		target := shared.LocalePath(locale, "/login") + "?next=" + url.QueryEscape(returnPath(r))
		http.Redirect(w, r, target, http.StatusSeeOther)
	case KindForbidden:
		resp.logger().Warn("forbidden", slog.String("path", r.URL.Path), slog.Any("error", err))
		if httpx.WantsJSON(r) {
			httpx.Problem(w, r, http.StatusForbidden, "")
			return
		}
		http.Redirect(w, r, shared.LocalePath(locale, "/forbidden"), http.StatusSeeOther)
	default:
		if httpx.WantsJSON(r) {
			httpx.Problem(w, r, http.StatusNotFound, "")
			return
		}
		if resp.NotFound != nil {
			resp.NotFound(w, r)
			return
		}
		http.NotFound(w, r)
	}
}

func (resp *Responder) logger() *slog.Logger {
	if resp.Logger == nil {
		return slog.Default()
	}
	return resp.Logger
}

func (resp *Responder) locale(r *http.Request, err error) string {
	if f, ok := err.(*Failure); ok && f.Locale != "" {
		return f.Locale
	}
	if l := shared.LocaleFromContext(r.Context()); l != "" {
		return l
	}
	if resp.DefaultLocale != "" {
		return resp.DefaultLocale
	}
	return "en"
}

// returnPath is the path to come back to after login. Mutating requests
// return to the referring page of the same site instead of the action URL.
func returnPath(r *http.Request) string {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return r.URL.RequestURI()
	}
	if ref, err := url.Parse(r.Referer()); err == nil && ref.Host == r.Host && ref.Path != "" {
		return ref.RequestURI()
	}
	return "/"
}

// SafeNext validates a post-login return path. Only same-site absolute paths
// are accepted.
func SafeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	u, err := url.Parse(next)
	if err != nil || u.Host != "" || u.Scheme != "" {
		return fallback
	}
	return next
}
