// Package view renders the server-side HTML pages.
package view

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/academyhub/academyhub/internal/authz"
	"github.com/academyhub/academyhub/internal/shared"
	"github.com/academyhub/academyhub/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// AcademyRef names an academy in the page chrome.
type AcademyRef struct {
	ID   string
	Name string
}

// NavItem is a navigation link shown when the principal may read its page.
type NavItem struct {
	Label  string
	Path   string
	Active bool
}

// Chrome is the per-request layout state computed once by middleware.
type Chrome struct {
	Academy   *AcademyRef
	Academies []AcademyRef
	Nav       []NavItem
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	Locale      string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Principal   *authz.Principal
	Academy     *AcademyRef
	Academies   []AcademyRef
	Nav         []NavItem
	Data        any
}

type chromeContextKey struct{}

// ContextWithChrome stores the layout state in context.
func ContextWithChrome(ctx context.Context, c *Chrome) context.Context {
	return context.WithValue(ctx, chromeContextKey{}, c)
}

// ChromeFromContext returns the layout state, or nil.
func ChromeFromContext(ctx context.Context) *Chrome {
	c, _ := ctx.Value(chromeContextKey{}).(*Chrome)
	return c
}

// NewTemplateData collects the request-scoped layout values. It pops one
// flash message from the session.
func NewTemplateData(r *http.Request, csrf *shared.CSRFManager, title string, data any) TemplateData {
	ctx := r.Context()
	td := TemplateData{
		Title:       title,
		Locale:      shared.LocaleFromContext(ctx),
		CurrentPath: r.URL.Path,
		Principal:   authz.PrincipalFromContext(ctx),
		Data:        data,
	}
	if sess := shared.SessionFromContext(ctx); sess != nil {
		if csrf != nil {
			td.CSRFToken, _ = csrf.EnsureToken(ctx, sess)
		}
		td.Flash = sess.PopFlash()
	}
	if c := ChromeFromContext(ctx); c != nil {
		td.Academy = c.Academy
		td.Academies = c.Academies
		td.Nav = c.Nav
	}
	return td
}

// NewEngine parses the embedded templates.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"path": shared.LocalePath,
		"join": strings.Join,
		"add":  func(a, b int) int { return a + b },
		"sub":  func(a, b int) int { return a - b },
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template into a buffer and writes it with status.
func (e *Engine) Render(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
