package shared

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

type localeContextKey struct{}

// Locales resolves the route locale prefix against the supported set.
type Locales struct {
	tags     []language.Tag
	names    []string
	matcher  language.Matcher
	fallback string
}

// NewLocales builds Locales from names such as "en" or "es". The first entry
// is the fallback.
func NewLocales(names []string) *Locales {
	l := &Locales{}
	for _, name := range names {
		tag, err := language.Parse(strings.TrimSpace(name))
		if err != nil {
			continue
		}
		base, _ := tag.Base()
		l.tags = append(l.tags, tag)
		l.names = append(l.names, base.String())
	}
	if len(l.tags) == 0 {
		l.tags = []language.Tag{language.English}
		l.names = []string{"en"}
	}
	l.fallback = l.names[0]
	l.matcher = language.NewMatcher(l.tags)
	return l
}

// Default returns the fallback locale.
func (l *Locales) Default() string {
	return l.fallback
}

// Supported reports whether name is one of the configured locales.
func (l *Locales) Supported(name string) bool {
	for _, n := range l.names {
		if n == name {
			return true
		}
	}
	return false
}

// Negotiate picks the best locale for the request's Accept-Language header.
func (l *Locales) Negotiate(r *http.Request) string {
	accepted, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil || len(accepted) == 0 {
		return l.fallback
	}
	_, index, confidence := l.matcher.Match(accepted...)
	if confidence == language.No {
		return l.fallback
	}
	return l.names[index]
}

// ContextWithLocale stores the route locale in context.
func ContextWithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeContextKey{}, locale)
}

// LocaleFromContext extracts the route locale, or "" when none was set.
func LocaleFromContext(ctx context.Context) string {
	locale, _ := ctx.Value(localeContextKey{}).(string)
	return locale
}

// LocalePath prefixes path with the locale segment.
func LocalePath(locale, path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if path == "/" {
		return "/" + locale
	}
	return "/" + locale + path
}
