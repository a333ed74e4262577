package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/academyhub/academyhub/internal/authz"
	"github.com/academyhub/academyhub/internal/shared"
	"github.com/academyhub/academyhub/internal/view"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	templates   *view.Engine
	tokens      *authz.TokenManager
	csrfManager *shared.CSRFManager
	validator   *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, tokens *authz.TokenManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		service:     service,
		templates:   templates,
		tokens:      tokens,
		csrfManager: csrf,
		validator:   validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
	Next     string
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	locale := shared.LocaleFromContext(r.Context())
	next := authz.SafeNext(r.URL.Query().Get("next"), "")
	if authz.PrincipalFromContext(r.Context()) != nil {
		http.Redirect(w, r, authz.SafeNext(next, shared.LocalePath(locale, "/")), http.StatusSeeOther)
		return
	}
	h.renderLogin(w, r, loginPageData{Form: loginForm{Next: next}}, http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	sess := shared.SessionFromContext(ctx)
	locale := shared.LocaleFromContext(ctx)

	form := loginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
		Next:     authz.SafeNext(r.PostFormValue("next"), ""),
	}
	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				errs[fieldErr.Field()] = fieldErr.Error()
			}
		}
	}

	if len(errs) == 0 {
		token, claims, err := h.service.Login(ctx, form.Email, form.Password, r.RemoteAddr, r.UserAgent())
		switch {
		case err == nil:
			h.tokens.SetCookie(w, token, claims.ExpiresAt)
			if sess != nil {
				sess.Renew()
				sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Welcome back"})
			}
			h.logger.Info("login", slog.String("user_id", claims.UserID), slog.String("session_id", claims.SessionID))
			http.Redirect(w, r, authz.SafeNext(form.Next, shared.LocalePath(locale, "/")), http.StatusSeeOther)
			return
		case errors.Is(err, shared.ErrInvalidCredentials):
			h.logger.Warn("login failed", slog.String("email", form.Email))
			errs["general"] = "Invalid email or password"
		default:
			h.logger.Error("login", slog.Any("error", err))
			errs["general"] = shared.UserSafeMessage(err)
		}
	}

	form.Password = ""
	h.renderLogin(w, r, loginPageData{Form: form, Errors: errs}, http.StatusBadRequest)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.RemoveSession(ctx, authz.SessionIDFromContext(ctx)); err != nil {
		h.logger.Warn("remove session", slog.Any("error", err))
	}
	h.tokens.ClearCookie(w)
	if sess := shared.SessionFromContext(ctx); sess != nil {
		sess.Renew()
		sess.SetSelectedAcademy("")
	}
	http.Redirect(w, r, shared.LocalePath(shared.LocaleFromContext(ctx), "/login"), http.StatusSeeOther)
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, data loginPageData, status int) {
	if err := h.templates.Render(w, status, "pages/login.html", view.NewTemplateData(r, h.csrfManager, "Sign in", data)); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

// HandleLogoutForTest exposes the logout handler for tests.
func (h *Handler) HandleLogoutForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogout(w, r)
}
