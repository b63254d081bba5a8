// Package authhttp serves the browser-facing login, consent and authorization
// endpoints and the client-facing token endpoint.
package authhttp

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"oauthsrv/internal/domain/models"
	"oauthsrv/internal/domain/protocol"
	"oauthsrv/internal/http/respond"
	"oauthsrv/internal/services/session"
)

// CookieName is the cookie carrying the session token.
const CookieName = "session"

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

type Auth interface {
	RegisterNewUser(ctx context.Context, username string, password string, email string) (string, error)
	Client(ctx context.Context, clientID string) (*models.Client, error)
	Authorize(ctx context.Context, userID string, clientID string, redirectURI string, scope string, state string) (string, error)
	Exchange(ctx context.Context, grantType string, code string, refreshToken string) (*protocol.TokenSet, error)
	Logout(ctx context.Context, userID string) error
}

type Session interface {
	Login(ctx context.Context, username string, password string) (*session.Ticket, error)
	Renew(token string) (*session.Ticket, error)
	Subject(token string) (string, error)
}

// Options tune cookies and redirects.
type Options struct {
	CookieSecure   bool
	SessionTTL     time.Duration
	DefaultLanding string
}

type serverAPI struct {
	log     *slog.Logger
	auth    Auth
	session Session
	opts    Options
}

// Register mounts the endpoints on r.
func Register(r chi.Router, log *slog.Logger, auth Auth, session Session, opts Options) {
	if opts.DefaultLanding == "" {
		opts.DefaultLanding = "/dashboard"
	}
	s := &serverAPI{log: log, auth: auth, session: session, opts: opts}

	r.Get("/login", s.LoginPage)
	r.Post("/login", s.Login)
	r.Get("/consent", s.Consent)
	r.Post("/register", s.Register)
	r.Get("/authorize", s.Authorize)
	r.Post("/token", s.Token)
	r.Get("/dashboard", s.Dashboard)
	r.Post("/logout", s.Logout)
}

type loginView struct {
	Next string
}

type consentView struct {
	ClientID    string
	RedirectURI string
	Scope       models.Scope
	ScopeRaw    string
	State       string
}

type dashboardView struct {
	UserID string
}

type messageResponse struct {
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`
}

// LoginPage shows the consent form to a signed-in user, otherwise the login
// form, which returns to consent once the user is in.
func (s *serverAPI) LoginPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID := q.Get("client_id")

	if _, ok := s.renew(w, r); ok {
		if clientID == "" {
			http.Redirect(w, r, s.opts.DefaultLanding, http.StatusFound)
			return
		}
		s.renderConsent(w, r)
		return
	}

	view := loginView{}
	if clientID != "" {
		view.Next = "/consent?" + r.URL.RawQuery
	}
	s.render(w, http.StatusOK, "login.html", view)
}

// Login checks the submitted credentials, sets the session cookie and
// redirects to next when it is a local path.
func (s *serverAPI) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed form")
		return
	}

	ticket, err := s.session.Login(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		respond.Error(w, r, s.log, err)
		return
	}
	s.setCookie(w, ticket)

	http.Redirect(w, r, localPath(r.URL.Query().Get("next"), s.opts.DefaultLanding), http.StatusSeeOther)
}

// Consent renders the approval form for a signed-in user.
func (s *serverAPI) Consent(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.renew(w, r); !ok {
		s.redirectToLogin(w, r)
		return
	}
	s.renderConsent(w, r)
}

// Register creates a user from username, password and optional email.
func (s *serverAPI) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed form")
		return
	}

	userID, err := s.auth.RegisterNewUser(r.Context(), r.FormValue("username"), r.FormValue("password"), r.FormValue("email"))
	if err != nil {
		respond.Error(w, r, s.log, err)
		return
	}
	_ = respond.JSON(w, http.StatusOK, messageResponse{Message: "User registered successfully", UserID: userID})
}

// Authorize records consent and redirects to the client with a fresh code.
func (s *serverAPI) Authorize(w http.ResponseWriter, r *http.Request) {
	ticket, ok := s.renew(w, r)
	if !ok {
		s.redirectToLogin(w, r)
		return
	}

	q := r.URL.Query()
	target, err := s.auth.Authorize(r.Context(), ticket.UserID,
		q.Get("client_id"), q.Get("redirect_uri"), q.Get("scope"), q.Get("state"))
	if err != nil {
		respond.Error(w, r, s.log, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// Token redeems an authorization code or a refresh token.
func (s *serverAPI) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed form")
		return
	}

	set, err := s.auth.Exchange(r.Context(), r.FormValue("grant_type"), r.FormValue("code"), r.FormValue("refresh_token"))
	if err != nil {
		respond.Error(w, r, s.log, err)
		return
	}
	_ = respond.JSON(w, http.StatusOK, set)
}

// Dashboard is the default landing page; anonymous visitors get the login form.
func (s *serverAPI) Dashboard(w http.ResponseWriter, r *http.Request) {
	ticket, ok := s.renew(w, r)
	if !ok {
		s.render(w, http.StatusOK, "login.html", loginView{})
		return
	}
	s.render(w, http.StatusOK, "dashboard.html", dashboardView{UserID: ticket.UserID})
}

// Logout clears the session cookie and revokes the user's refresh tokens.
func (s *serverAPI) Logout(w http.ResponseWriter, r *http.Request) {
	const op = "authhttp.Logout"

	var userID string
	if c, err := r.Cookie(CookieName); err == nil {
		userID, _ = s.session.Subject(c.Value)
	}
	s.clearCookie(w)

	if userID != "" {
		if err := s.auth.Logout(r.Context(), userID); err != nil {
			s.log.With(slog.String("op", op)).Error("failed to revoke tokens on logout", slog.String("error", err.Error()))
			respond.Error(w, r, s.log, err)
			return
		}
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *serverAPI) renderConsent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if _, err := s.auth.Client(r.Context(), q.Get("client_id")); err != nil {
		respond.Error(w, r, s.log, err)
		return
	}

	scope := models.ParseScope(q.Get("scope"))
	s.render(w, http.StatusOK, "consent.html", consentView{
		ClientID:    q.Get("client_id"),
		RedirectURI: q.Get("redirect_uri"),
		Scope:       scope,
		ScopeRaw:    scope.String(),
		State:       q.Get("state"),
	})
}

// renew verifies the session cookie and replaces it with a renewed token.
// An unverifiable cookie is cleared.
func (s *serverAPI) renew(w http.ResponseWriter, r *http.Request) (*session.Ticket, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return nil, false
	}
	ticket, err := s.session.Renew(c.Value)
	if err != nil {
		s.clearCookie(w)
		return nil, false
	}
	s.setCookie(w, ticket)
	return ticket, true
}

func (s *serverAPI) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := "/login"
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *serverAPI) setCookie(w http.ResponseWriter, ticket *session.Ticket) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    ticket.Token,
		Path:     "/",
		Expires:  ticket.ExpiresAt,
		MaxAge:   int(s.opts.SessionTTL / time.Second),
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *serverAPI) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *serverAPI) render(w http.ResponseWriter, status int, name string, data any) {
	const op = "authhttp.render"

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.log.With(slog.String("op", op)).Error("failed to render template", slog.String("template", name), slog.String("error", err.Error()))
		respond.WriteError(w, http.StatusInternalServerError, "internal_server_error", "internal server error")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// localPath returns next if it names a path on this server, fallback otherwise.
func localPath(next string, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return next
}
