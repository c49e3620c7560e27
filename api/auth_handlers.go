package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/jmcleod/quill/content"
	"github.com/jmcleod/quill/csrf"
	"github.com/jmcleod/quill/gate"
	"github.com/jmcleod/quill/locale"
	"github.com/jmcleod/quill/session"
)

const (
	themeCookieName = "theme"
	themeCookieTTL  = 180 * 24 * time.Hour
	defaultTheme    = "system"
)

var themes = []string{"light", "dark", "system"}

// decodeJSON reads a JSON body of at most limit bytes. On failure it
// writes a 400 and reports false.
func decodeJSON[T any](a *API, w http.ResponseWriter, r *http.Request, limit int64) (T, bool) {
	var v T
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, a.localizer(r).T("error.badRequest"))
		return v, false
	}
	return v, true
}

// isFormPost reports whether r carries an HTML form body rather than JSON.
func isFormPost(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt == "application/x-www-form-urlencoded" || mt == "multipart/form-data"
}

func (a *API) decodeLogin(w http.ResponseWriter, r *http.Request) (LoginRequest, bool) {
	if !isFormPost(r) {
		return decodeJSON[LoginRequest](a, w, r, maxBodySize)
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, a.localizer(r).T("error.badRequest"))
		return LoginRequest{}, false
	}
	return LoginRequest{
		Username: r.PostForm.Get("username"),
		Password: r.PostForm.Get("password"),
		From:     r.PostForm.Get("from"),
	}, true
}

// Login handles POST /auth/login. Every attempt counts against the
// client's rate limit before the body or the credentials are looked at.
// A form post that succeeds is redirected to its validated "from" path.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	if !a.checkLoginLimit(w, r) {
		return
	}
	req, ok := a.decodeLogin(w, r)
	if !ok {
		return
	}

	l := a.localizer(r)
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, l.T("auth.missingCredentials"))
		return
	}

	user, err := a.content.Authenticate(r.Context(), username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, content.ErrInvalidCredentials):
			a.audit.logFailure(AuditLoginFailure, r, "invalid credentials", slog.String("username", username))
		case errors.Is(err, content.ErrUserInactive):
			a.audit.logFailure(AuditLoginFailure, r, "inactive account", slog.String("username", username))
		}
		a.mapError(w, r, err)
		return
	}

	token, err := a.sessions.Sign(session.Claims{
		Subject:  user.ID,
		Username: user.Username,
		Role:     string(user.Role),
	}, session.DefaultTTL)
	if err != nil {
		a.writeInternalError(w, r, "signing session", err)
		return
	}
	csrfToken, err := csrf.Generate()
	if err != nil {
		a.writeInternalError(w, r, "generating csrf token", err)
		return
	}

	secure := a.secure(r)
	http.SetCookie(w, session.Cookie(token, secure))
	http.SetCookie(w, csrf.Cookie(csrfToken, secure))
	a.audit.logEvent(AuditLoginSuccess, r, user.ID, slog.String("username", user.Username))

	target := gate.SafeReturnPath(strings.TrimSpace(req.From), gate.DashboardPath)
	if isFormPost(r) {
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	writeOK(w, http.StatusOK, "", LoginResponse{Redirect: target, User: summarizeUser(user)})
}

// Logout handles POST /auth/logout. It clears the session and CSRF
// cookies whether or not a session was present.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	if claims, ok := a.sessions.FromRequest(r); ok {
		a.audit.logEvent(AuditLogout, r, claims.Subject)
	}
	secure := a.secure(r)
	http.SetCookie(w, session.ClearCookie(secure))
	http.SetCookie(w, csrf.ClearCookie(secure))

	if isFormPost(r) {
		http.Redirect(w, r, gate.LoginPath, http.StatusSeeOther)
		return
	}
	writeOK(w, http.StatusOK, a.localizer(r).T("auth.loggedOut"), nil)
}

// Session handles GET /auth/session.
func (a *API) Session(w http.ResponseWriter, r *http.Request) {
	resp := SessionResponse{Locale: a.localizer(r).Locale()}
	if claims, ok := a.sessions.FromRequest(r); ok {
		resp.Authenticated = true
		resp.UserID = claims.Subject
		resp.Username = claims.Username
		resp.Role = claims.Role
		resp.ExpiresAt = claims.ExpiresAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetTheme handles GET /theme.
func (a *API) GetTheme(w http.ResponseWriter, r *http.Request) {
	theme := defaultTheme
	if c, err := r.Cookie(themeCookieName); err == nil && slices.Contains(themes, c.Value) {
		theme = c.Value
	}
	writeJSON(w, http.StatusOK, ThemeResponse{Theme: theme})
}

// SetTheme handles POST /theme.
func (a *API) SetTheme(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ThemeRequest](a, w, r, maxBodySize)
	if !ok {
		return
	}
	l := a.localizer(r)
	if !slices.Contains(themes, req.Theme) {
		writeJSON(w, http.StatusBadRequest, ActionResult{OK: false, Message: l.T("theme.invalid"), Field: "theme"})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     themeCookieName,
		Value:    req.Theme,
		Path:     "/",
		MaxAge:   int(themeCookieTTL / time.Second),
		Secure:   a.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
	writeOK(w, http.StatusOK, l.T("theme.updated"), nil)
}

// GetLocale handles GET /locale.
func (a *API) GetLocale(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LocaleResponse{
		Locale:    a.localizer(r).Locale(),
		Supported: a.locales.Supported(),
	})
}

// SetLocale handles POST /locale. The client reloads with a _lang
// parameter afterwards, which the gate strips.
func (a *API) SetLocale(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[LocaleRequest](a, w, r, maxBodySize)
	if !ok {
		return
	}
	if !a.locales.IsSupported(req.Locale) {
		writeJSON(w, http.StatusBadRequest, ActionResult{OK: false, Message: a.localizer(r).T("error.badRequest"), Field: "locale"})
		return
	}
	http.SetCookie(w, locale.Cookie(req.Locale, a.secure(r)))
	writeOK(w, http.StatusOK, "", LocaleResponse{Locale: req.Locale, Supported: a.locales.Supported()})
}
