package api

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/apilogin/pkg/config"
	"github.com/platinummonkey/apilogin/pkg/httputil"
	"github.com/platinummonkey/apilogin/pkg/observability"
	"github.com/platinummonkey/apilogin/pkg/service"
	"github.com/platinummonkey/apilogin/pkg/signing"
	"github.com/platinummonkey/apilogin/pkg/users"
)

// LoginHandlers serves the signed service endpoint and the login page
type LoginHandlers struct {
	svc      *service.Service
	sessions SessionStore
	fallback http.Handler
}

// NewLoginHandlers creates the login bridge handlers
func NewLoginHandlers(svc *service.Service, sessions SessionStore, fallback http.Handler) *LoginHandlers {
	return &LoginHandlers{svc: svc, sessions: sessions, fallback: fallback}
}

// RegisterRoutes registers the login bridge routes
func (h *LoginHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc(ServicesPath, h.services).Methods(http.MethodPost)
	router.HandleFunc(LoginPath, h.login).Methods(http.MethodGet)
	router.HandleFunc(LoginPath, h.localLogin).Methods(http.MethodPost)
	router.HandleFunc(URLsPath, h.urls).Methods(http.MethodGet)
}

// services handles POST /auth/apilogin/services.php. The outcome is carried
// in the body; the status is always 200.
func (h *LoginHandlers) services(w http.ResponseWriter, r *http.Request) {
	params, err := httputil.ParseSignedForm(r)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("Unreadable service request body")
		params = signing.Params{}
	}

	caller := service.RequestContext{
		RemoteAddr: observability.GetRemoteAddr(r.Context()),
		UserAgent:  r.UserAgent(),
	}
	resp := h.svc.Handle(r.Context(), caller, params)
	_ = httputil.WriteSuccess(w, resp)
}

// login handles GET /login/index.php?token=
func (h *LoginHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	settings, err := h.svc.Settings(ctx)
	if err != nil {
		logger.WithError(err).Error(service.MsgConfiguration)
		httputil.WriteServiceUnavailable(w, service.MsgConfiguration)
		return
	}

	wants := httputil.ParseQueryString(r, "wantsurl", "")

	// an existing session is left untouched
	if _, ok := h.sessions.Current(r); ok {
		http.Redirect(w, r, landing(settings, "", wants), http.StatusSeeOther)
		return
	}

	login, err := h.svc.Redeem(ctx, httputil.ParseQueryString(r, "token", ""), r.UserAgent())
	if err != nil {
		if !errors.Is(err, service.ErrInvalidToken) {
			logger.WithError(err).Error("Login token redemption failed")
		}
		h.deny(w, r, settings)
		return
	}

	if !h.startSession(w, r, login.User) {
		return
	}
	http.Redirect(w, r, landing(settings, login.Redirect, wants), http.StatusSeeOther)
}

// localLogin handles POST /login/index.php with a username and password
func (h *LoginHandlers) localLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	settings, err := h.svc.Settings(ctx)
	if err != nil {
		logger.WithError(err).Error(service.MsgConfiguration)
		httputil.WriteServiceUnavailable(w, service.MsgConfiguration)
		return
	}
	if err := r.ParseForm(); err != nil {
		httputil.WriteBadRequest(w, "invalid form body")
		return
	}

	ident, err := h.svc.Authenticate(ctx, r.PostForm.Get("username"), r.PostForm.Get("password"))
	if err != nil {
		if !errors.Is(err, service.ErrInvalidCredentials) {
			logger.WithError(err).Error("Local sign-in failed")
		}
		h.deny(w, r, settings)
		return
	}

	if !h.startSession(w, r, ident) {
		return
	}
	http.Redirect(w, r, landing(settings, "", r.PostForm.Get("wantsurl")), http.StatusSeeOther)
}

func (h *LoginHandlers) startSession(w http.ResponseWriter, r *http.Request, ident *users.Identity) bool {
	sess, err := h.sessions.Start(w, r, ident)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to start session")
		httputil.WriteInternalError(w, errors.New("failed to start session"))
		return false
	}
	observability.FromContext(r.Context()).
		WithField("userid", sess.UserID).
		Info("User signed in")
	return true
}

// deny sends the browser to the configured login page, or lets the host
// login page handle the request
func (h *LoginHandlers) deny(w http.ResponseWriter, r *http.Request, settings *config.Settings) {
	if settings.LoginRedirect != "" {
		http.Redirect(w, r, settings.ResolveURL(settings.LoginRedirect), http.StatusSeeOther)
		return
	}
	h.fallback.ServeHTTP(w, r)
}

// landing picks the post-login destination: the redirect bound to the
// token, then wantsurl when it stays on the site, then the dashboard
func landing(settings *config.Settings, redirect, wants string) string {
	if redirect != "" {
		return redirect
	}
	if wants != "" && onSite(settings, wants) {
		return settings.ResolveURL(wants)
	}
	return settings.DashboardURL()
}

// onSite reports whether target is a relative path or lives under wwwroot
func onSite(settings *config.Settings, target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	if !u.IsAbs() {
		return u.Host == ""
	}
	root, err := url.Parse(settings.WWWRoot)
	if err != nil || root.Host == "" {
		return false
	}
	return u.Scheme == root.Scheme && u.Host == root.Host
}

// URLsResponse describes where users manage their password and profile
type URLsResponse struct {
	PasswordURL       string `json:"passwordurl"`
	ProfileURL        string `json:"profileurl"`
	CanChangePassword bool   `json:"can_change_password"`
	CanEditProfile    bool   `json:"can_edit_profile"`
}

// urls handles GET /auth/apilogin/urls
func (h *LoginHandlers) urls(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.Settings(r.Context())
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error(service.MsgConfiguration)
		httputil.WriteServiceUnavailable(w, service.MsgConfiguration)
		return
	}
	_ = httputil.WriteSuccess(w, URLsResponse{
		PasswordURL:       settings.ResolveURL(settings.PasswordURL),
		ProfileURL:        settings.ResolveURL(settings.ProfileURL),
		CanChangePassword: settings.CanChangePassword(),
		CanEditProfile:    settings.CanEditProfile(),
	})
}
