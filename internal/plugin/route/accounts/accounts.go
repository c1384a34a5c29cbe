// Package accounts serves the login, provider callback and logout pages.
package accounts

import (
	"net/http"

	"github.com/charmbracelet/log"
	registrystore "github.com/chirino/memory-journal/internal/registry/store"
	"github.com/chirino/memory-journal/internal/security"
	"github.com/chirino/memory-journal/internal/social"
	"github.com/chirino/memory-journal/internal/web"
	"github.com/gin-gonic/gin"
)

type providerLink struct {
	ID    social.Provider `json:"id"`
	Label string          `json:"label"`
}

type handler struct {
	store      registrystore.MemoryStore
	sessions   *security.SessionManager
	connectors social.Connectors
}

// MountRoutes mounts the /accounts pages. session must be the middleware of sessions.
func MountRoutes(r *gin.Engine, store registrystore.MemoryStore, sessions *security.SessionManager, connectors social.Connectors, session gin.HandlerFunc) {
	h := &handler{store: store, sessions: sessions, connectors: connectors}

	g := r.Group("/accounts", session, security.CSRFMiddleware())
	g.GET("/login/", h.loginPage)
	g.GET("/logout/", h.logoutPage)
	g.POST("/logout/", h.logout)
	g.GET("/:provider/login/", h.providerLogin)
	g.GET("/:provider/login/callback/", h.callback)
}

func (h *handler) loginPage(c *gin.Context) {
	next := security.SafeNext(c.Query("next"))
	if security.GetUserID(c) != 0 {
		web.Redirect(c, next)
		return
	}
	var providers []providerLink
	for _, p := range h.connectors.Enabled() {
		providers = append(providers, providerLink{ID: p, Label: p.Label()})
	}
	web.Render(c, http.StatusOK, web.TemplateLogin, gin.H{
		"title":     "Log in",
		"providers": providers,
		"next":      next,
	})
}

func (h *handler) connector(c *gin.Context) (social.Connector, bool) {
	conn, ok := h.connectors.Get(social.Provider(c.Param("provider")))
	if !ok {
		web.NotFound(c)
	}
	return conn, ok
}

func (h *handler) providerLogin(c *gin.Context) {
	conn, ok := h.connector(c)
	if !ok {
		return
	}
	state, err := h.sessions.IssueState(c, string(conn.Provider()), security.SafeNext(c.Query("next")))
	if err != nil {
		web.ServerError(c, err)
		return
	}
	c.Redirect(http.StatusFound, conn.AuthCodeURL(state))
}

func (h *handler) callback(c *gin.Context) {
	conn, ok := h.connector(c)
	if !ok {
		return
	}
	provider := conn.Provider()

	next, err := h.sessions.ConsumeState(c, string(provider), c.Query("state"))
	if err != nil {
		log.Info("Login rejected", "provider", provider, "err", err)
		web.Error(c, "Login with "+provider.Label()+" failed, please try again.")
		web.Redirect(c, security.LoginPath)
		return
	}
	if reason := c.Query("error"); reason != "" {
		log.Info("Login cancelled at provider", "provider", provider, "error", reason)
		web.Error(c, "Login with "+provider.Label()+" was cancelled.")
		web.Redirect(c, security.LoginPath)
		return
	}

	login, err := conn.Exchange(c.Request.Context(), c.Query("code"))
	if err != nil {
		log.Warn("Login exchange failed", "provider", provider, "err", err)
		web.Error(c, "Login with "+provider.Label()+" failed, please try again.")
		web.Redirect(c, security.LoginPath)
		return
	}

	user, err := h.store.LoginSocialAccount(c.Request.Context(), *login)
	if err != nil {
		web.ServerError(c, err)
		return
	}
	if _, err := h.sessions.Issue(c, user.ID); err != nil {
		web.ServerError(c, err)
		return
	}
	log.Info("User logged in", "user", user.ID, "provider", provider)
	web.Redirect(c, security.SafeNext(next))
}

func (h *handler) logoutPage(c *gin.Context) {
	if security.GetUserID(c) == 0 {
		web.Redirect(c, "/")
		return
	}
	web.Render(c, http.StatusOK, web.TemplateLogout, web.PageData(c, h.store, gin.H{"title": "Log out"}))
}

func (h *handler) logout(c *gin.Context) {
	if userID := security.GetUserID(c); userID != 0 {
		log.Info("User logged out", "user", userID)
	}
	h.sessions.Clear(c)
	web.Success(c, "You have signed out.")
	web.Redirect(c, "/")
}
