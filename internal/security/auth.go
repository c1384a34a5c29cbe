package security

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyUserID is the gin context key for the authenticated user ID.
	ContextKeyUserID = "userID"
	// ContextKeySession is the gin context key for the decoded *Session.
	ContextKeySession = "session"
)

const (
	// CSRFFormField is the form field carrying the CSRF token.
	CSRFFormField = "csrfmiddlewaretoken"
	// CSRFHeader is the header alternative to CSRFFormField.
	CSRFHeader = "X-CSRF-Token"
)

// LoginPath is where unauthenticated visitors are sent.
const LoginPath = "/accounts/login/"

// DefaultRedirect is where a login lands when no safe next target is given.
const DefaultRedirect = "/memory/list/"

// GetUserID returns the authenticated user ID, or 0 for anonymous visitors.
func GetUserID(c *gin.Context) uint {
	v, _ := c.Get(ContextKeyUserID)
	id, _ := v.(uint)
	return id
}

// GetSession returns the session loaded by SessionManager.Middleware.
func GetSession(c *gin.Context) *Session {
	v, _ := c.Get(ContextKeySession)
	s, _ := v.(*Session)
	return s
}

// CSRFToken returns the token forms must echo back.
func CSRFToken(c *gin.Context) string {
	if s := GetSession(c); s != nil {
		return s.CSRF
	}
	return ""
}

// RequireLogin redirects anonymous visitors to the login page, preserving the
// requested URL in ?next=.
func RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetUserID(c) == 0 {
			target := LoginPath + "?next=" + url.QueryEscape(c.Request.URL.RequestURI())
			log.Debug("Login required", "method", c.Request.Method, "path", c.Request.URL.Path)
			c.Redirect(http.StatusFound, target)
			c.Abort()
			return
		}
		c.Next()
	}
}

// CSRFMiddleware rejects unsafe requests whose token does not match the session.
func CSRFMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
			c.Next()
			return
		}
		expected := CSRFToken(c)
		got := c.GetHeader(CSRFHeader)
		if got == "" {
			got = c.PostForm(CSRFFormField)
		}
		if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
			log.Info("CSRF check failed", "method", c.Request.Method, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "CSRF verification failed"})
			return
		}
		c.Next()
	}
}

// SafeNext returns next when it is a local absolute path, otherwise DefaultRedirect.
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return DefaultRedirect
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return DefaultRedirect
	}
	return next
}
