// Package web renders pages as HTML or JSON and carries flash notifications.
package web

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/chirino/memory-journal/internal/security"
	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page templates.
const (
	TemplateWelcome      = "welcome.html"
	TemplateLogin        = "login.html"
	TemplateLogout       = "logout.html"
	TemplateListMemory   = "list_memory.html"
	TemplateCreateMemory = "create_memory.html"
	TemplateNotFound     = "error_404.html"
	TemplateServerError  = "error_500.html"
)

// Templates parses the embedded page templates.
func Templates() *template.Template {
	return template.Must(template.New("").ParseFS(templateFS, "templates/*.html"))
}

// LoadTemplates installs the page templates on engine.
func LoadTemplates(engine *gin.Engine) {
	engine.SetHTMLTemplate(Templates())
}

// Render writes the page as the named template or, when the client prefers
// it, as JSON. data is extended with "messages" and "csrf_token".
func Render(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["messages"] = consumeMessages(c)
	data["csrf_token"] = security.CSRFToken(c)
	c.Negotiate(status, gin.Negotiate{
		Offered:  []string{gin.MIMEHTML, gin.MIMEJSON},
		HTMLName: name,
		Data:     data,
	})
}

// NotFound renders the 404 page for the requested path.
func NotFound(c *gin.Context) {
	Render(c, http.StatusNotFound, TemplateNotFound, gin.H{"searched_path": c.Request.URL.Path})
}

// ServerError logs err and renders the 500 page.
func ServerError(c *gin.Context, err error) {
	log.Error("Request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "err", err)
	Render(c, http.StatusInternalServerError, TemplateServerError, gin.H{})
	c.Abort()
}
