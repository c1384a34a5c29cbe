package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chirino/memory-journal/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine() *gin.Engine {
	r := gin.New()
	LoadTemplates(r)
	r.GET("/list", func(c *gin.Context) {
		Render(c, http.StatusOK, TemplateListMemory, gin.H{
			"user_name": "Ada",
			"memories":  []model.Summary{{ID: 5, Name: "Lake", Location: "[1.0,2.0]", CreatedDate: "01.02.2024, 03:04:05"}},
		})
	})
	r.GET("/done", func(c *gin.Context) {
		Success(c, "Memory #5 successfully changed!")
		Redirect(c, "/list")
	})
	r.GET("/inline", func(c *gin.Context) {
		Error(c, `{"name": []}`)
		Render(c, http.StatusOK, TemplateWelcome, nil)
	})
	r.NoRoute(NotFound)
	return r
}

func get(r http.Handler, path string, accept string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTemplatesParse(t *testing.T) {
	tmpl := Templates()
	for _, name := range []string{TemplateWelcome, TemplateLogin, TemplateLogout, TemplateListMemory, TemplateCreateMemory, TemplateNotFound, TemplateServerError} {
		assert.NotNil(t, tmpl.Lookup(name), name)
	}
}

func TestRenderHTML(t *testing.T) {
	w := get(newEngine(), "/list", "text/html")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), `<th scope="row">5</th>`)
	assert.Contains(t, w.Body.String(), "Ada")
}

func TestRenderJSON(t *testing.T) {
	w := get(newEngine(), "/list", "application/json")
	require.Equal(t, http.StatusOK, w.Code)

	var page struct {
		UserName string          `json:"user_name"`
		Memories []model.Summary `json:"memories"`
		Messages []Message       `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, "Ada", page.UserName)
	require.Len(t, page.Memories, 1)
	assert.Equal(t, "01.02.2024, 03:04:05", page.Memories[0].CreatedDate)
	assert.Empty(t, page.Messages)
}

func TestFlashSurvivesRedirect(t *testing.T) {
	r := newEngine()

	w := get(r, "/done", "")
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/list", w.Header().Get("Location"))

	var flash *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == FlashCookieName {
			flash = c
		}
	}
	require.NotNil(t, flash)

	w = get(r, "/list", "application/json", flash)
	var page struct {
		Messages []Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, []Message{{Level: LevelSuccess, Text: "Memory #5 successfully changed!"}}, page.Messages)

	cleared := false
	for _, c := range w.Result().Cookies() {
		if c.Name == FlashCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)
}

func TestFlashRenderedInSameResponse(t *testing.T) {
	w := get(newEngine(), "/inline", "application/json")
	var page struct {
		Messages []Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, []Message{{Level: LevelError, Text: `{"name": []}`}}, page.Messages)
	assert.Empty(t, w.Result().Cookies())
}

func TestNotFound(t *testing.T) {
	w := get(newEngine(), "/no/such/page", "text/html")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "/no/such/page")

	w = get(newEngine(), "/no/such/page", "application/json")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"searched_path":"/no/such/page"`)
}
