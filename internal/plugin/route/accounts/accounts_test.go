package accounts_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/chirino/memory-journal/internal/plugin/route/accounts"
	registrystore "github.com/chirino/memory-journal/internal/registry/store"
	"github.com/chirino/memory-journal/internal/security"
	"github.com/chirino/memory-journal/internal/social"
	"github.com/chirino/memory-journal/internal/testutil/testdb"
	"github.com/chirino/memory-journal/internal/web"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeConnector stands in for the provider: its consent page URL points
// straight back at the callback.
type fakeConnector struct {
	provider social.Provider
	callback string
	login    *registrystore.SocialLogin
	err      error
	codes    []string
}

func (f *fakeConnector) Provider() social.Provider { return f.provider }

func (f *fakeConnector) AuthCodeURL(state string) string {
	return f.callback + "?code=good&state=" + url.QueryEscape(state)
}

func (f *fakeConnector) Exchange(_ context.Context, code string) (*registrystore.SocialLogin, error) {
	f.codes = append(f.codes, code)
	if f.err != nil {
		return nil, f.err
	}
	return f.login, nil
}

type env struct {
	store    registrystore.MemoryStore
	sessions *security.SessionManager
	srv      *httptest.Server
	vk       *fakeConnector
}

func newEnv(t *testing.T) *env {
	store, _ := testdb.NewSQLiteStore(t)
	cfg := testdb.Config(t)
	sessions := security.NewSessionManagerWithKey([]byte("accounts-test-key-accounts-test!"), cfg.SessionCookieName, time.Hour, false)
	vk := &fakeConnector{
		provider: social.ProviderVK,
		login: &registrystore.SocialLogin{
			Provider:  "vk",
			UID:       "42",
			ExtraData: map[string]interface{}{"first_name": "Ivan", "last_name": "Petrov"},
		},
	}

	r := gin.New()
	web.LoadTemplates(r)
	accounts.MountRoutes(r, store, sessions, social.Connectors{social.ProviderVK: vk}, sessions.Middleware())
	r.GET("/memory/list/", sessions.Middleware(), func(c *gin.Context) {
		web.Render(c, http.StatusOK, web.TemplateWelcome, gin.H{"user": security.GetUserID(c)})
	})
	r.GET("/", sessions.Middleware(), func(c *gin.Context) {
		web.Render(c, http.StatusOK, web.TemplateWelcome, gin.H{"user": security.GetUserID(c)})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	vk.callback = srv.URL + "/accounts/vk/login/callback/"
	return &env{store: store, sessions: sessions, srv: srv, vk: vk}
}

type page struct {
	status    int
	path      string
	User      uint          `json:"user"`
	Messages  []web.Message `json:"messages"`
	Providers []struct {
		ID    string `json:"id"`
		Label string `json:"label"`
	} `json:"providers"`
	Next      string `json:"next"`
	CSRFToken string `json:"csrf_token"`
}

func newClient(t *testing.T) *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func fetch(t *testing.T, c *http.Client, method, target string, body url.Values) page {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequest(method, target, strings.NewReader(body.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req, err = http.NewRequest(method, target, nil)
	}
	require.NoError(t, err)
	req.Header.Set("Accept", "application/json")
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	p := page{status: resp.StatusCode, path: resp.Request.URL.Path}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	}
	return p
}

func TestLoginPageListsProviders(t *testing.T) {
	e := newEnv(t)
	p := fetch(t, newClient(t), http.MethodGet, e.srv.URL+"/accounts/login/?next=/memory/create/", nil)
	require.Equal(t, http.StatusOK, p.status)
	require.Len(t, p.Providers, 1)
	assert.Equal(t, "vk", p.Providers[0].ID)
	assert.Equal(t, "VK", p.Providers[0].Label)
	assert.Equal(t, "/memory/create/", p.Next)
}

func TestLoginPageRejectsOffsiteNext(t *testing.T) {
	e := newEnv(t)
	p := fetch(t, newClient(t), http.MethodGet, e.srv.URL+"/accounts/login/?next=https://evil.test/", nil)
	assert.Equal(t, security.DefaultRedirect, p.Next)
}

func TestLoginFlowCreatesUserAndSession(t *testing.T) {
	e := newEnv(t)
	c := newClient(t)

	p := fetch(t, c, http.MethodGet, e.srv.URL+"/accounts/vk/login/?next=/memory/list/", nil)
	require.Equal(t, http.StatusOK, p.status)
	assert.Equal(t, "/memory/list/", p.path)
	assert.NotZero(t, p.User)
	assert.Equal(t, []string{"good"}, e.vk.codes)

	user, err := e.store.GetUser(context.Background(), p.User)
	require.NoError(t, err)
	assert.Equal(t, "vk:42", user.Username)
	accounts, err := e.store.ListSocialAccounts(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "Petrov", accounts[0].ExtraData["last_name"])

	// Logging in again reuses the user.
	again := fetch(t, c, http.MethodGet, e.srv.URL+"/accounts/vk/login/", nil)
	assert.Equal(t, p.User, again.User)
}

func TestCallbackWithoutPendingLoginIsRejected(t *testing.T) {
	e := newEnv(t)
	p := fetch(t, newClient(t), http.MethodGet, e.srv.URL+"/accounts/vk/login/callback/?code=good&state=forged", nil)
	assert.Equal(t, "/accounts/login/", p.path)
	require.Len(t, p.Messages, 1)
	assert.Equal(t, web.LevelError, p.Messages[0].Level)
	assert.Empty(t, e.vk.codes)
	assert.Zero(t, p.User)
}

func TestCallbackExchangeFailure(t *testing.T) {
	e := newEnv(t)
	e.vk.err = errors.New("provider down")

	p := fetch(t, newClient(t), http.MethodGet, e.srv.URL+"/accounts/vk/login/", nil)
	assert.Equal(t, "/accounts/login/", p.path)
	assert.Equal(t, []web.Message{{Level: web.LevelError, Text: "Login with VK failed, please try again."}}, p.Messages)
}

func TestUnknownProviderIsNotFound(t *testing.T) {
	e := newEnv(t)
	p := fetch(t, newClient(t), http.MethodGet, e.srv.URL+"/accounts/google/login/", nil)
	assert.Equal(t, http.StatusNotFound, p.status)
}

func TestLogout(t *testing.T) {
	e := newEnv(t)
	c := newClient(t)
	p := fetch(t, c, http.MethodGet, e.srv.URL+"/accounts/vk/login/", nil)
	require.NotZero(t, p.User)

	confirm := fetch(t, c, http.MethodGet, e.srv.URL+"/accounts/logout/", nil)
	require.Equal(t, http.StatusOK, confirm.status)
	require.NotEmpty(t, confirm.CSRFToken)

	forbidden := fetch(t, c, http.MethodPost, e.srv.URL+"/accounts/logout/", url.Values{})
	assert.Equal(t, http.StatusForbidden, forbidden.status)

	p = fetch(t, c, http.MethodPost, e.srv.URL+"/accounts/logout/", url.Values{security.CSRFFormField: {confirm.CSRFToken}})
	assert.Equal(t, "/", p.path)
	assert.Zero(t, p.User)
	assert.Equal(t, []web.Message{{Level: web.LevelSuccess, Text: "You have signed out."}}, p.Messages)
}
