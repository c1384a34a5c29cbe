package serve

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chirino/memory-journal/internal/config"
	"github.com/chirino/memory-journal/internal/testutil/testdb"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestMaxBodySizeMiddleware_EnforcesLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(maxBodySizeMiddleware(4))
	router.POST("/memory/create/", readBodyLengthHandler)

	req := httptest.NewRequest(http.MethodPost, "/memory/create/", strings.NewReader("0123456789"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMaxBodySizeMiddleware_AllowsSmallBodies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(maxBodySizeMiddleware(64))
	router.POST("/memory/create/", readBodyLengthHandler)

	req := httptest.NewRequest(http.MethodPost, "/memory/create/", strings.NewReader("name=x"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "6", rec.Body.String())
}

func TestMaxBodySizeMiddleware_ZeroDisablesLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(maxBodySizeMiddleware(0))
	router.POST("/memory/create/", readBodyLengthHandler)

	req := httptest.NewRequest(http.MethodPost, "/memory/create/", strings.NewReader("0123456789"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "10", rec.Body.String())
}

func TestConfigMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.DefaultConfig()
	router := gin.New()
	router.Use(configMiddleware(&cfg))
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, config.FromContext(c.Request.Context()).DefaultLocation)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, config.DefaultLocation, rec.Body.String())
}

func TestStartListener_RequiresAProtocol(t *testing.T) {
	_, err := StartListener("main", config.ListenerConfig{}, http.NotFoundHandler())
	require.Error(t, err)
}

func TestStartListener_SelfSignedTLS(t *testing.T) {
	running, err := StartListener("main", config.ListenerConfig{EnableTLS: true, EnablePlainText: true}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, r.Proto)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = running.Close(context.Background()) })
	require.NotZero(t, running.Port)
	require.NotNil(t, running.HTTPServerTLS)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/", running.Port))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.1", string(body))
}

func TestStartServer(t *testing.T) {
	cfg := testdb.Config(t)
	cfg.Listener.Port = 0
	cfg.Listener.ReadHeaderTimeout = time.Second
	ctx := config.WithContext(context.Background(), cfg)

	srv, err := StartServer(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	base := fmt.Sprintf("http://127.0.0.1:%d", srv.Running.Port)
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	get := func(path string) *http.Response {
		t.Helper()
		resp, err := client.Get(base + path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	require.Equal(t, http.StatusOK, get("/health").StatusCode)
	require.Equal(t, http.StatusOK, get("/ready").StatusCode)
	require.Equal(t, http.StatusOK, get("/metrics").StatusCode)
	require.Equal(t, http.StatusOK, get("/").StatusCode)
	require.Equal(t, http.StatusOK, get("/accounts/login/").StatusCode)
	require.Equal(t, http.StatusNotFound, get("/no/such/page/").StatusCode)

	resp := get("/memory/list/")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/accounts/login/?next=%2Fmemory%2Flist%2F", resp.Header.Get("Location"))
}

func TestStartServer_DedicatedManagementPort(t *testing.T) {
	cfg := testdb.Config(t)
	cfg.Listener.Port = 0
	cfg.ManagementListenerEnabled = true
	cfg.ManagementListener.Port = 0
	ctx := config.WithContext(context.Background(), cfg)

	srv, err := StartServer(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	require.NotNil(t, srv.Management)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", srv.Management.Port))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Not mounted on the main port.
	resp, err = http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", srv.Running.Port))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func readBodyLengthHandler(c *gin.Context) {
	n, err := io.Copy(io.Discard, c.Request.Body)
	if err != nil {
		c.Status(http.StatusRequestEntityTooLarge)
		return
	}
	c.String(http.StatusOK, "%d", n)
}
