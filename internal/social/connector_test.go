package social

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/chirino/memory-journal/internal/config"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://journal.test/"
	cfg.GoogleClientID = "google-client"
	cfg.GoogleClientSecret = "google-secret"
	cfg.VKClientID = "vk-client"
	cfg.VKClientSecret = "vk-secret"
	return &cfg
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestCallbackURL(t *testing.T) {
	assert.Equal(t, "http://journal.test/accounts/vk/login/callback/", CallbackURL(testConfig(), ProviderVK))
}

func TestConnectorsEnabled(t *testing.T) {
	c := Connectors{ProviderVK: NewVK(testConfig())}
	assert.Equal(t, []Provider{ProviderVK}, c.Enabled())
	_, ok := c.Get(ProviderGoogle)
	assert.False(t, ok)
}

func TestVKExchange(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.Form.Get("code"))
		assert.Equal(t, "vk-client", r.Form.Get("client_id"))
		writeJSON(w, map[string]interface{}{
			"access_token": "vk-token",
			"expires_in":   86400,
			"user_id":      42,
			"email":        "ivan@example.com",
		})
	})
	mux.HandleFunc("/method/users.get", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "42", r.URL.Query().Get("user_ids"))
		assert.Equal(t, "vk-token", r.URL.Query().Get("access_token"))
		assert.Equal(t, "5.131", r.URL.Query().Get("v"))
		writeJSON(w, map[string]interface{}{
			"response": []map[string]interface{}{{
				"id":         42,
				"first_name": "Ivan",
				"last_name":  "Petrov",
				"photo_big":  "https://example.com/big.jpg",
			}},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	vk := NewVKWithEndpoints(testConfig(), oauth2.Endpoint{
		AuthURL:   srv.URL + "/authorize",
		TokenURL:  srv.URL + "/access_token",
		AuthStyle: oauth2.AuthStyleInParams,
	}, srv.URL+"/method")

	authURL, err := url.Parse(vk.AuthCodeURL("state-1"))
	require.NoError(t, err)
	assert.Equal(t, "state-1", authURL.Query().Get("state"))
	assert.Equal(t, "http://journal.test/accounts/vk/login/callback/", authURL.Query().Get("redirect_uri"))

	login, err := vk.Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "vk", login.Provider)
	assert.Equal(t, "42", login.UID)
	assert.Equal(t, "ivan@example.com", login.Email)
	assert.Equal(t, "Ivan", login.ExtraData["first_name"])
	assert.Equal(t, "https://example.com/big.jpg", login.ExtraData["photo_big"])
}

func TestVKExchangeAPIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/access_token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"access_token": "vk-token", "user_id": 42})
	})
	mux.HandleFunc("/method/users.get", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"error": map[string]interface{}{"error_code": 5, "error_msg": "User authorization failed"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	vk := NewVKWithEndpoints(testConfig(), oauth2.Endpoint{
		TokenURL:  srv.URL + "/access_token",
		AuthStyle: oauth2.AuthStyleInParams,
	}, srv.URL+"/method")

	_, err := vk.Exchange(context.Background(), "code")
	require.Error(t, err)
	assert.ErrorIs(t, err, errProfileLookup)
	assert.Contains(t, err.Error(), "User authorization failed")
}

func TestGoogleExchange(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	const issuer = "https://accounts.example.test"

	idToken, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":     issuer,
		"aud":     "google-client",
		"sub":     "g-123",
		"email":   "ada@example.com",
		"name":    "Ada Lovelace",
		"picture": "https://example.com/ada.png",
		"iat":     time.Now().Unix(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString(key)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"access_token": "google-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idToken,
		})
	}))
	defer srv.Close()

	cfg := testConfig()
	verifier := oidc.NewVerifier(issuer, &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}, &oidc.Config{ClientID: "google-client"})
	google := NewGoogleWithVerifier(&oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Endpoint:     oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"},
		RedirectURL:  CallbackURL(cfg, ProviderGoogle),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}, verifier)

	login, err := google.Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, "google", login.Provider)
	assert.Equal(t, "g-123", login.UID)
	assert.Equal(t, "ada@example.com", login.Email)
	assert.Equal(t, "Ada Lovelace", login.ExtraData["name"])
	assert.Equal(t, "https://example.com/ada.png", login.ExtraData["picture"])
}

func TestGoogleExchangeRejectsForeignSignature(t *testing.T) {
	signer, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	trusted, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	const issuer = "https://accounts.example.test"

	idToken, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": issuer,
		"aud": "google-client",
		"sub": "g-123",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(signer)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"access_token": "t", "token_type": "Bearer", "id_token": idToken})
	}))
	defer srv.Close()

	verifier := oidc.NewVerifier(issuer, &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&trusted.PublicKey}}, &oidc.Config{ClientID: "google-client"})
	google := NewGoogleWithVerifier(&oauth2.Config{
		ClientID: "google-client",
		Endpoint: oauth2.Endpoint{TokenURL: srv.URL + "/token"},
	}, verifier)

	_, err = google.Exchange(context.Background(), "code")
	require.Error(t, err)
	assert.ErrorIs(t, err, errInvalidToken)
}
