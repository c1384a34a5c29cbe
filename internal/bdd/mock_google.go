package bdd

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const mockGoogleKeyID = "test-1"

// GoogleProfile is what the mock provider reports for a signed-in account.
type GoogleProfile struct {
	Subject string
	Name    string
	Picture string
	Email   string
}

// MockGoogle is an OpenID Connect provider that signs in whichever profile a
// scenario queued last, without any consent screen.
type MockGoogle struct {
	Server   *httptest.Server
	ClientID string

	key      *rsa.PrivateKey
	mu       sync.Mutex
	next     *GoogleProfile
	profiles map[string]GoogleProfile
}

// NewMockGoogle starts the mock provider; its URL is the issuer.
func NewMockGoogle(t *testing.T, clientID string) *MockGoogle {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate mock google key: %v", err)
	}
	m := &MockGoogle{ClientID: clientID, key: key, profiles: map[string]GoogleProfile{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", m.handleDiscovery)
	mux.HandleFunc("/auth", m.handleAuth)
	mux.HandleFunc("/token", m.handleToken)
	mux.HandleFunc("/jwks", m.handleJWKS)
	m.Server = httptest.NewServer(mux)
	t.Cleanup(m.Server.Close)
	return m
}

// SignInAs queues the profile returned by the next authorization request.
func (m *MockGoogle) SignInAs(p GoogleProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next = &p
}

func (m *MockGoogle) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	base := m.Server.URL
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                base,
		"authorization_endpoint":                base + "/auth",
		"token_endpoint":                        base + "/token",
		"jwks_uri":                              base + "/jwks",
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

// handleAuth sends the browser straight back to redirect_uri. With no queued
// profile it reports access_denied, like a user pressing cancel.
func (m *MockGoogle) handleAuth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirect, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || redirect.Scheme == "" || q.Get("client_id") != m.ClientID {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	p := m.next
	m.next = nil
	if p != nil {
		m.profiles[p.Subject] = *p
	}
	m.mu.Unlock()

	params := url.Values{"state": {q.Get("state")}}
	if p == nil {
		params.Set("error", "access_denied")
	} else {
		params.Set("code", p.Subject)
	}
	redirect.RawQuery = params.Encode()
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (m *MockGoogle) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	_ = r.ParseForm()
	m.mu.Lock()
	p, ok := m.profiles[r.Form.Get("code")]
	m.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
		return
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":     m.Server.URL,
		"sub":     p.Subject,
		"aud":     m.ClientID,
		"iat":     now.Unix(),
		"exp":     now.Add(time.Hour).Unix(),
		"name":    p.Name,
		"picture": p.Picture,
		"email":   p.Email,
	})
	token.Header["kid"] = mockGoogleKeyID
	idToken, err := token.SignedString(m.key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": "access-" + p.Subject,
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     idToken,
	})
}

// handleJWKS returns the RSA public key as a JWK Set.
func (m *MockGoogle) handleJWKS(w http.ResponseWriter, r *http.Request) {
	pub := &m.key.PublicKey
	eBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(eBuf, uint32(pub.E))
	for len(eBuf) > 1 && eBuf[0] == 0 {
		eBuf = eBuf[1:]
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": []map[string]any{{
		"kty": "RSA",
		"alg": "RS256",
		"use": "sig",
		"kid": mockGoogleKeyID,
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(eBuf),
	}}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
