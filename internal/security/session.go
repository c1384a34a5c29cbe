package security

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/memory-journal/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	sessionAudience = "memory-journal-session"
	stateAudience   = "memory-journal-oauth-state"

	// StateCookieName carries the pending OAuth state between login and callback.
	StateCookieName = "memory_journal_oauth_state"
	stateTTL        = 10 * time.Minute
)

var (
	errInvalidSession = errors.New("invalid session")
	errInvalidState   = errors.New("invalid OAuth state")
)

// Session is the decoded session cookie. UserID is 0 for anonymous visitors.
type Session struct {
	ID        string
	UserID    uint
	CSRF      string
	ExpiresAt time.Time
}

// Authenticated reports whether a user is signed in.
func (s *Session) Authenticated() bool { return s != nil && s.UserID != 0 }

type sessionClaims struct {
	jwt.RegisteredClaims
	CSRF string `json:"csrf"`
}

type stateClaims struct {
	jwt.RegisteredClaims
	Provider string `json:"provider"`
	Next     string `json:"next,omitempty"`
}

// SessionManager issues and verifies HS256 signed session cookies.
type SessionManager struct {
	key        []byte
	cookieName string
	ttl        time.Duration
	secure     bool
	now        func() time.Time
}

// NewSessionManager derives the signing key from cfg.
func NewSessionManager(cfg *config.Config) (*SessionManager, error) {
	key, ephemeral, err := cfg.SessionSigningKey()
	if err != nil {
		return nil, err
	}
	if ephemeral && cfg.Mode != config.ModeTesting {
		log.Warn("No session key configured; using an ephemeral key, sessions will not survive a restart")
	}
	return NewSessionManagerWithKey(key, cfg.SessionCookieName, cfg.SessionTTL, cfg.SecureCookies()), nil
}

// NewSessionManagerWithKey builds a manager from an explicit signing key.
func NewSessionManagerWithKey(key []byte, cookieName string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		key:        key,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		now:        time.Now,
	}
}

// CookieName is the name of the session cookie.
func (m *SessionManager) CookieName() string { return m.cookieName }

func (m *SessionManager) keyFunc(*jwt.Token) (interface{}, error) { return m.key, nil }

func (m *SessionManager) sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
}

func (m *SessionManager) setCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", m.secure, true)
}

// Encode signs s as a session token.
func (m *SessionManager) Encode(s *Session) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.ID,
			Audience:  jwt.ClaimStrings{sessionAudience},
			IssuedAt:  jwt.NewNumericDate(m.now()),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
		CSRF: s.CSRF,
	}
	if s.UserID != 0 {
		claims.Subject = strconv.FormatUint(uint64(s.UserID), 10)
	}
	return m.sign(claims)
}

// Decode verifies a session token.
func (m *SessionManager) Decode(token string) (*Session, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(sessionAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, errors.Join(errInvalidSession, err)
	}
	if claims.CSRF == "" {
		return nil, errors.Join(errInvalidSession, errors.New("missing CSRF token"))
	}
	s := &Session{ID: claims.ID, CSRF: claims.CSRF, ExpiresAt: claims.ExpiresAt.Time}
	if claims.Subject != "" {
		id, err := strconv.ParseUint(claims.Subject, 10, 0)
		if err != nil || id == 0 {
			return nil, errors.Join(errInvalidSession, fmt.Errorf("bad subject %q", claims.Subject))
		}
		s.UserID = uint(id)
	}
	return s, nil
}

// Issue starts a fresh session for userID (0 for anonymous) with a new CSRF
// token and writes it to the response.
func (m *SessionManager) Issue(c *gin.Context, userID uint) (*Session, error) {
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CSRF:      uuid.NewString(),
		ExpiresAt: m.now().Add(m.ttl).Truncate(time.Second),
	}
	token, err := m.Encode(s)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}
	m.setCookie(c, m.cookieName, token, int(m.ttl.Seconds()))
	c.Set(ContextKeySession, s)
	c.Set(ContextKeyUserID, userID)
	return s, nil
}

// Clear removes the session cookie.
func (m *SessionManager) Clear(c *gin.Context) {
	m.setCookie(c, m.cookieName, "", -1)
}

// Middleware loads the session cookie into the gin context. Visitors without
// a valid session get a fresh anonymous one so forms always carry a CSRF token.
func (m *SessionManager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw, err := c.Cookie(m.cookieName); err == nil && raw != "" {
			s, err := m.Decode(raw)
			if err == nil {
				c.Set(ContextKeySession, s)
				c.Set(ContextKeyUserID, s.UserID)
				c.Next()
				return
			}
			log.Debug("Discarding session cookie", "path", c.Request.URL.Path, "err", err)
		}
		if _, err := m.Issue(c, 0); err != nil {
			log.Error("Failed to issue session", "err", err)
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Next()
	}
}

// IssueState records a pending login for provider and returns the state value
// to send to the provider.
func (m *SessionManager) IssueState(c *gin.Context, provider, next string) (string, error) {
	state := uuid.NewString()
	token, err := m.sign(stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        state,
			Audience:  jwt.ClaimStrings{stateAudience},
			IssuedAt:  jwt.NewNumericDate(m.now()),
			ExpiresAt: jwt.NewNumericDate(m.now().Add(stateTTL)),
		},
		Provider: provider,
		Next:     next,
	})
	if err != nil {
		return "", fmt.Errorf("sign OAuth state: %w", err)
	}
	m.setCookie(c, StateCookieName, token, int(stateTTL.Seconds()))
	return state, nil
}

// ConsumeState checks the state returned by provider against the pending
// login cookie, clears the cookie and returns the post-login redirect target.
func (m *SessionManager) ConsumeState(c *gin.Context, provider, state string) (string, error) {
	raw, err := c.Cookie(StateCookieName)
	m.setCookie(c, StateCookieName, "", -1)
	if err != nil || raw == "" {
		return "", errors.Join(errInvalidState, errors.New("no pending login"))
	}
	var claims stateClaims
	_, err = jwt.ParseWithClaims(raw, &claims, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(stateAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return "", errors.Join(errInvalidState, err)
	}
	if state == "" || claims.ID != state || claims.Provider != provider {
		return "", errors.Join(errInvalidState, errors.New("state mismatch"))
	}
	return claims.Next, nil
}
