package web

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/chirino/memory-journal/internal/config"
	"github.com/gin-gonic/gin"
)

// FlashCookieName carries notifications across a redirect.
const FlashCookieName = "memory_journal_messages"

const contextKeyPending = "flash.pending"

// Notification levels.
const (
	LevelSuccess = "success"
	LevelError   = "error"
)

// Message is a one-shot notification shown on the next rendered page.
type Message struct {
	Level string `json:"level"`
	Text  string `json:"message"`
}

// AddMessage queues a notification for the next rendered page, which is
// either this response or the target of a Redirect.
func AddMessage(c *gin.Context, level, text string) {
	c.Set(contextKeyPending, append(pending(c), Message{Level: level, Text: text}))
}

// Success queues a success notification.
func Success(c *gin.Context, text string) { AddMessage(c, LevelSuccess, text) }

// Error queues an error notification.
func Error(c *gin.Context, text string) { AddMessage(c, LevelError, text) }

func pending(c *gin.Context) []Message {
	v, _ := c.Get(contextKeyPending)
	msgs, _ := v.([]Message)
	return msgs
}

func incoming(c *gin.Context) []Message {
	raw, err := c.Cookie(FlashCookieName)
	if err != nil || raw == "" {
		return nil
	}
	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil
	}
	var msgs []Message
	if err := json.Unmarshal(b, &msgs); err != nil {
		return nil
	}
	return msgs
}

func setFlashCookie(c *gin.Context, msgs []Message) {
	secure := config.FromContext(c.Request.Context()).SecureCookies()
	c.SetSameSite(http.SameSiteLaxMode)
	if len(msgs) == 0 {
		c.SetCookie(FlashCookieName, "", -1, "/", "", secure, true)
		return
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return
	}
	c.SetCookie(FlashCookieName, base64.RawURLEncoding.EncodeToString(b), 0, "/", "", secure, true)
}

// consumeMessages returns every undelivered notification and clears the cookie.
func consumeMessages(c *gin.Context) []Message {
	in := incoming(c)
	msgs := append(in, pending(c)...)
	if in != nil {
		setFlashCookie(c, nil)
	}
	c.Set(contextKeyPending, []Message(nil))
	return msgs
}

// Redirect stores undelivered notifications and redirects with 302.
func Redirect(c *gin.Context, location string) {
	if msgs := append(incoming(c), pending(c)...); len(msgs) > 0 {
		setFlashCookie(c, msgs)
	}
	c.Redirect(http.StatusFound, location)
}
