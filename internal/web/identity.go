package web

import (
	"github.com/charmbracelet/log"
	registrystore "github.com/chirino/memory-journal/internal/registry/store"
	"github.com/chirino/memory-journal/internal/security"
	"github.com/chirino/memory-journal/internal/social"
	"github.com/gin-gonic/gin"
)

// SocialInfo resolves the caller's display identity. Lookup failures degrade
// to a user_error instead of failing the page.
func SocialInfo(c *gin.Context, store registrystore.MemoryStore) social.Info {
	userID := security.GetUserID(c)
	if userID == 0 {
		return social.Lookup(nil, nil)
	}
	ctx := c.Request.Context()
	user, err := store.GetUser(ctx, userID)
	if err != nil {
		log.Warn("Social lookup: user unavailable", "user", userID, "err", err)
		return social.Lookup(nil, nil)
	}
	accounts, err := store.ListSocialAccounts(ctx, userID)
	if err != nil {
		log.Warn("Social lookup: accounts unavailable", "user", userID, "err", err)
	}
	return social.Lookup(user, accounts)
}

// PageData merges the caller's social info into data.
func PageData(c *gin.Context, store registrystore.MemoryStore, data gin.H) gin.H {
	if data == nil {
		data = gin.H{}
	}
	info := SocialInfo(c, store)
	if info.UserError != "" {
		data["user_error"] = info.UserError
	} else {
		data["user_name"] = info.UserName
		data["user_picture"] = info.UserPicture
	}
	return data
}
