package social

import (
	"github.com/chirino/memory-journal/internal/model"
)

// Lookup failures reported in Info.UserError.
const (
	ErrNoUser              = "This session is not associated with a user."
	ErrUnsupportedProvider = "This account is not associated with a supported identity provider (Google or VK), please log in again using one of them."
	ErrUnresolvedProvider  = "Unresolved provider."
)

// Placeholders used when the provider profile lacks a field.
const (
	DefaultGoogleName  = "google_user_name"
	DefaultVKFirstName = "vk_first_name"
	DefaultVKLastName  = "vk_last_name"
)

// Info is the display identity merged into every page context. Either
// UserError is set or UserName and UserPicture are.
type Info struct {
	UserName    string `json:"user_name,omitempty"`
	UserPicture string `json:"user_picture,omitempty"`
	UserError   string `json:"user_error,omitempty"`
}

// Lookup resolves user's display name and avatar from the first supported
// linked account, in ascending account id order.
func Lookup(user *model.User, accounts []model.SocialAccount) Info {
	if user == nil {
		return Info{UserError: ErrNoUser}
	}

	var account *model.SocialAccount
	for _, a := range sortedIDs(accounts, func(a model.SocialAccount) uint { return a.ID }) {
		if Supported(Provider(a.Provider)) {
			account = &a
			break
		}
	}
	if account == nil {
		return Info{UserError: ErrUnsupportedProvider}
	}

	switch Provider(account.Provider) {
	case ProviderGoogle:
		return Info{
			UserName:    field(account, "name", DefaultGoogleName),
			UserPicture: field(account, "picture", ""),
		}
	case ProviderVK:
		picture, ok := account.StringField("photo_big")
		if !ok {
			picture = field(account, "photo_medium", "")
		}
		return Info{
			UserName:    field(account, "first_name", DefaultVKFirstName) + " " + field(account, "last_name", DefaultVKLastName),
			UserPicture: picture,
		}
	default:
		return Info{UserError: ErrUnresolvedProvider}
	}
}

func field(a *model.SocialAccount, key, fallback string) string {
	if v, ok := a.StringField(key); ok {
		return v
	}
	return fallback
}
