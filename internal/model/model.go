package model

import (
	"time"
)

// User is a person who signed in through a supported identity provider.
type User struct {
	ID        uint      `json:"id"        gorm:"primaryKey"`
	Username  string    `json:"username"  gorm:"not null;uniqueIndex"`
	Email     string    `json:"email"     gorm:"not null;default:''"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null"`
}

func (User) TableName() string { return "users" }

// SocialAccount links a User to an account at an external identity provider.
// ExtraData holds the provider's raw profile payload.
type SocialAccount struct {
	ID        uint                   `json:"id"        gorm:"primaryKey"`
	UserID    uint                   `json:"userId"    gorm:"not null;index"`
	Provider  string                 `json:"provider"  gorm:"not null;uniqueIndex:idx_social_accounts_provider_uid"`
	UID       string                 `json:"uid"       gorm:"column:uid;not null;uniqueIndex:idx_social_accounts_provider_uid"`
	ExtraData map[string]interface{} `json:"extraData" gorm:"serializer:json;not null"`
	LastLogin time.Time              `json:"lastLogin" gorm:"not null"`
	CreatedAt time.Time              `json:"createdAt" gorm:"not null"`
}

func (SocialAccount) TableName() string { return "social_accounts" }

// StringField returns ExtraData[key] when it is a non-empty string.
func (a SocialAccount) StringField(key string) (string, bool) {
	if a.ExtraData == nil {
		return "", false
	}
	v, ok := a.ExtraData[key].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
