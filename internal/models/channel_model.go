package models

import (
	"time"
)

type Channel struct {
	ID               int64             `db:"id" json:"id"`
	UserID           int64             `db:"user_id" json:"user_id"`
	BrandID          int64             `db:"brand_id" json:"brand_id"`
	Provider         string            `db:"provider" json:"provider"`
	PlatformUserID   string            `db:"platform_user_id" json:"platform_user_id"`
	PlatformUsername string            `db:"platform_username" json:"platform_username"`
	DisplayName      string            `db:"display_name" json:"display_name"`
	AccessToken      string            `db:"access_token" json:"-"`
	RefreshToken     string            `db:"refresh_token" json:"-"`
	TokenExpiresAt   *time.Time        `db:"token_expires_at" json:"token_expires_at"`
	ProfileURL       string            `db:"profile_url" json:"profile_url"`
	Avatar           string            `db:"avatar" json:"avatar"`
	ProviderData     map[string]string `db:"provider_data" json:"provider_data"`
	Status           string            `db:"status" json:"status"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updated_at"`
}

// Data returns a providerData value or "" when absent.
func (c *Channel) Data(key string) string {
	if c == nil || c.ProviderData == nil {
		return ""
	}
	return c.ProviderData[key]
}

const (
	ChannelStatusActive            = "active"
	ChannelStatusReconnectRequired = "reconnect_required"
	ChannelStatusDisabled          = "disabled"
)
