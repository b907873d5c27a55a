package models

import (
	"time"
)

const (
	AccountStatusActive            = "active"
	AccountStatusNeedsReconnection = "needs_reconnection"
)

// SocialAccount is one connected platform account. Token columns hold
// AES-GCM encrypted values; the OAuth 1.0a pair is only present for
// platforms whose media endpoints still require request signing.
type SocialAccount struct {
	ID                int64     `db:"id" json:"id"`
	UserID            int64     `db:"user_id" json:"user_id"`
	Platform          string    `db:"platform" json:"platform"`
	AccountID         string    `db:"account_id" json:"account_id"`
	AccountName       string    `db:"account_name" json:"account_name"`
	AccountUsername   string    `db:"account_username" json:"account_username"`
	ProfilePicture    string    `db:"profile_picture_url" json:"profile_picture"`
	AccessToken       string    `db:"access_token" json:"-"`
	RefreshToken      string    `db:"refresh_token" json:"-"`
	TokenExpiresAt    time.Time `db:"token_expires_at" json:"token_expires_at"`
	OAuth1Token       string    `db:"oauth1_token" json:"-"`
	OAuth1TokenSecret string    `db:"oauth1_token_secret" json:"-"`
	AccountStatus     string    `db:"account_status" json:"account_status"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

func (sa *SocialAccount) IsActive() bool {
	return sa.AccountStatus == AccountStatusActive
}

type SelectedAccount struct {
	PostID    int64     `db:"post_id" json:"post_id"`
	AccountID int64     `db:"account_id" json:"account_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
