package models

import "time"

// PostingHistory records the outcome of one publish attempt against one
// account. PlatformPostID is empty when the attempt failed.
type PostingHistory struct {
	ID             int64     `db:"id" json:"id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	PostID         int64     `db:"post_id" json:"post_id"`
	AccountID      int64     `db:"account_id" json:"account_id"`
	PlatformPostID string    `db:"platform_post_id" json:"platform_post_id"`
	ErrorKind      string    `db:"error_kind" json:"error_kind"`
	ErrorMessage   string    `db:"error_message" json:"error_message"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
