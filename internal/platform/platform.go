// Package platform contains the per-platform publishing adapters. Each
// adapter translates the uniform upload/publish contract into its platform's
// wire protocol: signed form uploads and chunked video transfer for Twitter,
// asset registration plus binary upload for LinkedIn, and container creation
// with processing polls for Instagram.
package platform

import (
	"context"
	"time"

	"github.com/maheshrc27/crosspost/internal/media"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/pkg/oauth1"
)

const (
	Twitter   = "twitter"
	Linkedin  = "linkedin"
	Instagram = "instagram"
)

// Credentials carries the decrypted secrets for one account. OAuth1 is nil
// for accounts that never connected the legacy signing credentials.
type Credentials struct {
	AccessToken string
	OAuth1      *oauth1.Credentials
}

// Content is the platform-independent part of a post.
type Content struct {
	Text string
}

// UploadHandle is the platform-assigned reference for one accepted media
// item: a media id, an asset URN, or a container id. It is consumed exactly
// once by the immediately following PublishPost.
type UploadHandle struct {
	Ref  string
	Kind media.Kind
}

// SkippedMedia records one media item the adapter absorbed rather than
// failing the whole post.
type SkippedMedia struct {
	Index  int
	Reason string
}

// UploadOutcome is what UploadMedia hands to PublishPost: the accepted
// handles, the items that were skipped, and an optional note the adapter
// wants appended to the post text (e.g. the text-only video fallback).
type UploadOutcome struct {
	Handles []UploadHandle
	Skipped []SkippedMedia
	Note    string
}

// Adapter is the uniform publishing contract. Implementations are stateless;
// all per-request state travels through the arguments.
type Adapter interface {
	Platform() string
	UploadMedia(ctx context.Context, creds Credentials, account *models.SocialAccount, content Content, assets []*media.Asset) (*UploadOutcome, error)
	PublishPost(ctx context.Context, creds Credentials, account *models.SocialAccount, content Content, outcome *UploadOutcome) (string, error)
}

// sleepContext waits for d or until ctx is done, whichever comes first. All
// adapter polling waits go through this so a caller deadline can cancel a
// stuck platform.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
