package publisher

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/maheshrc27/crosspost/internal/media"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
)

// fakeTokens returns canned credentials and can fail specific accounts.
type fakeTokens struct {
	mu       sync.Mutex
	failIDs  map[int64]*platform.Error
	requests []int64
}

func (f *fakeTokens) GetValidToken(ctx context.Context, accountID int64) (platform.Credentials, *models.SocialAccount, error) {
	f.mu.Lock()
	f.requests = append(f.requests, accountID)
	f.mu.Unlock()
	if pe, ok := f.failIDs[accountID]; ok {
		return platform.Credentials{}, nil, pe
	}
	return platform.Credentials{AccessToken: fmt.Sprintf("token-%d", accountID)}, nil, nil
}

// fakeAdapter records calls and publishes with deterministic post ids.
type fakeAdapter struct {
	mu        sync.Mutex
	name      string
	uploadErr *platform.Error
	uploads   int
	publishes int
}

func (f *fakeAdapter) Platform() string { return f.name }

func (f *fakeAdapter) UploadMedia(ctx context.Context, creds platform.Credentials, account *models.SocialAccount, content platform.Content, assets []*media.Asset) (*platform.UploadOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	outcome := &platform.UploadOutcome{}
	for i := range assets {
		outcome.Handles = append(outcome.Handles, platform.UploadHandle{
			Ref:  fmt.Sprintf("%s-media-%d", f.name, i),
			Kind: assets[i].Kind,
		})
	}
	return outcome, nil
}

func (f *fakeAdapter) PublishPost(ctx context.Context, creds platform.Credentials, account *models.SocialAccount, content platform.Content, outcome *platform.UploadOutcome) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishes++
	return fmt.Sprintf("%s-post-%d", f.name, account.ID), nil
}

func account(id int64, platformName string) *models.SocialAccount {
	return &models.SocialAccount{
		ID:            id,
		Platform:      platformName,
		AccountID:     fmt.Sprintf("acc-%d", id),
		AccountStatus: models.AccountStatusActive,
	}
}

func jpegAsset(size int64) *media.Asset {
	return &media.Asset{
		Bytes: make([]byte, size),
		MIME:  "image/jpeg",
		Size:  size,
		Kind:  media.KindImage,
	}
}

func TestPublishIsolatesAccountFailure(t *testing.T) {
	tokensSrc := &fakeTokens{failIDs: map[int64]*platform.Error{
		3: {Kind: platform.KindAuthExpired, Platform: platform.Twitter, Message: "needs reconnection"},
	}}
	tw := &fakeAdapter{name: platform.Twitter}
	o := NewOrchestrator(tokensSrc, tw)

	accounts := []*models.SocialAccount{
		account(1, platform.Twitter),
		account(2, platform.Twitter),
		account(3, platform.Twitter),
		account(4, platform.Twitter),
		account(5, platform.Twitter),
	}

	agg := o.Publish(context.Background(), platform.Content{Text: "hi"}, nil, accounts)

	if agg.Attempted != 5 || agg.Succeeded != 4 || agg.Failed != 1 {
		t.Fatalf("aggregate = %+v, want 5 attempted, 4 succeeded, 1 failed", agg)
	}
	if len(agg.Results) != 5 {
		t.Fatalf("results = %d, want one per account", len(agg.Results))
	}
	for i, r := range agg.Results {
		if r.AccountID != accounts[i].ID {
			t.Errorf("results[%d].AccountID = %d, want input order preserved", i, r.AccountID)
		}
		if r.AccountID == 3 {
			if r.Err == nil || r.Err.Kind != platform.KindAuthExpired {
				t.Errorf("account 3 err = %v, want %s", r.Err, platform.KindAuthExpired)
			}
			continue
		}
		if r.Err != nil {
			t.Errorf("account %d failed: %v", r.AccountID, r.Err)
		}
		if r.PostID == "" {
			t.Errorf("account %d missing post id", r.AccountID)
		}
	}
}

func TestPublishMultiplePlatforms(t *testing.T) {
	tokensSrc := &fakeTokens{}
	tw := &fakeAdapter{name: platform.Twitter}
	li := &fakeAdapter{name: platform.Linkedin}
	o := NewOrchestrator(tokensSrc, tw, li)

	accounts := []*models.SocialAccount{
		account(1, platform.Twitter),
		account(2, platform.Linkedin),
	}
	assets := []*media.Asset{jpegAsset(2 * media.MB)}

	agg := o.Publish(context.Background(), platform.Content{Text: "Hello"}, assets, accounts)

	if agg.Attempted != 2 || agg.Succeeded != 2 || agg.Failed != 0 {
		t.Fatalf("aggregate = %+v, want 2/2/0", agg)
	}
	if tw.uploads != 1 || li.uploads != 1 {
		t.Errorf("uploads tw=%d li=%d, want 1 each", tw.uploads, li.uploads)
	}
	if tw.publishes != 1 || li.publishes != 1 {
		t.Errorf("publishes tw=%d li=%d, want 1 each", tw.publishes, li.publishes)
	}
}

func TestPublishRejectsOversizedMediaBeforeUpload(t *testing.T) {
	tokensSrc := &fakeTokens{}
	tw := &fakeAdapter{name: platform.Twitter}
	o := NewOrchestrator(tokensSrc, tw)

	// 6MB jpeg is over the twitter image ceiling.
	assets := []*media.Asset{jpegAsset(6 * media.MB)}
	agg := o.Publish(context.Background(), platform.Content{Text: "big"}, assets,
		[]*models.SocialAccount{account(1, platform.Twitter)})

	if agg.Failed != 1 {
		t.Fatalf("aggregate = %+v, want the publish rejected", agg)
	}
	r := agg.Results[0]
	if r.Err == nil || r.Err.Kind != platform.KindPayloadRejected {
		t.Fatalf("err = %v, want %s", r.Err, platform.KindPayloadRejected)
	}
	if tw.uploads != 0 {
		t.Errorf("uploads = %d, want validation to reject before any upload", tw.uploads)
	}
}

func TestPublishUnknownPlatform(t *testing.T) {
	o := NewOrchestrator(&fakeTokens{})
	agg := o.Publish(context.Background(), platform.Content{Text: "x"}, nil,
		[]*models.SocialAccount{account(1, "myspace")})

	if agg.Failed != 1 {
		t.Fatalf("aggregate = %+v, want failure for unregistered platform", agg)
	}
	if agg.Results[0].Err.Kind != platform.KindUnavailable {
		t.Errorf("kind = %s, want %s", agg.Results[0].Err.Kind, platform.KindUnavailable)
	}
}

func TestPublishCarriesSkippedMedia(t *testing.T) {
	tokensSrc := &fakeTokens{}
	skipping := &skippingAdapter{name: platform.Twitter}
	o := NewOrchestrator(tokensSrc, skipping)

	agg := o.Publish(context.Background(), platform.Content{Text: "v"},
		[]*media.Asset{{MIME: "video/mp4", Kind: media.KindVideo, Size: media.MB}},
		[]*models.SocialAccount{account(1, platform.Twitter)})

	if agg.Succeeded != 1 {
		t.Fatalf("aggregate = %+v, want degraded publish to count as success", agg)
	}
	if len(agg.Results[0].Skipped) != 1 {
		t.Errorf("skipped = %+v, want the dropped item surfaced", agg.Results[0].Skipped)
	}
}

// skippingAdapter degrades every asset to a skip, like the text-only
// fallback.
type skippingAdapter struct {
	name string
}

func (s *skippingAdapter) Platform() string { return s.name }

func (s *skippingAdapter) UploadMedia(ctx context.Context, creds platform.Credentials, account *models.SocialAccount, content platform.Content, assets []*media.Asset) (*platform.UploadOutcome, error) {
	outcome := &platform.UploadOutcome{}
	for i := range assets {
		outcome.Skipped = append(outcome.Skipped, platform.SkippedMedia{Index: i, Reason: "cannot attach"})
	}
	return outcome, nil
}

func (s *skippingAdapter) PublishPost(ctx context.Context, creds platform.Credentials, account *models.SocialAccount, content platform.Content, outcome *platform.UploadOutcome) (string, error) {
	return "degraded-post", nil
}
