// Package publisher fans one post out to every selected account. Each
// account publishes independently; one account's failure never blocks or
// fails the others.
package publisher

import (
	"context"
	"log/slog"
	"sync"

	"github.com/maheshrc27/crosspost/internal/media"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/internal/tokens"
)

const maxConcurrentPublishes = 10

// Result is the terminal outcome for one account in a batch.
type Result struct {
	AccountID int64
	Platform  string
	PostID    string
	Skipped   []platform.SkippedMedia
	Err       *platform.Error
}

// Aggregate summarizes a whole fan-out.
type Aggregate struct {
	Attempted int
	Succeeded int
	Failed    int
	Results   []Result
}

// TokenSource yields ready-to-use credentials for an account.
type TokenSource interface {
	GetValidToken(ctx context.Context, accountID int64) (platform.Credentials, *models.SocialAccount, error)
}

var _ TokenSource = (*tokens.Manager)(nil)

// Orchestrator runs the per-account pipeline: credentials, media validation,
// upload, publish.
type Orchestrator struct {
	tokens   TokenSource
	adapters map[string]platform.Adapter
}

func NewOrchestrator(source TokenSource, adapters ...platform.Adapter) *Orchestrator {
	byName := make(map[string]platform.Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Platform()] = a
	}
	return &Orchestrator{tokens: source, adapters: byName}
}

// Publish fans content out to every account with bounded concurrency and
// returns one Result per account, in the order the accounts were given.
func (o *Orchestrator) Publish(ctx context.Context, content platform.Content, assets []*media.Asset, accounts []*models.SocialAccount) *Aggregate {
	results := make([]Result, len(accounts))

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrentPublishes)

	for i, account := range accounts {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, account *models.SocialAccount) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = o.publishOne(ctx, content, assets, account)
		}(i, account)
	}
	wg.Wait()

	agg := &Aggregate{Attempted: len(accounts), Results: results}
	for _, r := range results {
		if r.Err == nil {
			agg.Succeeded++
		} else {
			agg.Failed++
		}
	}
	return agg
}

func (o *Orchestrator) publishOne(ctx context.Context, content platform.Content, assets []*media.Asset, account *models.SocialAccount) Result {
	result := Result{AccountID: account.ID, Platform: account.Platform}

	adapter, ok := o.adapters[account.Platform]
	if !ok {
		result.Err = &platform.Error{
			Kind:     platform.KindUnavailable,
			Platform: account.Platform,
			Message:  "no adapter registered for platform",
		}
		return result
	}

	creds, _, err := o.tokens.GetValidToken(ctx, account.ID)
	if err != nil {
		result.Err = platform.AsError(account.Platform, err)
		return result
	}

	for _, asset := range assets {
		if err := media.ValidateForPlatform(asset, account.Platform); err != nil {
			result.Err = &platform.Error{
				Kind:     platform.KindPayloadRejected,
				Platform: account.Platform,
				Message:  err.Error(),
			}
			return result
		}
	}

	outcome, err := adapter.UploadMedia(ctx, creds, account, content, assets)
	if err != nil {
		result.Err = platform.AsError(account.Platform, err)
		return result
	}
	if outcome != nil {
		result.Skipped = outcome.Skipped
	}

	postID, err := adapter.PublishPost(ctx, creds, account, content, outcome)
	if err != nil {
		result.Err = platform.AsError(account.Platform, err)
		return result
	}

	result.PostID = postID
	slog.Info("published", "platform", account.Platform, "account_id", account.ID, "post_id", postID)
	return result
}
