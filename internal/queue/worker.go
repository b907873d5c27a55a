package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/crosspost/internal/media"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
)

func (j *Queue) HandleSchedulePostTask(ctx context.Context, task *asynq.Task) error {
	var payload SchedulePostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	return j.PublishPost(ctx, payload.PostID)
}

// PublishPost loads the stored post graph, fans it out through the
// orchestrator and records one posting_history row per account.
func (j *Queue) PublishPost(ctx context.Context, postID int64) error {
	post, err := j.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		return fmt.Errorf("post %d not found", postID)
	}

	accountsSelected, err := j.sa.ListByPostID(ctx, postID)
	if err != nil {
		return err
	}
	if accountsSelected == nil {
		return errors.New("no accounts selected for publishing")
	}

	var accounts []*models.SocialAccount
	for _, acc := range accountsSelected {
		socialAcc, err := j.ac.GetByID(ctx, acc.AccountID)
		if err != nil {
			log.Printf("Error retrieving social account for AccountID %d: %v", acc.AccountID, err)
			continue
		}
		if socialAcc == nil {
			log.Printf("Social account for AccountID %d is nil", acc.AccountID)
			continue
		}
		accounts = append(accounts, socialAcc)
	}
	if len(accounts) == 0 {
		return errors.New("no publishable accounts for post")
	}

	assets, err := j.loadAssets(ctx, postID)
	if err != nil {
		return err
	}

	content := platform.Content{Text: post.Caption}
	agg := j.orch.Publish(ctx, content, assets, accounts)

	for _, result := range agg.Results {
		history := models.PostingHistory{
			UserID:         post.UserID,
			PostID:         postID,
			AccountID:      result.AccountID,
			PlatformPostID: result.PostID,
		}
		if result.Err != nil {
			history.ErrorKind = string(result.Err.Kind)
			history.ErrorMessage = result.Err.Message
			log.Printf("Error posting to %s for PostID %d: %v", result.Platform, postID, result.Err)
		}
		if _, err := j.ph.Create(ctx, &history); err != nil {
			log.Printf("Error saving posting history for PostID %d: %v", postID, err)
		}
	}

	status := models.PostStatusPosted
	if agg.Succeeded == 0 {
		status = models.PostStatusFailed
	}
	if err := j.pr.UpdatePostStatus(ctx, status, postID); err != nil {
		log.Printf("Error updating status for PostID %d: %v", postID, err)
	}

	return nil
}

// loadAssets pulls every media row of the post back out of R2 in display
// order. The asset keeps its public URL so URL-based platforms skip the
// bytes entirely.
func (j *Queue) loadAssets(ctx context.Context, postID int64) ([]*media.Asset, error) {
	postMedias, err := j.pm.ListByPostID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error fetching post media for PostID %d: %w", postID, err)
	}

	var assets []*media.Asset
	for _, pm := range postMedias {
		mediaAsset, err := j.ma.GetByID(ctx, pm.AssetID)
		if err != nil {
			return nil, fmt.Errorf("error retrieving media asset for AssetID %d: %w", pm.AssetID, err)
		}
		if mediaAsset == nil || mediaAsset.FileURL == "" {
			return nil, fmt.Errorf("media asset is missing or incomplete for AssetID %d", pm.AssetID)
		}

		asset, err := media.Normalize(ctx, j.client, mediaAsset.FileURL)
		if err != nil {
			return nil, fmt.Errorf("error fetching media for AssetID %d: %w", pm.AssetID, err)
		}
		assets = append(assets, asset)
	}

	return assets, nil
}
