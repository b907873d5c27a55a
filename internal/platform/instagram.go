package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maheshrc27/crosspost/internal/media"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

const (
	instagramPollInterval = 10 * time.Second
	instagramMaxPolls     = 12

	// Container error code the Graph API returns for carousel items whose
	// aspect ratio is outside the accepted range.
	instagramAspectRatioCode = 2207009

	instagramMinCarouselItems = 2
	instagramMaxCarouselItems = 10
)

// InstagramAdapter publishes through the container flow: create a media
// container from a hosted URL, poll processing for video, then publish the
// creation id. Carousels create one container per item plus a wrapper.
type InstagramAdapter struct {
	BaseURL      string
	Client       *http.Client
	Sleep        func(ctx context.Context, d time.Duration) error
	PollInterval time.Duration
}

func NewInstagramAdapter() *InstagramAdapter {
	return &InstagramAdapter{
		BaseURL:      "https://graph.instagram.com/v21.0",
		Client:       &http.Client{Timeout: time.Minute},
		Sleep:        sleepContext,
		PollInterval: instagramPollInterval,
	}
}

func (a *InstagramAdapter) Platform() string {
	return Instagram
}

func (a *InstagramAdapter) UploadMedia(ctx context.Context, creds Credentials, account *models.SocialAccount, content Content, assets []*media.Asset) (*UploadOutcome, error) {
	for i, asset := range assets {
		if asset.URL == "" {
			return nil, newError(KindPayloadRejected, Instagram,
				"media item %d has no hosted URL; instagram requires publicly reachable media", i)
		}
	}

	if len(assets) > 1 {
		return a.uploadCarouselItems(ctx, creds, account, assets)
	}

	outcome := &UploadOutcome{}
	if len(assets) == 0 {
		return outcome, nil
	}

	asset := assets[0]
	containerID, err := a.createContainer(ctx, creds, account, containerParams(asset, content.Text, false))
	if err != nil {
		return nil, err
	}

	if asset.Kind == media.KindVideo {
		if err := a.awaitContainer(ctx, creds, containerID); err != nil {
			return nil, err
		}
	}

	outcome.Handles = append(outcome.Handles, UploadHandle{Ref: containerID, Kind: asset.Kind})
	return outcome, nil
}

// uploadCarouselItems creates one container per image. An aspect-ratio
// rejection skips the item; the carousel survives as long as at least two
// items succeed.
func (a *InstagramAdapter) uploadCarouselItems(ctx context.Context, creds Credentials, account *models.SocialAccount, assets []*media.Asset) (*UploadOutcome, error) {
	if len(assets) > instagramMaxCarouselItems {
		return nil, newError(KindPayloadRejected, Instagram,
			"carousels accept at most %d items, got %d", instagramMaxCarouselItems, len(assets))
	}
	for i, asset := range assets {
		if asset.Kind != media.KindImage {
			return nil, newError(KindPayloadRejected, Instagram,
				"carousel item %d is %s; carousels are image-only", i, asset.Kind)
		}
	}

	outcome := &UploadOutcome{}
	for i, asset := range assets {
		containerID, err := a.createContainer(ctx, creds, account, containerParams(asset, "", true))
		if err != nil {
			pe := AsError(Instagram, err)
			if pe.Kind == KindPayloadRejected {
				slog.Info("instagram: skipping carousel item", "index", i, "reason", pe.Message)
				outcome.Skipped = append(outcome.Skipped, SkippedMedia{Index: i, Reason: pe.Message})
				continue
			}
			return nil, pe
		}
		outcome.Handles = append(outcome.Handles, UploadHandle{Ref: containerID, Kind: media.KindImage})
	}

	if len(outcome.Handles) < instagramMinCarouselItems {
		reasons := make([]string, 0, len(outcome.Skipped))
		for _, s := range outcome.Skipped {
			reasons = append(reasons, fmt.Sprintf("item %d: %s", s.Index, s.Reason))
		}
		return nil, newError(KindPartialFailure, Instagram,
			"carousel needs at least %d publishable items, only %d survived (%s)",
			instagramMinCarouselItems, len(outcome.Handles), strings.Join(reasons, "; "))
	}

	return outcome, nil
}

func containerParams(asset *media.Asset, caption string, carouselItem bool) map[string]interface{} {
	params := map[string]interface{}{}
	if asset.Kind == media.KindVideo {
		params["video_url"] = asset.URL
		params["media_type"] = "VIDEO"
	} else {
		params["image_url"] = asset.URL
	}
	if caption != "" {
		params["caption"] = caption
	}
	if carouselItem {
		params["is_carousel_item"] = true
	}
	return params
}

func (a *InstagramAdapter) createContainer(ctx context.Context, creds Credentials, account *models.SocialAccount, params map[string]interface{}) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/media", a.BaseURL, account.AccountID)
	params["access_token"] = creds.AccessToken

	body, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return "", &Error{Kind: KindUnavailable, Platform: Instagram, Message: "create container", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", a.classifyGraphError(resp.StatusCode, respBody)
	}

	var result transfer.InstagramContainerResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}
	if result.ID == "" {
		return "", newError(KindUnavailable, Instagram, "no container id returned")
	}

	return result.ID, nil
}

// awaitContainer polls status_code at a fixed interval with a bounded
// attempt count. Exhausting the attempts without an explicit ERROR proceeds
// optimistically to publish rather than blocking the batch.
func (a *InstagramAdapter) awaitContainer(ctx context.Context, creds Credentials, containerID string) error {
	for attempt := 0; attempt < instagramMaxPolls; attempt++ {
		statusURL := fmt.Sprintf("%s/%s?fields=status_code&access_token=%s",
			a.BaseURL, containerID, url.QueryEscape(creds.AccessToken))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return fmt.Errorf("error creating request: %w", err)
		}

		resp, err := a.Client.Do(req)
		if err != nil {
			return &Error{Kind: KindUnavailable, Platform: Instagram, Message: "poll container status", Err: err}
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("error reading response body: %w", readErr)
		}
		if resp.StatusCode != http.StatusOK {
			return a.classifyGraphError(resp.StatusCode, respBody)
		}

		var status transfer.InstagramContainerStatus
		if err := json.Unmarshal(respBody, &status); err != nil {
			return fmt.Errorf("decode status response: %w", err)
		}

		switch status.StatusCode {
		case "FINISHED":
			return nil
		case "ERROR", "EXPIRED":
			return newError(KindProcessingFailed, Instagram,
				"container processing failed; likely causes are unsupported format, size, duration or codec")
		}

		if err := a.Sleep(ctx, a.PollInterval); err != nil {
			return newError(KindProcessingTimeout, Instagram, "container poll cancelled: %v", err)
		}
	}

	slog.Info("instagram: container still processing after poll budget, proceeding to publish",
		"container_id", containerID, "polls", instagramMaxPolls)
	return nil
}

func (a *InstagramAdapter) PublishPost(ctx context.Context, creds Credentials, account *models.SocialAccount, content Content, outcome *UploadOutcome) (string, error) {
	if outcome == nil || len(outcome.Handles) == 0 {
		return "", newError(KindPayloadRejected, Instagram, "instagram posts require at least one media item")
	}

	creationID := outcome.Handles[0].Ref

	// Two or more handles means carousel items waiting for their wrapper.
	if len(outcome.Handles) > 1 {
		children := make([]string, 0, len(outcome.Handles))
		for _, h := range outcome.Handles {
			children = append(children, h.Ref)
		}

		wrapperID, err := a.createContainer(ctx, creds, account, map[string]interface{}{
			"media_type": "CAROUSEL",
			"caption":    content.Text,
			"children":   children,
		})
		if err != nil {
			return "", err
		}
		creationID = wrapperID
	}

	endpoint := fmt.Sprintf("%s/%s/media_publish", a.BaseURL, account.AccountID)
	body, err := json.Marshal(map[string]string{
		"creation_id":  creationID,
		"access_token": creds.AccessToken,
	})
	if err != nil {
		return "", fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return "", &Error{Kind: KindUnavailable, Platform: Instagram, Message: "publish container", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", a.classifyGraphError(resp.StatusCode, respBody)
	}

	var result transfer.InstagramContainerResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}
	if result.ID == "" {
		return "", newError(KindUnavailable, Instagram, "no media id returned from publish")
	}

	return result.ID, nil
}

// classifyGraphError refines the HTTP status classification with the Graph
// API error envelope, in particular the aspect-ratio rejection code.
func (a *InstagramAdapter) classifyGraphError(status int, body []byte) *Error {
	var errResp transfer.InstagramErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		e := errResp.Error
		if e.Code == instagramAspectRatioCode || e.ErrorSubcode == instagramAspectRatioCode {
			return newError(KindPayloadRejected, Instagram, "aspect ratio not supported: %s", e.Message)
		}
		if e.Code == 4 || e.Code == 17 || e.Code == 32 {
			return newError(KindRateLimited, Instagram, "rate limited: %s", e.Message)
		}
		if e.Code == 190 {
			return newError(KindAuthExpired, Instagram, "access token rejected: %s", e.Message)
		}
		pe := classifyStatus(Instagram, status, e.Message)
		return pe
	}
	return classifyStatus(Instagram, status, string(body))
}
