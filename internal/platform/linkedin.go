package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/maheshrc27/crosspost/internal/media"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

const (
	linkedinImageRecipe = "urn:li:digitalmediaRecipe:feedshare-image"
	linkedinVideoRecipe = "urn:li:digitalmediaRecipe:feedshare-video"
	restliHeader        = "X-Restli-Protocol-Version"
	restliVersion       = "2.0.0"
)

// LinkedinAdapter publishes UGC posts through the two-step asset pipeline:
// register the upload, POST the raw bytes to the returned URL, then assemble
// the share referencing the asset URNs.
type LinkedinAdapter struct {
	BaseURL string
	Client  *http.Client
}

func NewLinkedinAdapter() *LinkedinAdapter {
	return &LinkedinAdapter{
		BaseURL: "https://api.linkedin.com",
		Client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (a *LinkedinAdapter) Platform() string {
	return Linkedin
}

func (a *LinkedinAdapter) authorURN(account *models.SocialAccount) string {
	return "urn:li:person:" + account.AccountID
}

func (a *LinkedinAdapter) UploadMedia(ctx context.Context, creds Credentials, account *models.SocialAccount, content Content, assets []*media.Asset) (*UploadOutcome, error) {
	outcome := &UploadOutcome{}

	// Each asset uploads independently; one bad image degrades the share to
	// fewer attachments instead of aborting the post.
	for i, asset := range assets {
		handle, err := a.uploadOne(ctx, creds, account, asset)
		if err != nil {
			pe := AsError(Linkedin, err)
			if pe.Kind == KindAuthExpired || pe.Kind == KindRateLimited {
				return nil, pe
			}
			slog.Info("linkedin: skipping media item after upload failure",
				"index", i, "error", err.Error())
			outcome.Skipped = append(outcome.Skipped, SkippedMedia{Index: i, Reason: pe.Message})
			continue
		}
		outcome.Handles = append(outcome.Handles, handle)
	}

	return outcome, nil
}

func (a *LinkedinAdapter) uploadOne(ctx context.Context, creds Credentials, account *models.SocialAccount, asset *media.Asset) (UploadHandle, error) {
	recipe := linkedinImageRecipe
	if asset.Kind == media.KindVideo {
		recipe = linkedinVideoRecipe
	}

	assetURN, uploadURL, err := a.registerUpload(ctx, creds, account, recipe)
	if err != nil {
		return UploadHandle{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(asset.Bytes))
	if err != nil {
		return UploadHandle{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Content-Type", asset.MIME)

	resp, err := a.Client.Do(req)
	if err != nil {
		return UploadHandle{}, &Error{Kind: KindUnavailable, Platform: Linkedin, Message: "binary upload", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return UploadHandle{}, classifyStatus(Linkedin, resp.StatusCode, string(respBody))
	}

	return UploadHandle{Ref: assetURN, Kind: asset.Kind}, nil
}

func (a *LinkedinAdapter) registerUpload(ctx context.Context, creds Credentials, account *models.SocialAccount, recipe string) (assetURN, uploadURL string, err error) {
	payload := transfer.LinkedinRegisterUploadRequest{
		RegisterUploadRequest: transfer.LinkedinRegisterUpload{
			Recipes: []string{recipe},
			Owner:   a.authorURN(account),
			ServiceRelationships: []transfer.LinkedinServiceRelationship{
				{RelationshipType: "OWNER", Identifier: "urn:li:userGeneratedContent"},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", "", fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.BaseURL+"/v2/assets?action=registerUpload", bytes.NewBuffer(body))
	if err != nil {
		return "", "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return "", "", &Error{Kind: KindUnavailable, Platform: Linkedin, Message: "register upload", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", "", classifyStatus(Linkedin, resp.StatusCode, string(respBody))
	}

	var result transfer.LinkedinRegisterUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", "", fmt.Errorf("error parsing response: %w", err)
	}

	mechanism, ok := result.Value.UploadMechanism["com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"]
	if !ok || mechanism.UploadURL == "" || result.Value.Asset == "" {
		return "", "", newError(KindUnavailable, Linkedin, "register upload response missing asset or upload url")
	}

	return result.Value.Asset, mechanism.UploadURL, nil
}

func (a *LinkedinAdapter) PublishPost(ctx context.Context, creds Credentials, account *models.SocialAccount, content Content, outcome *UploadOutcome) (string, error) {
	category := "NONE"
	var shareMedia []transfer.LinkedinShareMedia
	if outcome != nil {
		for _, h := range outcome.Handles {
			if h.Kind == media.KindVideo {
				category = "VIDEO"
			} else if category == "NONE" {
				category = "IMAGE"
			}
			shareMedia = append(shareMedia, transfer.LinkedinShareMedia{Status: "READY", Media: h.Ref})
		}
	}

	post := transfer.LinkedinUGCPost{
		Author:         a.authorURN(account),
		LifecycleState: "PUBLISHED",
		SpecificContent: map[string]transfer.LinkedinShareContent{
			"com.linkedin.ugc.ShareContent": {
				ShareCommentary:    transfer.LinkedinText{Text: content.Text},
				ShareMediaCategory: category,
				Media:              shareMedia,
			},
		},
		Visibility: map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	body, err := json.Marshal(post)
	if err != nil {
		return "", fmt.Errorf("error marshalling payload: %w", err)
	}

	id, err := a.postUGC(ctx, creds, body, true)
	if err == nil {
		return id, nil
	}

	// One simplified retry with the reduced header set before surfacing the
	// error.
	slog.Info("linkedin: primary ugc post failed, retrying with reduced headers", "error", err.Error())
	id, retryErr := a.postUGC(ctx, creds, body, false)
	if retryErr != nil {
		return "", err
	}
	return id, nil
}

func (a *LinkedinAdapter) postUGC(ctx context.Context, creds Credentials, body []byte, fullHeaders bool) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/v2/ugcPosts", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	if fullHeaders {
		req.Header.Set(restliHeader, restliVersion)
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return "", &Error{Kind: KindUnavailable, Platform: Linkedin, Message: "create ugc post", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", classifyStatus(Linkedin, resp.StatusCode, string(respBody))
	}

	var result transfer.LinkedinUGCPostResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}
	if result.ID == "" {
		if headerID := resp.Header.Get("X-RestLi-Id"); headerID != "" {
			return headerID, nil
		}
		return "", newError(KindUnavailable, Linkedin, "no post id returned")
	}

	return result.ID, nil
}
