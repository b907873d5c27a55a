package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/maheshrc27/crosspost/internal/media"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

const (
	twitterChunkSize      = 5 * 1024 * 1024
	twitterMaxStatusPolls = 10
	twitterMaxMediaIDs    = 4

	twitterVideoFallbackNote = "(video could not be attached: media upload authorization is missing)"
)

// TwitterAdapter publishes tweets. Media upload still requires OAuth 1.0a
// signed requests against the v1.1 upload endpoint; the tweet itself goes to
// the v2 endpoint with the OAuth2 bearer token.
type TwitterAdapter struct {
	UploadBaseURL string
	APIBaseURL    string
	Client        *http.Client
	Sleep         func(ctx context.Context, d time.Duration) error
}

func NewTwitterAdapter() *TwitterAdapter {
	return &TwitterAdapter{
		UploadBaseURL: "https://upload.twitter.com",
		APIBaseURL:    "https://api.twitter.com",
		Client:        &http.Client{Timeout: 2 * time.Minute},
		Sleep:         sleepContext,
	}
}

func (a *TwitterAdapter) Platform() string {
	return Twitter
}

func (a *TwitterAdapter) UploadMedia(ctx context.Context, creds Credentials, account *models.SocialAccount, content Content, assets []*media.Asset) (*UploadOutcome, error) {
	outcome := &UploadOutcome{}

	for i, asset := range assets {
		if creds.OAuth1 == nil {
			// The upload endpoint mandates OAuth 1.0a. Missing capability is
			// not a transient failure: degrade to a text-only tweet.
			outcome.Skipped = append(outcome.Skipped, SkippedMedia{
				Index:  i,
				Reason: "media upload requires OAuth 1.0a credentials",
			})
			outcome.Note = twitterVideoFallbackNote
			slog.Info("twitter: no OAuth 1.0a credentials, falling back to text-only post",
				"account_id", account.AccountID)
			continue
		}

		var handle UploadHandle
		var err error
		switch asset.Kind {
		case media.KindVideo:
			handle, err = a.uploadVideo(ctx, creds, asset)
		default:
			handle, err = a.uploadImage(ctx, creds, asset)
		}
		if err != nil {
			return nil, err
		}
		outcome.Handles = append(outcome.Handles, handle)
	}

	return outcome, nil
}

// uploadImage is the synchronous path: one multipart POST, handle returned
// immediately.
func (a *TwitterAdapter) uploadImage(ctx context.Context, creds Credentials, asset *media.Asset) (UploadHandle, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("media_category", "tweet_image"); err != nil {
		return UploadHandle{}, fmt.Errorf("write multipart field: %w", err)
	}
	part, err := writer.CreateFormFile("media", "media")
	if err != nil {
		return UploadHandle{}, fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(asset.Bytes); err != nil {
		return UploadHandle{}, fmt.Errorf("write media bytes: %w", err)
	}
	if err := writer.Close(); err != nil {
		return UploadHandle{}, fmt.Errorf("close multipart writer: %w", err)
	}

	resp, err := a.signedMultipart(ctx, creds, &body, writer.FormDataContentType())
	if err != nil {
		return UploadHandle{}, err
	}
	return UploadHandle{Ref: resp.MediaIDString, Kind: media.KindImage}, nil
}

// uploadVideo runs the 4-phase chunked state machine:
// INIT -> APPEND(0..n) -> FINALIZE -> STATUS polling.
func (a *TwitterAdapter) uploadVideo(ctx context.Context, creds Credentials, asset *media.Asset) (UploadHandle, error) {
	initResp, err := a.signedForm(ctx, creds, url.Values{
		"command":        {"INIT"},
		"total_bytes":    {strconv.FormatInt(asset.Size, 10)},
		"media_type":     {asset.MIME},
		"media_category": {"tweet_video"},
	})
	if err != nil {
		return UploadHandle{}, err
	}
	mediaID := initResp.MediaIDString

	for segment := 0; segment*twitterChunkSize < len(asset.Bytes); segment++ {
		start := segment * twitterChunkSize
		end := start + twitterChunkSize
		if end > len(asset.Bytes) {
			end = len(asset.Bytes)
		}
		if err := a.appendChunk(ctx, creds, mediaID, segment, asset.Bytes[start:end]); err != nil {
			return UploadHandle{}, err
		}
	}

	finalizeResp, err := a.signedForm(ctx, creds, url.Values{
		"command":  {"FINALIZE"},
		"media_id": {mediaID},
	})
	if err != nil {
		return UploadHandle{}, err
	}

	if err := a.awaitProcessing(ctx, creds, mediaID, finalizeResp.ProcessingInfo); err != nil {
		return UploadHandle{}, err
	}

	return UploadHandle{Ref: mediaID, Kind: media.KindVideo}, nil
}

func (a *TwitterAdapter) appendChunk(ctx context.Context, creds Credentials, mediaID string, segment int, chunk []byte) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	writer.WriteField("command", "APPEND")
	writer.WriteField("media_id", mediaID)
	writer.WriteField("segment_index", strconv.Itoa(segment))
	part, err := writer.CreateFormFile("media", "media")
	if err != nil {
		return fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(chunk); err != nil {
		return fmt.Errorf("write chunk: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.uploadURL(), &body)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	// Multipart bodies never participate in the signature base string.
	header, err := creds.OAuth1.Signer().AuthorizationHeader(http.MethodPost, a.uploadURL(), nil)
	if err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	req.Header.Set("Authorization", header)

	resp, err := a.Client.Do(req)
	if err != nil {
		return &Error{Kind: KindUnavailable, Platform: Twitter, Message: "append chunk", Err: err}
	}
	defer resp.Body.Close()

	// APPEND returns 2xx with an empty body.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return classifyStatus(Twitter, resp.StatusCode, string(respBody))
	}
	return nil
}

// awaitProcessing polls STATUS, honoring check_after_secs between polls and
// bounding the attempt count.
func (a *TwitterAdapter) awaitProcessing(ctx context.Context, creds Credentials, mediaID string, info *transfer.TwitterProcessingInfo) error {
	for attempt := 0; attempt < twitterMaxStatusPolls; attempt++ {
		if info == nil || info.State == "succeeded" {
			return nil
		}

		switch info.State {
		case "failed":
			msg := "video processing failed"
			if info.Error != nil {
				msg = fmt.Sprintf("video processing failed: %s: %s", info.Error.Name, info.Error.Message)
			}
			return newError(KindProcessingFailed, Twitter, "%s", msg)
		case "pending", "in_progress":
			wait := time.Duration(info.CheckAfterSecs) * time.Second
			if wait <= 0 {
				wait = time.Second
			}
			if err := a.Sleep(ctx, wait); err != nil {
				return newError(KindProcessingTimeout, Twitter, "video processing cancelled: %v", err)
			}
		default:
			return newError(KindProcessingFailed, Twitter, "unknown processing state %q", info.State)
		}

		statusURL := a.uploadURL() + "?command=STATUS&media_id=" + url.QueryEscape(mediaID)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return fmt.Errorf("error creating request: %w", err)
		}
		header, err := creds.OAuth1.Signer().AuthorizationHeader(http.MethodGet, statusURL, nil)
		if err != nil {
			return fmt.Errorf("sign request: %w", err)
		}
		req.Header.Set("Authorization", header)

		resp, err := a.Client.Do(req)
		if err != nil {
			return &Error{Kind: KindUnavailable, Platform: Twitter, Message: "poll media status", Err: err}
		}

		var statusResp transfer.TwitterMediaResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&statusResp)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return classifyStatus(Twitter, resp.StatusCode, "media status poll failed")
		}
		if decodeErr != nil {
			return fmt.Errorf("decode status response: %w", decodeErr)
		}
		info = statusResp.ProcessingInfo
	}

	return newError(KindProcessingTimeout, Twitter, "video still processing after %d status polls", twitterMaxStatusPolls)
}

func (a *TwitterAdapter) PublishPost(ctx context.Context, creds Credentials, account *models.SocialAccount, content Content, outcome *UploadOutcome) (string, error) {
	text := content.Text
	if outcome != nil && outcome.Note != "" {
		text = strings.TrimSpace(text + "\n\n" + outcome.Note)
	}

	tweet := transfer.TweetRequest{Text: text}
	if outcome != nil && len(outcome.Handles) > 0 {
		ids := make([]string, 0, len(outcome.Handles))
		for _, h := range outcome.Handles {
			ids = append(ids, h.Ref)
		}
		if len(ids) > twitterMaxMediaIDs {
			slog.Info("twitter: truncating media ids to platform maximum",
				"got", len(ids), "max", twitterMaxMediaIDs)
			ids = ids[:twitterMaxMediaIDs]
		}
		tweet.Media = &transfer.TweetMedia{MediaIDs: ids}
	}

	body, err := json.Marshal(tweet)
	if err != nil {
		return "", fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.APIBaseURL+"/2/tweets", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return "", &Error{Kind: KindUnavailable, Platform: Twitter, Message: "create tweet", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", classifyStatus(Twitter, resp.StatusCode, string(respBody))
	}

	var result transfer.TweetResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}
	if result.Data.ID == "" {
		return "", newError(KindUnavailable, Twitter, "no tweet id returned")
	}

	return result.Data.ID, nil
}

func (a *TwitterAdapter) uploadURL() string {
	return a.UploadBaseURL + "/1.1/media/upload.json"
}

// signedForm posts form-encoded parameters to the upload endpoint; the body
// parameters participate in the OAuth 1.0a signature.
func (a *TwitterAdapter) signedForm(ctx context.Context, creds Credentials, params url.Values) (*transfer.TwitterMediaResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.uploadURL(), strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	header, err := creds.OAuth1.Signer().AuthorizationHeader(http.MethodPost, a.uploadURL(), params)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	req.Header.Set("Authorization", header)

	return a.doMediaRequest(req)
}

func (a *TwitterAdapter) signedMultipart(ctx context.Context, creds Credentials, body *bytes.Buffer, contentType string) (*transfer.TwitterMediaResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.uploadURL(), body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	header, err := creds.OAuth1.Signer().AuthorizationHeader(http.MethodPost, a.uploadURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	req.Header.Set("Authorization", header)

	return a.doMediaRequest(req)
}

func (a *TwitterAdapter) doMediaRequest(req *http.Request) (*transfer.TwitterMediaResponse, error) {
	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Platform: Twitter, Message: "media upload", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(Twitter, resp.StatusCode, string(respBody))
	}

	var result transfer.TwitterMediaResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("error parsing response: %w", err)
	}
	if result.MediaIDString == "" && result.MediaID != 0 {
		result.MediaIDString = strconv.FormatInt(result.MediaID, 10)
	}
	if result.MediaIDString == "" {
		return nil, newError(KindUnavailable, Twitter, "no media id returned")
	}

	return &result, nil
}
