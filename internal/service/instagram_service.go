package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"github.com/maheshrc27/crosspost/pkg/utils"
)

type InstagramService interface {
	InstagramCallback(ctx context.Context, code string, userID int64) error
}

type instagramService struct {
	cfg *config.Config
	sa  repository.SocialAccountRepository

	oauthURL string
	graphURL string
}

func NewInstagramService(cfg *config.Config, sa repository.SocialAccountRepository) InstagramService {
	return &instagramService{
		cfg:      cfg,
		sa:       sa,
		oauthURL: "https://api.instagram.com/oauth/access_token",
		graphURL: "https://graph.instagram.com",
	}
}

// InstagramCallback exchanges the code for a long-lived token and upserts
// the account row. Instagram has no separate refresh token; the long-lived
// access token refreshes itself while still valid.
func (s *instagramService) InstagramCallback(ctx context.Context, code string, userID int64) error {
	if code == "" {
		err := errors.New("code is empty")
		slog.Info(err.Error())
		return err
	}

	if userID == 0 {
		err := errors.New("user not found")
		slog.Info(err.Error())
		return err
	}

	token, err := s.exchangeCodeForToken(ctx, code)
	if err != nil {
		return err
	}

	userInfo, err := s.getUserInfo(ctx, token.LongLivedToken)
	if err != nil {
		return err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	accountInfo := &models.SocialAccount{
		UserID:          userID,
		Platform:        platform.Instagram,
		AccountID:       userInfo.UserID,
		AccountName:     userInfo.Name,
		AccountUsername: userInfo.Username,
		ProfilePicture:  userInfo.ProfilePicture,
		AccessToken:     encryptedAccessToken,
		RefreshToken:    encryptedAccessToken,
		TokenExpiresAt:  token.ExpiresAt,
	}

	_, err = s.sa.Create(ctx, nil, accountInfo)
	if err != nil {
		return err
	}

	return nil
}

func (s *instagramService) getShortLivedToken(ctx context.Context, code string) (string, error) {
	data := url.Values{}
	data.Set("client_id", s.cfg.InstagramClientID)
	data.Set("client_secret", s.cfg.InstagramClientSecret)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", s.cfg.InstagramRedirectURI)
	data.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.oauthURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("failed to get short-lived token: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		AccessToken string `json:"access_token"`
		UserID      int    `json:"user_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if result.AccessToken == "" {
		return "", errors.New("no access token returned from instagram")
	}

	return result.AccessToken, nil
}

func (s *instagramService) getLongLivedToken(ctx context.Context, shortLivedToken string) (string, time.Time, error) {
	reqURL := fmt.Sprintf(
		"%s/access_token?grant_type=ig_exchange_token&client_secret=%s&access_token=%s",
		s.graphURL,
		s.cfg.InstagramClientSecret,
		url.QueryEscape(shortLivedToken),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", time.Time{}, fmt.Errorf("failed to get long-lived token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("error response from instagram: status code %d", resp.StatusCode)
	}

	var result transfer.InstagramRefreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return "", time.Time{}, fmt.Errorf("failed to decode long-lived token response: %w", err)
	}

	return result.AccessToken, time.Now().Add(time.Duration(result.ExpiresIn) * time.Second), nil
}

func (s *instagramService) exchangeCodeForToken(ctx context.Context, code string) (*transfer.InstagramToken, error) {
	shortLivedToken, err := s.getShortLivedToken(ctx, code)
	if err != nil {
		return nil, err
	}

	longLivedToken, expiresAt, err := s.getLongLivedToken(ctx, shortLivedToken)
	if err != nil {
		return nil, err
	}

	return &transfer.InstagramToken{
		AccessToken:    longLivedToken,
		LongLivedToken: longLivedToken,
		ExpiresAt:      expiresAt,
	}, nil
}

func (s *instagramService) getUserInfo(ctx context.Context, accessToken string) (*transfer.InstagramUserInfo, error) {
	reqURL := fmt.Sprintf(
		"%s/me?fields=id,username,name,account_type,profile_picture_url&access_token=%s",
		s.graphURL,
		url.QueryEscape(accessToken),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	var userInfo transfer.InstagramUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	if userInfo.UserID == "" {
		return nil, errors.New("no user id returned from instagram")
	}

	return &userInfo, nil
}
