package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/pkg/utils"
)

const (
	TwitterAuthURL   = "https://twitter.com/i/oauth2/authorize"
	LinkedinAuthURL  = "https://www.linkedin.com/oauth/v2/authorization"
	InstagramAuthURL = "https://www.instagram.com/oauth/authorize"

	TwitterRevokeURL  = "https://api.twitter.com/2/oauth2/revoke"
	LinkedinRevokeURL = "https://www.linkedin.com/oauth/v2/revoke"
)

type PlatformService interface {
	GetAuthURL(ctx context.Context, platform, tokenString string) string
	List(ctx context.Context, userID int64) ([]*models.SocialAccount, error)
	Delete(ctx context.Context, userID, accountID int64) error
}

type platformService struct {
	cfg    *config.Config
	sa     repository.SocialAccountRepository
	client *http.Client

	twitterRevokeURL  string
	linkedinRevokeURL string
}

func NewPlatformService(cfg *config.Config, sa repository.SocialAccountRepository) PlatformService {
	return &platformService{
		cfg:               cfg,
		sa:                sa,
		client:            http.DefaultClient,
		twitterRevokeURL:  TwitterRevokeURL,
		linkedinRevokeURL: LinkedinRevokeURL,
	}
}

func (s *platformService) GetAuthURL(ctx context.Context, platformName, tokenString string) string {
	switch platformName {
	case platform.Twitter:
		params := url.Values{}
		params.Add("client_id", s.cfg.TwitterClientID)
		params.Add("scope", "tweet.read tweet.write users.read offline.access")
		params.Add("response_type", "code")
		params.Add("redirect_uri", s.cfg.TwitterRedirectURI)
		params.Add("state", tokenString)

		return fmt.Sprintf("%s?%s", TwitterAuthURL, params.Encode())

	case platform.Linkedin:
		params := url.Values{}
		params.Add("client_id", s.cfg.LinkedinClientID)
		params.Add("scope", "openid profile w_member_social")
		params.Add("response_type", "code")
		params.Add("redirect_uri", s.cfg.LinkedinRedirectURI)
		params.Add("state", tokenString)

		return fmt.Sprintf("%s?%s", LinkedinAuthURL, params.Encode())

	case platform.Instagram:
		params := url.Values{}
		params.Add("client_id", s.cfg.InstagramClientID)
		params.Add("scope", "instagram_business_basic,instagram_business_content_publish")
		params.Add("response_type", "code")
		params.Add("redirect_uri", s.cfg.InstagramRedirectURI)
		params.Add("state", tokenString)

		return fmt.Sprintf("%s?%s", InstagramAuthURL, params.Encode())

	default:
		return ""
	}
}

func (s *platformService) List(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	var err error

	if userID == 0 {
		err = errors.New("UserID is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	accounts, err := s.sa.ListInfoByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting social accounts")
	}

	return accounts, nil
}

func (s *platformService) Delete(ctx context.Context, userID, accountID int64) error {
	var err error

	if userID == 0 {
		err = errors.New("UserID is not valid")
		slog.Info(err.Error())
		return err
	}

	if accountID == 0 {
		err = errors.New("AccountID is not valid")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.sa.CheckByUserID(ctx, accountID, userID)
	if err != nil {
		return err
	}

	if !isValid {
		err = errors.New("social account doesn't exist")
		slog.Info(err.Error())
		return err
	}

	sa, err := s.sa.GetByID(ctx, accountID)
	if err == nil && sa != nil {
		if err := s.revokeToken(ctx, sa); err != nil {
			slog.Info("token revocation failed, removing account anyway: " + err.Error())
		}
	}

	err = s.sa.Remove(ctx, accountID)
	if err != nil {
		return fmt.Errorf("error removing account info")
	}

	return nil
}

// revokeToken tells the platform to invalidate the stored access token.
// Instagram has no revocation endpoint, so those tokens simply age out.
func (s *platformService) revokeToken(ctx context.Context, sa *models.SocialAccount) error {
	accessToken, err := utils.Decrypt(sa.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return fmt.Errorf("decrypt access token: %w", err)
	}

	var req *http.Request

	switch sa.Platform {
	case platform.Twitter:
		form := url.Values{}
		form.Add("token", accessToken)
		form.Add("client_id", s.cfg.TwitterClientID)
		form.Add("token_type_hint", "access_token")

		req, err = http.NewRequestWithContext(ctx, http.MethodPost, s.twitterRevokeURL, strings.NewReader(form.Encode()))
		if err != nil {
			return err
		}
		req.SetBasicAuth(s.cfg.TwitterClientID, s.cfg.TwitterClientSecret)

	case platform.Linkedin:
		form := url.Values{}
		form.Add("client_id", s.cfg.LinkedinClientID)
		form.Add("client_secret", s.cfg.LinkedinClientSecret)
		form.Add("token", accessToken)

		req, err = http.NewRequestWithContext(ctx, http.MethodPost, s.linkedinRevokeURL, strings.NewReader(form.Encode()))
		if err != nil {
			return err
		}

	default:
		return nil
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke request returned status %d", resp.StatusCode)
	}

	return nil
}
