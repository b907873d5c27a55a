package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"github.com/maheshrc27/crosspost/pkg/utils"
)

type TwitterService interface {
	TwitterCallback(ctx context.Context, code string, userID int64) error
}

type twitterService struct {
	cfg *config.Config
	sa  repository.SocialAccountRepository

	tokenURL string
	apiURL   string
}

func NewTwitterService(cfg *config.Config, sa repository.SocialAccountRepository) TwitterService {
	return &twitterService{
		cfg:      cfg,
		sa:       sa,
		tokenURL: "https://api.twitter.com/2/oauth2/token",
		apiURL:   "https://api.twitter.com",
	}
}

// TwitterCallback exchanges the authorization code, loads the profile and
// upserts the account row with encrypted tokens.
func (s *twitterService) TwitterCallback(ctx context.Context, code string, userID int64) error {
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

	conf := &oauth2.Config{
		ClientID:     s.cfg.TwitterClientID,
		ClientSecret: s.cfg.TwitterClientSecret,
		RedirectURL:  s.cfg.TwitterRedirectURI,
		Endpoint:     oauth2.Endpoint{TokenURL: s.tokenURL},
	}

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("failed to exchange code: %w", err)
	}

	user, err := s.getTwitterUser(ctx, token.AccessToken)
	if err != nil {
		return err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}
	encryptedRefreshToken, err := utils.Encrypt([]byte(token.RefreshToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	accountInfo := &models.SocialAccount{
		UserID:          userID,
		Platform:        platform.Twitter,
		AccountID:       user.ID,
		AccountName:     user.Name,
		AccountUsername: user.Username,
		ProfilePicture:  user.ProfileImageURL,
		AccessToken:     encryptedAccessToken,
		RefreshToken:    encryptedRefreshToken,
		TokenExpiresAt:  token.Expiry,
	}

	_, err = s.sa.Create(ctx, nil, accountInfo)
	if err != nil {
		return err
	}

	return nil
}

func (s *twitterService) getTwitterUser(ctx context.Context, accessToken string) (*transfer.TwitterUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.apiURL+"/2/users/me?user.fields=profile_image_url", nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code from twitter: %d", resp.StatusCode)
	}

	var userResp transfer.TwitterUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&userResp); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	if userResp.Data.ID == "" {
		return nil, errors.New("no user id returned from twitter")
	}

	return &userResp.Data, nil
}
