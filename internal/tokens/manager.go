// Package tokens owns the OAuth credential lifecycle: decryption, proactive
// refresh ahead of expiry, single-flight deduplication of concurrent
// refreshes, and write-through persistence of rotated tokens.
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"github.com/maheshrc27/crosspost/pkg/oauth1"
	"github.com/maheshrc27/crosspost/pkg/utils"
)

// expirySkew is how far ahead of the recorded expiry a token is already
// treated as expired, so a publish never starts with a token about to die.
const expirySkew = 5 * time.Minute

// Manager hands out ready-to-use credentials for one account at a time.
// Endpoint URLs and the clock are fields so tests can point the refresh
// grants at a local server.
type Manager struct {
	cfg      *config.Config
	accounts repository.SocialAccountRepository
	group    singleflight.Group

	Client              *http.Client
	Now                 func() time.Time
	TwitterTokenURL     string
	LinkedinTokenURL    string
	InstagramRefreshURL string
}

func NewManager(cfg *config.Config, accounts repository.SocialAccountRepository) *Manager {
	return &Manager{
		cfg:                 cfg,
		accounts:            accounts,
		Client:              &http.Client{Timeout: 30 * time.Second},
		Now:                 time.Now,
		TwitterTokenURL:     "https://api.twitter.com/2/oauth2/token",
		LinkedinTokenURL:    "https://www.linkedin.com/oauth/v2/accessToken",
		InstagramRefreshURL: "https://graph.instagram.com/refresh_access_token",
	}
}

// AccountStates is the result of checking every account a user selected.
// Invalid holds accounts whose check failed without proving the grant is
// gone, such as a refresh endpoint outage; those need a retry, not a
// reconnect.
type AccountStates struct {
	Valid             []*models.SocialAccount
	Invalid           []*models.SocialAccount
	NeedsReconnection []*models.SocialAccount
}

// GetValidToken returns decrypted credentials for the account, refreshing
// first when the stored token is expired or inside the skew window.
// Concurrent calls for the same account share one refresh.
func (m *Manager) GetValidToken(ctx context.Context, accountID int64) (platform.Credentials, *models.SocialAccount, error) {
	sa, err := m.accounts.GetByID(ctx, accountID)
	if err != nil {
		return platform.Credentials{}, nil, err
	}
	if sa == nil {
		return platform.Credentials{}, nil, fmt.Errorf("social account %d not found", accountID)
	}

	if !sa.IsActive() {
		return platform.Credentials{}, sa, &platform.Error{
			Kind:     platform.KindAuthExpired,
			Platform: sa.Platform,
			Message:  "account needs reconnection",
		}
	}

	if m.needsRefresh(sa) {
		v, err, _ := m.group.Do(strconv.FormatInt(sa.ID, 10), func() (interface{}, error) {
			return m.refresh(ctx, sa)
		})
		if err != nil {
			return platform.Credentials{}, sa, err
		}
		sa = v.(*models.SocialAccount)
	}

	creds, err := m.decryptCredentials(sa)
	if err != nil {
		return platform.Credentials{}, sa, err
	}
	return creds, sa, nil
}

// ValidateAccounts checks every active account of the user and buckets them
// by whether a usable token could be produced. Only a dead grant lands the
// account in NeedsReconnection; any other failure goes to Invalid. A failed
// account never aborts the check.
func (m *Manager) ValidateAccounts(ctx context.Context, userID int64) (*AccountStates, error) {
	accounts, err := m.accounts.ListInfoByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	states := &AccountStates{}
	for _, info := range accounts {
		if info.AccountStatus != models.AccountStatusActive {
			states.NeedsReconnection = append(states.NeedsReconnection, info)
			continue
		}
		if _, _, err := m.GetValidToken(ctx, info.ID); err != nil {
			slog.Info("token validation failed", "account_id", info.ID, "error", err.Error())
			if platform.AsError(info.Platform, err).Kind == platform.KindAuthExpired {
				states.NeedsReconnection = append(states.NeedsReconnection, info)
			} else {
				states.Invalid = append(states.Invalid, info)
			}
			continue
		}
		states.Valid = append(states.Valid, info)
	}

	return states, nil
}

func (m *Manager) needsRefresh(sa *models.SocialAccount) bool {
	if sa.TokenExpiresAt.IsZero() {
		return false
	}
	return !sa.TokenExpiresAt.After(m.Now().Add(expirySkew))
}

// Refresh forces a refresh regardless of the stored expiry. The cron sweep
// uses this for accounts expiring inside its window.
func (m *Manager) Refresh(ctx context.Context, sa *models.SocialAccount) error {
	_, err, _ := m.group.Do(strconv.FormatInt(sa.ID, 10), func() (interface{}, error) {
		return m.refresh(ctx, sa)
	})
	return err
}

// refresh rotates the token with the platform, persists the result and
// returns the updated row. Any failure that means the grant is gone flips
// the account to needs_reconnection.
func (m *Manager) refresh(ctx context.Context, sa *models.SocialAccount) (*models.SocialAccount, error) {
	var newToken, newRefresh string
	var expiresAt time.Time
	var err error

	switch sa.Platform {
	case platform.Instagram:
		newToken, expiresAt, err = m.refreshInstagram(ctx, sa)
	default:
		newToken, newRefresh, expiresAt, err = m.refreshOAuth2(ctx, sa)
	}
	if err != nil {
		kind := refreshFailureKind(err)
		if kind != platform.KindAuthExpired {
			return nil, &platform.Error{
				Kind:     kind,
				Platform: sa.Platform,
				Message:  "token refresh failed",
				Err:      err,
			}
		}
		if stErr := m.accounts.SetStatus(ctx, sa.ID, models.AccountStatusNeedsReconnection); stErr != nil {
			slog.Info("failed to mark account for reconnection", "account_id", sa.ID, "error", stErr.Error())
		}
		return nil, &platform.Error{
			Kind:     platform.KindAuthExpired,
			Platform: sa.Platform,
			Message:  "token refresh failed, account needs reconnection",
			Err:      err,
		}
	}

	encToken, err := utils.Encrypt([]byte(newToken), []byte(m.cfg.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("encrypt access token: %w", err)
	}
	var encRefresh string
	if newRefresh != "" {
		encRefresh, err = utils.Encrypt([]byte(newRefresh), []byte(m.cfg.SecretKey))
		if err != nil {
			return nil, fmt.Errorf("encrypt refresh token: %w", err)
		}
	}

	updated := *sa
	updated.AccessToken = encToken
	if encRefresh != "" {
		updated.RefreshToken = encRefresh
	}
	updated.TokenExpiresAt = expiresAt

	if err := m.accounts.SetToken(ctx, sa.ID, &updated); err != nil {
		return nil, fmt.Errorf("persist refreshed token: %w", err)
	}

	slog.Info("token refreshed", "account_id", sa.ID, "platform", sa.Platform,
		"expires_at", expiresAt.Format(time.RFC3339))
	return &updated, nil
}

// refreshFailureKind decides whether a refresh failure means the grant is
// gone. Only a definitive rejection of the grant deactivates the account;
// network errors and platform outages stay retryable.
func refreshFailureKind(err error) platform.Kind {
	var pe *platform.Error
	if errors.As(err, &pe) {
		return pe.Kind
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr.Response != nil {
		switch {
		case rerr.Response.StatusCode == http.StatusTooManyRequests:
			return platform.KindRateLimited
		case rerr.Response.StatusCode >= 400 && rerr.Response.StatusCode < 500:
			return platform.KindAuthExpired
		}
	}

	return platform.KindUnavailable
}

// refreshOAuth2 runs the refresh-token grant for twitter and linkedin
// through the oauth2 transport so client authentication and retries follow
// the library's behavior.
func (m *Manager) refreshOAuth2(ctx context.Context, sa *models.SocialAccount) (token, refresh string, expiresAt time.Time, err error) {
	refreshToken, err := m.decrypt(sa.RefreshToken)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("decrypt refresh token: %w", err)
	}
	if refreshToken == "" {
		// Nothing to retry with; only a fresh user grant can recover this.
		return "", "", time.Time{}, &platform.Error{
			Kind:     platform.KindAuthExpired,
			Platform: sa.Platform,
			Message:  fmt.Sprintf("no refresh token stored for account %d", sa.ID),
		}
	}

	var conf *oauth2.Config
	switch sa.Platform {
	case platform.Twitter:
		conf = &oauth2.Config{
			ClientID:     m.cfg.TwitterClientID,
			ClientSecret: m.cfg.TwitterClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: m.TwitterTokenURL},
		}
	case platform.Linkedin:
		conf = &oauth2.Config{
			ClientID:     m.cfg.LinkedinClientID,
			ClientSecret: m.cfg.LinkedinClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: m.LinkedinTokenURL},
		}
	default:
		return "", "", time.Time{}, fmt.Errorf("unsupported platform %q", sa.Platform)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.Client)
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("refresh grant: %w", err)
	}

	return tok.AccessToken, tok.RefreshToken, tok.Expiry, nil
}

// refreshInstagram exchanges a long-lived token for a fresh one. Instagram
// has no refresh token; the access token refreshes itself while still valid.
func (m *Manager) refreshInstagram(ctx context.Context, sa *models.SocialAccount) (string, time.Time, error) {
	accessToken, err := m.decrypt(sa.AccessToken)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("decrypt access token: %w", err)
	}

	q := url.Values{
		"grant_type":   {"ig_refresh_token"},
		"access_token": {accessToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.InstagramRefreshURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := m.Client.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		kind := platform.KindUnavailable
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			kind = platform.KindRateLimited
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			kind = platform.KindAuthExpired
		}
		return "", time.Time{}, &platform.Error{
			Kind:     kind,
			Platform: sa.Platform,
			Message:  fmt.Sprintf("refresh request returned status %d", resp.StatusCode),
		}
	}

	var result transfer.InstagramRefreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", time.Time{}, fmt.Errorf("decode refresh response: %w", err)
	}
	if result.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("refresh response missing access token")
	}

	return result.AccessToken, m.Now().Add(time.Duration(result.ExpiresIn) * time.Second), nil
}

// decryptCredentials produces the plaintext credential set an adapter needs.
// The OAuth 1.0a pair only exists for twitter accounts that connected it.
func (m *Manager) decryptCredentials(sa *models.SocialAccount) (platform.Credentials, error) {
	accessToken, err := m.decrypt(sa.AccessToken)
	if err != nil {
		return platform.Credentials{}, fmt.Errorf("decrypt access token: %w", err)
	}

	creds := platform.Credentials{AccessToken: accessToken}

	if sa.Platform == platform.Twitter && sa.OAuth1Token != "" && sa.OAuth1TokenSecret != "" {
		token, err := m.decrypt(sa.OAuth1Token)
		if err != nil {
			return platform.Credentials{}, fmt.Errorf("decrypt oauth1 token: %w", err)
		}
		secret, err := m.decrypt(sa.OAuth1TokenSecret)
		if err != nil {
			return platform.Credentials{}, fmt.Errorf("decrypt oauth1 token secret: %w", err)
		}
		creds.OAuth1 = &oauth1.Credentials{
			ConsumerKey:    m.cfg.TwitterConsumerKey,
			ConsumerSecret: m.cfg.TwitterConsumerSecret,
			Token:          token,
			TokenSecret:    secret,
		}
	}

	return creds, nil
}

func (m *Manager) decrypt(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	return utils.Decrypt(value, []byte(m.cfg.SecretKey))
}
