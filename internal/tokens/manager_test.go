package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/pkg/utils"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

// fakeAccountRepo is an in-memory stand-in for the credential store.
type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[int64]*models.SocialAccount
}

func newFakeAccountRepo(accounts ...*models.SocialAccount) *fakeAccountRepo {
	r := &fakeAccountRepo{accounts: map[int64]*models.SocialAccount{}}
	for _, sa := range accounts {
		r.accounts[sa.ID] = sa
	}
	return r
}

func (r *fakeAccountRepo) Create(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[sa.ID] = sa
	return sa.ID, nil
}

func (r *fakeAccountRepo) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sa, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *sa
	return &cp, nil
}

func (r *fakeAccountRepo) GetByPlatformAccount(ctx context.Context, userID int64, platformName, accountID string) (*models.SocialAccount, error) {
	return nil, nil
}

func (r *fakeAccountRepo) ListActiveByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SocialAccount
	for _, sa := range r.accounts {
		if sa.UserID == userID && sa.AccountStatus == models.AccountStatusActive {
			cp := *sa
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) ListInfoByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SocialAccount
	for _, sa := range r.accounts {
		if sa.UserID == userID {
			cp := *sa
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) ListByTimeInterval(ctx context.Context, initialTime, finalTime time.Time) ([]*models.SocialAccount, error) {
	return nil, nil
}

func (r *fakeAccountRepo) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	return true, nil
}

func (r *fakeAccountRepo) SetToken(ctx context.Context, accountID int64, sa *models.SocialAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.accounts[accountID]
	if !ok {
		return errors.New("no rows affected; account may not exist")
	}
	if sa.AccessToken != "" {
		stored.AccessToken = sa.AccessToken
	}
	if sa.RefreshToken != "" {
		stored.RefreshToken = sa.RefreshToken
	}
	if !sa.TokenExpiresAt.IsZero() {
		stored.TokenExpiresAt = sa.TokenExpiresAt
	}
	return nil
}

func (r *fakeAccountRepo) SetStatus(ctx context.Context, accountID int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sa, ok := r.accounts[accountID]; ok {
		sa.AccountStatus = status
	}
	return nil
}

func (r *fakeAccountRepo) Remove(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts, id)
	return nil
}

func (r *fakeAccountRepo) status(id int64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[id].AccountStatus
}

func (r *fakeAccountRepo) accessToken(id int64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[id].AccessToken
}

func testConfig() *config.Config {
	return &config.Config{
		SecretKey:             string(testKey),
		TwitterClientID:       "tw-client",
		TwitterClientSecret:   "tw-secret",
		TwitterConsumerKey:    "consumer-key",
		TwitterConsumerSecret: "consumer-secret",
		LinkedinClientID:      "li-client",
		LinkedinClientSecret:  "li-secret",
	}
}

func encrypt(t *testing.T, plain string) string {
	t.Helper()
	enc, err := utils.Encrypt([]byte(plain), testKey)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	return enc
}

func twitterAccount(t *testing.T, expiresAt time.Time) *models.SocialAccount {
	return &models.SocialAccount{
		ID:             1,
		UserID:         10,
		Platform:       platform.Twitter,
		AccountID:      "tw-acc",
		AccessToken:    encrypt(t, "old-access"),
		RefreshToken:   encrypt(t, "old-refresh"),
		TokenExpiresAt: expiresAt,
		AccountStatus:  models.AccountStatusActive,
	}
}

func TestGetValidTokenRefreshDeduplicates(t *testing.T) {
	var mu sync.Mutex
	refreshCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		refreshCalls++
		mu.Unlock()
		// Hold the response so every waiter piles onto the in-flight call.
		time.Sleep(150 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"fresh-access","refresh_token":"fresh-refresh","expires_in":7200,"token_type":"bearer"}`)
	}))
	defer srv.Close()

	repo := newFakeAccountRepo(twitterAccount(t, time.Now().Add(-time.Hour)))
	m := NewManager(testConfig(), repo)
	m.Client = srv.Client()
	m.TwitterTokenURL = srv.URL

	const callers = 10
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			creds, _, err := m.GetValidToken(context.Background(), 1)
			tokens[i], errs[i] = creds.AccessToken, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if tokens[i] != "fresh-access" {
			t.Errorf("caller %d token = %q, want fresh-access", i, tokens[i])
		}
	}
	if refreshCalls != 1 {
		t.Errorf("refresh grant calls = %d, want 1", refreshCalls)
	}

	// Write-through: the stored token decrypts to the rotated value.
	stored, err := utils.Decrypt(repo.accessToken(1), testKey)
	if err != nil {
		t.Fatalf("decrypt stored token: %v", err)
	}
	if stored != "fresh-access" {
		t.Errorf("stored token = %q, want fresh-access", stored)
	}
}

func TestGetValidTokenFreshTokenSkipsRefresh(t *testing.T) {
	refreshCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshCalls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	repo := newFakeAccountRepo(twitterAccount(t, time.Now().Add(time.Hour)))
	m := NewManager(testConfig(), repo)
	m.Client = srv.Client()
	m.TwitterTokenURL = srv.URL

	creds, sa, err := m.GetValidToken(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetValidToken: %v", err)
	}
	if creds.AccessToken != "old-access" {
		t.Errorf("token = %q, want decrypted stored token", creds.AccessToken)
	}
	if sa == nil || sa.ID != 1 {
		t.Errorf("account = %+v, want row 1", sa)
	}
	if refreshCalls != 0 {
		t.Errorf("refresh calls = %d, want 0 for a fresh token", refreshCalls)
	}
}

func TestGetValidTokenInsideSkewRefreshes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"fresh-access","expires_in":7200,"token_type":"bearer"}`)
	}))
	defer srv.Close()

	// Expires in two minutes, inside the five minute skew window.
	repo := newFakeAccountRepo(twitterAccount(t, time.Now().Add(2*time.Minute)))
	m := NewManager(testConfig(), repo)
	m.Client = srv.Client()
	m.TwitterTokenURL = srv.URL

	creds, _, err := m.GetValidToken(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetValidToken: %v", err)
	}
	if creds.AccessToken != "fresh-access" {
		t.Errorf("token = %q, want proactively refreshed token", creds.AccessToken)
	}
}

func TestGetValidTokenInactiveAccount(t *testing.T) {
	sa := twitterAccount(t, time.Now().Add(time.Hour))
	sa.AccountStatus = models.AccountStatusNeedsReconnection
	repo := newFakeAccountRepo(sa)
	m := NewManager(testConfig(), repo)

	_, _, err := m.GetValidToken(context.Background(), 1)
	var pe *platform.Error
	if !errors.As(err, &pe) || pe.Kind != platform.KindAuthExpired {
		t.Fatalf("error = %v, want kind %s", err, platform.KindAuthExpired)
	}
}

func TestRefreshFailureMarksReconnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
	}))
	defer srv.Close()

	repo := newFakeAccountRepo(twitterAccount(t, time.Now().Add(-time.Hour)))
	m := NewManager(testConfig(), repo)
	m.Client = srv.Client()
	m.TwitterTokenURL = srv.URL

	_, _, err := m.GetValidToken(context.Background(), 1)
	var pe *platform.Error
	if !errors.As(err, &pe) || pe.Kind != platform.KindAuthExpired {
		t.Fatalf("error = %v, want kind %s", err, platform.KindAuthExpired)
	}
	if got := repo.status(1); got != models.AccountStatusNeedsReconnection {
		t.Errorf("account status = %q, want %q", got, models.AccountStatusNeedsReconnection)
	}
}

func TestMissingRefreshTokenMarksReconnection(t *testing.T) {
	sa := twitterAccount(t, time.Now().Add(-time.Hour))
	sa.RefreshToken = ""
	repo := newFakeAccountRepo(sa)
	m := NewManager(testConfig(), repo)

	_, _, err := m.GetValidToken(context.Background(), 1)
	var pe *platform.Error
	if !errors.As(err, &pe) || pe.Kind != platform.KindAuthExpired {
		t.Fatalf("error = %v, want kind %s", err, platform.KindAuthExpired)
	}
	if got := repo.status(1); got != models.AccountStatusNeedsReconnection {
		t.Errorf("account status = %q, want %q", got, models.AccountStatusNeedsReconnection)
	}
}

func TestInstagramRefreshGrant(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"grant_type":   r.URL.Query().Get("grant_type"),
			"access_token": r.URL.Query().Get("access_token"),
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"fresh-ig","token_type":"bearer","expires_in":5184000}`)
	}))
	defer srv.Close()

	sa := &models.SocialAccount{
		ID:             2,
		UserID:         10,
		Platform:       platform.Instagram,
		AccountID:      "ig-acc",
		AccessToken:    encrypt(t, "old-ig"),
		TokenExpiresAt: time.Now().Add(-time.Hour),
		AccountStatus:  models.AccountStatusActive,
	}
	repo := newFakeAccountRepo(sa)
	m := NewManager(testConfig(), repo)
	m.Client = srv.Client()
	m.InstagramRefreshURL = srv.URL

	creds, _, err := m.GetValidToken(context.Background(), 2)
	if err != nil {
		t.Fatalf("GetValidToken: %v", err)
	}
	if creds.AccessToken != "fresh-ig" {
		t.Errorf("token = %q, want fresh-ig", creds.AccessToken)
	}
	if gotQuery["grant_type"] != "ig_refresh_token" {
		t.Errorf("grant_type = %q, want ig_refresh_token", gotQuery["grant_type"])
	}
	if gotQuery["access_token"] != "old-ig" {
		t.Errorf("access_token = %q, want the still-valid token", gotQuery["access_token"])
	}
}

func TestOAuth1CredentialsDecrypted(t *testing.T) {
	sa := twitterAccount(t, time.Now().Add(time.Hour))
	sa.OAuth1Token = encrypt(t, "oa1-token")
	sa.OAuth1TokenSecret = encrypt(t, "oa1-secret")
	repo := newFakeAccountRepo(sa)
	m := NewManager(testConfig(), repo)

	creds, _, err := m.GetValidToken(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetValidToken: %v", err)
	}
	if creds.OAuth1 == nil {
		t.Fatal("expected OAuth1 credentials")
	}
	if creds.OAuth1.ConsumerKey != "consumer-key" || creds.OAuth1.ConsumerSecret != "consumer-secret" {
		t.Errorf("consumer pair = %q/%q, want values from config", creds.OAuth1.ConsumerKey, creds.OAuth1.ConsumerSecret)
	}
	if creds.OAuth1.Token != "oa1-token" || creds.OAuth1.TokenSecret != "oa1-secret" {
		t.Errorf("token pair = %q/%q, want decrypted values", creds.OAuth1.Token, creds.OAuth1.TokenSecret)
	}
}

func TestValidateAccountsBuckets(t *testing.T) {
	// The refresh endpoint is down, so the expired account's check fails
	// without proving the grant is gone.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	active := twitterAccount(t, time.Now().Add(time.Hour))
	stale := twitterAccount(t, time.Now().Add(time.Hour))
	stale.ID = 3
	stale.AccountStatus = models.AccountStatusNeedsReconnection
	unreachable := twitterAccount(t, time.Now().Add(-time.Hour))
	unreachable.ID = 5
	repo := newFakeAccountRepo(active, stale, unreachable)
	m := NewManager(testConfig(), repo)
	m.Client = srv.Client()
	m.TwitterTokenURL = srv.URL

	states, err := m.ValidateAccounts(context.Background(), 10)
	if err != nil {
		t.Fatalf("ValidateAccounts: %v", err)
	}
	if len(states.Valid) != 1 || states.Valid[0].ID != 1 {
		t.Errorf("valid = %+v, want account 1", states.Valid)
	}
	if len(states.Invalid) != 1 || states.Invalid[0].ID != 5 {
		t.Errorf("invalid = %+v, want account 5", states.Invalid)
	}
	if len(states.NeedsReconnection) != 1 || states.NeedsReconnection[0].ID != 3 {
		t.Errorf("needs reconnection = %+v, want account 3", states.NeedsReconnection)
	}
	if got := repo.status(5); got != models.AccountStatusActive {
		t.Errorf("account 5 status = %q, want it left active after a transient failure", got)
	}
}

func TestRefreshEndpointOutageKeepsAccountActive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	repo := newFakeAccountRepo(twitterAccount(t, time.Now().Add(-time.Hour)))
	m := NewManager(testConfig(), repo)
	m.Client = srv.Client()
	m.TwitterTokenURL = srv.URL

	_, _, err := m.GetValidToken(context.Background(), 1)
	var pe *platform.Error
	if !errors.As(err, &pe) || pe.Kind != platform.KindUnavailable {
		t.Fatalf("error = %v, want kind %s", err, platform.KindUnavailable)
	}
	if got := repo.status(1); got != models.AccountStatusActive {
		t.Errorf("account status = %q, want %q after a transient failure", got, models.AccountStatusActive)
	}
}
