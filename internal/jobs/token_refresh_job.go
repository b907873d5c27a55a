package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/tokens"
)

// TokenRefreshJob proactively rotates tokens expiring inside the sweep
// window so scheduled publishes never start with a dead token.
type TokenRefreshJob struct {
	sr repository.SocialAccountRepository
	tm *tokens.Manager
}

func NewTokenRefreshJob(sr repository.SocialAccountRepository, tm *tokens.Manager) *TokenRefreshJob {
	return &TokenRefreshJob{
		sr: sr,
		tm: tm,
	}
}

func (c *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	currentTime := time.Now()
	timeIn30Minutes := currentTime.Add(30 * time.Minute)

	accounts, err := c.sr.ListByTimeInterval(ctx, currentTime, timeIn30Minutes)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.SocialAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := c.tm.Refresh(ctx, acc); err != nil {
				slog.Info("unable to refresh token",
					"platform", acc.Platform, "account_id", acc.ID, "error", err.Error())
			}
		}(acc)
	}

	wg.Wait()
}
