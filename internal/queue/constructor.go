package queue

import (
	"net/http"
	"time"

	"github.com/maheshrc27/crosspost/internal/publisher"
	"github.com/maheshrc27/crosspost/internal/repository"
)

// Queue wires the delayed-task side of publishing: it loads the stored post
// graph when a task fires and hands it to the orchestrator.
type Queue struct {
	pr     repository.PostRepository
	sa     repository.SelectedAccountRepository
	ac     repository.SocialAccountRepository
	ma     repository.MediaAssetRepository
	pm     repository.PostMediaRepository
	ph     repository.PostingHistoryRepository
	orch   *publisher.Orchestrator
	client *http.Client
}

func NewQueue(
	pr repository.PostRepository,
	sa repository.SelectedAccountRepository,
	ma repository.MediaAssetRepository,
	ac repository.SocialAccountRepository,
	pm repository.PostMediaRepository,
	ph repository.PostingHistoryRepository,
	orch *publisher.Orchestrator) *Queue {
	return &Queue{
		pr:     pr,
		sa:     sa,
		ac:     ac,
		ma:     ma,
		pm:     pm,
		ph:     ph,
		orch:   orch,
		client: &http.Client{Timeout: 2 * time.Minute},
	}
}

const TaskTypeSchedulePost = "schedule:post"

type SchedulePostPayload struct {
	PostID int64 `json:"post_id"`
}
