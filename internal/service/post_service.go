package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"time"

	"github.com/maheshrc27/crosspost/internal/media"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/storage"
	"github.com/maheshrc27/crosspost/internal/transfer"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type PostService interface {
	CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) (int64, time.Duration, error)
	List(ctx context.Context, userID int64) ([]*models.Post, error)
	PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error)
	History(ctx context.Context, userID int64) ([]*models.PostingHistory, error)
	Remove(ctx context.Context, userID, postID int64) error
}

type postService struct {
	db *sql.DB
	pr repository.PostRepository
	sa repository.SelectedAccountRepository
	ac repository.SocialAccountRepository
	ma repository.MediaAssetRepository
	pm repository.PostMediaRepository
	ph repository.PostingHistoryRepository
	r2 *storage.R2Service
}

func NewPostService(
	db *sql.DB,
	pr repository.PostRepository,
	sa repository.SelectedAccountRepository,
	ma repository.MediaAssetRepository,
	ac repository.SocialAccountRepository,
	pm repository.PostMediaRepository,
	ph repository.PostingHistoryRepository,
	r2 *storage.R2Service) PostService {
	return &postService{
		db: db,
		pr: pr,
		sa: sa,
		ac: ac,
		ma: ma,
		pm: pm,
		ph: ph,
		r2: r2,
	}
}

// CreatePost validates the submission, stores every file in R2, writes the
// post graph in one transaction and returns the queue delay until the
// scheduled time. Media is validated here against every selected platform so
// a doomed post is rejected before it is ever queued.
func (s *postService) CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) (int64, time.Duration, error) {
	if pc == nil {
		err := errors.New("post creation data is nil")
		slog.Error(err.Error())
		return 0, 0, err
	}
	if pc.Caption == "" {
		err := errors.New("caption cannot be empty")
		slog.Info(err.Error())
		return 0, 0, err
	}

	scheduledTime, err := time.Parse("2006-01-02T15:04", pc.ScheduledTime)
	if err != nil {
		err = fmt.Errorf("invalid scheduled time format: %w", err)
		slog.Error(err.Error())
		return 0, 0, err
	}

	var selectedAccounts []int
	if err := json.Unmarshal([]byte(pc.SelectedAccounts), &selectedAccounts); err != nil {
		err = fmt.Errorf("invalid selected accounts format: %w", err)
		slog.Error(err.Error())
		return 0, 0, err
	}
	if len(selectedAccounts) == 0 {
		err := errors.New("no social accounts selected")
		slog.Error(err.Error())
		return 0, 0, err
	}

	assets, err := s.readFiles(files)
	if err != nil {
		return 0, 0, err
	}

	platforms, err := s.checkSelectedAccounts(ctx, userID, selectedAccounts)
	if err != nil {
		return 0, 0, err
	}
	for _, platformName := range platforms {
		for _, asset := range assets {
			if err := media.ValidateForPlatform(asset, platformName); err != nil {
				slog.Info(err.Error())
				return 0, 0, err
			}
		}
	}

	postType := models.PostTypeSingle
	if len(files) > 1 {
		postType = models.PostTypeMultiple
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	post := models.Post{
		UserID:        userID,
		PostType:      postType,
		Caption:       pc.Caption,
		Title:         pc.Title,
		ScheduledTime: scheduledTime,
		Status:        models.PostStatusScheduled,
	}

	postID, err := s.pr.Create(ctx, tx, &post)
	if err != nil {
		return 0, 0, fmt.Errorf("error creating post: %w", err)
	}

	if err = s.saveSelectedAccounts(ctx, tx, postID, selectedAccounts); err != nil {
		return 0, 0, fmt.Errorf("error processing selected accounts: %w", err)
	}

	if err = s.saveAssets(ctx, tx, userID, postID, assets); err != nil {
		return 0, 0, fmt.Errorf("error processing files: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	delay := time.Until(scheduledTime)
	if delay < 0 {
		delay = 0
	}

	return postID, delay, nil
}

func (s *postService) readFiles(files []*multipart.FileHeader) ([]*media.Asset, error) {
	if len(files) == 0 {
		return nil, errors.New("no files provided for the post")
	}

	assets := make([]*media.Asset, 0, len(files))
	for _, file := range files {
		fileContent, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("error opening file: %w", err)
		}
		fileBytes, err := io.ReadAll(fileContent)
		fileContent.Close()
		if err != nil {
			return nil, fmt.Errorf("error reading file content: %w", err)
		}

		asset, err := media.FromBytes(fileBytes)
		if err != nil {
			return nil, fmt.Errorf("unsupported file: %w", err)
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

// checkSelectedAccounts verifies ownership of every selected account and
// returns the distinct platforms they publish to.
func (s *postService) checkSelectedAccounts(ctx context.Context, userID int64, accounts []int) ([]string, error) {
	seen := map[string]struct{}{}
	var platforms []string
	for _, accountID := range accounts {
		exists, err := s.ac.CheckByUserID(ctx, int64(accountID), userID)
		if err != nil {
			return nil, fmt.Errorf("error checking social account %d: %w", accountID, err)
		}
		if !exists {
			return nil, fmt.Errorf("social account %d does not exist", accountID)
		}

		sa, err := s.ac.GetByID(ctx, int64(accountID))
		if err != nil || sa == nil {
			return nil, fmt.Errorf("error loading social account %d: %w", accountID, err)
		}
		if _, ok := seen[sa.Platform]; !ok {
			seen[sa.Platform] = struct{}{}
			platforms = append(platforms, sa.Platform)
		}
	}
	return platforms, nil
}

func (s *postService) saveSelectedAccounts(ctx context.Context, tx *sql.Tx, postID int64, accounts []int) error {
	for _, accountID := range accounts {
		account := models.SelectedAccount{
			PostID:    postID,
			AccountID: int64(accountID),
		}
		if err := s.sa.Create(ctx, tx, &account); err != nil {
			return fmt.Errorf("error saving selected account %d: %w", accountID, err)
		}
	}
	return nil
}

func (s *postService) saveAssets(ctx context.Context, tx *sql.Tx, userID, postID int64, assets []*media.Asset) error {
	for i, asset := range assets {
		assetID, err := s.saveFile(ctx, tx, userID, asset)
		if err != nil {
			return fmt.Errorf("error uploading file: %w", err)
		}

		postMedia := models.PostMedia{
			PostID:       postID,
			AssetID:      assetID,
			DisplayOrder: i,
		}
		if err := s.pm.Create(ctx, tx, &postMedia); err != nil {
			return fmt.Errorf("error saving media file: %w", err)
		}
	}
	return nil
}

func (s *postService) saveFile(ctx context.Context, tx *sql.Tx, userID int64, asset *media.Asset) (int64, error) {
	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	fileURL, err := s.r2.Upload(ctx, id, asset.Bytes, asset.MIME)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	ma := models.MediaAsset{
		UserID:   userID,
		FileName: id,
		FileType: asset.MIME,
		FileSize: asset.Size,
		FileURL:  fileURL,
	}

	assetID, err := s.ma.Create(ctx, tx, &ma)
	if err != nil {
		return 0, err
	}

	return assetID, nil
}

func (s *postService) PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error) {
	var err error

	if userID == 0 {
		err = errors.New("user is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	if postID == 0 {
		err = errors.New("post id is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}

	if !isValid {
		err = errors.New("post doesn't exist")
		slog.Info(err.Error())
		return nil, err
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error getting post info")
	}

	return post, nil
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.Post, error) {
	posts, err := s.pr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting posts")
	}
	return posts, nil
}

func (s *postService) History(ctx context.Context, userID int64) ([]*models.PostingHistory, error) {
	history, err := s.ph.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting posting history")
	}
	return history, nil
}

func (s *postService) Remove(ctx context.Context, userID, postID int64) error {
	var err error

	if userID == 0 {
		err = errors.New("user is not valid")
		slog.Info(err.Error())
		return err
	}

	if postID == 0 {
		err = errors.New("post_id is not valid")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return err
	}

	if !isValid {
		err = errors.New("post doesn't exist")
		slog.Info(err.Error())
		return err
	}

	err = s.pr.Remove(ctx, postID)
	if err != nil {
		return fmt.Errorf("error removing post")
	}

	return nil
}
