package platform

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/maheshrc27/crosspost/internal/media"
	"github.com/maheshrc27/crosspost/internal/models"
)

// linkedinServer fakes registerUpload, the binary upload target and ugcPosts.
type linkedinServer struct {
	mu            sync.Mutex
	baseURL       string
	registerCount int
	uploadCount   int
	uploadStatus  []int // per-call status override, 201 when exhausted
	ugcStatus     []int // per-call status override, 201 when exhausted
	ugcRequests   []*http.Request
	ugcBodies     [][]byte
	ugcBodyEmpty  bool
}

func (s *linkedinServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		switch r.URL.Path {
		case "/v2/assets":
			s.registerCount++
			resp := map[string]interface{}{
				"value": map[string]interface{}{
					"asset": "urn:li:digitalmediaAsset:abc",
					"uploadMechanism": map[string]interface{}{
						"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest": map[string]string{
							"uploadUrl": s.baseURL + "/upload-target",
						},
					},
				},
			}
			json.NewEncoder(w).Encode(resp)

		case "/upload-target":
			status := http.StatusCreated
			if s.uploadCount < len(s.uploadStatus) {
				status = s.uploadStatus[s.uploadCount]
			}
			s.uploadCount++
			w.WriteHeader(status)

		case "/v2/ugcPosts":
			body, _ := io.ReadAll(r.Body)
			s.ugcRequests = append(s.ugcRequests, r)
			s.ugcBodies = append(s.ugcBodies, body)
			status := http.StatusCreated
			if len(s.ugcRequests)-1 < len(s.ugcStatus) {
				status = s.ugcStatus[len(s.ugcRequests)-1]
			}
			if status >= 300 {
				w.WriteHeader(status)
				return
			}
			if s.ugcBodyEmpty {
				w.Header().Set("X-RestLi-Id", "urn:li:share:header-id")
				w.WriteHeader(status)
				w.Write([]byte(`{}`))
				return
			}
			w.WriteHeader(status)
			w.Write([]byte(`{"id":"urn:li:share:123"}`))

		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newLinkedinFixture(t *testing.T, s *linkedinServer) (*LinkedinAdapter, func()) {
	srv := httptest.NewServer(s.handler(t))
	s.baseURL = srv.URL
	a := &LinkedinAdapter{BaseURL: srv.URL, Client: srv.Client()}
	return a, srv.Close
}

func TestLinkedinUploadAndPublish(t *testing.T) {
	s := &linkedinServer{}
	a, done := newLinkedinFixture(t, s)
	defer done()

	creds := Credentials{AccessToken: "li-token"}
	account := &models.SocialAccount{AccountID: "person-1"}
	assets := []*media.Asset{
		{Bytes: []byte("img"), MIME: "image/png", Size: 3, Kind: media.KindImage},
	}

	outcome, err := a.UploadMedia(context.Background(), creds, account, Content{}, assets)
	if err != nil {
		t.Fatalf("UploadMedia: %v", err)
	}
	if len(outcome.Handles) != 1 || outcome.Handles[0].Ref != "urn:li:digitalmediaAsset:abc" {
		t.Fatalf("handles = %+v, want registered asset urn", outcome.Handles)
	}

	id, err := a.PublishPost(context.Background(), creds, account, Content{Text: "hello network"}, outcome)
	if err != nil {
		t.Fatalf("PublishPost: %v", err)
	}
	if id != "urn:li:share:123" {
		t.Errorf("post id = %q, want urn:li:share:123", id)
	}

	if len(s.ugcRequests) != 1 {
		t.Fatalf("ugcPosts calls = %d, want 1", len(s.ugcRequests))
	}
	if got := s.ugcRequests[0].Header.Get(restliHeader); got != restliVersion {
		t.Errorf("%s = %q, want %q", restliHeader, got, restliVersion)
	}

	var post map[string]interface{}
	json.Unmarshal(s.ugcBodies[0], &post)
	if post["author"] != "urn:li:person:person-1" {
		t.Errorf("author = %v, want urn:li:person:person-1", post["author"])
	}
	share := post["specificContent"].(map[string]interface{})["com.linkedin.ugc.ShareContent"].(map[string]interface{})
	if share["shareMediaCategory"] != "IMAGE" {
		t.Errorf("shareMediaCategory = %v, want IMAGE", share["shareMediaCategory"])
	}
	mediaList := share["media"].([]interface{})
	if len(mediaList) != 1 {
		t.Fatalf("media entries = %d, want 1", len(mediaList))
	}
	entry := mediaList[0].(map[string]interface{})
	if entry["status"] != "READY" || entry["media"] != "urn:li:digitalmediaAsset:abc" {
		t.Errorf("media entry = %v, want READY asset urn", entry)
	}
}

func TestLinkedinSkipsFailedImage(t *testing.T) {
	s := &linkedinServer{uploadStatus: []int{http.StatusBadRequest}}
	a, done := newLinkedinFixture(t, s)
	defer done()

	assets := []*media.Asset{
		{Bytes: []byte("bad"), MIME: "image/png", Size: 3, Kind: media.KindImage},
		{Bytes: []byte("good"), MIME: "image/jpeg", Size: 4, Kind: media.KindImage},
	}

	outcome, err := a.UploadMedia(context.Background(), Credentials{AccessToken: "li"}, &models.SocialAccount{AccountID: "p"}, Content{}, assets)
	if err != nil {
		t.Fatalf("UploadMedia: %v", err)
	}
	if len(outcome.Handles) != 1 {
		t.Errorf("handles = %d, want 1 surviving upload", len(outcome.Handles))
	}
	if len(outcome.Skipped) != 1 || outcome.Skipped[0].Index != 0 {
		t.Errorf("skipped = %+v, want first item skipped", outcome.Skipped)
	}
}

func TestLinkedinAuthExpiredAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := &LinkedinAdapter{BaseURL: srv.URL, Client: srv.Client()}
	assets := []*media.Asset{
		{Bytes: []byte("img"), MIME: "image/png", Size: 3, Kind: media.KindImage},
	}

	_, err := a.UploadMedia(context.Background(), Credentials{AccessToken: "stale"}, &models.SocialAccount{AccountID: "p"}, Content{}, assets)
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != KindAuthExpired {
		t.Fatalf("error = %v, want kind %s", err, KindAuthExpired)
	}
}

func TestLinkedinPublishRetriesWithReducedHeaders(t *testing.T) {
	s := &linkedinServer{ugcStatus: []int{http.StatusInternalServerError}}
	a, done := newLinkedinFixture(t, s)
	defer done()

	id, err := a.PublishPost(context.Background(), Credentials{AccessToken: "li"}, &models.SocialAccount{AccountID: "p"}, Content{Text: "hi"}, &UploadOutcome{})
	if err != nil {
		t.Fatalf("PublishPost: %v", err)
	}
	if id != "urn:li:share:123" {
		t.Errorf("post id = %q, want urn:li:share:123", id)
	}

	if len(s.ugcRequests) != 2 {
		t.Fatalf("ugcPosts calls = %d, want primary plus retry", len(s.ugcRequests))
	}
	if got := s.ugcRequests[0].Header.Get(restliHeader); got == "" {
		t.Error("primary attempt should carry the Restli protocol header")
	}
	if got := s.ugcRequests[1].Header.Get(restliHeader); got != "" {
		t.Errorf("retry carried %s = %q, want header dropped", restliHeader, got)
	}
}

func TestLinkedinTextOnlyCategory(t *testing.T) {
	s := &linkedinServer{}
	a, done := newLinkedinFixture(t, s)
	defer done()

	if _, err := a.PublishPost(context.Background(), Credentials{AccessToken: "li"}, &models.SocialAccount{AccountID: "p"}, Content{Text: "just text"}, nil); err != nil {
		t.Fatalf("PublishPost: %v", err)
	}

	var post map[string]interface{}
	json.Unmarshal(s.ugcBodies[0], &post)
	share := post["specificContent"].(map[string]interface{})["com.linkedin.ugc.ShareContent"].(map[string]interface{})
	if share["shareMediaCategory"] != "NONE" {
		t.Errorf("shareMediaCategory = %v, want NONE", share["shareMediaCategory"])
	}
	if body := string(s.ugcBodies[0]); strings.Contains(body, `"media":[{`) {
		t.Errorf("text-only post carried media entries: %s", body)
	}
}

func TestLinkedinPostIDFromHeader(t *testing.T) {
	s := &linkedinServer{ugcBodyEmpty: true}
	a, done := newLinkedinFixture(t, s)
	defer done()

	id, err := a.PublishPost(context.Background(), Credentials{AccessToken: "li"}, &models.SocialAccount{AccountID: "p"}, Content{Text: "hi"}, nil)
	if err != nil {
		t.Fatalf("PublishPost: %v", err)
	}
	if id != "urn:li:share:header-id" {
		t.Errorf("post id = %q, want value from X-RestLi-Id header", id)
	}
}

func TestLinkedinVideoCategory(t *testing.T) {
	s := &linkedinServer{}
	a, done := newLinkedinFixture(t, s)
	defer done()

	outcome := &UploadOutcome{Handles: []UploadHandle{
		{Ref: "urn:li:digitalmediaAsset:img", Kind: media.KindImage},
		{Ref: "urn:li:digitalmediaAsset:vid", Kind: media.KindVideo},
	}}

	if _, err := a.PublishPost(context.Background(), Credentials{AccessToken: "li"}, &models.SocialAccount{AccountID: "p"}, Content{Text: "mixed"}, outcome); err != nil {
		t.Fatalf("PublishPost: %v", err)
	}

	var post map[string]interface{}
	json.Unmarshal(s.ugcBodies[0], &post)
	share := post["specificContent"].(map[string]interface{})["com.linkedin.ugc.ShareContent"].(map[string]interface{})
	if share["shareMediaCategory"] != "VIDEO" {
		t.Errorf("shareMediaCategory = %v, want VIDEO when any handle is video", share["shareMediaCategory"])
	}
}
