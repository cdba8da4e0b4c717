package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/storyforge/api/internal/apperr"
	"github.com/storyforge/api/internal/client"
	"github.com/storyforge/api/internal/config"
	"github.com/storyforge/api/internal/model"
	"github.com/storyforge/api/internal/store"
	"github.com/storyforge/api/internal/websocket"
)

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

type fakeText struct {
	reply string
	err   error
}

func (f *fakeText) Generate(ctx context.Context, system, user string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}
func (f *fakeText) IsConfigured() bool { return true }

type fakeAssets struct {
	mu     sync.Mutex
	stored map[string][]byte
}

func newFakeAssets() *fakeAssets { return &fakeAssets{stored: map[string][]byte{}} }

func (f *fakeAssets) Store(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored[key] = data
	return "https://assets.test/" + key, nil
}
func (f *fakeAssets) Delete(ctx context.Context, key string) error { return nil }
func (f *fakeAssets) GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://assets.test/" + key, nil
}
func (f *fakeAssets) GetPublicURL(key string) string { return "https://assets.test/" + key }

type fakeTranscriber struct {
	mu     sync.Mutex
	polls  int
	result *client.TranscriptResult
}

func (f *fakeTranscriber) Submit(ctx context.Context, audioURL string) (string, error) {
	return "job-1", nil
}
func (f *fakeTranscriber) Poll(ctx context.Context, jobID string) (*client.TranscriptResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	return f.result, nil
}
func (f *fakeTranscriber) IsConfigured() bool { return true }

var testCredits = config.CreditsConfig{InitialGrant: 10}

// --- stories ---

func TestCreateGuided_DebitsAndEnqueues(t *testing.T) {
	stores := store.NewMemoryStores()
	enq := &fakeEnqueuer{}
	svc := NewStoryService(stores, enq, nil, testCredits)
	ctx := context.Background()

	resp, err := svc.CreateGuided(ctx, "u1", &model.StoryCreateRequest{Title: "T", Description: "a tale"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if resp.Status != model.StoryStatusProcessing {
		t.Errorf("status: got %q", resp.Status)
	}

	if bal, _ := stores.Credits.Balance(ctx, "u1"); bal != testCredits.InitialGrant-CreditCostStory {
		t.Errorf("balance: got %d", bal)
	}
	if len(enq.tasks) != 1 || enq.tasks[0].Type() != TaskTypeScript {
		t.Errorf("expected one script task, got %v", enq.tasks)
	}
}

func TestCreateGuided_InsufficientCredits(t *testing.T) {
	stores := store.NewMemoryStores()
	svc := NewStoryService(stores, &fakeEnqueuer{}, nil, config.CreditsConfig{InitialGrant: 0})
	ctx := context.Background()

	_, err := svc.CreateGuided(ctx, "u1", &model.StoryCreateRequest{Title: "T", Description: "d"})
	if !errors.Is(err, apperr.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}

	stories, _ := stores.Stories.ListByUser(ctx, "u1")
	if len(stories) != 0 {
		t.Error("a rejected request must not create a story")
	}
}

func TestGet_OwnershipChecks(t *testing.T) {
	stores := store.NewMemoryStores()
	svc := NewStoryService(stores, &fakeEnqueuer{}, nil, testCredits)
	ctx := context.Background()

	stores.Stories.Create(ctx, &model.Story{ID: "s1", UserID: "u1"})

	if _, err := svc.Get(ctx, "", "s1"); !errors.Is(err, apperr.ErrNotAuthenticated) {
		t.Errorf("anonymous: got %v", err)
	}
	if _, err := svc.Get(ctx, "u2", "s1"); !errors.Is(err, apperr.ErrNotAuthorized) {
		t.Errorf("other user: got %v", err)
	}
	if _, err := svc.Get(ctx, "u1", "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing: got %v", err)
	}
	if _, err := svc.Get(ctx, "u1", "s1"); err != nil {
		t.Errorf("owner: got %v", err)
	}
}

func TestUpdateScript_RejectedWhileProcessing(t *testing.T) {
	stores := store.NewMemoryStores()
	svc := NewStoryService(stores, &fakeEnqueuer{}, nil, testCredits)
	ctx := context.Background()

	stores.Stories.Create(ctx, &model.Story{ID: "s1", UserID: "u1", Status: model.StoryStatusProcessing})

	if _, err := svc.UpdateScript(ctx, "u1", "s1", "new text"); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestReview_RewritesAndStamps(t *testing.T) {
	stores := store.NewMemoryStores()
	svc := NewStoryService(stores, &fakeEnqueuer{}, &fakeText{reply: "Polished script."}, testCredits)
	ctx := context.Background()

	stores.Stories.Create(ctx, &model.Story{ID: "s1", UserID: "u1", Script: "rough script", Status: model.StoryStatusCompleted})

	story, err := svc.Review(ctx, "u1", "s1")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if story.Script != "Polished script." {
		t.Errorf("script: got %q", story.Script)
	}
	if story.ReviewedAt == nil {
		t.Error("ReviewedAt should be stamped")
	}
	if bal, _ := stores.Credits.Balance(ctx, "u1"); bal != testCredits.InitialGrant-CreditCostReview {
		t.Errorf("balance: got %d", bal)
	}
}

func TestClone_CopiesConvergedSegmentsOnly(t *testing.T) {
	stores := store.NewMemoryStores()
	svc := NewStoryService(stores, &fakeEnqueuer{}, nil, testCredits)
	ctx := context.Background()

	stores.Stories.Create(ctx, &model.Story{ID: "s1", UserID: "u1", Title: "Original", Script: "text", Status: model.StoryStatusCompleted})
	stores.Segments.Create(ctx, &model.Segment{ID: "a", StoryID: "s1", Order: 0, Text: "one", ImageURL: "https://assets.test/a.png"})
	stores.Segments.Create(ctx, &model.Segment{ID: "b", StoryID: "s1", Order: 1, Text: "two", IsGenerating: true})
	stores.Segments.Create(ctx, &model.Segment{ID: "c", StoryID: "s1", Order: 2, Text: "three", Error: "failed"})
	stores.Segments.Create(ctx, &model.Segment{ID: "d", StoryID: "s1", Order: 3, Text: "four", ImageURL: "https://assets.test/d.png"})

	resp, err := svc.Clone(ctx, "u1", "s1")
	if err != nil {
		t.Fatalf("clone: %v", err)
	}

	copied, _ := stores.Stories.Get(ctx, resp.StoryID)
	if !strings.HasSuffix(copied.Title, "(copy)") {
		t.Errorf("title: got %q", copied.Title)
	}

	segments, _ := stores.Segments.ListByStory(ctx, resp.StoryID)
	if len(segments) != 2 {
		t.Fatalf("expected 2 copied segments, got %d", len(segments))
	}
	// Orders are re-packed so the copy has no holes.
	if segments[0].Text != "one" || segments[0].Order != 0 {
		t.Errorf("segment 0: %+v", segments[0])
	}
	if segments[1].Text != "four" || segments[1].Order != 1 {
		t.Errorf("segment 1: %+v", segments[1])
	}
}

// --- segments ---

func TestGenerateSegments_OrientationImmutable(t *testing.T) {
	stores := store.NewMemoryStores()
	svc := NewSegmentService(stores, &fakeEnqueuer{}, testCredits)
	ctx := context.Background()

	stores.Stories.Create(ctx, &model.Story{
		ID: "s1", UserID: "u1", Script: "Some script.", Status: model.StoryStatusCompleted,
		Orientation: model.OrientationVertical,
	})
	stores.Segments.Create(ctx, &model.Segment{ID: "a", StoryID: "s1", Order: 0, Text: "one"})

	_, err := svc.Generate(ctx, "u1", "s1", &model.SegmentsGenerateRequest{Orientation: model.OrientationHorizontal})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected ErrConflict on orientation change, got %v", err)
	}

	// Re-running with the same orientation is allowed.
	if _, err := svc.Generate(ctx, "u1", "s1", &model.SegmentsGenerateRequest{Orientation: model.OrientationVertical}); err != nil {
		t.Fatalf("same orientation: %v", err)
	}
}

func TestGenerateSegments_RequiresScript(t *testing.T) {
	stores := store.NewMemoryStores()
	svc := NewSegmentService(stores, &fakeEnqueuer{}, testCredits)
	ctx := context.Background()

	stores.Stories.Create(ctx, &model.Story{ID: "s1", UserID: "u1", Status: model.StoryStatusDraft})

	_, err := svc.Generate(ctx, "u1", "s1", &model.SegmentsGenerateRequest{Orientation: model.OrientationVertical})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected ErrConflict for scriptless story, got %v", err)
	}
}

func TestAddSegment_AppendsAtEnd(t *testing.T) {
	stores := store.NewMemoryStores()
	enq := &fakeEnqueuer{}
	svc := NewSegmentService(stores, enq, testCredits)
	ctx := context.Background()

	stores.Stories.Create(ctx, &model.Story{ID: "s1", UserID: "u1", Context: "noir city"})
	stores.Segments.Create(ctx, &model.Segment{ID: "a", StoryID: "s1", Order: 0, Text: "one"})
	stores.Segments.Create(ctx, &model.Segment{ID: "b", StoryID: "s1", Order: 1, Text: "two"})

	seg, err := svc.Add(ctx, "u1", "s1", &model.SegmentAddRequest{Text: "three"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if seg.Order != 2 {
		t.Errorf("order: got %d, want 2", seg.Order)
	}
	if !seg.IsGenerating {
		t.Error("new segment should be generating its image")
	}
	if len(enq.tasks) != 1 || enq.tasks[0].Type() != TaskTypeImage {
		t.Errorf("expected one image task, got %d", len(enq.tasks))
	}
}

func TestRegenerateImage_RejectedWhileInFlight(t *testing.T) {
	stores := store.NewMemoryStores()
	svc := NewSegmentService(stores, &fakeEnqueuer{}, testCredits)
	ctx := context.Background()

	stores.Stories.Create(ctx, &model.Story{ID: "s1", UserID: "u1"})
	stores.Segments.Create(ctx, &model.Segment{ID: "a", StoryID: "s1", Order: 0, Text: "one", IsGenerating: true})

	_, err := svc.RegenerateImage(ctx, "u1", "s1", "a")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

// --- videos ---

func newVideoService(stores *store.Stores, enq Enqueuer, tr client.Transcriber, assets client.AssetStore) *VideoService {
	return NewVideoService(stores, enq, tr, assets, nil, websocket.NewHub(), testCredits)
}

func TestGenerateVideo_RequiresConvergedSegments(t *testing.T) {
	stores := store.NewMemoryStores()
	svc := newVideoService(stores, &fakeEnqueuer{}, &fakeTranscriber{}, newFakeAssets())
	ctx := context.Background()

	stores.Stories.Create(ctx, &model.Story{ID: "s1", UserID: "u1", Script: "text"})

	// No segments at all.
	req := &model.VideoGenerateRequest{VoiceID: "voice-a"}
	if _, err := svc.Generate(ctx, "u1", "s1", req); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("no segments: got %v", err)
	}

	// A segment still generating blocks the video.
	stores.Segments.Create(ctx, &model.Segment{ID: "a", StoryID: "s1", Order: 0, IsGenerating: true})
	if _, err := svc.Generate(ctx, "u1", "s1", req); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("generating segment: got %v", err)
	}
}

func TestGenerateVideo_CreatesPendingRecord(t *testing.T) {
	stores := store.NewMemoryStores()
	enq := &fakeEnqueuer{}
	svc := newVideoService(stores, enq, &fakeTranscriber{}, newFakeAssets())
	ctx := context.Background()

	stores.Stories.Create(ctx, &model.Story{ID: "s1", UserID: "u1", Script: "text"})
	stores.Segments.Create(ctx, &model.Segment{ID: "a", StoryID: "s1", Order: 0, ImageURL: "https://assets.test/a.png"})

	resp, err := svc.Generate(ctx, "u1", "s1", &model.VideoGenerateRequest{
		VoiceID: "voice-a", IncludeCaptions: true, CaptionPosition: model.CaptionPositionBottom,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Status != model.VideoStatusPending {
		t.Errorf("status: got %q", resp.Status)
	}

	video, _ := stores.Videos.Get(ctx, resp.VideoID)
	if !video.IncludeCaptions {
		t.Error("IncludeCaptions should persist")
	}
	story, _ := stores.Stories.Get(ctx, "s1")
	if story.VoiceID != "voice-a" || story.CaptionPosition != model.CaptionPositionBottom {
		t.Errorf("voice settings not persisted: %+v", story)
	}
	if len(enq.tasks) != 1 || enq.tasks[0].Type() != TaskTypeVideo {
		t.Errorf("expected one pipeline task, got %d", len(enq.tasks))
	}
	if bal, _ := stores.Credits.Balance(ctx, "u1"); bal != testCredits.InitialGrant-CreditCostVideo {
		t.Errorf("balance: got %d", bal)
	}
}

func speaker(n int) *int { return &n }

func TestPollTranscription_CompletesAndIsIdempotent(t *testing.T) {
	stores := store.NewMemoryStores()
	assets := newFakeAssets()
	tr := &fakeTranscriber{result: &client.TranscriptResult{
		Status: client.TranscriptStatusCompleted,
		Text:   "Hello there",
		Words: []model.Word{
			{Text: "Hello", Start: 0, End: 400, Speaker: speaker(0)},
			{Text: "there", Start: 400, End: 800, Speaker: speaker(0)},
		},
	}}
	svc := newVideoService(stores, &fakeEnqueuer{}, tr, assets)
	ctx := context.Background()

	stores.Stories.Create(ctx, &model.Story{ID: "s1", UserID: "u1"})
	stores.Videos.Create(ctx, &model.Video{
		ID: "v1", StoryID: "s1", Status: model.VideoStatusTranscribing,
		TranscriptionJobID: "job-1", IncludeCaptions: true,
	})

	resp, err := svc.PollTranscription(ctx, "u1", "v1")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if resp.Status != client.TranscriptStatusCompleted || resp.CaptionsURL == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	vtt := string(assets.stored["videos/v1/captions.vtt"])
	if !strings.HasPrefix(vtt, "WEBVTT") {
		t.Errorf("captions document: got %q", vtt)
	}
	if !strings.Contains(vtt, "<v Speaker 0>Hello there</v>") {
		t.Errorf("missing voice span: %q", vtt)
	}

	video, _ := stores.Videos.Get(ctx, "v1")
	if video.Status != model.VideoStatusCompleted {
		t.Errorf("status: got %q", video.Status)
	}
	if len(video.TranscriptionWords) != 2 {
		t.Errorf("words: got %d", len(video.TranscriptionWords))
	}

	// A second poll serves the stored result without touching the vendor.
	if _, err := svc.PollTranscription(ctx, "u1", "v1"); err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if tr.polls != 1 {
		t.Errorf("vendor polled %d times, want 1", tr.polls)
	}
}

func TestPollTranscription_ProcessingMutatesNothing(t *testing.T) {
	stores := store.NewMemoryStores()
	tr := &fakeTranscriber{result: &client.TranscriptResult{Status: client.TranscriptStatusProcessing}}
	svc := newVideoService(stores, &fakeEnqueuer{}, tr, newFakeAssets())
	ctx := context.Background()

	stores.Stories.Create(ctx, &model.Story{ID: "s1", UserID: "u1"})
	stores.Videos.Create(ctx, &model.Video{
		ID: "v1", StoryID: "s1", Status: model.VideoStatusTranscribing, TranscriptionJobID: "job-1",
	})

	resp, err := svc.PollTranscription(ctx, "u1", "v1")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if resp.Status != client.TranscriptStatusProcessing {
		t.Errorf("status: got %q", resp.Status)
	}

	video, _ := stores.Videos.Get(ctx, "v1")
	if video.Status != model.VideoStatusTranscribing || video.CaptionsURL != "" {
		t.Errorf("processing poll mutated the video: %+v", video)
	}
}

func TestPollTranscription_VendorErrorFailsVideo(t *testing.T) {
	stores := store.NewMemoryStores()
	tr := &fakeTranscriber{result: &client.TranscriptResult{Status: client.TranscriptStatusError, Error: "audio unreadable"}}
	svc := newVideoService(stores, &fakeEnqueuer{}, tr, newFakeAssets())
	ctx := context.Background()

	stores.Stories.Create(ctx, &model.Story{ID: "s1", UserID: "u1"})
	stores.Videos.Create(ctx, &model.Video{
		ID: "v1", StoryID: "s1", Status: model.VideoStatusTranscribing, TranscriptionJobID: "job-1",
	})

	resp, err := svc.PollTranscription(ctx, "u1", "v1")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if resp.Status != client.TranscriptStatusError || resp.Error != "audio unreadable" {
		t.Errorf("unexpected response: %+v", resp)
	}

	video, _ := stores.Videos.Get(ctx, "v1")
	if video.Status != model.VideoStatusError {
		t.Errorf("status: got %q", video.Status)
	}
}
