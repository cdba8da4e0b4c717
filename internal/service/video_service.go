package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/storyforge/api/internal/apperr"
	"github.com/storyforge/api/internal/captions"
	"github.com/storyforge/api/internal/client"
	"github.com/storyforge/api/internal/config"
	"github.com/storyforge/api/internal/model"
	"github.com/storyforge/api/internal/store"
	"github.com/storyforge/api/internal/websocket"
)

// VideoService handles video records: creation, the transcription poll and
// the hand-off to compositing.
type VideoService struct {
	stores      *store.Stores
	tasks       Enqueuer
	transcriber client.Transcriber
	assets      client.AssetStore
	renderer    client.VideoRenderer
	hub         *websocket.Hub
	credits     config.CreditsConfig
}

func NewVideoService(
	stores *store.Stores,
	tasks Enqueuer,
	transcriber client.Transcriber,
	assets client.AssetStore,
	renderer client.VideoRenderer,
	hub *websocket.Hub,
	credits config.CreditsConfig,
) *VideoService {
	return &VideoService{
		stores:      stores,
		tasks:       tasks,
		transcriber: transcriber,
		assets:      assets,
		renderer:    renderer,
		hub:         hub,
		credits:     credits,
	}
}

func (s *VideoService) charge(ctx context.Context, userID string, amount int) error {
	if err := s.stores.Credits.Provision(ctx, userID, s.credits.InitialGrant); err != nil {
		return err
	}
	return s.stores.Credits.Consume(ctx, userID, amount)
}

// Generate creates a video record and starts the narration pipeline. All
// segment images must have converged first.
func (s *VideoService) Generate(ctx context.Context, userID, storyID string, req *model.VideoGenerateRequest) (*model.VideoGenerateResponse, error) {
	if _, err := verifyOwner(ctx, s.stores.Stories, userID, storyID); err != nil {
		return nil, err
	}

	segments, err := s.stores.Segments.ListByStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, apperr.ErrConflict
	}
	for _, seg := range segments {
		if seg.IsGenerating || seg.ImageURL == "" {
			return nil, apperr.ErrConflict
		}
	}

	if err := s.charge(ctx, userID, CreditCostVideo); err != nil {
		return nil, err
	}

	if _, err := s.stores.Stories.Update(ctx, storyID, func(st *model.Story) error {
		st.VoiceID = req.VoiceID
		if req.CaptionPosition != "" {
			st.CaptionPosition = req.CaptionPosition
		}
		if req.HighlightColor != "" {
			st.HighlightColor = req.HighlightColor
		}
		return nil
	}); err != nil {
		return nil, err
	}

	video := &model.Video{
		ID:              uuid.New().String(),
		StoryID:         storyID,
		Status:          model.VideoStatusPending,
		IncludeCaptions: req.IncludeCaptions,
		CreatedAt:       time.Now(),
	}
	if err := s.stores.Videos.Create(ctx, video); err != nil {
		return nil, fmt.Errorf("failed to save video: %w", err)
	}

	task, err := NewVideoTask(&model.VideoTaskPayload{
		VideoID: video.ID,
		StoryID: storyID,
		UserID:  userID,
		VoiceID: req.VoiceID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	if _, err := s.tasks.Enqueue(task, defaultTaskOpts(QueueMedia)...); err != nil {
		s.stores.Videos.Update(ctx, video.ID, func(v *model.Video) error {
			v.Status = model.VideoStatusError
			v.Error = "failed to queue video pipeline"
			return nil
		})
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.VideoGenerateResponse{VideoID: video.ID, Status: video.Status}, nil
}

// Get returns a video after checking the caller owns its story
func (s *VideoService) Get(ctx context.Context, userID, videoID string) (*model.Video, error) {
	video, err := s.stores.Videos.Get(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if _, err := verifyOwner(ctx, s.stores.Stories, userID, video.StoryID); err != nil {
		return nil, err
	}
	return video, nil
}

// Latest returns the newest video record of a story
func (s *VideoService) Latest(ctx context.Context, userID, storyID string) (*model.Video, error) {
	if _, err := verifyOwner(ctx, s.stores.Stories, userID, storyID); err != nil {
		return nil, err
	}
	return s.stores.Videos.LatestByStory(ctx, storyID)
}

// PollTranscription checks the transcription job of a video. The processing
// branch mutates nothing, so polls are safe to repeat; once captions have
// been persisted later polls return the stored result without touching the
// vendor again.
func (s *VideoService) PollTranscription(ctx context.Context, userID, videoID string) (*model.TranscriptionPollResponse, error) {
	video, err := s.Get(ctx, userID, videoID)
	if err != nil {
		return nil, err
	}

	switch {
	case video.Status == model.VideoStatusError:
		return &model.TranscriptionPollResponse{Status: client.TranscriptStatusError, Error: video.Error}, nil
	case video.CaptionsURL != "":
		return &model.TranscriptionPollResponse{Status: client.TranscriptStatusCompleted, CaptionsURL: video.CaptionsURL}, nil
	case video.Status == model.VideoStatusCompleted:
		// Completed without captions: the video was requested without them.
		return &model.TranscriptionPollResponse{Status: client.TranscriptStatusCompleted}, nil
	case video.Status != model.VideoStatusTranscribing || video.TranscriptionJobID == "":
		return &model.TranscriptionPollResponse{Status: client.TranscriptStatusProcessing}, nil
	}

	result, err := s.transcriber.Poll(ctx, video.TranscriptionJobID)
	if err != nil {
		return nil, err
	}

	switch result.Status {
	case client.TranscriptStatusProcessing:
		return &model.TranscriptionPollResponse{Status: client.TranscriptStatusProcessing}, nil

	case client.TranscriptStatusError:
		s.stores.Videos.Update(ctx, videoID, func(v *model.Video) error {
			v.Status = model.VideoStatusError
			v.Error = result.Error
			return nil
		})
		if s.credits.RefundOnFailure {
			s.stores.Credits.Refund(ctx, userID, CreditCostVideo)
		}
		s.hub.BroadcastError(video.StoryID, "TRANSCRIPTION_FAILED", result.Error)
		return &model.TranscriptionPollResponse{Status: client.TranscriptStatusError, Error: result.Error}, nil
	}

	return s.finishCaptions(ctx, video, result)
}

// finishCaptions persists the transcript, uploads the WebVTT document and
// either hands off to compositing or completes the video.
func (s *VideoService) finishCaptions(ctx context.Context, video *model.Video, result *client.TranscriptResult) (*model.TranscriptionPollResponse, error) {
	vtt := captions.Build(result.Words)

	key := fmt.Sprintf("videos/%s/captions.vtt", video.ID)
	captionsURL, err := s.assets.Store(ctx, key, []byte(vtt), "text/vtt")
	if err != nil {
		return nil, fmt.Errorf("failed to store captions: %w", err)
	}

	composing := s.renderer != nil && s.renderer.IsConfigured()

	now := time.Now()
	if _, err := s.stores.Videos.Update(ctx, video.ID, func(v *model.Video) error {
		v.TranscriptionText = result.Text
		v.TranscriptionWords = result.Words
		v.CaptionsURL = captionsURL
		v.CaptionsGeneratedAt = &now
		if !composing {
			v.Status = model.VideoStatusCompleted
		}
		return nil
	}); err != nil {
		return nil, err
	}

	s.hub.BroadcastStage(video.StoryID, "captions", "completed")

	if composing {
		task, err := NewComposeTask(&model.ComposeTaskPayload{VideoID: video.ID, StoryID: video.StoryID})
		if err != nil {
			return nil, fmt.Errorf("failed to create task: %w", err)
		}
		if _, err := s.tasks.Enqueue(task, defaultTaskOpts(QueueMedia)...); err != nil {
			return nil, fmt.Errorf("failed to enqueue task: %w", err)
		}
	}

	return &model.TranscriptionPollResponse{Status: client.TranscriptStatusCompleted, CaptionsURL: captionsURL}, nil
}
