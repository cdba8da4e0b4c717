package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/storyforge/api/internal/apperr"
	"github.com/storyforge/api/internal/config"
	"github.com/storyforge/api/internal/model"
	"github.com/storyforge/api/internal/store"
)

// SegmentService handles segmentation and per-segment image operations
type SegmentService struct {
	stores  *store.Stores
	tasks   Enqueuer
	credits config.CreditsConfig
}

func NewSegmentService(stores *store.Stores, tasks Enqueuer, credits config.CreditsConfig) *SegmentService {
	return &SegmentService{
		stores:  stores,
		tasks:   tasks,
		credits: credits,
	}
}

func (s *SegmentService) charge(ctx context.Context, userID string, amount int) error {
	if err := s.stores.Credits.Provision(ctx, userID, s.credits.InitialGrant); err != nil {
		return err
	}
	return s.stores.Credits.Consume(ctx, userID, amount)
}

// Generate splits the script into segments in the background and kicks off
// an image task per segment. The orientation is locked in by the first run;
// later runs must keep it because existing images assume it.
func (s *SegmentService) Generate(ctx context.Context, userID, storyID string, req *model.SegmentsGenerateRequest) (*model.Story, error) {
	story, err := verifyOwner(ctx, s.stores.Stories, userID, storyID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(story.Script) == "" {
		return nil, apperr.ErrConflict
	}
	if story.Status == model.StoryStatusProcessing {
		return nil, apperr.ErrConflict
	}

	count, err := s.stores.Segments.CountByStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if count > 0 && story.Orientation != "" && story.Orientation != req.Orientation {
		return nil, apperr.ErrConflict
	}

	if err := s.charge(ctx, userID, CreditCostSegments); err != nil {
		return nil, err
	}

	updated, err := s.stores.Stories.Update(ctx, storyID, func(st *model.Story) error {
		st.Orientation = req.Orientation
		st.Status = model.StoryStatusProcessing
		st.Error = ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	task, err := NewSegmentsTask(&model.SegmentsTaskPayload{
		StoryID: storyID,
		UserID:  userID,
		Script:  story.Script,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	if _, err := s.tasks.Enqueue(task, defaultTaskOpts(QueueStories)...); err != nil {
		s.stores.Stories.Update(ctx, storyID, func(st *model.Story) error {
			st.Status = model.StoryStatusError
			st.Error = "failed to queue segmentation"
			return nil
		})
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return updated, nil
}

// List returns the story's segments in order
func (s *SegmentService) List(ctx context.Context, userID, storyID string) ([]*model.Segment, error) {
	if _, err := verifyOwner(ctx, s.stores.Stories, userID, storyID); err != nil {
		return nil, err
	}
	return s.stores.Segments.ListByStory(ctx, storyID)
}

// Add appends a segment with the given text and starts image generation
// for it.
func (s *SegmentService) Add(ctx context.Context, userID, storyID string, req *model.SegmentAddRequest) (*model.Segment, error) {
	story, err := verifyOwner(ctx, s.stores.Stories, userID, storyID)
	if err != nil {
		return nil, err
	}

	count, err := s.stores.Segments.CountByStory(ctx, storyID)
	if err != nil {
		return nil, err
	}

	segment := &model.Segment{
		ID:           uuid.New().String(),
		StoryID:      storyID,
		Order:        count,
		Text:         req.Text,
		IsGenerating: true,
		CreatedAt:    time.Now(),
	}
	if err := s.stores.Segments.Create(ctx, segment); err != nil {
		return nil, fmt.Errorf("failed to save segment: %w", err)
	}

	if err := s.enqueueImage(segment, story.Context); err != nil {
		s.stores.Segments.Update(ctx, segment.ID, func(sg *model.Segment) error {
			sg.IsGenerating = false
			sg.Error = "failed to queue image generation"
			return nil
		})
		return nil, err
	}

	return segment, nil
}

// RegenerateImage re-runs image generation for one segment. Rejected while
// a previous run is still in flight.
func (s *SegmentService) RegenerateImage(ctx context.Context, userID, storyID, segmentID string) (*model.Segment, error) {
	story, err := verifyOwner(ctx, s.stores.Stories, userID, storyID)
	if err != nil {
		return nil, err
	}

	segment, err := s.stores.Segments.Get(ctx, segmentID)
	if err != nil {
		return nil, err
	}
	if segment.StoryID != storyID {
		return nil, apperr.ErrNotFound
	}
	if segment.IsGenerating {
		return nil, apperr.ErrConflict
	}

	updated, err := s.stores.Segments.Update(ctx, segmentID, func(sg *model.Segment) error {
		sg.IsGenerating = true
		sg.Error = ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.enqueueImage(updated, story.Context); err != nil {
		s.stores.Segments.Update(ctx, segmentID, func(sg *model.Segment) error {
			sg.IsGenerating = false
			sg.Error = "failed to queue image generation"
			return nil
		})
		return nil, err
	}

	return updated, nil
}

func (s *SegmentService) enqueueImage(segment *model.Segment, storyContext string) error {
	task, err := NewImageTask(&model.ImageTaskPayload{
		SegmentID: segment.ID,
		StoryID:   segment.StoryID,
		Text:      segment.Text,
		Context:   storyContext,
	})
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	if _, err := s.tasks.Enqueue(task, defaultTaskOpts(QueueMedia)...); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}
