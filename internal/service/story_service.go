package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/storyforge/api/internal/apperr"
	"github.com/storyforge/api/internal/client"
	"github.com/storyforge/api/internal/config"
	"github.com/storyforge/api/internal/model"
	"github.com/storyforge/api/internal/store"
)

// Credit cost of each user-triggered generation stage.
const (
	CreditCostStory    = 1
	CreditCostSegments = 1
	CreditCostVideo    = 1
	CreditCostReview   = 1
)

const reviewSystemPrompt = `You are an editor for short narrated videos. Improve the flow, pacing and clarity of the script you are given. Keep the author's voice and the overall length. Return only the revised script, no commentary.`

const grammarSystemPrompt = `Fix spelling, grammar and punctuation in the script you are given. Change nothing else: keep wording, tone and length. Return only the corrected script, no commentary.`

// StoryService handles story lifecycle and script operations
type StoryService struct {
	stores  *store.Stores
	tasks   Enqueuer
	text    client.TextGenerator
	credits config.CreditsConfig
}

func NewStoryService(stores *store.Stores, tasks Enqueuer, text client.TextGenerator, credits config.CreditsConfig) *StoryService {
	return &StoryService{
		stores:  stores,
		tasks:   tasks,
		text:    text,
		credits: credits,
	}
}

// verifyOwner loads a story and checks it belongs to the caller. An empty
// user id means the request never passed authentication.
func verifyOwner(ctx context.Context, stories store.StoryStore, userID, storyID string) (*model.Story, error) {
	if userID == "" {
		return nil, apperr.ErrNotAuthenticated
	}
	story, err := stories.Get(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if story.UserID != userID {
		return nil, apperr.ErrNotAuthorized
	}
	return story, nil
}

// charge provisions the caller's ledger if needed and debits the amount.
func (s *StoryService) charge(ctx context.Context, userID string, amount int) error {
	if err := s.stores.Credits.Provision(ctx, userID, s.credits.InitialGrant); err != nil {
		return err
	}
	return s.stores.Credits.Consume(ctx, userID, amount)
}

// CreateGuided creates a story whose script is generated in the background
// from a short description. One credit is debited up front.
func (s *StoryService) CreateGuided(ctx context.Context, userID string, req *model.StoryCreateRequest) (*model.StoryCreateResponse, error) {
	if userID == "" {
		return nil, apperr.ErrNotAuthenticated
	}
	if err := s.charge(ctx, userID, CreditCostStory); err != nil {
		return nil, err
	}

	story := &model.Story{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     req.Title,
		Status:    model.StoryStatusProcessing,
		CreatedAt: time.Now(),
	}
	if err := s.stores.Stories.Create(ctx, story); err != nil {
		return nil, fmt.Errorf("failed to save story: %w", err)
	}

	task, err := NewScriptTask(&model.ScriptTaskPayload{
		StoryID:     story.ID,
		UserID:      userID,
		Description: req.Description,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	if _, err := s.tasks.Enqueue(task, defaultTaskOpts(QueueStories)...); err != nil {
		s.stores.Stories.Update(ctx, story.ID, func(st *model.Story) error {
			st.Status = model.StoryStatusError
			st.Error = "failed to queue script generation"
			return nil
		})
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.StoryCreateResponse{StoryID: story.ID, Status: story.Status}, nil
}

// Get returns a story after the ownership check
func (s *StoryService) Get(ctx context.Context, userID, storyID string) (*model.Story, error) {
	return verifyOwner(ctx, s.stores.Stories, userID, storyID)
}

// List returns all stories of the caller
func (s *StoryService) List(ctx context.Context, userID string) ([]*model.Story, error) {
	if userID == "" {
		return nil, apperr.ErrNotAuthenticated
	}
	return s.stores.Stories.ListByUser(ctx, userID)
}

// UpdateScript replaces the script text. Edits are rejected while a
// background stage is still writing to the story.
func (s *StoryService) UpdateScript(ctx context.Context, userID, storyID, scriptText string) (*model.Story, error) {
	if _, err := verifyOwner(ctx, s.stores.Stories, userID, storyID); err != nil {
		return nil, err
	}
	return s.stores.Stories.Update(ctx, storyID, func(st *model.Story) error {
		if st.Status == model.StoryStatusProcessing {
			return apperr.ErrConflict
		}
		st.Script = scriptText
		st.Status = model.StoryStatusCompleted
		st.Error = ""
		return nil
	})
}

// Review runs an editorial LLM pass over the script and stamps ReviewedAt.
// Costs one credit.
func (s *StoryService) Review(ctx context.Context, userID, storyID string) (*model.Story, error) {
	return s.rewrite(ctx, userID, storyID, reviewSystemPrompt, func(st *model.Story, now time.Time) {
		st.ReviewedAt = &now
	})
}

// FixGrammar runs a grammar-only LLM pass over the script and stamps
// GrammarCheckedAt. Costs one credit.
func (s *StoryService) FixGrammar(ctx context.Context, userID, storyID string) (*model.Story, error) {
	return s.rewrite(ctx, userID, storyID, grammarSystemPrompt, func(st *model.Story, now time.Time) {
		st.GrammarCheckedAt = &now
	})
}

func (s *StoryService) rewrite(ctx context.Context, userID, storyID, systemPrompt string, stamp func(*model.Story, time.Time)) (*model.Story, error) {
	story, err := verifyOwner(ctx, s.stores.Stories, userID, storyID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(story.Script) == "" {
		return nil, apperr.ErrConflict
	}
	if s.text == nil || !s.text.IsConfigured() {
		return nil, apperr.Upstream("groq", 0, "text generation not configured")
	}

	if err := s.charge(ctx, userID, CreditCostReview); err != nil {
		return nil, err
	}

	revised, err := s.text.Generate(ctx, systemPrompt, story.Script)
	if err != nil {
		if s.credits.RefundOnFailure {
			s.stores.Credits.Refund(ctx, userID, CreditCostReview)
		}
		return nil, err
	}

	return s.stores.Stories.Update(ctx, storyID, func(st *model.Story) error {
		st.Script = strings.TrimSpace(revised)
		stamp(st, time.Now())
		return nil
	})
}

// Clone copies a story and its converged segments into a fresh draft owned
// by the same user. Segments still generating or failed are skipped; videos
// are not copied.
func (s *StoryService) Clone(ctx context.Context, userID, storyID string) (*model.CloneResponse, error) {
	src, err := verifyOwner(ctx, s.stores.Stories, userID, storyID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	copied := &model.Story{
		ID:              uuid.New().String(),
		UserID:          userID,
		Title:           src.Title + " (copy)",
		Script:          src.Script,
		Status:          model.StoryStatusCompleted,
		Orientation:     src.Orientation,
		Context:         src.Context,
		VoiceID:         src.VoiceID,
		CaptionPosition: src.CaptionPosition,
		HighlightColor:  src.HighlightColor,
		CreatedAt:       now,
	}
	if src.Script == "" {
		copied.Status = model.StoryStatusDraft
	}
	if err := s.stores.Stories.Create(ctx, copied); err != nil {
		return nil, fmt.Errorf("failed to save story copy: %w", err)
	}

	segments, err := s.stores.Segments.ListByStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	order := 0
	for _, seg := range segments {
		if seg.IsGenerating || seg.ImageURL == "" {
			continue
		}
		if err := s.stores.Segments.Create(ctx, &model.Segment{
			ID:         uuid.New().String(),
			StoryID:    copied.ID,
			Order:      order,
			Text:       seg.Text,
			ImageURL:   seg.ImageURL,
			PreviewURL: seg.PreviewURL,
			Prompt:     seg.Prompt,
			CreatedAt:  now,
		}); err != nil {
			return nil, fmt.Errorf("failed to copy segment: %w", err)
		}
		order++
	}

	return &model.CloneResponse{StoryID: copied.ID}, nil
}
