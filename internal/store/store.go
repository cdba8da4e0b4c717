// Package store persists pipeline state. Every mutation goes through an
// atomic read-modify-write so concurrent stages never lose updates, and the
// credit ledger's consume is an atomic check-then-decrement.
package store

import (
	"context"

	"github.com/storyforge/api/internal/model"
)

// StoryStore persists stories.
type StoryStore interface {
	Create(ctx context.Context, story *model.Story) error
	Get(ctx context.Context, id string) (*model.Story, error)
	// Update applies fn to the current record atomically. Returning an
	// error from fn aborts the write.
	Update(ctx context.Context, id string, fn func(*model.Story) error) (*model.Story, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Story, error)
}

// SegmentStore persists the ordered segments of a story.
type SegmentStore interface {
	Create(ctx context.Context, segment *model.Segment) error
	Get(ctx context.Context, id string) (*model.Segment, error)
	Update(ctx context.Context, id string, fn func(*model.Segment) error) (*model.Segment, error)
	// ListByStory returns segments sorted by their order field.
	ListByStory(ctx context.Context, storyID string) ([]*model.Segment, error)
	CountByStory(ctx context.Context, storyID string) (int, error)
}

// VideoStore persists rendering records. A story may accumulate several
// (each retry creates a fresh record); the latest one is the active video.
type VideoStore interface {
	Create(ctx context.Context, video *model.Video) error
	Get(ctx context.Context, id string) (*model.Video, error)
	Update(ctx context.Context, id string, fn func(*model.Video) error) (*model.Video, error)
	LatestByStory(ctx context.Context, storyID string) (*model.Video, error)
}

// CreditStore is the per-user credit ledger.
type CreditStore interface {
	// Provision grants the initial balance once; it is a no-op when the
	// user already has a ledger row.
	Provision(ctx context.Context, userID string, initial int) error
	Balance(ctx context.Context, userID string) (int, error)
	// Consume decrements atomically; fails with ErrInsufficientCredits
	// without any partial charge when the balance is short.
	Consume(ctx context.Context, userID string, amount int) error
	Refund(ctx context.Context, userID string, amount int) error
}

// Stores bundles the four store contracts for injection.
type Stores struct {
	Stories  StoryStore
	Segments SegmentStore
	Videos   VideoStore
	Credits  CreditStore
}
