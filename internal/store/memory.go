package store

import (
	"context"
	"sort"
	"sync"

	"github.com/storyforge/api/internal/apperr"
	"github.com/storyforge/api/internal/model"
)

// NewMemoryStores builds mutex-guarded in-memory stores. Used by unit tests
// and by worker tests that exercise pipeline stages without Redis.
func NewMemoryStores() *Stores {
	return &Stores{
		Stories:  &memStories{items: map[string]model.Story{}},
		Segments: &memSegments{items: map[string]model.Segment{}},
		Videos:   &memVideos{items: map[string]model.Video{}},
		Credits:  &memCredits{balances: map[string]int{}},
	}
}

// --- stories ---

type memStories struct {
	mu    sync.Mutex
	items map[string]model.Story
	order []string
}

func (s *memStories) Create(ctx context.Context, story *model.Story) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[story.ID] = *story
	s.order = append(s.order, story.ID)
	return nil
}

func (s *memStories) Get(ctx context.Context, id string) (*model.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	story, ok := s.items[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &story, nil
}

func (s *memStories) Update(ctx context.Context, id string, fn func(*model.Story) error) (*model.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	story, ok := s.items[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if err := fn(&story); err != nil {
		return nil, err
	}
	s.items[id] = story
	return &story, nil
}

func (s *memStories) ListByUser(ctx context.Context, userID string) ([]*model.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Story
	for _, id := range s.order {
		if story, ok := s.items[id]; ok && story.UserID == userID {
			copied := story
			out = append(out, &copied)
		}
	}
	return out, nil
}

// --- segments ---

type memSegments struct {
	mu    sync.Mutex
	items map[string]model.Segment
	order []string
}

func (s *memSegments) Create(ctx context.Context, segment *model.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[segment.ID] = *segment
	s.order = append(s.order, segment.ID)
	return nil
}

func (s *memSegments) Get(ctx context.Context, id string) (*model.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	segment, ok := s.items[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &segment, nil
}

func (s *memSegments) Update(ctx context.Context, id string, fn func(*model.Segment) error) (*model.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	segment, ok := s.items[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if err := fn(&segment); err != nil {
		return nil, err
	}
	s.items[id] = segment
	return &segment, nil
}

func (s *memSegments) ListByStory(ctx context.Context, storyID string) ([]*model.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Segment
	for _, id := range s.order {
		if segment, ok := s.items[id]; ok && segment.StoryID == storyID {
			copied := segment
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (s *memSegments) CountByStory(ctx context.Context, storyID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, segment := range s.items {
		if segment.StoryID == storyID {
			n++
		}
	}
	return n, nil
}

// --- videos ---

type memVideos struct {
	mu    sync.Mutex
	items map[string]model.Video
	order []string
}

func (s *memVideos) Create(ctx context.Context, video *model.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[video.ID] = *video
	s.order = append(s.order, video.ID)
	return nil
}

func (s *memVideos) Get(ctx context.Context, id string) (*model.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	video, ok := s.items[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &video, nil
}

func (s *memVideos) Update(ctx context.Context, id string, fn func(*model.Video) error) (*model.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	video, ok := s.items[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if err := fn(&video); err != nil {
		return nil, err
	}
	s.items[id] = video
	return &video, nil
}

func (s *memVideos) LatestByStory(ctx context.Context, storyID string) (*model.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		if video, ok := s.items[s.order[i]]; ok && video.StoryID == storyID {
			copied := video
			return &copied, nil
		}
	}
	return nil, apperr.ErrNotFound
}

// --- credits ---

type memCredits struct {
	mu       sync.Mutex
	balances map[string]int
}

func (s *memCredits) Provision(ctx context.Context, userID string, initial int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.balances[userID]; !ok {
		s.balances[userID] = initial
	}
	return nil
}

func (s *memCredits) Balance(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, ok := s.balances[userID]
	if !ok {
		return 0, apperr.ErrNotFound
	}
	return bal, nil
}

func (s *memCredits) Consume(ctx context.Context, userID string, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, ok := s.balances[userID]
	if !ok {
		return apperr.ErrNotFound
	}
	if bal < amount {
		return apperr.ErrInsufficientCredits
	}
	s.balances[userID] = bal - amount
	return nil
}

func (s *memCredits) Refund(ctx context.Context, userID string, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] += amount
	return nil
}
