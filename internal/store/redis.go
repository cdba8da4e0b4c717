package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/storyforge/api/internal/apperr"
	"github.com/storyforge/api/internal/model"
)

// watchRetries bounds optimistic-lock retries on contended keys.
const watchRetries = 5

// NewRedisStores builds the Redis-backed store set.
func NewRedisStores(rdb *redis.Client) *Stores {
	return &Stores{
		Stories:  &redisStories{rdb: rdb},
		Segments: &redisSegments{rdb: rdb},
		Videos:   &redisVideos{rdb: rdb},
		Credits:  &redisCredits{rdb: rdb},
	}
}

func storyKey(id string) string      { return "story:" + id }
func userStoriesKey(id string) string { return "user:" + id + ":stories" }
func segmentKey(id string) string    { return "segment:" + id }
func storySegmentsKey(id string) string { return "story:" + id + ":segments" }
func videoKey(id string) string      { return "video:" + id }
func storyVideosKey(id string) string { return "story:" + id + ":videos" }
func creditsKey(id string) string    { return "credits:" + id }

// getJSON loads a record, mapping a missing key to ErrNotFound.
func getJSON(ctx context.Context, rdb *redis.Client, key string, out interface{}) error {
	data, err := rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return apperr.ErrNotFound
		}
		return err
	}
	return json.Unmarshal(data, out)
}

// updateJSON runs an optimistic WATCH transaction: read, apply, write. The
// write is discarded and retried if the key changed underneath.
func updateJSON(ctx context.Context, rdb *redis.Client, key string, load func([]byte) (interface{}, error)) error {
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return apperr.ErrNotFound
			}
			return err
		}
		updated, err := load(data)
		if err != nil {
			return err
		}
		out, err := json.Marshal(updated)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}

	for i := 0; i < watchRetries; i++ {
		err := rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update of %s kept failing under contention", key)
}

// --- stories ---

type redisStories struct {
	rdb *redis.Client
}

func (s *redisStories) Create(ctx context.Context, story *model.Story) error {
	data, err := json.Marshal(story)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, storyKey(story.ID), data, 0)
	pipe.RPush(ctx, userStoriesKey(story.UserID), story.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisStories) Get(ctx context.Context, id string) (*model.Story, error) {
	var story model.Story
	if err := getJSON(ctx, s.rdb, storyKey(id), &story); err != nil {
		return nil, err
	}
	return &story, nil
}

func (s *redisStories) Update(ctx context.Context, id string, fn func(*model.Story) error) (*model.Story, error) {
	var updated *model.Story
	err := updateJSON(ctx, s.rdb, storyKey(id), func(data []byte) (interface{}, error) {
		var story model.Story
		if err := json.Unmarshal(data, &story); err != nil {
			return nil, err
		}
		if err := fn(&story); err != nil {
			return nil, err
		}
		updated = &story
		return &story, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *redisStories) ListByUser(ctx context.Context, userID string) ([]*model.Story, error) {
	ids, err := s.rdb.LRange(ctx, userStoriesKey(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	stories := make([]*model.Story, 0, len(ids))
	for _, id := range ids {
		story, err := s.Get(ctx, id)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		stories = append(stories, story)
	}
	return stories, nil
}

// --- segments ---

type redisSegments struct {
	rdb *redis.Client
}

func (s *redisSegments) Create(ctx context.Context, segment *model.Segment) error {
	data, err := json.Marshal(segment)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, segmentKey(segment.ID), data, 0)
	pipe.RPush(ctx, storySegmentsKey(segment.StoryID), segment.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisSegments) Get(ctx context.Context, id string) (*model.Segment, error) {
	var segment model.Segment
	if err := getJSON(ctx, s.rdb, segmentKey(id), &segment); err != nil {
		return nil, err
	}
	return &segment, nil
}

func (s *redisSegments) Update(ctx context.Context, id string, fn func(*model.Segment) error) (*model.Segment, error) {
	var updated *model.Segment
	err := updateJSON(ctx, s.rdb, segmentKey(id), func(data []byte) (interface{}, error) {
		var segment model.Segment
		if err := json.Unmarshal(data, &segment); err != nil {
			return nil, err
		}
		if err := fn(&segment); err != nil {
			return nil, err
		}
		updated = &segment
		return &segment, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *redisSegments) ListByStory(ctx context.Context, storyID string) ([]*model.Segment, error) {
	ids, err := s.rdb.LRange(ctx, storySegmentsKey(storyID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	segments := make([]*model.Segment, 0, len(ids))
	for _, id := range ids {
		segment, err := s.Get(ctx, id)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		segments = append(segments, segment)
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].Order < segments[j].Order })
	return segments, nil
}

func (s *redisSegments) CountByStory(ctx context.Context, storyID string) (int, error) {
	n, err := s.rdb.LLen(ctx, storySegmentsKey(storyID)).Result()
	return int(n), err
}

// --- videos ---

type redisVideos struct {
	rdb *redis.Client
}

func (s *redisVideos) Create(ctx context.Context, video *model.Video) error {
	data, err := json.Marshal(video)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, videoKey(video.ID), data, 0)
	pipe.RPush(ctx, storyVideosKey(video.StoryID), video.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisVideos) Get(ctx context.Context, id string) (*model.Video, error) {
	var video model.Video
	if err := getJSON(ctx, s.rdb, videoKey(id), &video); err != nil {
		return nil, err
	}
	return &video, nil
}

func (s *redisVideos) Update(ctx context.Context, id string, fn func(*model.Video) error) (*model.Video, error) {
	var updated *model.Video
	err := updateJSON(ctx, s.rdb, videoKey(id), func(data []byte) (interface{}, error) {
		var video model.Video
		if err := json.Unmarshal(data, &video); err != nil {
			return nil, err
		}
		if err := fn(&video); err != nil {
			return nil, err
		}
		updated = &video
		return &video, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *redisVideos) LatestByStory(ctx context.Context, storyID string) (*model.Video, error) {
	ids, err := s.rdb.LRange(ctx, storyVideosKey(storyID), -1, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, apperr.ErrNotFound
	}
	return s.Get(ctx, ids[0])
}

// --- credits ---

type redisCredits struct {
	rdb *redis.Client
}

// consumeScript checks and decrements in one atomic step so two concurrent
// consumers cannot both pass a stale sufficiency check.
var consumeScript = redis.NewScript(`
local bal = redis.call('GET', KEYS[1])
if not bal then return -2 end
if tonumber(bal) < tonumber(ARGV[1]) then return -1 end
return redis.call('DECRBY', KEYS[1], ARGV[1])
`)

func (s *redisCredits) Provision(ctx context.Context, userID string, initial int) error {
	return s.rdb.SetNX(ctx, creditsKey(userID), initial, 0).Err()
}

func (s *redisCredits) Balance(ctx context.Context, userID string) (int, error) {
	bal, err := s.rdb.Get(ctx, creditsKey(userID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, apperr.ErrNotFound
		}
		return 0, err
	}
	return bal, nil
}

func (s *redisCredits) Consume(ctx context.Context, userID string, amount int) error {
	res, err := consumeScript.Run(ctx, s.rdb, []string{creditsKey(userID)}, amount).Int()
	if err != nil {
		return err
	}
	switch res {
	case -2:
		return apperr.ErrNotFound
	case -1:
		return apperr.ErrInsufficientCredits
	default:
		return nil
	}
}

func (s *redisCredits) Refund(ctx context.Context, userID string, amount int) error {
	return s.rdb.IncrBy(ctx, creditsKey(userID), int64(amount)).Err()
}
