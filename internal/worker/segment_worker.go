package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/storyforge/api/internal/client"
	"github.com/storyforge/api/internal/model"
	"github.com/storyforge/api/internal/script"
	"github.com/storyforge/api/internal/service"
	"github.com/storyforge/api/internal/store"
	"github.com/storyforge/api/internal/websocket"
)

const contextSystemPrompt = `Summarize the visual world of the script you are given in one or two sentences: era, place, atmosphere, palette. This summary will steer every illustration of the story, so describe the setting, not the plot. Return only the summary.`

const imageSystemPrompt = `You write prompts for a text-to-image model. Given a passage of narration and the visual context of its story, describe a single illustration for the passage in 50 to 100 words. Concrete and visual only: subjects, composition, lighting, palette, mood. No text in the image, no camera jargon, no lists. Return only the description.`

// previewWidth is the pixel width of the thumbnail stored next to each
// full-size segment image.
const previewWidth = 320

// SegmentWorker processes segmentation fan-out and per-segment image tasks
type SegmentWorker struct {
	stores *store.Stores
	text   client.TextGenerator
	images client.ImageGenerator
	assets client.AssetStore
	tasks  service.Enqueuer
	hub    *websocket.Hub
}

// NewSegmentWorker creates a new segment worker
func NewSegmentWorker(
	stores *store.Stores,
	text client.TextGenerator,
	images client.ImageGenerator,
	assets client.AssetStore,
	tasks service.Enqueuer,
	hub *websocket.Hub,
) *SegmentWorker {
	return &SegmentWorker{
		stores: stores,
		text:   text,
		images: images,
		assets: assets,
		tasks:  tasks,
		hub:    hub,
	}
}

// ProcessSegmentsTask splits a script into paragraph segments and queues an
// image task for each. A segment whose image task cannot be queued is
// marked failed individually; its siblings proceed.
func (w *SegmentWorker) ProcessSegmentsTask(ctx context.Context, t *asynq.Task) error {
	var payload model.SegmentsTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal segments payload: %w", err)
	}

	log.Printf("Segmenting story %s", payload.StoryID)

	paragraphs := script.SplitParagraphs(payload.Script)
	if len(paragraphs) == 0 {
		w.failStory(ctx, payload.StoryID, "script has no content to segment")
		return nil
	}

	storyContext := w.buildContext(ctx, payload.Script)

	if _, err := w.stores.Stories.Update(ctx, payload.StoryID, func(st *model.Story) error {
		st.Context = storyContext
		return nil
	}); err != nil {
		if lastAttempt(ctx) {
			w.failStory(ctx, payload.StoryID, "failed to save story context")
		}
		return err
	}

	now := time.Now()
	for i, text := range paragraphs {
		segment := &model.Segment{
			ID:           uuid.New().String(),
			StoryID:      payload.StoryID,
			Order:        i,
			Text:         text,
			IsGenerating: true,
			CreatedAt:    now,
		}
		if err := w.stores.Segments.Create(ctx, segment); err != nil {
			if lastAttempt(ctx) {
				w.failStory(ctx, payload.StoryID, "failed to save segments")
			}
			return err
		}

		if err := w.enqueueImage(segment, storyContext); err != nil {
			log.Printf("Failed to queue image for segment %s: %v", segment.ID, err)
			w.stores.Segments.Update(ctx, segment.ID, func(sg *model.Segment) error {
				sg.IsGenerating = false
				sg.Error = "failed to queue image generation"
				return nil
			})
		}
	}

	if _, err := w.stores.Stories.Update(ctx, payload.StoryID, func(st *model.Story) error {
		st.Status = model.StoryStatusCompleted
		st.Error = ""
		return nil
	}); err != nil {
		return err
	}

	w.hub.BroadcastStage(payload.StoryID, "segments", "completed")
	log.Printf("Story %s split into %d segments", payload.StoryID, len(paragraphs))
	return nil
}

// buildContext derives the shared visual-style summary for a script. When
// the LLM is unavailable or fails, the opening of the script stands in.
func (w *SegmentWorker) buildContext(ctx context.Context, scriptText string) string {
	if w.text != nil && w.text.IsConfigured() {
		summary, err := w.text.Generate(ctx, contextSystemPrompt, scriptText)
		if err == nil && strings.TrimSpace(summary) != "" {
			return strings.TrimSpace(summary)
		}
		if err != nil {
			log.Printf("Context summary failed, falling back to truncation: %v", err)
		}
	}
	return truncateContext(scriptText)
}

func truncateContext(scriptText string) string {
	runes := []rune(scriptText)
	if len(runes) <= 100 {
		return scriptText
	}
	return string(runes[:100]) + "..."
}

func (w *SegmentWorker) enqueueImage(segment *model.Segment, storyContext string) error {
	task, err := service.NewImageTask(&model.ImageTaskPayload{
		SegmentID: segment.ID,
		StoryID:   segment.StoryID,
		Text:      segment.Text,
		Context:   storyContext,
	})
	if err != nil {
		return err
	}
	_, err = w.tasks.Enqueue(task, asynq.Queue(service.QueueMedia), asynq.MaxRetry(0))
	return err
}

// ProcessImageTask generates the illustration for one segment. Failures are
// written onto the segment and never returned to the scheduler: one bad
// segment must not take its siblings down or re-trigger the whole stage.
func (w *SegmentWorker) ProcessImageTask(ctx context.Context, t *asynq.Task) error {
	var payload model.ImageTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal image payload: %w", err)
	}

	log.Printf("Generating image for segment %s", payload.SegmentID)

	story, err := w.stores.Stories.Get(ctx, payload.StoryID)
	if err != nil {
		w.failSegment(ctx, payload.StoryID, payload.SegmentID, "story not found")
		return nil
	}

	if w.images == nil || !w.images.IsConfigured() {
		w.failSegment(ctx, payload.StoryID, payload.SegmentID, "image generation not configured")
		return nil
	}

	if w.assets == nil {
		w.failSegment(ctx, payload.StoryID, payload.SegmentID, "asset storage not configured")
		return nil
	}

	prompt := w.buildImagePrompt(ctx, payload.Text, payload.Context)
	vertical := story.Orientation == model.OrientationVertical

	imageData, err := w.images.GenerateImage(ctx, prompt, vertical)
	if err != nil {
		w.failSegment(ctx, payload.StoryID, payload.SegmentID, fmt.Sprintf("image generation failed: %v", err))
		return nil
	}

	imageURL, err := w.assets.Store(ctx, fmt.Sprintf("segments/%s/image.png", payload.SegmentID), imageData, "image/png")
	if err != nil {
		w.failSegment(ctx, payload.StoryID, payload.SegmentID, fmt.Sprintf("image upload failed: %v", err))
		return nil
	}

	previewURL := w.storePreview(ctx, payload.SegmentID, imageData)

	updated, err := w.stores.Segments.Update(ctx, payload.SegmentID, func(sg *model.Segment) error {
		sg.ImageURL = imageURL
		sg.PreviewURL = previewURL
		sg.Prompt = prompt
		sg.IsGenerating = false
		sg.Error = ""
		return nil
	})
	if err != nil {
		log.Printf("Failed to save segment %s image: %v", payload.SegmentID, err)
		return nil
	}

	w.hub.BroadcastSegment(payload.StoryID, updated)
	log.Printf("Image for segment %s completed", payload.SegmentID)
	return nil
}

func (w *SegmentWorker) buildImagePrompt(ctx context.Context, text, storyContext string) string {
	if w.text != nil && w.text.IsConfigured() {
		user := fmt.Sprintf("Visual context: %s\n\nPassage: %s", storyContext, text)
		prompt, err := w.text.Generate(ctx, imageSystemPrompt, user)
		if err == nil && strings.TrimSpace(prompt) != "" {
			return strings.TrimSpace(prompt)
		}
		if err != nil {
			log.Printf("Image prompt generation failed, using passage text: %v", err)
		}
	}
	return text
}

// storePreview uploads a downscaled thumbnail. Previews are best-effort: a
// decode or upload failure leaves the field empty.
func (w *SegmentWorker) storePreview(ctx context.Context, segmentID string, imageData []byte) string {
	img, err := imaging.Decode(bytes.NewReader(imageData))
	if err != nil {
		log.Printf("Failed to decode image for segment %s preview: %v", segmentID, err)
		return ""
	}

	thumb := imaging.Resize(img, previewWidth, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		log.Printf("Failed to encode preview for segment %s: %v", segmentID, err)
		return ""
	}

	previewURL, err := w.assets.Store(ctx, fmt.Sprintf("segments/%s/preview.jpg", segmentID), buf.Bytes(), "image/jpeg")
	if err != nil {
		log.Printf("Failed to upload preview for segment %s: %v", segmentID, err)
		return ""
	}
	return previewURL
}

func (w *SegmentWorker) failSegment(ctx context.Context, storyID, segmentID, errMsg string) {
	updated, err := w.stores.Segments.Update(ctx, segmentID, func(sg *model.Segment) error {
		sg.IsGenerating = false
		sg.Error = errMsg
		return nil
	})
	if err != nil {
		log.Printf("Failed to mark segment %s as failed: %v", segmentID, err)
		return
	}
	w.hub.BroadcastSegment(storyID, updated)
}

func (w *SegmentWorker) failStory(ctx context.Context, storyID, errMsg string) {
	if _, err := w.stores.Stories.Update(ctx, storyID, func(st *model.Story) error {
		st.Status = model.StoryStatusError
		st.Error = errMsg
		return nil
	}); err != nil {
		log.Printf("Failed to mark story %s as failed: %v", storyID, err)
	}
	w.hub.BroadcastError(storyID, "SEGMENTS_FAILED", errMsg)
}
