package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hibiken/asynq"

	"github.com/storyforge/api/internal/client"
	"github.com/storyforge/api/internal/config"
	"github.com/storyforge/api/internal/model"
	"github.com/storyforge/api/internal/script"
	"github.com/storyforge/api/internal/service"
	"github.com/storyforge/api/internal/store"
	"github.com/storyforge/api/internal/websocket"
)

// VideoWorker processes narration synthesis and final compositing tasks
type VideoWorker struct {
	stores      *store.Stores
	speech      client.SpeechSynthesizer
	transcriber client.Transcriber
	assets      client.AssetStore
	renderer    client.VideoRenderer
	tasks       service.Enqueuer
	hub         *websocket.Hub
	credits     config.CreditsConfig
}

// NewVideoWorker creates a new video worker
func NewVideoWorker(
	stores *store.Stores,
	speech client.SpeechSynthesizer,
	transcriber client.Transcriber,
	assets client.AssetStore,
	renderer client.VideoRenderer,
	tasks service.Enqueuer,
	hub *websocket.Hub,
	credits config.CreditsConfig,
) *VideoWorker {
	return &VideoWorker{
		stores:      stores,
		speech:      speech,
		transcriber: transcriber,
		assets:      assets,
		renderer:    renderer,
		tasks:       tasks,
		hub:         hub,
		credits:     credits,
	}
}

// ProcessVideoTask synthesizes the narration audio chunk by chunk, uploads
// the concatenated result and, when captions were requested, submits the
// transcription job.
func (w *VideoWorker) ProcessVideoTask(ctx context.Context, t *asynq.Task) error {
	var payload model.VideoTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal video payload: %w", err)
	}

	log.Printf("Starting video pipeline for video %s", payload.VideoID)

	video, err := w.stores.Videos.Get(ctx, payload.VideoID)
	if err != nil {
		return err
	}
	if video.Status.IsTerminal() {
		log.Printf("Video %s already %s, skipping", video.ID, video.Status)
		return nil
	}

	story, err := w.stores.Stories.Get(ctx, payload.StoryID)
	if err != nil {
		w.failVideo(ctx, &payload, "story not found")
		return nil
	}

	if w.assets == nil {
		w.failVideo(ctx, &payload, "asset storage not configured")
		return nil
	}

	if _, err := w.stores.Videos.Update(ctx, video.ID, func(v *model.Video) error {
		if v.Status.CanTransitionTo(model.VideoStatusProcessing) {
			v.Status = model.VideoStatusProcessing
		}
		return nil
	}); err != nil {
		return err
	}

	audio, err := w.synthesizeNarration(ctx, story.Script, payload.VoiceID)
	if err != nil {
		if lastAttempt(ctx) {
			w.failVideo(ctx, &payload, fmt.Sprintf("audio synthesis failed: %v", err))
		}
		return err
	}

	audioURL, err := w.assets.Store(ctx, fmt.Sprintf("videos/%s/audio.mp3", video.ID), audio, "audio/mpeg")
	if err != nil {
		if lastAttempt(ctx) {
			w.failVideo(ctx, &payload, "audio upload failed")
		}
		return err
	}

	now := time.Now()
	if _, err := w.stores.Videos.Update(ctx, video.ID, func(v *model.Video) error {
		v.AudioURL = audioURL
		v.AudioGeneratedAt = &now
		return nil
	}); err != nil {
		return err
	}
	w.hub.BroadcastStage(payload.StoryID, "audio", "completed")

	if video.IncludeCaptions {
		return w.submitTranscription(ctx, &payload, audioURL)
	}

	return w.finishWithoutCaptions(ctx, &payload)
}

// synthesizeNarration normalizes the script for speech, splits it into
// vendor-sized chunks and concatenates the synthesized audio in order.
func (w *VideoWorker) synthesizeNarration(ctx context.Context, scriptText, voiceID string) ([]byte, error) {
	if w.speech == nil || !w.speech.IsConfigured() {
		return nil, fmt.Errorf("speech synthesis not configured")
	}

	normalized := script.NormalizeForSpeech(scriptText)
	chunks := script.ChunkText(normalized, client.MaxSpeechChunkChars)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("script has no content to narrate")
	}

	var audio bytes.Buffer
	for i, chunk := range chunks {
		log.Printf("Synthesizing chunk %d/%d (%d chars)", i+1, len(chunks), len(chunk))
		data, err := w.speech.Synthesize(ctx, chunk, voiceID)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		audio.Write(data)
	}

	return audio.Bytes(), nil
}

// submitTranscription starts the captioning job. Submission is retried with
// exponential backoff before giving the attempt back to the scheduler.
func (w *VideoWorker) submitTranscription(ctx context.Context, payload *model.VideoTaskPayload, audioURL string) error {
	if w.transcriber == nil || !w.transcriber.IsConfigured() {
		w.failVideo(ctx, payload, "transcription not configured")
		return nil
	}

	var jobID string
	operation := func() error {
		var err error
		jobID, err = w.transcriber.Submit(ctx, audioURL)
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		if lastAttempt(ctx) {
			w.failVideo(ctx, payload, fmt.Sprintf("transcription submission failed: %v", err))
		}
		return err
	}

	if _, err := w.stores.Videos.Update(ctx, payload.VideoID, func(v *model.Video) error {
		v.TranscriptionJobID = jobID
		if v.Status.CanTransitionTo(model.VideoStatusTranscribing) {
			v.Status = model.VideoStatusTranscribing
		}
		return nil
	}); err != nil {
		return err
	}

	w.hub.BroadcastStage(payload.StoryID, "audio", "transcribing")
	log.Printf("Video %s transcription submitted (job %s)", payload.VideoID, jobID)
	return nil
}

// finishWithoutCaptions hands off to compositing when a renderer exists,
// otherwise the audio alone completes the video.
func (w *VideoWorker) finishWithoutCaptions(ctx context.Context, payload *model.VideoTaskPayload) error {
	if w.renderer != nil && w.renderer.IsConfigured() {
		task, err := service.NewComposeTask(&model.ComposeTaskPayload{
			VideoID: payload.VideoID,
			StoryID: payload.StoryID,
		})
		if err != nil {
			return err
		}
		if _, err := w.tasks.Enqueue(task, asynq.Queue(service.QueueMedia), asynq.MaxRetry(3)); err != nil {
			if lastAttempt(ctx) {
				w.failVideo(ctx, payload, "failed to queue compositing")
			}
			return err
		}
		return nil
	}

	if _, err := w.stores.Videos.Update(ctx, payload.VideoID, func(v *model.Video) error {
		if v.Status.CanTransitionTo(model.VideoStatusCompleted) {
			v.Status = model.VideoStatusCompleted
		}
		return nil
	}); err != nil {
		return err
	}

	w.hub.BroadcastStage(payload.StoryID, "video", "completed")
	log.Printf("Video %s completed (audio only)", payload.VideoID)
	return nil
}

// ProcessComposeTask renders the final MP4 from the segment images, the
// narration audio and the captions document.
func (w *VideoWorker) ProcessComposeTask(ctx context.Context, t *asynq.Task) error {
	var payload model.ComposeTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal compose payload: %w", err)
	}

	log.Printf("Compositing video %s", payload.VideoID)

	video, err := w.stores.Videos.Get(ctx, payload.VideoID)
	if err != nil {
		return err
	}
	if video.Status.IsTerminal() {
		log.Printf("Video %s already %s, skipping", video.ID, video.Status)
		return nil
	}

	story, err := w.stores.Stories.Get(ctx, video.StoryID)
	if err != nil {
		w.failCompose(ctx, video, "story not found")
		return nil
	}

	segments, err := w.stores.Segments.ListByStory(ctx, video.StoryID)
	if err != nil {
		return err
	}

	scenes := make([]client.RenderScene, 0, len(segments))
	for _, seg := range segments {
		if seg.ImageURL == "" {
			continue
		}
		scenes = append(scenes, client.RenderScene{ImageURL: seg.ImageURL, Order: seg.Order})
	}
	if len(scenes) == 0 {
		w.failCompose(ctx, video, "no segment images to compose")
		return nil
	}

	result, err := w.renderer.Render(ctx, &client.RenderRequest{
		AudioURL:        video.AudioURL,
		CaptionsURL:     video.CaptionsURL,
		Scenes:          scenes,
		Vertical:        story.Orientation == model.OrientationVertical,
		CaptionPosition: string(story.CaptionPosition),
		HighlightColor:  story.HighlightColor,
		OutputKey:       fmt.Sprintf("videos/%s/final.mp4", video.ID),
	})
	if err != nil {
		if lastAttempt(ctx) {
			w.failCompose(ctx, video, fmt.Sprintf("compositing failed: %v", err))
		}
		return err
	}

	now := time.Now()
	if _, err := w.stores.Videos.Update(ctx, video.ID, func(v *model.Video) error {
		v.VideoURL = result.OutputURL
		v.VideoGeneratedAt = &now
		if v.Status.CanTransitionTo(model.VideoStatusCompleted) {
			v.Status = model.VideoStatusCompleted
		}
		return nil
	}); err != nil {
		return err
	}

	w.hub.BroadcastStage(video.StoryID, "video", "completed")
	log.Printf("Video %s composited (%.1fs, %d bytes)", video.ID, result.Duration, result.Size)
	return nil
}

func (w *VideoWorker) failVideo(ctx context.Context, payload *model.VideoTaskPayload, errMsg string) {
	if _, err := w.stores.Videos.Update(ctx, payload.VideoID, func(v *model.Video) error {
		if v.Status.CanTransitionTo(model.VideoStatusError) {
			v.Status = model.VideoStatusError
			v.Error = errMsg
		}
		return nil
	}); err != nil {
		log.Printf("Failed to mark video %s as failed: %v", payload.VideoID, err)
	}
	if w.credits.RefundOnFailure && payload.UserID != "" {
		if err := w.stores.Credits.Refund(ctx, payload.UserID, service.CreditCostVideo); err != nil {
			log.Printf("Failed to refund user %s: %v", payload.UserID, err)
		}
	}
	w.hub.BroadcastError(payload.StoryID, "VIDEO_FAILED", errMsg)
}

func (w *VideoWorker) failCompose(ctx context.Context, video *model.Video, errMsg string) {
	if _, err := w.stores.Videos.Update(ctx, video.ID, func(v *model.Video) error {
		if v.Status.CanTransitionTo(model.VideoStatusError) {
			v.Status = model.VideoStatusError
			v.Error = errMsg
		}
		return nil
	}); err != nil {
		log.Printf("Failed to mark video %s as failed: %v", video.ID, err)
	}
	w.hub.BroadcastError(video.StoryID, "COMPOSE_FAILED", errMsg)
}
