package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/storyforge/api/internal/client"
	"github.com/storyforge/api/internal/config"
	"github.com/storyforge/api/internal/model"
	"github.com/storyforge/api/internal/service"
	"github.com/storyforge/api/internal/store"
	"github.com/storyforge/api/internal/websocket"
)

const scriptSystemPrompt = `You write scripts for short narrated videos. Write an engaging spoken-word script for the description you are given. Rules: at most 10,000 characters; spoken narration only, no titles, headings, scene directions or speaker labels; separate distinct beats of the story with a blank line.`

// lastAttempt reports whether asynq has exhausted the retry budget for the
// task being processed, so a failure now is terminal.
func lastAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}

// StoryWorker processes script generation tasks
type StoryWorker struct {
	stores  *store.Stores
	text    client.TextGenerator
	hub     *websocket.Hub
	credits config.CreditsConfig
}

// NewStoryWorker creates a new story worker
func NewStoryWorker(stores *store.Stores, text client.TextGenerator, hub *websocket.Hub, credits config.CreditsConfig) *StoryWorker {
	return &StoryWorker{
		stores:  stores,
		text:    text,
		hub:     hub,
		credits: credits,
	}
}

// ProcessScriptTask generates the script for a freshly created story
func (w *StoryWorker) ProcessScriptTask(ctx context.Context, t *asynq.Task) error {
	var payload model.ScriptTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal script payload: %w", err)
	}

	log.Printf("Generating script for story %s", payload.StoryID)

	script, err := w.generateScript(ctx, payload.Description)
	if err != nil {
		if lastAttempt(ctx) {
			w.failStory(ctx, payload.StoryID, payload.UserID, fmt.Sprintf("script generation failed: %v", err))
		}
		return err
	}

	if _, err := w.stores.Stories.Update(ctx, payload.StoryID, func(st *model.Story) error {
		st.Script = script
		st.Status = model.StoryStatusCompleted
		st.Error = ""
		return nil
	}); err != nil {
		if lastAttempt(ctx) {
			w.failStory(ctx, payload.StoryID, payload.UserID, "failed to save generated script")
		}
		return err
	}

	w.hub.BroadcastStage(payload.StoryID, "script", "completed")
	log.Printf("Script for story %s completed (%d chars)", payload.StoryID, len(script))
	return nil
}

func (w *StoryWorker) generateScript(ctx context.Context, description string) (string, error) {
	if w.text == nil || !w.text.IsConfigured() {
		return mockScript(description), nil
	}

	script, err := w.text.Generate(ctx, scriptSystemPrompt, description)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(script), nil
}

// mockScript produces a deterministic placeholder for development setups
// without an LLM key.
func mockScript(description string) string {
	return fmt.Sprintf("Let me tell you about %s.\n\nIt all began quietly, the way these things usually do.\n\nAnd by the end, nothing was quite the same.", strings.TrimSpace(description))
}

func (w *StoryWorker) failStory(ctx context.Context, storyID, userID, errMsg string) {
	if _, err := w.stores.Stories.Update(ctx, storyID, func(st *model.Story) error {
		st.Status = model.StoryStatusError
		st.Error = errMsg
		return nil
	}); err != nil {
		log.Printf("Failed to mark story %s as failed: %v", storyID, err)
	}
	if w.credits.RefundOnFailure && userID != "" {
		if err := w.stores.Credits.Refund(ctx, userID, service.CreditCostStory); err != nil {
			log.Printf("Failed to refund user %s: %v", userID, err)
		}
	}
	w.hub.BroadcastError(storyID, "SCRIPT_FAILED", errMsg)
}
