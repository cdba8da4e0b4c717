package service

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/storyforge/api/internal/model"
)

// Task types, one per pipeline stage.
const (
	TaskTypeScript   = "story:script"
	TaskTypeSegments = "story:segments"
	TaskTypeImage    = "segment:image"
	TaskTypeVideo    = "video:pipeline"
	TaskTypeCompose  = "video:compose"
)

// Queue names. Story-level stages are cheap LLM calls; media stages hold
// long-running image, speech and render work.
const (
	QueueStories = "stories"
	QueueMedia   = "media"
)

// Enqueuer is the slice of asynq.Client the services and workers need.
// Satisfied by *asynq.Client; tests substitute a recorder.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func newTask(taskType string, payload interface{}) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}

// NewScriptTask builds the script-generation task for a fresh story.
func NewScriptTask(p *model.ScriptTaskPayload) (*asynq.Task, error) {
	return newTask(TaskTypeScript, p)
}

// NewSegmentsTask builds the segmentation fan-out task.
func NewSegmentsTask(p *model.SegmentsTaskPayload) (*asynq.Task, error) {
	return newTask(TaskTypeSegments, p)
}

// NewImageTask builds the per-segment image task.
func NewImageTask(p *model.ImageTaskPayload) (*asynq.Task, error) {
	return newTask(TaskTypeImage, p)
}

// NewVideoTask builds the audio-plus-transcription pipeline task.
func NewVideoTask(p *model.VideoTaskPayload) (*asynq.Task, error) {
	return newTask(TaskTypeVideo, p)
}

// NewComposeTask builds the final compositing task.
func NewComposeTask(p *model.ComposeTaskPayload) (*asynq.Task, error) {
	return newTask(TaskTypeCompose, p)
}

// defaultTaskOpts are the options every pipeline task carries: a bounded
// retry budget and a retention window for inspecting finished tasks.
func defaultTaskOpts(queue string) []asynq.Option {
	return []asynq.Option{
		asynq.Queue(queue),
		asynq.MaxRetry(3),
		asynq.Retention(24 * time.Hour),
	}
}
