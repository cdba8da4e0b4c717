package model

// Task payloads. Each pipeline stage has its own asynq task type carrying a
// typed payload, so the stage graph is inspectable independent of the
// scheduling substrate.

// ScriptTaskPayload drives script generation for a freshly created story.
type ScriptTaskPayload struct {
	StoryID     string `json:"storyId"`
	UserID      string `json:"userId"`
	Description string `json:"description"`
}

// SegmentsTaskPayload drives the segmentation fan-out stage.
type SegmentsTaskPayload struct {
	StoryID string `json:"storyId"`
	UserID  string `json:"userId"`
	Script  string `json:"script"`
}

// ImageTaskPayload drives image generation for a single segment. Context is
// the story-level visual-style summary shared by all segments.
type ImageTaskPayload struct {
	SegmentID string `json:"segmentId"`
	StoryID   string `json:"storyId"`
	Text      string `json:"text"`
	Context   string `json:"context"`
}

// VideoTaskPayload drives audio synthesis plus transcription submission.
type VideoTaskPayload struct {
	VideoID string `json:"videoId"`
	StoryID string `json:"storyId"`
	UserID  string `json:"userId"`
	VoiceID string `json:"voiceId"`
}

// ComposeTaskPayload drives final video compositing once captions exist.
type ComposeTaskPayload struct {
	VideoID string `json:"videoId"`
	StoryID string `json:"storyId"`
}
