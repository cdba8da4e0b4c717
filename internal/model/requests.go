package model

// StoryCreateRequest represents the request body for guided story creation
type StoryCreateRequest struct {
	Title       string `json:"title" validate:"required,min=1,max=200"`
	Description string `json:"description" validate:"required,min=1,max=2000"`
}

// StoryCreateResponse returns the id of the story whose script is being
// generated in the background
type StoryCreateResponse struct {
	StoryID string      `json:"storyId"`
	Status  StoryStatus `json:"status"`
}

// ScriptUpdateRequest represents the request body for editing a script
type ScriptUpdateRequest struct {
	Script string `json:"script" validate:"required,min=1"`
}

// SegmentsGenerateRequest represents the request body for the segmentation stage
type SegmentsGenerateRequest struct {
	Orientation Orientation `json:"orientation" validate:"required,oneof=vertical horizontal"`
}

// SegmentAddRequest represents the request body for appending a segment
type SegmentAddRequest struct {
	Text string `json:"text" validate:"required,min=1,max=2000"`
}

// VideoGenerateRequest represents the request body for the video stage
type VideoGenerateRequest struct {
	VoiceID         string          `json:"voiceId" validate:"required,min=1"`
	IncludeCaptions bool            `json:"includeCaptions"`
	CaptionPosition CaptionPosition `json:"captionPosition" validate:"omitempty,oneof=top center bottom"`
	HighlightColor  string          `json:"highlightColor" validate:"omitempty,hexcolor"`
}

// VideoGenerateResponse returns the id of the video record being assembled
type VideoGenerateResponse struct {
	VideoID string      `json:"videoId"`
	Status  VideoStatus `json:"status"`
}

// TranscriptionPollResponse is the discriminated result of a poll: the
// processing branch carries no further fields and mutates nothing.
type TranscriptionPollResponse struct {
	Status      string `json:"status"` // processing | completed | error
	CaptionsURL string `json:"captionsUrl,omitempty"`
	Error       string `json:"error,omitempty"`
}

// CloneResponse returns the id of the copied story
type CloneResponse struct {
	StoryID string `json:"storyId"`
}

// CreditBalanceResponse reports the caller's remaining credits
type CreditBalanceResponse struct {
	Remaining int `json:"remaining"`
}
