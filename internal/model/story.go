package model

import "time"

// Story is a user's script plus its generation metadata and settings.
type Story struct {
	ID     string      `json:"id"`
	UserID string      `json:"userId"`
	Title  string      `json:"title"`
	Script string      `json:"script"`
	Status StoryStatus `json:"status"`

	// Orientation must not change once segments exist for the story;
	// previously generated images assume it.
	Orientation Orientation `json:"orientation,omitempty"`

	// Context is a short visual-style summary derived from the script,
	// shared by every segment's image prompt.
	Context string `json:"context,omitempty"`

	VoiceID         string          `json:"voiceId,omitempty"`
	CaptionPosition CaptionPosition `json:"captionPosition,omitempty"`
	HighlightColor  string          `json:"highlightColor,omitempty"`

	Error string `json:"error,omitempty"`

	CreatedAt        time.Time  `json:"createdAt"`
	ReviewedAt       *time.Time `json:"reviewedAt,omitempty"`
	GrammarCheckedAt *time.Time `json:"grammarCheckedAt,omitempty"`
}

// Segment is one ordered chunk of a story's script paired with its own
// illustrative image. Exactly one of {image set, error set, isGenerating}
// holds once the image stage converges.
type Segment struct {
	ID      string `json:"id"`
	StoryID string `json:"storyId"`
	Order   int    `json:"order"`
	Text    string `json:"text"`

	IsGenerating bool   `json:"isGenerating"`
	ImageURL     string `json:"imageUrl,omitempty"`
	PreviewURL   string `json:"previewUrl,omitempty"`
	Prompt       string `json:"prompt,omitempty"`
	Error        string `json:"error,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Word is a single transcribed word with millisecond offsets.
// Speaker is nil when the transcription vendor supplies no speaker labels.
type Word struct {
	Text       string  `json:"text"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
	Speaker    *int    `json:"speaker"`
}

// Video is one rendering record for a story.
type Video struct {
	ID      string      `json:"id"`
	StoryID string      `json:"storyId"`
	Status  VideoStatus `json:"status"`

	AudioURL         string     `json:"audioUrl,omitempty"`
	AudioGeneratedAt *time.Time `json:"audioGeneratedAt,omitempty"`

	CaptionsURL         string     `json:"captionsUrl,omitempty"`
	CaptionsGeneratedAt *time.Time `json:"captionsGeneratedAt,omitempty"`

	VideoURL         string     `json:"videoUrl,omitempty"`
	VideoGeneratedAt *time.Time `json:"videoGeneratedAt,omitempty"`

	TranscriptionJobID string `json:"transcriptionJobId,omitempty"`
	TranscriptionText  string `json:"transcriptionText,omitempty"`
	TranscriptionWords []Word `json:"transcriptionWords,omitempty"`

	IncludeCaptions bool   `json:"includeCaptions"`
	Error           string `json:"error,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// CreditBalance is the per-user consumable balance. Remaining never goes
// negative; consumption is an atomic check-then-decrement.
type CreditBalance struct {
	UserID    string    `json:"userId"`
	Remaining int       `json:"remaining"`
	UpdatedAt time.Time `json:"updatedAt"`
}
