package model

// Story status
type StoryStatus string

const (
	StoryStatusDraft      StoryStatus = "draft"
	StoryStatusProcessing StoryStatus = "processing"
	StoryStatusCompleted  StoryStatus = "completed"
	StoryStatusError      StoryStatus = "error"
)

// Video status
type VideoStatus string

const (
	VideoStatusPending      VideoStatus = "pending"
	VideoStatusProcessing   VideoStatus = "processing"
	VideoStatusTranscribing VideoStatus = "transcribing"
	VideoStatusCompleted    VideoStatus = "completed"
	VideoStatusError        VideoStatus = "error"
)

// IsTerminal reports whether the video has reached a final state.
func (s VideoStatus) IsTerminal() bool {
	return s == VideoStatusCompleted || s == VideoStatusError
}

// videoRank orders the forward path of the video state machine.
// Error is reachable from any non-terminal state and is handled separately.
var videoRank = map[VideoStatus]int{
	VideoStatusPending:      0,
	VideoStatusProcessing:   1,
	VideoStatusTranscribing: 2,
	VideoStatusCompleted:    3,
}

// CanTransitionTo reports whether moving from s to next keeps the state
// machine monotonic: forward along pending → processing → transcribing →
// completed, or to error from any non-terminal state.
func (s VideoStatus) CanTransitionTo(next VideoStatus) bool {
	if next == VideoStatusError {
		return !s.IsTerminal()
	}
	cur, ok := videoRank[s]
	if !ok {
		return false
	}
	nxt, ok := videoRank[next]
	if !ok {
		return false
	}
	return nxt > cur
}

// Orientation of the rendered video
type Orientation string

const (
	OrientationVertical   Orientation = "vertical"
	OrientationHorizontal Orientation = "horizontal"
)

// Caption placement on the rendered video
type CaptionPosition string

const (
	CaptionPositionTop    CaptionPosition = "top"
	CaptionPositionCenter CaptionPosition = "center"
	CaptionPositionBottom CaptionPosition = "bottom"
)
