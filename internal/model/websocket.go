package model

// WebSocket message types
const (
	WSMessageTypeStage   = "stage"
	WSMessageTypeSegment = "segment"
	WSMessageTypeError   = "error"
	WSMessageTypePing    = "ping"
	WSMessageTypePong    = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSStageMessage announces a pipeline stage change for a story or its
// active video.
type WSStageMessage struct {
	Type    string `json:"type"`
	StoryID string `json:"storyId"`
	Stage   string `json:"stage"`  // script | segments | audio | captions | video
	Status  string `json:"status"` // processing | completed
}

// WSSegmentMessage announces that one segment's image converged.
type WSSegmentMessage struct {
	Type      string `json:"type"`
	StoryID   string `json:"storyId"`
	SegmentID string `json:"segmentId"`
	Order     int    `json:"order"`
	ImageURL  string `json:"imageUrl,omitempty"`
	Error     string `json:"error,omitempty"`
}

// WSErrorMessage represents a stage failure
type WSErrorMessage struct {
	Type    string  `json:"type"`
	StoryID string  `json:"storyId"`
	Error   WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
