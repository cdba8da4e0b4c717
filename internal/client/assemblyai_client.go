package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/storyforge/api/internal/apperr"
	"github.com/storyforge/api/internal/config"
	"github.com/storyforge/api/internal/model"
)

// Transcription job status values as reported by Poll.
const (
	TranscriptStatusProcessing = "processing"
	TranscriptStatusCompleted  = "completed"
	TranscriptStatusError      = "error"
)

// Transcriber defines the interface for asynchronous speech-to-text jobs
type Transcriber interface {
	Submit(ctx context.Context, audioURL string) (string, error)
	Poll(ctx context.Context, jobID string) (*TranscriptResult, error)
	IsConfigured() bool
}

// TranscriptResult is the state of a transcription job. Words carry
// word-level millisecond timestamps; Speaker is nil when the vendor sends
// no speaker labels.
type TranscriptResult struct {
	Status string
	Text   string
	Words  []model.Word
	Error  string
}

// AssemblyAIClient implements Transcriber against the AssemblyAI v2 API
type AssemblyAIClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

type transcriptRequest struct {
	AudioURL string `json:"audio_url"`
}

type transcriptResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"` // queued | processing | completed | error
	Text   string `json:"text"`
	Error  string `json:"error"`
	Words  []struct {
		Text       string  `json:"text"`
		Start      int     `json:"start"`
		End        int     `json:"end"`
		Confidence float64 `json:"confidence"`
		Speaker    *int    `json:"speaker"`
	} `json:"words"`
}

// NewAssemblyAIClient creates a new AssemblyAI API client
func NewAssemblyAIClient(cfg *config.AssemblyAIConfig) *AssemblyAIClient {
	return &AssemblyAIClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// Submit starts a transcription job for an audio URL and returns the job id
func (c *AssemblyAIClient) Submit(ctx context.Context, audioURL string) (string, error) {
	bodyBytes, err := json.Marshal(transcriptRequest{AudioURL: audioURL})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/transcript", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	var tr transcriptResponse
	if err := c.doRequest(req, &tr); err != nil {
		return "", err
	}
	if tr.ID == "" {
		return "", apperr.Upstream("assemblyai", 0, "no job id in response")
	}

	return tr.ID, nil
}

// Poll fetches the current state of a transcription job. Queued jobs are
// reported as processing so callers see a three-way discriminated result.
func (c *AssemblyAIClient) Poll(ctx context.Context, jobID string) (*TranscriptResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/transcript/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var tr transcriptResponse
	if err := c.doRequest(req, &tr); err != nil {
		return nil, err
	}

	result := &TranscriptResult{Text: tr.Text, Error: tr.Error}

	switch tr.Status {
	case "completed":
		result.Status = TranscriptStatusCompleted
		result.Words = make([]model.Word, 0, len(tr.Words))
		for _, w := range tr.Words {
			result.Words = append(result.Words, model.Word{
				Text:       w.Text,
				Start:      w.Start,
				End:        w.End,
				Confidence: w.Confidence,
				Speaker:    w.Speaker,
			})
		}
	case "error":
		result.Status = TranscriptStatusError
		if result.Error == "" {
			result.Error = "transcription failed"
		}
	default:
		result.Status = TranscriptStatusProcessing
	}

	return result, nil
}

// doRequest executes an HTTP request and parses the response
func (c *AssemblyAIClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	log.Printf("[AssemblyAI] → %s %s", req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.Upstream("assemblyai", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return apperr.Upstream("assemblyai", resp.StatusCode, "malformed response: "+err.Error())
	}

	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *AssemblyAIClient) IsConfigured() bool {
	return c.apiKey != ""
}
