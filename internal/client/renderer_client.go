package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/storyforge/api/internal/apperr"
	"github.com/storyforge/api/internal/config"
)

// VideoRenderer defines the interface for the compositing microservice that
// assembles segment images, narration audio and captions into a playable video
type VideoRenderer interface {
	Render(ctx context.Context, req *RenderRequest) (*RenderResponse, error)
	HealthCheck(ctx context.Context) error
	IsConfigured() bool
}

// RendererClient implements VideoRenderer for the Remotion render service
type RendererClient struct {
	httpClient *http.Client
	baseURL    string
}

// RenderScene is one image with its display window in the final video
type RenderScene struct {
	ImageURL string `json:"image_url"`
	Order    int    `json:"order"`
}

// RenderRequest represents the request for video compositing
type RenderRequest struct {
	AudioURL        string        `json:"audio_url"`
	CaptionsURL     string        `json:"captions_url,omitempty"`
	Scenes          []RenderScene `json:"scenes"`
	Vertical        bool          `json:"vertical"`
	CaptionPosition string        `json:"caption_position,omitempty"`
	HighlightColor  string        `json:"highlight_color,omitempty"`
	OutputKey       string        `json:"output_key"`
}

// RenderResponse represents the response from video compositing
type RenderResponse struct {
	OutputURL string  `json:"output_url"`
	Duration  float64 `json:"duration"`
	Size      int64   `json:"size"`
}

// NewRendererClient creates a new render service client
func NewRendererClient(cfg *config.RendererConfig) *RendererClient {
	return &RendererClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: cfg.ServiceURL,
	}
}

// Render sends a compositing request to the render service
func (c *RendererClient) Render(ctx context.Context, renderReq *RenderRequest) (*RenderResponse, error) {
	var result RenderResponse
	if err := c.post(ctx, "/render", renderReq, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// HealthCheck checks if the render service is available
func (c *RendererClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("render service unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

// post sends a POST request with JSON body and parses the response
func (c *RendererClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

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
		return apperr.Upstream("renderer", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return apperr.Upstream("renderer", resp.StatusCode, "malformed response: "+err.Error())
	}

	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *RendererClient) IsConfigured() bool {
	return c.baseURL != ""
}
