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
)

// ImageGenerator defines the interface for text-to-image operations
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, vertical bool) ([]byte, error)
	IsConfigured() bool
}

// ReplicateClient implements ImageGenerator against the Replicate predictions API
type ReplicateClient struct {
	httpClient *http.Client
	baseURL    string
	apiToken   string
	model      string
}

// predictionRequest is the request body for creating a prediction
type predictionRequest struct {
	Input predictionInput `json:"input"`
}

type predictionInput struct {
	Prompt       string `json:"prompt"`
	AspectRatio  string `json:"aspect_ratio,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
}

// Prediction represents a Replicate prediction job
type Prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// NewReplicateClient creates a new Replicate API client
func NewReplicateClient(cfg *config.ReplicateConfig) *ReplicateClient {
	return &ReplicateClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL:  cfg.BaseURL,
		apiToken: cfg.APIToken,
		model:    cfg.Model,
	}
}

// GenerateImage creates a prediction for the prompt, waits for it to finish
// and returns the raw image bytes.
func (c *ReplicateClient) GenerateImage(ctx context.Context, prompt string, vertical bool) ([]byte, error) {
	aspect := "16:9"
	if vertical {
		aspect = "9:16"
	}

	pred, err := c.createPrediction(ctx, &predictionRequest{
		Input: predictionInput{Prompt: prompt, AspectRatio: aspect, OutputFormat: "png"},
	})
	if err != nil {
		return nil, err
	}

	result, err := c.pollPrediction(ctx, pred.ID, 2*time.Second, 5*time.Minute)
	if err != nil {
		return nil, err
	}

	imageURL, err := firstOutputURL(result.Output)
	if err != nil {
		return nil, apperr.Upstream("replicate", 0, err.Error())
	}

	return c.download(ctx, imageURL)
}

func (c *ReplicateClient) createPrediction(ctx context.Context, reqBody *predictionRequest) (*Prediction, error) {
	endpoint := fmt.Sprintf("%s/models/%s/predictions", c.baseURL, c.model)

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var pred Prediction
	if err := c.doRequest(req, &pred); err != nil {
		return nil, err
	}
	return &pred, nil
}

func (c *ReplicateClient) getPrediction(ctx context.Context, id string) (*Prediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/predictions/%s", c.baseURL, id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var pred Prediction
	if err := c.doRequest(req, &pred); err != nil {
		return nil, err
	}
	return &pred, nil
}

// pollPrediction polls for prediction completion
func (c *ReplicateClient) pollPrediction(ctx context.Context, id string, interval, maxWait time.Duration) (*Prediction, error) {
	deadline := time.Now().Add(maxWait)
	attempt := 0

	for time.Now().Before(deadline) {
		attempt++
		pred, err := c.getPrediction(ctx, id)
		if err != nil {
			log.Printf("[Replicate] Poll #%d (prediction=%s) — error: %v", attempt, id, err)
			return nil, err
		}

		log.Printf("[Replicate] Poll #%d (prediction=%s) — status: %s", attempt, id, pred.Status)

		switch pred.Status {
		case "succeeded":
			return pred, nil
		case "failed", "canceled":
			return nil, apperr.Upstream("replicate", 0, fmt.Sprintf("prediction %s: %s", pred.Status, pred.Error))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
			continue
		}
	}

	return nil, apperr.Upstream("replicate", 0, fmt.Sprintf("prediction timed out after %v", maxWait))
}

// download fetches the generated image bytes
func (c *ReplicateClient) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Upstream("replicate", resp.StatusCode, "image download failed")
	}

	return io.ReadAll(resp.Body)
}

// doRequest executes an HTTP request and parses the response
func (c *ReplicateClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	log.Printf("[Replicate] → %s %s", req.Method, req.URL.String())

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
		return apperr.Upstream("replicate", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return apperr.Upstream("replicate", resp.StatusCode, "malformed response: "+err.Error())
	}

	return nil
}

// firstOutputURL extracts the image URL from a prediction output, which the
// API returns either as a single string or as an array of strings.
func firstOutputURL(output json.RawMessage) (string, error) {
	if len(output) == 0 {
		return "", fmt.Errorf("prediction has no output")
	}

	var single string
	if err := json.Unmarshal(output, &single); err == nil && single != "" {
		return single, nil
	}

	var many []string
	if err := json.Unmarshal(output, &many); err == nil && len(many) > 0 {
		return many[0], nil
	}

	return "", fmt.Errorf("unrecognized prediction output")
}

// IsConfigured returns true if the client has valid configuration
func (c *ReplicateClient) IsConfigured() bool {
	return c.apiToken != ""
}
