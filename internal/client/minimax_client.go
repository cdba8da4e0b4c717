package client

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/storyforge/api/internal/apperr"
	"github.com/storyforge/api/internal/config"
)

// SpeechSynthesizer defines the interface for text-to-speech operations.
// Callers must pre-chunk text to at most MaxSpeechChunkChars characters.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
	IsConfigured() bool
}

// MaxSpeechChunkChars is the per-request character budget of the vendor.
const MaxSpeechChunkChars = 500

// MiniMaxClient implements SpeechSynthesizer against the MiniMax t2a API
type MiniMaxClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	groupID    string
	model      string
}

type t2aRequest struct {
	Model         string         `json:"model"`
	Text          string         `json:"text"`
	Stream        bool           `json:"stream"`
	TimberWeights []timberWeight `json:"timber_weights"`
	VoiceSetting  voiceSetting   `json:"voice_setting"`
	AudioSetting  audioSetting   `json:"audio_setting"`
}

type timberWeight struct {
	VoiceID string `json:"voice_id"`
	Weight  int    `json:"weight"`
}

type voiceSetting struct {
	VoiceID string  `json:"voice_id"`
	Speed   float64 `json:"speed"`
	Vol     float64 `json:"vol"`
	Pitch   int     `json:"pitch"`
}

type audioSetting struct {
	SampleRate int    `json:"sample_rate"`
	Bitrate    int    `json:"bitrate"`
	Format     string `json:"format"`
}

type t2aResponse struct {
	Data struct {
		Audio string `json:"audio"` // hex-encoded audio bytes
	} `json:"data"`
	BaseResp struct {
		StatusCode int    `json:"status_code"`
		StatusMsg  string `json:"status_msg"`
	} `json:"base_resp"`
}

// NewMiniMaxClient creates a new MiniMax API client
func NewMiniMaxClient(cfg *config.MiniMaxConfig) *MiniMaxClient {
	return &MiniMaxClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		groupID: cfg.GroupID,
		model:   cfg.Model,
	}
}

// Synthesize converts one text chunk to binary MP3 audio
func (c *MiniMaxClient) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	reqBody := t2aRequest{
		Model:  c.model,
		Text:   text,
		Stream: false,
		TimberWeights: []timberWeight{
			{VoiceID: voiceID, Weight: 1},
		},
		VoiceSetting: voiceSetting{
			VoiceID: "",
			Speed:   1,
			Vol:     1,
			Pitch:   0,
		},
		AudioSetting: audioSetting{
			SampleRate: 32000,
			Bitrate:    128000,
			Format:     "mp3",
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/t2a_v2?GroupId=%s", c.baseURL, c.groupID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Printf("[MiniMax] → synthesize %d chars (voice=%s)", len(text), voiceID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Upstream("minimax", resp.StatusCode, string(respBody))
	}

	var t2aResp t2aResponse
	if err := json.Unmarshal(respBody, &t2aResp); err != nil {
		return nil, apperr.Upstream("minimax", resp.StatusCode, "malformed response: "+err.Error())
	}

	// A vendor error code inside a 200 response is still a failure.
	if t2aResp.BaseResp.StatusCode != 0 {
		return nil, apperr.Upstream("minimax", resp.StatusCode,
			fmt.Sprintf("vendor status %d: %s", t2aResp.BaseResp.StatusCode, t2aResp.BaseResp.StatusMsg))
	}

	if t2aResp.Data.Audio == "" {
		return nil, apperr.Upstream("minimax", resp.StatusCode, "no audio data in response")
	}

	audio, err := hex.DecodeString(t2aResp.Data.Audio)
	if err != nil {
		return nil, apperr.Upstream("minimax", resp.StatusCode, "invalid audio encoding: "+err.Error())
	}

	return audio, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *MiniMaxClient) IsConfigured() bool {
	return c.apiKey != "" && c.groupID != ""
}
