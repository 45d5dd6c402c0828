// Package agent talks to the external agent server that runs the
// backend compute session for a call.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/memory-postcard/voicecall/domain/repositories"
)

const (
	startPath = "/agents/start"
	pingPath  = "/agents/ping"
	stopPath  = "/agents/stop"

	requestTimeout = 10 * time.Second

	// Fish-speech synthesis defaults used by the voice_assistant graph.
	ttsBackend     = "s1"
	ttsTemperature = 0.7
	ttsSampleRate  = 16000
	ttsTopP        = 0.7
)

// Client implements repositories.AgentService over the agent server's
// HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ repositories.AgentService = (*Client)(nil)

// NewClient creates a client for the agent server at baseURL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

type startRequest struct {
	RequestID   string          `json:"request_id"`
	ChannelName string          `json:"channel_name"`
	UserUID     uint            `json:"user_uid"`
	GraphName   string          `json:"graph_name"`
	Properties  startProperties `json:"properties"`
}

type startProperties struct {
	TTS ttsProperties `json:"tts"`
	LLM llmProperties `json:"llm"`
}

type ttsProperties struct {
	Params ttsParams `json:"params"`
}

type ttsParams struct {
	Backend     string  `json:"backend"`
	Temperature float64 `json:"temperature"`
	SampleRate  int     `json:"sample_rate"`
	TopP        float64 `json:"top_p"`
	// ReferenceID selects a cloned voice. Present only when the
	// character has a configured voice identifier.
	ReferenceID string `json:"reference_id,omitempty"`
}

type llmProperties struct {
	Prompt   string `json:"prompt"`
	Greeting string `json:"greeting"`
}

type channelRequest struct {
	RequestID   string `json:"request_id"`
	ChannelName string `json:"channel_name"`
}

// Start launches the compute session for a channel.
func (c *Client) Start(ctx context.Context, req repositories.StartAgentRequest) error {
	body := startRequest{
		RequestID:   uuid.NewString(),
		ChannelName: req.Channel,
		UserUID:     req.UserID,
		GraphName:   req.GraphName,
		Properties: startProperties{
			TTS: ttsProperties{
				Params: ttsParams{
					Backend:     ttsBackend,
					Temperature: ttsTemperature,
					SampleRate:  ttsSampleRate,
					TopP:        ttsTopP,
					ReferenceID: req.VoiceReferenceID,
				},
			},
			LLM: llmProperties{
				Prompt:   req.Prompt,
				Greeting: req.Greeting,
			},
		},
	}

	c.logger.Info("Starting agent session",
		zap.String("channel", req.Channel),
		zap.String("graph", req.GraphName),
		zap.Uint("userID", req.UserID))

	return c.post(ctx, startPath, body)
}

// Ping keeps the compute session alive. The response carries no
// control-flow meaning.
func (c *Client) Ping(ctx context.Context, channel string) error {
	return c.post(ctx, pingPath, channelRequest{
		RequestID:   uuid.NewString(),
		ChannelName: channel,
	})
}

// Stop releases the compute session.
func (c *Client) Stop(ctx context.Context, channel string) error {
	c.logger.Info("Stopping agent session", zap.String("channel", channel))
	return c.post(ctx, stopPath, channelRequest{
		RequestID:   uuid.NewString(),
		ChannelName: channel,
	})
}

func (c *Client) post(ctx context.Context, path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errorBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("agent server returned %d: %s", resp.StatusCode, string(errorBody))
	}
	return nil
}
