// Package token fetches transport join credentials from the token
// issuance service.
package token

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
	generatePath   = "/token/generate"
	requestTimeout = 10 * time.Second
)

// Client implements repositories.CredentialIssuer over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ repositories.CredentialIssuer = (*Client)(nil)

// NewClient creates a client for the token server at baseURL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

type generateRequest struct {
	RequestID   string `json:"request_id"`
	UID         uint   `json:"uid"`
	ChannelName string `json:"channel_name"`
}

type generateResponse struct {
	Code string `json:"code"`
	Data struct {
		AppID string `json:"appId"`
		Token string `json:"token"`
	} `json:"data"`
}

// Issue exchanges a user id and channel name for join credentials.
func (c *Client) Issue(ctx context.Context, userID uint, channel string) (repositories.Credential, error) {
	payload, err := json.Marshal(generateRequest{
		RequestID:   uuid.NewString(),
		UID:         userID,
		ChannelName: channel,
	})
	if err != nil {
		return repositories.Credential{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + generatePath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return repositories.Credential{}, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return repositories.Credential{}, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		return repositories.Credential{}, fmt.Errorf("token server returned %d: %s",
			resp.StatusCode, string(errorBody))
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return repositories.Credential{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if decoded.Data.Token == "" {
		return repositories.Credential{}, fmt.Errorf("token server returned empty token")
	}

	c.logger.Debug("Issued join credential",
		zap.String("channel", channel), zap.Uint("userID", userID))

	return repositories.Credential{
		AppID: decoded.Data.AppID,
		Token: decoded.Data.Token,
	}, nil
}
