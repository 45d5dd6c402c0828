// Package catalog is a read-only consumer of the character/postcard
// CRUD backend. The engine only needs a persona and the most recent
// exchanges; everything else that backend does stays out of scope.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/memory-postcard/voicecall/domain/entities"
	"github.com/memory-postcard/voicecall/domain/repositories"
)

const requestTimeout = 10 * time.Second

// Client implements CharacterRepository and PostcardRepository against
// the backend's REST API.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	logger     *zap.Logger
}

var (
	_ repositories.CharacterRepository = (*Client)(nil)
	_ repositories.PostcardRepository  = (*Client)(nil)
)

// NewClient creates a client for the CRUD backend at baseURL. authToken
// is the bearer token of the calling user; postcard listing requires it.
func NewClient(baseURL, authToken string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

// apiResponse is the backend's uniform envelope.
type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type paginatedPostcards struct {
	Items []entities.Postcard `json:"items"`
	Total int64               `json:"total"`
}

// GetCharacter loads one character persona.
func (c *Client) GetCharacter(ctx context.Context, id uint) (*entities.Character, error) {
	data, err := c.get(ctx, fmt.Sprintf("/api/v1/characters/%d", id))
	if err != nil {
		return nil, err
	}
	var character entities.Character
	if err := json.Unmarshal(data, &character); err != nil {
		return nil, fmt.Errorf("failed to decode character: %w", err)
	}
	return &character, nil
}

// RecentPostcards lists the caller's newest postcards, newest first.
func (c *Client) RecentPostcards(ctx context.Context, limit int) ([]entities.Postcard, error) {
	query := url.Values{}
	query.Set("page", "1")
	query.Set("page_size", strconv.Itoa(limit))
	query.Set("sort_by", "created_at")
	query.Set("sort_order", "desc")

	data, err := c.get(ctx, "/api/v1/postcards?"+query.Encode())
	if err != nil {
		return nil, err
	}
	var page paginatedPostcards
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("failed to decode postcards: %w", err)
	}
	return page.Items, nil
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if c.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("backend returned %d: %s", resp.StatusCode, string(errorBody))
	}

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if envelope.Code != http.StatusOK {
		return nil, fmt.Errorf("backend error %d: %s", envelope.Code, envelope.Message)
	}
	return envelope.Data, nil
}
