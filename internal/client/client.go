package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kelsos/collector-sync/internal/config"
	"github.com/kelsos/collector-sync/internal/logger"
)

// APIClient handles all HTTP communication with the collection API
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient creates a new API client with the given configuration
func NewAPIClient(cfg *config.Config) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

// BuildURL constructs a full URL for the given endpoint
func (c *APIClient) BuildURL(endpoint string) string {
	return fmt.Sprintf("%s/api/1%s", c.baseURL, endpoint)
}

// Get makes a GET request to the specified endpoint
func (c *APIClient) Get(ctx context.Context, endpoint string, result interface{}) error {
	return c.request(ctx, http.MethodGet, endpoint, nil, result)
}

// Post makes a POST request to the specified endpoint
func (c *APIClient) Post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	return c.request(ctx, http.MethodPost, endpoint, body, result)
}

// request is the core HTTP request method
func (c *APIClient) request(ctx context.Context, method, endpoint string, body interface{}, result interface{}) error {
	url := c.BuildURL(endpoint)
	start := time.Now()
	logger.Debug("Starting %s request to %s", method, url)

	var requestBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error marshaling request body: %w", err)
		}
		requestBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, requestBody)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		elapsed := time.Since(start)
		logger.Debug("Request failed after (%s) %v: %v", url, elapsed, err)
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	elapsed := time.Since(start)
	logger.Debug("Request to %s completed in %v with status %d", url, elapsed, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP error %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("error decoding response: %w", err)
		}
	}

	return nil
}

// Ping checks if the API is reachable
func (c *APIClient) Ping(ctx context.Context) error {
	if err := c.Get(ctx, "/ping", nil); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}
