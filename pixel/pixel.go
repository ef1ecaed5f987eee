// Package pixel ships flattened telemetry records to the collection
// backend. One pixel is one flat string map; the backend imposes no schema
// beyond that.
package pixel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Client posts pixels to the collection endpoint.
type Client struct {
	BaseURL    string
	AppName    string
	HTTPClient *http.Client

	mu       sync.Mutex
	lastSend time.Time
}

// NewClient creates a pixel client for the given collection endpoint.
func NewClient(baseURL, appName string) *Client {
	return &Client{
		BaseURL: baseURL,
		AppName: appName,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SendPixel posts one flat parameter map. The map travels as a JSON object
// of string values.
func (c *Client) SendPixel(ctx context.Context, params map[string]string) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode pixel: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/t", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.AppName)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("pixel request failed: %w", err)
	}
	defer resp.Body.Close()

	respData, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("pixel endpoint returned status %d: %s", resp.StatusCode, string(respData))
	}

	c.mu.Lock()
	c.lastSend = time.Now()
	c.mu.Unlock()

	return nil
}

// LastSend returns when a pixel last went out successfully.
func (c *Client) LastSend() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSend
}
