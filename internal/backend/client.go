// Package backend provides the client for the document-processing backend.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/raphaelgruber/uplink/internal/metrics"
	"github.com/raphaelgruber/uplink/internal/models"
)

// Client talks to the processing backend over HTTP and websocket.
type Client struct {
	endpoint   string
	httpClient *http.Client
	metrics    *metrics.Collector
}

// New creates a new backend client.
// If endpoint is empty, uses UPLINK_SERVER_URL env var or defaults to localhost:8484.
// Timeout can be configured via UPLINK_CLIENT_TIMEOUT env var (default 10m for batch uploads).
func New(endpoint string, collector *metrics.Collector) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("UPLINK_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "http://localhost:8484"
	}

	timeout := 10 * time.Minute // Default: 10 minutes for large batch uploads
	if t := os.Getenv("UPLINK_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	if collector == nil {
		collector = metrics.NewCollector()
	}

	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: collector,
	}
}

// Metrics returns the client's metrics collector.
func (c *Client) Metrics() *metrics.Collector { return c.metrics }

// get performs a GET request and decodes the JSON response into result.
func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.endpoint+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server error: %s - %s", resp.Status, string(body))
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// Ping checks that the backend is reachable and healthy.
func (c *Client) Ping(ctx context.Context) error {
	var status struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/healthz", &status); err != nil {
		return err
	}
	if status.Status != "ok" {
		return fmt.Errorf("backend unhealthy: %s", status.Status)
	}
	return nil
}

// ListDocuments fetches the server's current list of tracked documents.
// This is the authority of last resort for reconciliation.
func (c *Client) ListDocuments(ctx context.Context) ([]models.Document, error) {
	start := time.Now()

	var result struct {
		Documents []models.Document `json:"documents"`
	}
	if err := c.get(ctx, "/documents", &result); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	c.metrics.RecordTiming(metrics.OpPoll, time.Since(start))
	return result.Documents, nil
}
