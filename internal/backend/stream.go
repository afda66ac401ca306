package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/uplink/internal/metrics"
	"github.com/raphaelgruber/uplink/internal/models"
)

// Processing-stream protocol message types.
const (
	msgStart     = "start"
	msgAck       = "ack"
	msgProgress  = "progress"
	msgComplete  = "complete"
	msgError     = "error"
	msgKeepAlive = "ka"
)

// wsMessage represents a processing-stream protocol message.
type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// startPayload opens a processing run. Exactly one of Files (local mode) or
// AccountID+FileIDs (remote mode) is set.
type startPayload struct {
	Mode      string             `json:"mode"` // "local" or "remote"
	Files     []models.LocalFile `json:"files,omitempty"`
	AccountID string             `json:"account_id,omitempty"`
	FileIDs   []string           `json:"file_ids,omitempty"`
}

// errorPayload carries a stream-level failure.
type errorPayload struct {
	Message string `json:"message"`
}

// EventFunc receives one progress event. Returning an error aborts the stream.
type EventFunc = func(models.ProgressEvent) error

// ProcessLocal uploads local byte payloads and streams stage progress, one
// event per (file-index, stage-transition), until the run completes.
func (c *Client) ProcessLocal(ctx context.Context, files []models.LocalFile, onEvent EventFunc) error {
	var bytes int64
	for _, f := range files {
		bytes += int64(len(f.Data))
	}

	start := time.Now()
	err := c.stream(ctx, startPayload{Mode: "local", Files: files}, onEvent)
	if err == nil {
		c.metrics.RecordTransfer(metrics.OpStreamLocal, time.Since(start), bytes)
	}
	return err
}

// ProcessRemote asks the backend to pull the given files from a remote
// account and streams stage progress with the same event shape as ProcessLocal.
func (c *Client) ProcessRemote(ctx context.Context, account models.Account, fileIDs []string, onEvent EventFunc) error {
	start := time.Now()
	err := c.stream(ctx, startPayload{Mode: "remote", AccountID: account.ID, FileIDs: fileIDs}, onEvent)
	if err == nil {
		c.metrics.RecordTiming(metrics.OpStreamRemote, time.Since(start))
	}
	return err
}

// stream runs one processing invocation over a dedicated websocket.
func (c *Client) stream(ctx context.Context, payload startPayload, onEvent EventFunc) error {
	// Convert HTTP endpoint to WebSocket endpoint
	wsEndpoint := c.endpoint
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint + "/process")
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}
	defer conn.Close()

	// Track connection state for proper cleanup
	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	// Send start message
	runID := uuid.New().String()
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal start payload: %w", err)
	}
	startMsg := wsMessage{ID: runID, Type: msgStart, Payload: raw}
	if err := conn.WriteJSON(startMsg); err != nil {
		return fmt.Errorf("send start: %w", err)
	}

	// Wait for ack
	var ackMsg wsMessage
	if err := conn.ReadJSON(&ackMsg); err != nil {
		return fmt.Errorf("read ack: %w", err)
	}
	if ackMsg.Type != msgAck {
		return fmt.Errorf("expected ack, got %s", ackMsg.Type)
	}

	// Handle context cancellation in a separate goroutine
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	// Read events until complete or error
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			// Check if this was due to context cancellation
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read message: %w", err)
		}

		switch msg.Type {
		case msgProgress:
			var event models.ProgressEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				return fmt.Errorf("unmarshal progress payload: %w", err)
			}
			if err := onEvent(event); err != nil {
				return err
			}

		case msgComplete:
			return nil

		case msgError:
			var ep errorPayload
			if err := json.Unmarshal(msg.Payload, &ep); err != nil {
				return fmt.Errorf("stream error: %s", string(msg.Payload))
			}
			return fmt.Errorf("stream error: %s", ep.Message)

		case msgKeepAlive:
			// Ignore keep-alive messages
			continue

		default:
			// Ignore unknown message types
			continue
		}
	}
}
