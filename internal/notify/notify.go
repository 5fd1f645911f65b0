package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/apexmedia/cdn-sync-agent/internal/engine"
)

// Client pushes ntfy notifications when a session's batch delivery
// keeps failing, and again when it recovers. It implements
// engine.Events; callbacks never block — sends run on their own
// goroutine.
type Client struct {
	httpClient *http.Client
	config     *Config
	logger     *zap.Logger

	mu      sync.Mutex
	streaks map[string]int // consecutive failures per session
}

func NewClient(cfg *Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		config:  cfg,
		logger:  logger,
		streaks: make(map[string]int),
	}
}

func (c *Client) OperationEnqueued(engine.Operation) {}

func (c *Client) BatchDelivered(sessionID string, count int) {
	if !c.config.Enabled {
		return
	}

	c.mu.Lock()
	streak := c.streaks[sessionID]
	delete(c.streaks, sessionID)
	c.mu.Unlock()

	if streak < c.config.FailureThreshold {
		return
	}

	title := fmt.Sprintf("Sync Recovered: %s", sessionID)
	message := FormatRecoveredMessage(sessionID, streak, count)
	go c.send(title, message, c.config.Tags+",white_check_mark", c.config.Priority)
}

func (c *Client) BatchFailed(sessionID string, count int, err error) {
	if !c.config.Enabled {
		return
	}

	c.mu.Lock()
	c.streaks[sessionID]++
	streak := c.streaks[sessionID]
	c.mu.Unlock()

	// Notify once when the threshold is crossed, not on every retry.
	if streak != c.config.FailureThreshold {
		return
	}

	title := fmt.Sprintf("Sync Failing: %s", sessionID)
	message := FormatFailureMessage(sessionID, streak, count, err)
	go c.send(title, message, c.config.Tags+",x", "high")
}

func (c *Client) send(title, message, tags, priority string) {
	url := fmt.Sprintf("%s/%s", strings.TrimSuffix(c.config.Server, "/"), c.config.Topic)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(message))
	if err != nil {
		c.logger.Warn("creating notification request failed", zap.Error(err))
		return
	}

	req.Header.Set("Title", title)
	req.Header.Set("Priority", priority)
	req.Header.Set("Tags", tags)

	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("sending notification failed", zap.Error(err))
		return
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("notification rejected", zap.Int("status", resp.StatusCode))
	}
}
