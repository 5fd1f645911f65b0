package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Batch maps an operation kind to the ordered list of formatted payloads
// for that kind. Order within a kind is the enqueue order.
type Batch map[string][]map[string]any

// Transport delivers one session's grouped batch upstream.
type Transport interface {
	Post(ctx context.Context, sessionID string, batch Batch) error
}

// syncRequest is the upstream wire envelope for one session batch.
type syncRequest struct {
	SessionID  string `json:"sessionId"`
	Operations Batch  `json:"operations"`
}

type HTTPClient struct {
	httpClient      *http.Client
	baseURL         string
	accessKey       string
	limiter         *rate.Limiter
	compressMinSize int
	logger          *zap.Logger
}

func NewClient(baseURL, accessKey string, ratePerSec int, timeout time.Duration, compressMinSize int, logger *zap.Logger) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:       100,
		MaxConnsPerHost:    10,
		IdleConnTimeout:    90 * time.Second,
		DisableCompression: false,
	}

	return &HTTPClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		baseURL:         baseURL,
		accessKey:       accessKey,
		limiter:         rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec*2),
		compressMinSize: compressMinSize,
		logger:          logger,
	}
}

// Post sends one grouped batch for a session. It makes exactly one
// attempt; retry across drain cycles belongs to the engine.
func (c *HTTPClient) Post(ctx context.Context, sessionID string, batch Batch) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	payload, err := json.Marshal(syncRequest{SessionID: sessionID, Operations: batch})
	if err != nil {
		return fmt.Errorf("encoding batch: %w", err)
	}

	body, encoding, err := c.encodeBody(payload)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/v1/sessions/%s/operations:sync", c.baseURL, url.PathEscape(sessionID))
	c.logger.Debug("posting batch",
		zap.String("session", sessionID),
		zap.Int("kinds", len(batch)),
		zap.Int("bytes", body.Len()),
		zap.String("encoding", encoding),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("AccessKey", c.accessKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}

	respBody, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return fmt.Errorf("reading response: %w", readErr)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrAuthFailed
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrServer, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// encodeBody gzips payloads above the configured threshold. A threshold
// of zero or below disables compression.
func (c *HTTPClient) encodeBody(payload []byte) (*bytes.Buffer, string, error) {
	if c.compressMinSize <= 0 || len(payload) < c.compressMinSize {
		return bytes.NewBuffer(payload), "", nil
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return nil, "", fmt.Errorf("compressing batch: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, "", fmt.Errorf("compressing batch: %w", err)
	}
	return &buf, "gzip", nil
}
