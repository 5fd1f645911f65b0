package cdn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// videoExtensions are the file types enriched with stream metadata.
var videoExtensions = []string{".mp4", ".mov", ".webm"}

// VideoMetadata is the subset of the video API's response surfaced to
// listing consumers.
type VideoMetadata struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Encoding int     `json:"encoding"`
	Status   int     `json:"status"`
}

// videoResponse mirrors the video API's field names.
type videoResponse struct {
	Length float64 `json:"length"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Encode int     `json:"encode"`
	Status int     `json:"status"`
}

// storageObject mirrors one entry of the storage zone listing API.
type storageObject struct {
	ObjectName  string    `json:"ObjectName"`
	IsDirectory bool      `json:"IsDirectory"`
	Length      int64     `json:"Length"`
	LastChanged time.Time `json:"LastChanged"`
}

// ContentItem is one enriched listing entry. Metadata is nil for
// directories, non-video files, and video files whose metadata lookup
// failed.
type ContentItem struct {
	Name     string         `json:"name"`
	Type     string         `json:"type"` // "file" or "directory"
	Size     int64          `json:"size"`
	Modified time.Time      `json:"modified"`
	Metadata *VideoMetadata `json:"metadata"`
}

type Client struct {
	httpClient *http.Client
	storageURL string
	videoURL   string
	libraryID  string
	accessKey  string
	cache      *gocache.Cache
	logger     *zap.Logger
}

func NewClient(storageURL, videoURL, libraryID, accessKey string, metadataTTL time.Duration, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		storageURL: strings.TrimSuffix(storageURL, "/"),
		videoURL:   strings.TrimSuffix(videoURL, "/"),
		libraryID:  libraryID,
		accessKey:  accessKey,
		cache:      gocache.New(metadataTTL, 2*metadataTTL),
		logger:     logger,
	}
}

// VideoMetadata fetches stream metadata for one video, serving repeat
// lookups from the TTL cache.
func (c *Client) VideoMetadata(ctx context.Context, videoID string) (*VideoMetadata, error) {
	if cached, ok := c.cache.Get(videoID); ok {
		return cached.(*VideoMetadata), nil
	}

	url := fmt.Sprintf("%s/library/%s/videos/%s", c.videoURL, c.libraryID, videoID)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var resp videoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding video metadata: %w", err)
	}

	meta := &VideoMetadata{
		Duration: resp.Length,
		Width:    resp.Width,
		Height:   resp.Height,
		Encoding: resp.Encode,
		Status:   resp.Status,
	}
	c.cache.SetDefault(videoID, meta)
	return meta, nil
}

// ListContents lists a storage directory and attaches video metadata to
// recognized video files. A metadata failure never fails the listing;
// the item is returned with nil metadata.
func (c *Client) ListContents(ctx context.Context, path string) ([]ContentItem, error) {
	url := fmt.Sprintf("%s/%s/", c.storageURL, strings.Trim(path, "/"))
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", path, err)
	}

	var objects []storageObject
	if err := json.Unmarshal(body, &objects); err != nil {
		return nil, fmt.Errorf("decoding listing: %w", err)
	}

	items := make([]ContentItem, 0, len(objects))
	for _, obj := range objects {
		item := ContentItem{
			Name:     obj.ObjectName,
			Type:     "file",
			Size:     obj.Length,
			Modified: obj.LastChanged,
		}
		if obj.IsDirectory {
			item.Type = "directory"
		}

		if item.Type == "file" && isVideo(obj.ObjectName) {
			meta, err := c.VideoMetadata(ctx, obj.ObjectName)
			if err != nil {
				c.logger.Warn("fetching video metadata failed",
					zap.String("file", obj.ObjectName),
					zap.Error(err),
				)
			} else {
				item.Metadata = meta
			}
		}

		items = append(items, item)
	}

	return items, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("AccessKey", c.accessKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

func isVideo(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range videoExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
