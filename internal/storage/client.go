package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultClientTimeout = 60 * time.Second

var (
	ErrMissingStorageBaseURL = errors.New("storage: base URL required")
	ErrMissingStorageAPIKey  = errors.New("storage: API key required")
	ErrMissingStorageBucket  = errors.New("storage: bucket required")
)

// BlobClient is the vendor-facing surface the upload service depends on.
type BlobClient interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, key string) error
}

// ClientConfig holds blob API client configuration.
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Bucket     string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the managed blob storage API.
type Client struct {
	baseURL    string
	apiKey     string
	bucket     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a blob storage client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrMissingStorageBaseURL
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingStorageAPIKey
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, ErrMissingStorageBucket
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultClientTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		bucket:     cfg.Bucket,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type putResponsePayload struct {
	URL string `json:"url"`
}

// Put uploads one object and returns its public URL.
func (c *Client) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	endpoint := c.objectURL(key)
	request, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("storage: build request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", contentType)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("storage: upload failed: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		c.logger.Warn("blob API rejected upload",
			zap.String("key", key),
			zap.Int("status", response.StatusCode),
			zap.ByteString("body", detail))
		return "", fmt.Errorf("storage: unexpected status %d", response.StatusCode)
	}

	var decoded putResponsePayload
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("storage: decode upload response: %w", err)
	}
	if decoded.URL == "" {
		return "", errors.New("storage: upload response missing URL")
	}
	return decoded.URL, nil
}

// Delete removes one object. Used for compensating deletes after a partial
// batch failure.
func (c *Client) Delete(ctx context.Context, key string) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.objectURL(key), http.NoBody)
	if err != nil {
		return fmt.Errorf("storage: build request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+c.apiKey)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("storage: delete failed: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode >= 300 && response.StatusCode != http.StatusNotFound {
		return fmt.Errorf("storage: unexpected status %d", response.StatusCode)
	}
	return nil
}

func (c *Client) objectURL(key string) string {
	return fmt.Sprintf("%s/v1/buckets/%s/objects/%s", c.baseURL, url.PathEscape(c.bucket), url.PathEscape(key))
}
