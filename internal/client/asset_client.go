package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stemline/api/internal/config"
)

// maxAssetSize caps a single downloaded audio file
const maxAssetSize = 200 * 1024 * 1024 // 200MB

// AssetFetcher downloads audio produced by a remote job
type AssetFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// AssetClient implements AssetFetcher over plain HTTP GETs
type AssetClient struct {
	httpClient *http.Client
	maxBytes   int64
}

// NewAssetClient creates a downloader bounded by the pipeline fetch timeout
func NewAssetClient(cfg *config.PipelineConfig) *AssetClient {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &AssetClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxBytes: maxAssetSize,
	}
}

// Fetch downloads the body at url
func (c *AssetClient) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("asset download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read asset: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("asset exceeds %d bytes", c.maxBytes)
	}

	return data, nil
}
