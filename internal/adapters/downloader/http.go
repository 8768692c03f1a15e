package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const userAgent = "clipforge/1.0"

// HTTPDownloader implements ports.Downloader over plain HTTP(S). Redirects are
// followed, which release hosts rely on.
type HTTPDownloader struct {
	client *http.Client
}

// NewHTTPDownloader creates a new HTTPDownloader. A zero timeout means none.
func NewHTTPDownloader(timeout time.Duration) *HTTPDownloader {
	return &HTTPDownloader{
		client: &http.Client{Timeout: timeout},
	}
}

// NewHTTPDownloaderWithClient wraps an existing client.
func NewHTTPDownloaderWithClient(client *http.Client) *HTTPDownloader {
	return &HTTPDownloader{client: client}
}

// Download fetches fileURL and returns the response body.
func (d *HTTPDownloader) Download(ctx context.Context, fileURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", fileURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code downloading %s: %d", fileURL, resp.StatusCode)
	}

	return resp.Body, nil
}
