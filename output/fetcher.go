package output

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// HTTPFetcher downloads artifact bytes from their remote URL.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher; a nil client gets a sane default.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &HTTPFetcher{client: client}
}

// Fetch streams the bytes at source and reports the response content type.
func (f *HTTPFetcher) Fetch(ctx context.Context, source string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to build request for %s", source)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to fetch %s", source)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", errors.Errorf("fetching %s: unexpected status %d", source, resp.StatusCode)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

var _ Fetcher = (*HTTPFetcher)(nil)
