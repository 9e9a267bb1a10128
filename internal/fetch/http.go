package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPFetcher streams an image over HTTP(S) GET.
type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: 10 * time.Minute}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, location string, fn func(Chunk) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: unexpected status %s", location, resp.Status)
	}
	return stream(ctx, resp.Body, fn)
}
