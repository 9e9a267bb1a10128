package fetch

import (
	"context"
	"net/url"
	"os"
	"strings"
)

// FileFetcher streams an image from the local filesystem. Used for bench
// provisioning and the tests.
type FileFetcher struct{}

func (f *FileFetcher) Fetch(ctx context.Context, location string, fn func(Chunk) error) error {
	path := location
	if strings.HasPrefix(location, "file://") {
		u, err := url.Parse(location)
		if err != nil {
			return err
		}
		path = u.Path
	}
	r, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()
	return stream(ctx, r, fn)
}
