// Package fetch retrieves firmware images as ordered, offset-tagged chunk
// streams. The transport owns connection setup only; ordering guarantees are
// the receiver's problem, and every chunk carries its absolute offset.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// DefaultChunkSize is the transfer granularity for streamed images.
const DefaultChunkSize = 32 * 1024

// Chunk is one contiguous run of image bytes at an absolute offset.
type Chunk struct {
	Offset uint64
	Data   []byte
}

// Fetcher streams the image at location, invoking fn for each chunk in order.
// A non-nil error from fn stops the stream and is returned verbatim.
type Fetcher interface {
	Fetch(ctx context.Context, location string, fn func(Chunk) error) error
}

// Resolver picks a fetcher by location scheme: s3://bucket/key,
// http(s)://..., or a plain filesystem path.
type Resolver struct {
	HTTP *HTTPFetcher
	S3   *S3Fetcher
	File *FileFetcher
}

func NewResolver() *Resolver {
	return &Resolver{
		HTTP: NewHTTPFetcher(),
		File: &FileFetcher{},
	}
}

func (r *Resolver) Resolve(location string) (Fetcher, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse image location: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if r.HTTP == nil {
			return nil, fmt.Errorf("http fetch not configured")
		}
		return r.HTTP, nil
	case "s3":
		if r.S3 == nil {
			return nil, fmt.Errorf("s3 fetch not configured")
		}
		return r.S3, nil
	case "", "file":
		if r.File == nil {
			return nil, fmt.Errorf("file fetch not configured")
		}
		return r.File, nil
	}
	return nil, fmt.Errorf("unsupported image location scheme %q", u.Scheme)
}

// stream reads rc to EOF, emitting offset-tagged chunks.
func stream(ctx context.Context, rc io.Reader, fn func(Chunk) error) error {
	buf := make([]byte, DefaultChunkSize)
	var off uint64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := rc.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if cbErr := fn(Chunk{Offset: off, Data: data}); cbErr != nil {
				return cbErr
			}
			off += uint64(n)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
