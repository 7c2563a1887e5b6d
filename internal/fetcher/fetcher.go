package fetcher

import (
	"context"
	"io"
)

// HeadInfo summarizes a HEAD probe of a remote document. ContentLength is -1
// when the server did not report a size.
type HeadInfo struct {
	StatusCode    int
	ContentLength int64
	ContentType   string
	Disposition   string
	Location      string
}

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)

	// Head performs a HEAD request without following redirects.
	Head(ctx context.Context, url string) (*HeadInfo, error)
}
