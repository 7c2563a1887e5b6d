package attach

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/solwatch/internal/fetcher"
)

// MaxAttachmentBytes is the largest document worth downloading. Anything
// bigger is almost always video or imagery, not a solicitation document.
const MaxAttachmentBytes int64 = 500_000_000

// download is one retrieved file on local disk, pending text extraction.
type download struct {
	Filename string
	URL      string
	Path     string
}

// Downloader retrieves attachment URLs to a working directory, exploding zip
// bundles into their member files.
type Downloader struct {
	http    fetcher.Fetcher
	ftp     fetcher.Fetcher
	workDir string
	maxSize int64
	log     *zap.Logger
}

// NewDownloader creates a Downloader writing into workDir.
func NewDownloader(httpFetcher, ftpFetcher fetcher.Fetcher, workDir string) *Downloader {
	return &Downloader{
		http:    httpFetcher,
		ftp:     ftpFetcher,
		workDir: workDir,
		maxSize: MaxAttachmentBytes,
		log:     zap.L().With(zap.String("component", "attach.download")),
	}
}

// SetMaxSize overrides the size cap for deployments that lower it.
func (d *Downloader) SetMaxSize(n int64) {
	if n > 0 {
		d.maxSize = n
	}
}

// Fetch retrieves one attachment URL. A zip yields one download per member
// file; everything else yields one download. Errors mean "no file for this
// URL"; the caller records the attachment as unreadable and moves on.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) ([]download, error) {
	if strings.HasPrefix(rawURL, "ftp://") {
		return d.fetchFTP(ctx, rawURL)
	}
	return d.fetchHTTP(ctx, rawURL)
}

func (d *Downloader) fetchHTTP(ctx context.Context, rawURL string) ([]download, error) {
	head, err := d.http.Head(ctx, rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "attach: head %s", rawURL)
	}

	// One redirect hop. Legacy notice hosts front their file store with a
	// single bounce; deeper chains are treated as broken links.
	fetchURL := rawURL
	if head.StatusCode >= 300 && head.StatusCode < 400 {
		if head.Location == "" {
			return nil, eris.Errorf("attach: redirect without location from %s", rawURL)
		}
		fetchURL = head.Location
		head, err = d.http.Head(ctx, fetchURL)
		if err != nil {
			return nil, eris.Wrapf(err, "attach: head redirect target %s", fetchURL)
		}
	}
	if head.StatusCode != 200 {
		return nil, eris.Errorf("attach: head %s returned %d", fetchURL, head.StatusCode)
	}

	// Size gate. An absent Content-Length is rejected too: the legacy hosts
	// that omit it are the same ones that stream multi-gigabyte archives.
	if head.ContentLength < 0 {
		return nil, eris.Errorf("attach: %s reports no content length", fetchURL)
	}
	if head.ContentLength > d.maxSize {
		return nil, eris.Errorf("attach: %s is %d bytes, over the %d byte limit", fetchURL, head.ContentLength, d.maxSize)
	}

	filename := ResolveFilename(head.Disposition, fetchURL, head.ContentType)
	localPath := filepath.Join(d.workDir, sanitize(filename))

	if _, err := d.http.DownloadToFile(ctx, fetchURL, localPath); err != nil {
		return nil, eris.Wrapf(err, "attach: download %s", fetchURL)
	}

	return d.explodeIfZip(download{Filename: filename, URL: rawURL, Path: localPath})
}

func (d *Downloader) fetchFTP(ctx context.Context, rawURL string) ([]download, error) {
	// FTP servers offer no Content-Type to fall back on, so the URL must
	// carry a recognized document extension. Legacy hosts link plenty of
	// executables and media under attachment paths; none of it is worth
	// pulling.
	filename := urlBasename(rawURL)
	if filename == "" || !knownExtensions[strings.ToLower(filepath.Ext(filename))] {
		return nil, eris.Errorf("attach: %s has no recognized document extension", rawURL)
	}
	localPath := filepath.Join(d.workDir, sanitize(filename))

	if _, err := d.ftp.DownloadToFile(ctx, rawURL, localPath); err != nil {
		return nil, eris.Wrapf(err, "attach: ftp download %s", rawURL)
	}

	return d.explodeIfZip(download{Filename: filename, URL: rawURL, Path: localPath})
}

// explodeIfZip replaces a zip download with one download per member file.
// The zip itself is never recorded as an attachment.
func (d *Downloader) explodeIfZip(dl download) ([]download, error) {
	if !strings.EqualFold(filepath.Ext(dl.Filename), ".zip") {
		return []download{dl}, nil
	}

	destDir := strings.TrimSuffix(dl.Path, filepath.Ext(dl.Path))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "attach: create zip extraction dir")
	}

	paths, err := fetcher.ExtractZIP(dl.Path, destDir)
	if err != nil {
		return nil, eris.Wrapf(err, "attach: extract %s", dl.Filename)
	}

	out := make([]download, 0, len(paths))
	for _, p := range paths {
		out = append(out, download{
			Filename: filepath.Base(p),
			URL:      dl.URL,
			Path:     p,
		})
	}
	d.log.Debug("exploded zip",
		zap.String("zip", dl.Filename),
		zap.Int("members", len(out)),
	)
	return out, nil
}

// writeStream writes a response body to disk.
func writeStream(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrapf(err, "write %s", path)
	}
	return f.Close()
}

// sanitize keeps downloaded filenames inside the working directory.
func sanitize(name string) string {
	name = filepath.Base(name)
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}
