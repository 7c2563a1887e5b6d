package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// chromeDownloader drives a headless browser through the export download.
// The export endpoint sits behind a dynamic page; a plain GET returns the
// page shell, not the file.
type chromeDownloader struct {
	chromePath string
}

func newChromeDownloader(chromePath string) *chromeDownloader {
	return &chromeDownloader{chromePath: chromePath}
}

const downloadTimeout = 5 * time.Minute

// DownloadCSV navigates to the export URL with downloads redirected into a
// scratch directory, waits for the file to land, and moves it to destPath.
func (c *chromeDownloader) DownloadCSV(ctx context.Context, url, destPath string) error {
	scratch, err := os.MkdirTemp("", "snapshot-download-")
	if err != nil {
		return eris.Wrap(err, "snapshot: create download dir")
	}
	defer os.RemoveAll(scratch) //nolint:errcheck

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if c.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(c.chromePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	taskCtx, timeoutCancel := context.WithTimeout(taskCtx, downloadTimeout)
	defer timeoutCancel()

	err = chromedp.Run(taskCtx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(scratch).
			WithEventsEnabled(true),
		chromedp.Navigate(url),
	)
	// Navigation to a direct download aborts with net::ERR_ABORTED; the
	// download itself still proceeds.
	if err != nil && !isAbortedNavigation(err) {
		return eris.Wrap(err, "snapshot: drive export download")
	}

	downloaded, err := waitForDownload(taskCtx, scratch)
	if err != nil {
		return err
	}

	if err := os.Rename(downloaded, destPath); err != nil {
		// Rename fails across filesystems; fall back to a copy.
		data, readErr := os.ReadFile(downloaded)
		if readErr != nil {
			return eris.Wrap(readErr, "snapshot: read downloaded export")
		}
		if writeErr := os.WriteFile(destPath, data, 0o644); writeErr != nil {
			return eris.Wrap(writeErr, "snapshot: move downloaded export")
		}
	}

	zap.L().Debug("snapshot: export downloaded via browser", zap.String("dest", destPath))
	return nil
}

func isAbortedNavigation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "net::ERR_ABORTED") ||
		strings.Contains(err.Error(), "download is started")
}

// waitForDownload polls the scratch directory until a finished file appears.
// Chrome writes in-progress downloads with a .crdownload suffix.
func waitForDownload(ctx context.Context, dir string) (string, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", eris.Wrap(ctx.Err(), "snapshot: export download timed out")
		case <-ticker.C:
			entries, err := os.ReadDir(dir)
			if err != nil {
				return "", eris.Wrap(err, "snapshot: scan download dir")
			}
			for _, entry := range entries {
				if entry.IsDir() || filepath.Ext(entry.Name()) == ".crdownload" {
					continue
				}
				return filepath.Join(dir, entry.Name()), nil
			}
		}
	}
}
