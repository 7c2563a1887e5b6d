// Package snapshot loads the authoritative CSV export of currently posted
// opportunities and answers point lookups by solicitation number. The export
// is the source of truth for whether a solicitation is still live and what
// its current notice type is.
package snapshot

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/solwatch/internal/config"
	"github.com/sells-group/solwatch/internal/fetcher"
)

// Record is one row of the opportunity export, reduced to the fields the
// reconciliation sweep consults.
type Record struct {
	SolNum     string
	Title      string
	NoticeType string
}

// Header names the export has used for each field across format revisions.
var headerAliases = map[string][]string{
	"sol_num": {"Sol#", "SolNbr", "SolicitationNumber", "Solicitation Number"},
	"title":   {"Title"},
	"type":    {"Type", "BaseType", "NoticeType"},
}

// Source downloads, caches, and indexes the opportunity export. The download
// is refreshed when the on-disk copy is older than the configured TTL; one
// export serves an entire sweep.
type Source struct {
	cfg     config.SnapshotConfig
	http    fetcher.Fetcher
	browser browserDownloader
	log     *zap.Logger

	index map[string]Record
}

// browserDownloader is the chromedp-driven download flow, split out so tests
// can run without a browser.
type browserDownloader interface {
	DownloadCSV(ctx context.Context, url, destPath string) error
}

// NewSource creates a Source. The browser flow is only used when the config
// enables it; otherwise the export URL is fetched directly.
func NewSource(cfg config.SnapshotConfig, httpFetcher fetcher.Fetcher) *Source {
	var browser browserDownloader
	if cfg.UseBrowser {
		browser = newChromeDownloader(cfg.ChromePath)
	}
	return &Source{
		cfg:     cfg,
		http:    httpFetcher,
		browser: browser,
		log:     zap.L().With(zap.String("component", "snapshot")),
	}
}

// Lookup returns the export record for a solicitation number, or nil when the
// number is absent from the export. The match is case-insensitive.
func (s *Source) Lookup(ctx context.Context, solNum string) (*Record, error) {
	if s.index == nil {
		if err := s.load(ctx); err != nil {
			return nil, err
		}
	}
	rec, ok := s.index[strings.ToLower(strings.TrimSpace(solNum))]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *Source) load(ctx context.Context) error {
	path, err := s.ensureDownloaded(ctx)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "snapshot: open export %s", path)
	}
	defer f.Close() //nolint:errcheck

	index, err := buildIndex(ctx, f)
	if err != nil {
		return err
	}
	s.index = index
	s.log.Info("loaded opportunity export", zap.Int("records", len(index)))
	return nil
}

// ensureDownloaded returns the path of a sufficiently fresh export, fetching
// a new one if the cached copy is stale or missing.
func (s *Source) ensureDownloaded(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.cfg.CacheDir, 0o755); err != nil {
		return "", eris.Wrap(err, "snapshot: create cache dir")
	}
	path := filepath.Join(s.cfg.CacheDir, "opportunities.csv")

	ttl := time.Duration(s.cfg.CacheTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if info, err := os.Stat(path); err == nil && time.Since(info.ModTime()) < ttl {
		s.log.Debug("using cached export", zap.String("path", path), zap.Time("fetched", info.ModTime()))
		return path, nil
	}

	if s.browser != nil {
		err := s.browser.DownloadCSV(ctx, s.cfg.CSVURL, path)
		if err == nil {
			return path, nil
		}
		s.log.Warn("browser export download failed, falling back to direct fetch", zap.Error(err))
	}

	if _, err := s.http.DownloadToFile(ctx, s.cfg.CSVURL, path); err != nil {
		// A stale cached copy beats no copy at all.
		if _, statErr := os.Stat(path); statErr == nil {
			s.log.Warn("export refresh failed, using stale cache", zap.Error(err))
			return path, nil
		}
		return "", eris.Wrap(err, "snapshot: download export")
	}
	return path, nil
}

// buildIndex streams the export and indexes rows by lowercased solicitation
// number. Rows without a solicitation number are skipped.
func buildIndex(ctx context.Context, r io.Reader) (map[string]Record, error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		HasHeader:  true,
		HeaderCh:   headerCh,
		LazyQuotes: true,
		TrimSpace:  true,
	})

	header := <-headerCh
	cols, err := mapColumns(header)
	if err != nil {
		// Drain to let the producer finish.
		for range rowCh {
		}
		<-errCh
		return nil, err
	}

	index := make(map[string]Record)
	for row := range rowCh {
		solNum := cell(row, cols["sol_num"])
		if solNum == "" {
			continue
		}
		index[strings.ToLower(solNum)] = Record{
			SolNum:     solNum,
			Title:      cell(row, cols["title"]),
			NoticeType: cell(row, cols["type"]),
		}
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "snapshot: read export")
	}
	return index, nil
}

func mapColumns(header []string) (map[string]int, error) {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		byName[strings.ToLower(strings.TrimSpace(h))] = i
	}

	cols := make(map[string]int, len(headerAliases))
	for field, aliases := range headerAliases {
		cols[field] = -1
		for _, alias := range aliases {
			if i, ok := byName[strings.ToLower(alias)]; ok {
				cols[field] = i
				break
			}
		}
	}
	if cols["sol_num"] < 0 {
		return nil, eris.Errorf("snapshot: export has no solicitation number column: %v", header)
	}
	return cols, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
