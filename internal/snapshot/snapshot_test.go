package snapshot

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/solwatch/internal/config"
	"github.com/sells-group/solwatch/internal/fetcher"
)

const sampleExport = `NoticeId,Title,Sol#,Type,PostedDate
n1,Janitorial Services,FA8601-23-Q-0001,Presolicitation,2023-03-14
n2,Grounds Maintenance,W912DY-23-R-0004,Solicitation,2023-03-13
n3,No Number Row,,Award,2023-03-12
`

func TestBuildIndex(t *testing.T) {
	index, err := buildIndex(context.Background(), strings.NewReader(sampleExport))
	require.NoError(t, err)
	require.Len(t, index, 2, "rows without a solicitation number are skipped")

	rec := index["fa8601-23-q-0001"]
	assert.Equal(t, "FA8601-23-Q-0001", rec.SolNum)
	assert.Equal(t, "Janitorial Services", rec.Title)
	assert.Equal(t, "Presolicitation", rec.NoticeType)
}

func TestBuildIndex_MissingSolNumColumn(t *testing.T) {
	_, err := buildIndex(context.Background(), strings.NewReader("A,B\n1,2\n"))
	assert.Error(t, err)
}

// csvFetcher serves the sample export for any URL.
type csvFetcher struct {
	body  string
	calls int
	err   error
}

func (c *csvFetcher) Download(_ context.Context, _ string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(c.body)), nil
}

func (c *csvFetcher) DownloadToFile(_ context.Context, _, path string) (int64, error) {
	c.calls++
	if c.err != nil {
		return 0, c.err
	}
	if err := os.WriteFile(path, []byte(c.body), 0o644); err != nil {
		return 0, err
	}
	return int64(len(c.body)), nil
}

func (c *csvFetcher) Head(_ context.Context, _ string) (*fetcher.HeadInfo, error) {
	return nil, eris.New("not implemented")
}

func TestLookup(t *testing.T) {
	src := NewSource(config.SnapshotConfig{
		CSVURL:        "https://example.gov/export.csv",
		CacheDir:      t.TempDir(),
		CacheTTLHours: 24,
	}, &csvFetcher{body: sampleExport})

	rec, err := src.Lookup(context.Background(), "fa8601-23-q-0001")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Presolicitation", rec.NoticeType)

	// Case-insensitive, and absent numbers return nil without error.
	rec, err = src.Lookup(context.Background(), "FA8601-23-Q-0001")
	require.NoError(t, err)
	assert.NotNil(t, rec)

	rec, err = src.Lookup(context.Background(), "UNKNOWN-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestEnsureDownloaded_UsesFreshCache(t *testing.T) {
	dir := t.TempDir()
	ff := &csvFetcher{body: sampleExport}
	src := NewSource(config.SnapshotConfig{
		CSVURL:        "https://example.gov/export.csv",
		CacheDir:      dir,
		CacheTTLHours: 24,
	}, ff)

	_, err := src.Lookup(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, 1, ff.calls)

	// A second source over the same cache dir reads the fresh file without
	// another download.
	src2 := NewSource(config.SnapshotConfig{
		CSVURL:        "https://example.gov/export.csv",
		CacheDir:      dir,
		CacheTTLHours: 24,
	}, ff)
	_, err = src2.Lookup(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, 1, ff.calls)
}

func TestEnsureDownloaded_StaleCacheFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "opportunities.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleExport), 0o644))
	stale := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(path, stale, stale))

	src := NewSource(config.SnapshotConfig{
		CSVURL:        "https://example.gov/export.csv",
		CacheDir:      dir,
		CacheTTLHours: 24,
	}, &csvFetcher{err: eris.New("export host down")})

	rec, err := src.Lookup(context.Background(), "fa8601-23-q-0001")
	require.NoError(t, err, "stale cache beats no data")
	assert.NotNil(t, rec)
}
