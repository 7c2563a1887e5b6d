package fetcher

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAttachmentBundle(t *testing.T, files map[string]string) string {
	t.Helper()
	zipPath := filepath.Join(t.TempDir(), "attachments.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := zip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return zipPath
}

func TestExtractZIP_AttachmentBundle(t *testing.T) {
	zipPath := writeAttachmentBundle(t, map[string]string{
		"sow.pdf":                "%PDF-1.4 statement of work",
		"wage_determination.pdf": "%PDF-1.4 wage rates",
		"amendment_0001.docx":    "amendment body",
	})

	destDir := t.TempDir()
	extracted, err := ExtractZIP(zipPath, destDir)
	require.NoError(t, err)
	assert.Len(t, extracted, 3)

	for _, path := range extracted {
		_, err := os.Stat(path)
		require.NoError(t, err)
	}

	data, err := os.ReadFile(filepath.Join(destDir, "sow.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 statement of work", string(data))

	data, err = os.ReadFile(filepath.Join(destDir, "wage_determination.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 wage rates", string(data))
}

func TestExtractZIP_RejectsEscapingMember(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "hostile.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)

	w := zip.NewWriter(f)
	fw, err := w.Create("../../../etc/passwd")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("overwrite")) //nolint:errcheck
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	destDir := t.TempDir()
	_, err = ExtractZIP(zipPath, destDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes destination")
}

func TestExtractZIP_NestedDirectories(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "nested.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)

	w := zip.NewWriter(f)

	_, err = w.Create("drawings/")
	require.NoError(t, err)

	fw, err := w.Create("drawings/site_plan.pdf")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("%PDF-1.4 site plan")) //nolint:errcheck

	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	destDir := t.TempDir()
	extracted, err := ExtractZIP(zipPath, destDir)
	require.NoError(t, err)
	// Directory entries are recreated but not reported.
	assert.Len(t, extracted, 1)

	data, err := os.ReadFile(filepath.Join(destDir, "drawings", "site_plan.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 site plan", string(data))
}

func TestExtractZIP_EmptyArchive(t *testing.T) {
	zipPath := writeAttachmentBundle(t, map[string]string{})

	destDir := t.TempDir()
	extracted, err := ExtractZIP(zipPath, destDir)
	require.NoError(t, err)
	assert.Empty(t, extracted)
}

func TestExtractZIP_NotAnArchive(t *testing.T) {
	// HTML error pages sometimes come down with a .zip name.
	path := filepath.Join(t.TempDir(), "attachments.zip")
	require.NoError(t, os.WriteFile(path, []byte("<html>session expired</html>"), 0o644))

	destDir := t.TempDir()
	_, err := ExtractZIP(path, destDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open archive")
}
