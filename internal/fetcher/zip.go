package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractZIP unpacks an attachment bundle into destDir and returns the paths
// of the extracted files. Agencies occasionally post a single ZIP holding the
// SOW, wage determinations, and amendments, and each member needs to land on
// disk under its own name before text extraction can run. Directory entries
// are recreated but not reported.
func ExtractZIP(zipPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var extracted []string
	for _, entry := range r.File {
		destPath, err := safeDestPath(destDir, entry.Name)
		if err != nil {
			return extracted, err
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return extracted, eris.Wrap(err, "zip: create directory")
			}
			continue
		}

		if err := writeZIPEntry(entry, destPath); err != nil {
			return extracted, err
		}
		extracted = append(extracted, destPath)
	}

	return extracted, nil
}

// safeDestPath joins an archive member name onto destDir, rejecting names
// that would escape it.
func safeDestPath(destDir, name string) (string, error) {
	destPath := filepath.Join(destDir, name)
	rel, err := filepath.Rel(destDir, destPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: archive member %q escapes destination", name)
	}
	return destPath, nil
}

func writeZIPEntry(entry *zip.File, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := entry.Open()
	if err != nil {
		return eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return eris.Wrap(err, "zip: write file")
	}

	return nil
}
