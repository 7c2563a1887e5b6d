// Package extract pulls plain text out of downloaded attachment files so the
// compliance scorer has something to read. Extraction is best effort: a file
// that yields no text is reported as not machine readable, never as a fatal
// error for the notice it belongs to.
package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Extensions the extractor will attempt. Anything else is skipped and the
// attachment is marked not machine readable.
var supportedExtensions = map[string]bool{
	".doc":  true,
	".docx": true,
	".epub": true,
	".gif":  true,
	".htm":  true,
	".html": true,
	".odt":  true,
	".pdf":  true,
	".rtf":  true,
	".txt":  true,
}

// Supported reports whether the extractor handles files with this name's
// extension.
func Supported(filename string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Result is the outcome of one extraction attempt.
type Result struct {
	Text string
	// MachineReadable is true when extraction produced usable text.
	MachineReadable bool
}

// Service extracts text from attachment files on disk.
type Service struct {
	pdf *PDFExtractor
	log *zap.Logger
}

// NewService creates a Service. pdfToTextPath overrides the pdftotext binary
// used as the PDF fallback; empty means "pdftotext" on PATH.
func NewService(pdfToTextPath string) *Service {
	return &Service{
		pdf: NewPDFExtractor(pdfToTextPath),
		log: zap.L().With(zap.String("component", "extract")),
	}
}

// Extract reads the file at path and returns its plain text. An unsupported
// or unreadable file comes back with MachineReadable=false and a nil error;
// the error return is reserved for faults the caller should log as processing
// errors (the file vanished, a decoder panic, a context cancellation).
//
// Files are occasionally delivered with the wrong extension. When extraction
// under the named extension fails, the content is sniffed and retried once
// under the detected type.
func (s *Service) Extract(ctx context.Context, path string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !supportedExtensions[ext] {
		s.log.Debug("unsupported extension", zap.String("path", path))
		return Result{}, nil
	}

	text, err := s.extractAs(ctx, path, ext)
	if err != nil || strings.TrimSpace(text) == "" {
		if sniffed := sniffExtension(path); sniffed != "" && sniffed != ext {
			s.log.Debug("retrying under sniffed type",
				zap.String("path", path),
				zap.String("sniffed", sniffed),
			)
			if retryText, retryErr := s.extractAs(ctx, path, sniffed); retryErr == nil {
				text, err = retryText, nil
			}
		}
	}
	if err != nil {
		return Result{}, eris.Wrapf(err, "extract: %s", filepath.Base(path))
	}

	text = strings.TrimSpace(text)
	return Result{Text: text, MachineReadable: text != ""}, nil
}

func (s *Service) extractAs(ctx context.Context, path, ext string) (string, error) {
	switch ext {
	case ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", eris.Wrap(err, "read text file")
		}
		return string(data), nil
	case ".pdf":
		return s.pdf.ExtractText(ctx, path)
	case ".htm", ".html":
		return extractHTML(path)
	case ".rtf":
		return extractRTF(path)
	case ".docx", ".odt", ".epub":
		return extractZipDocument(path, ext)
	case ".doc":
		return extractLegacyDoc(path)
	case ".gif":
		// Images carry no extractable text.
		return "", nil
	default:
		return "", nil
	}
}

// sniffExtension inspects the file's leading bytes for the formats that
// commonly arrive misnamed.
func sniffExtension(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close() //nolint:errcheck

	head := make([]byte, 8)
	n, err := f.Read(head)
	if err != nil || n == 0 {
		return ""
	}
	head = head[:n]

	switch {
	case strings.HasPrefix(string(head), "%PDF"):
		return ".pdf"
	case strings.HasPrefix(string(head), `{\rtf`):
		return ".rtf"
	case strings.HasPrefix(string(head), "PK\x03\x04"):
		return ".docx"
	default:
		return ""
	}
}
