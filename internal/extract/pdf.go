package extract

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const maxPDFPages = 500

// PDFExtractor reads PDF text in process, shelling out to pdftotext when the
// in-process reader cannot cope. Government PDFs are frequently produced by
// scanners and odd print drivers; the CLI handles a wider range of them.
type PDFExtractor struct {
	binPath string
}

// NewPDFExtractor creates a PDFExtractor. If binPath is empty, "pdftotext" is
// used.
func NewPDFExtractor(binPath string) *PDFExtractor {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PDFExtractor{binPath: binPath}
}

// ExtractText returns the document's plain text.
func (p *PDFExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	text, err := extractInProcess(path)
	if err == nil && strings.TrimSpace(text) != "" {
		return text, nil
	}
	if err != nil {
		zap.L().Debug("extract: in-process pdf read failed, falling back to pdftotext",
			zap.String("path", path),
			zap.Error(err),
		)
	}
	return p.runPdfToText(ctx, path)
}

func extractInProcess(path string) (text string, err error) {
	// The pdf reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("pdf reader panic: %v", r)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return "", eris.Wrap(err, "open pdf")
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return "", eris.Wrap(err, "stat pdf")
	}

	reader, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return "", eris.Wrap(err, "open pdf reader")
	}

	totalPages := reader.NumPage()
	if totalPages == 0 {
		return "", eris.New("pdf has no pages")
	}
	if totalPages > maxPDFPages {
		totalPages = maxPDFPages
	}

	var sb strings.Builder
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			// A single bad page does not spoil the document.
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}
	return normalizeWhitespace(sb.String()), nil
}

func (p *PDFExtractor) runPdfToText(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, p.binPath, "-layout", path, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "pdftotext failed for %s: %s", path, stderr.String())
	}
	return stdout.String(), nil
}

// normalizeWhitespace collapses runs of spaces while keeping line breaks, and
// strips null bytes the pdf reader sometimes leaks through.
func normalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")

	var sb strings.Builder
	lastWasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if r == '\n' {
				sb.WriteRune('\n')
				lastWasSpace = false
			} else if !lastWasSpace {
				sb.WriteRune(' ')
				lastWasSpace = true
			}
		} else {
			sb.WriteRune(r)
			lastWasSpace = false
		}
	}
	return sb.String()
}
