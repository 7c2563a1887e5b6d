package extract

import (
	"archive/zip"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// extractHTML renders a saved HTML page to text, dropping script and style
// bodies.
func extractHTML(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", eris.Wrap(err, "open html file")
	}
	defer f.Close() //nolint:errcheck

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", eris.Wrap(err, "parse html")
	}
	doc.Find("script, style").Remove()
	return normalizeWhitespace(doc.Text()), nil
}

var (
	rtfControlRe = regexp.MustCompile(`\\[a-z]+-?\d* ?|\\'[0-9a-f]{2}|[{}]`)
	xmlTagRe     = regexp.MustCompile(`<[^>]*>`)
)

// extractRTF strips RTF control words and group braces, leaving the text
// runs. Hex-escaped characters are dropped rather than decoded; the scorer
// only needs the prose.
func extractRTF(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrap(err, "read rtf file")
	}
	if !strings.HasPrefix(string(data), `{\rtf`) {
		return "", eris.New("not an rtf file")
	}
	return normalizeWhitespace(rtfControlRe.ReplaceAllString(string(data), " ")), nil
}

// zipDocumentParts maps zip-based document formats to the archive members
// holding their body text.
var zipDocumentParts = map[string][]string{
	".docx": {"word/document.xml"},
	".odt":  {"content.xml"},
	".epub": {}, // every html/xhtml member
}

// extractZipDocument handles the zip-container formats (docx, odt, epub) by
// reading the body members and stripping markup.
func extractZipDocument(path, ext string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", eris.Wrapf(err, "open %s container", ext)
	}
	defer zr.Close() //nolint:errcheck

	wanted := make(map[string]bool)
	for _, name := range zipDocumentParts[ext] {
		wanted[name] = true
	}

	var sb strings.Builder
	for _, member := range zr.File {
		if len(wanted) > 0 {
			if !wanted[member.Name] {
				continue
			}
		} else if !strings.HasSuffix(member.Name, ".html") && !strings.HasSuffix(member.Name, ".xhtml") {
			continue
		}

		rc, err := member.Open()
		if err != nil {
			continue
		}
		buf := new(strings.Builder)
		_, copyErr := copyBounded(buf, rc)
		rc.Close() //nolint:errcheck
		if copyErr != nil {
			continue
		}

		// Word runs close with </w:p> per paragraph; keep a break there so
		// paragraphs do not fuse into one token.
		body := strings.ReplaceAll(buf.String(), "</w:p>", "\n")
		body = strings.ReplaceAll(body, "</text:p>", "\n")
		sb.WriteString(xmlTagRe.ReplaceAllString(body, " "))
		sb.WriteString("\n")
	}
	return normalizeWhitespace(sb.String()), nil
}

// maxMemberBytes caps how much of any one archive member is read.
const maxMemberBytes = 16 << 20

func copyBounded(dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, io.LimitReader(src, maxMemberBytes))
}

// extractLegacyDoc salvages readable runs from the binary .doc format. A
// proper parser is not worth carrying for the trickle of pre-2007 documents
// still posted; consecutive printable characters are good enough for scoring.
func extractLegacyDoc(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrap(err, "read doc file")
	}

	var sb strings.Builder
	var run []rune
	flush := func() {
		// Short runs are binary noise, not words.
		if len(run) >= 4 {
			sb.WriteString(string(run))
			sb.WriteRune('\n')
		}
		run = run[:0]
	}
	for _, b := range data {
		r := rune(b)
		if r == '\t' || r == ' ' || (unicode.IsPrint(r) && r < 0x7f) {
			run = append(run, r)
		} else {
			flush()
		}
	}
	flush()
	return normalizeWhitespace(sb.String()), nil
}
