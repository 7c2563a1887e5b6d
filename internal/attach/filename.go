// Package attach discovers and downloads the documents referenced by a
// notice, across the handful of hosting arrangements government attachments
// actually live behind: direct links, zip bundles, FTP drops, a legacy Navy
// listing table, and FedConnect's form-driven document portal.
package attach

import (
	"mime"
	"net/url"
	"path"
	"strings"
)

// Extensions recognized when deriving a filename from a URL path. Broader
// than the extractor's allow-list on purpose; zips and spreadsheets still
// deserve their real names even though no text comes out of them.
var knownExtensions = map[string]bool{
	".doc": true, ".docx": true, ".epub": true, ".gif": true,
	".htm": true, ".html": true, ".odt": true, ".pdf": true,
	".rtf": true, ".txt": true, ".zip": true, ".xls": true,
	".xlsx": true, ".ppt": true, ".pptx": true, ".csv": true,
	".jpg": true, ".jpeg": true, ".png": true, ".tif": true,
}

// mimeExtensions maps response content types to an extension when the URL
// offers no usable basename. mime.ExtensionsByType is avoided here; its
// ordering is platform dependent.
var mimeExtensions = map[string]string{
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.oasis.opendocument.text":                                 ".odt",
	"application/rtf":  ".rtf",
	"application/zip":  ".zip",
	"text/html":        ".html",
	"text/plain":       ".txt",
	"text/rtf":         ".rtf",
	"image/gif":        ".gif",
	"application/epub": ".epub",
}

// ResolveFilename derives an attachment's filename from, in order: the
// Content-Disposition header, the URL's trailing path segment when it carries
// a recognized extension, the response MIME type, and finally a .txt
// fallback.
func ResolveFilename(disposition, rawURL, contentType string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := path.Base(strings.TrimSpace(params["filename"])); name != "" && name != "." && name != "/" {
				return name
			}
		}
	}

	base := urlBasename(rawURL)
	if base != "" && knownExtensions[strings.ToLower(path.Ext(base))] {
		return base
	}

	if base == "" {
		base = "attachment"
	}
	base = strings.TrimSuffix(base, path.Ext(base))

	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			if ext, ok := mimeExtensions[mediaType]; ok {
				return base + ext
			}
		}
	}

	return base + ".txt"
}

func urlBasename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}
	return base
}
