package feed

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/solwatch/internal/fetcher"
)

var emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// ExtractEmails regex-scans the given text blobs for addresses and returns
// them de-duplicated, sorted for stable output.
func ExtractEmails(texts ...string) []string {
	seen := make(map[string]bool)
	for _, t := range texts {
		for _, m := range emailRe.FindAllString(t, -1) {
			seen[strings.ToLower(m)] = true
		}
	}
	if len(seen) == 0 {
		return nil
	}
	emails := make([]string, 0, len(seen))
	for e := range seen {
		emails = append(emails, e)
	}
	sort.Strings(emails)
	return emails
}

// ScrapeMailto fetches the notice page and pulls the first mailto: anchor.
// This is the fallback when neither the point-of-contact list nor the
// description yielded an address. Network failures degrade to nil; a contact
// email is best-effort enrichment, never a reason to drop the notice.
func ScrapeMailto(ctx context.Context, f fetcher.Fetcher, noticeURL string) []string {
	if noticeURL == "" {
		return nil
	}

	body, err := f.Download(ctx, noticeURL)
	if err != nil {
		zap.L().Debug("feed: mailto fallback fetch failed",
			zap.String("url", noticeURL),
			zap.Error(err),
		)
		return nil
	}
	defer body.Close() //nolint:errcheck

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		zap.L().Debug("feed: mailto fallback parse failed",
			zap.String("url", noticeURL),
			zap.Error(err),
		)
		return nil
	}

	var emails []string
	doc.Find(`a[href^="mailto:"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		addr := strings.TrimPrefix(href, "mailto:")
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		if emailRe.MatchString(addr) {
			emails = append(emails, strings.ToLower(addr))
		}
		return len(emails) == 0
	})
	return emails
}
