package attach

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/solwatch/internal/fetcher"
)

// NavyHost is the legacy Navy e-commerce site. Its notices list documents in
// an HTML table rather than behind direct anchors, and every candidate link
// on a notice resolves to the same table, so one scrape covers the whole
// notice.
const NavyHost = "www.neco.navy.mil"

// IsNavyURL reports whether the URL points at the legacy Navy host.
func IsNavyURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), NavyHost)
}

// ScrapeNavyTable fetches the Navy notice page and collects the direct file
// URLs out of its document table. Rows follow a fixed id pattern; anything
// else in the table is chrome.
func ScrapeNavyTable(ctx context.Context, f fetcher.Fetcher, pageURL string) ([]string, error) {
	body, err := f.Download(ctx, pageURL)
	if err != nil {
		return nil, eris.Wrapf(err, "attach: fetch navy page %s", pageURL)
	}
	defer body.Close() //nolint:errcheck

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(body, 8<<20))
	if err != nil {
		return nil, eris.Wrap(err, "attach: parse navy page")
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, eris.Wrapf(err, "attach: parse navy page url %s", pageURL)
	}

	var fileURLs []string
	doc.Find(`tr[id^="ctl00_mainContent"] a[href]`).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		fileURLs = append(fileURLs, base.ResolveReference(ref).String())
	})

	zap.L().Debug("scraped navy document table",
		zap.String("url", pageURL),
		zap.Int("files", len(fileURLs)),
	)
	return fileURLs, nil
}
