package attach

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/solwatch/internal/extract"
	"github.com/sells-group/solwatch/internal/fetcher"
	"github.com/sells-group/solwatch/internal/model"
)

// attachmentContainerClass marks the element wrapping attachment anchors on a
// notice page.
const attachmentContainerClass = "notice_attachment_ro"

// Resolver turns a notice's source page into downloaded, text-extracted
// attachment records. Every network fault inside a notice degrades to an
// unreadable attachment or an empty list; a notice never fails its batch
// because a host was slow or a link was dead.
type Resolver struct {
	http       fetcher.Fetcher
	downloader *Downloader
	fedconnect *FedConnectClient
	extractor  *extract.Service
	log        *zap.Logger
}

// NewResolver assembles a Resolver.
func NewResolver(httpFetcher fetcher.Fetcher, downloader *Downloader, fedconnect *FedConnectClient, extractor *extract.Service) *Resolver {
	return &Resolver{
		http:       httpFetcher,
		downloader: downloader,
		fedconnect: fedconnect,
		extractor:  extractor,
		log:        zap.L().With(zap.String("component", "attach.resolver")),
	}
}

// Resolve discovers, downloads, and extracts every document the notice
// references. The returned attachments carry filename, url, text, and the
// machine-readable flag; prediction fields stay nil for the scorer.
func (r *Resolver) Resolve(ctx context.Context, n *model.Notice) []model.Attachment {
	log := r.log.With(zap.String("sol_num", n.SolNum))

	candidates := r.discoverLinks(ctx, n.URL)
	if len(candidates) == 0 {
		return nil
	}

	// The Navy host serves every notice document from one table; the first
	// such link covers the notice and the other candidates are duplicates.
	for _, candidate := range candidates {
		if IsNavyURL(candidate) {
			fileURLs, err := ScrapeNavyTable(ctx, r.http, candidate)
			if err != nil {
				log.Warn("navy table scrape failed", zap.String("url", candidate), zap.Error(err))
				return []model.Attachment{unreadable(candidate)}
			}
			candidates = fileURLs
			break
		}
	}

	var attachments []model.Attachment
	for _, candidate := range candidates {
		attachments = append(attachments, r.resolveOne(ctx, log, candidate)...)
	}
	return attachments
}

// ResolveAll fans Resolve out across notices, filling each notice's
// Attachments field in place. Work for one notice stays on one goroutine;
// only inter-notice parallelism is introduced.
func (r *Resolver) ResolveAll(ctx context.Context, notices []model.Notice, workers int) error {
	if workers <= 0 {
		workers = 4
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range notices {
		i := i
		g.Go(func() error {
			notices[i].Attachments = r.Resolve(ctx, &notices[i])
			return ctx.Err()
		})
	}
	return g.Wait()
}

// discoverLinks fetches the notice page and collects candidate attachment
// URLs from the attachment container. A missing page, a non-200 response, or
// a page without the container all mean "no attachments", not an error.
func (r *Resolver) discoverLinks(ctx context.Context, pageURL string) []string {
	if pageURL == "" {
		return nil
	}

	body, err := r.http.Download(ctx, pageURL)
	if err != nil {
		r.log.Debug("notice page fetch failed", zap.String("url", pageURL), zap.Error(err))
		return nil
	}
	defer body.Close() //nolint:errcheck

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(body, 8<<20))
	if err != nil {
		r.log.Debug("notice page parse failed", zap.String("url", pageURL), zap.Error(err))
		return nil
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []string
	doc.Find("div." + attachmentContainerClass + " a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		if !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	})
	return links
}

// resolveOne downloads and extracts a single candidate URL. Any failure
// yields one unreadable attachment for the URL.
func (r *Resolver) resolveOne(ctx context.Context, log *zap.Logger, candidate string) []model.Attachment {
	var (
		downloads []download
		err       error
	)
	if isFedConnectURL(candidate) {
		downloads, err = r.fedconnect.Fetch(ctx, candidate)
	} else {
		downloads, err = r.downloader.Fetch(ctx, candidate)
	}
	if err != nil {
		log.Warn("attachment fetch failed", zap.String("url", candidate), zap.Error(err))
		return []model.Attachment{unreadable(candidate)}
	}

	attachments := make([]model.Attachment, 0, len(downloads))
	for _, dl := range downloads {
		if dl.Path == "" {
			attachments = append(attachments, unreadable(dl.URL))
			continue
		}

		att := model.Attachment{Filename: dl.Filename, URL: dl.URL}
		res, err := r.extractor.Extract(ctx, dl.Path)
		if err != nil {
			log.Warn("text extraction failed",
				zap.String("filename", dl.Filename),
				zap.Error(err),
			)
		} else {
			att.Text = res.Text
			att.MachineReadable = res.MachineReadable
		}
		attachments = append(attachments, att)
	}
	return attachments
}

func isFedConnectURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), FedConnectHost)
}

// unreadable records a document reference that could not be retrieved.
func unreadable(rawURL string) model.Attachment {
	return model.Attachment{
		Filename: urlBasename(rawURL),
		URL:      rawURL,
	}
}
