package attach

import (
	"bytes"
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FedConnectHost identifies document links served through the FedConnect
// portal, which only releases files through an ASP.NET postback flow.
const FedConnectHost = "www.fedconnect.net"

var doPostBackRe = regexp.MustCompile(`__doPostBack\('([^']+)','([^']*)'\)`)

// Hidden form fields that must round-trip on every postback.
var aspStateFields = []string{
	"__VIEWSTATE",
	"__VIEWSTATEGENERATOR",
	"__EVENTVALIDATION",
	"__VIEWSTATEENCRYPTED",
}

// FedConnectClient walks the portal's document retrieval flow: an initial
// HEAD to find the listing page, a GET to collect session cookies and hidden
// form state, then one POST per document anchor.
type FedConnectClient struct {
	client  *resty.Client
	workDir string
	log     *zap.Logger
}

// NewFedConnectClient creates a FedConnectClient writing files into workDir.
func NewFedConnectClient(workDir string, timeout time.Duration) (*FedConnectClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, eris.Wrap(err, "attach: create cookie jar")
	}

	client := resty.New()
	client.SetCookieJar(jar)
	client.SetTimeout(timeout)
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))

	return &FedConnectClient{
		client:  client,
		workDir: workDir,
		log:     zap.L().With(zap.String("component", "attach.fedconnect")),
	}, nil
}

// Fetch resolves every document behind the given portal URL. A download with
// an empty Path records a document the portal acknowledged but would not
// release; the caller persists it as an unreadable attachment.
func (c *FedConnectClient) Fetch(ctx context.Context, rawURL string) ([]download, error) {
	listingURL, err := c.discoverListing(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	res, err := c.client.R().SetContext(ctx).Get(listingURL)
	if err != nil {
		return nil, eris.Wrapf(err, "attach: fetch fedconnect listing %s", listingURL)
	}
	if res.StatusCode() != http.StatusOK {
		return nil, eris.Errorf("attach: fedconnect listing %s returned %d", listingURL, res.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, eris.Wrap(err, "attach: parse fedconnect listing")
	}

	formState := make(map[string]string, len(aspStateFields))
	for _, field := range aspStateFields {
		if v, ok := doc.Find("input[name=" + field + "]").Attr("value"); ok {
			formState[field] = v
		}
	}
	if formState["__VIEWSTATE"] == "" {
		return nil, eris.Errorf("attach: no view state on fedconnect listing %s", listingURL)
	}

	postURL := summaryURL(listingURL)

	var downloads []download
	doc.Find(`a[href*="__doPostBack"]`).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		m := doPostBackRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		target, argument := m[1], m[2]

		// Anchor ids use underscores where the event target uses dollars.
		if id, ok := sel.Attr("id"); ok && id != "" {
			target = strings.ReplaceAll(id, "_", "$")
		}

		dl, err := c.postForDocument(ctx, postURL, formState, target, argument)
		if err != nil {
			c.log.Warn("fedconnect document fetch failed",
				zap.String("url", postURL),
				zap.String("target", target),
				zap.Error(err),
			)
			return
		}
		downloads = append(downloads, dl)
	})

	return downloads, nil
}

// discoverListing follows the notice link's single redirect to the portal's
// document listing page.
func (c *FedConnectClient) discoverListing(ctx context.Context, rawURL string) (string, error) {
	res, err := c.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Head(rawURL)
	if err != nil {
		return "", eris.Wrapf(err, "attach: head fedconnect link %s", rawURL)
	}
	if body := res.RawBody(); body != nil {
		body.Close() //nolint:errcheck
	}

	if loc := res.RawResponse.Request.URL.String(); loc != "" {
		return loc, nil
	}
	return rawURL, nil
}

func (c *FedConnectClient) postForDocument(ctx context.Context, postURL string, formState map[string]string, target, argument string) (download, error) {
	form := map[string]string{
		"__EVENTTARGET":   target,
		"__EVENTARGUMENT": argument,
	}
	for k, v := range formState {
		form[k] = v
	}

	res, err := c.client.R().
		SetContext(ctx).
		SetFormData(form).
		SetDoNotParseResponse(true).
		Post(postURL)
	if err != nil {
		return download{}, eris.Wrapf(err, "attach: post fedconnect form %s", postURL)
	}
	body := res.RawBody()
	defer body.Close() //nolint:errcheck

	disposition := res.Header().Get("Content-Disposition")
	if disposition == "" {
		// The portal answered with another page, not a file. Record the
		// document as present but unreadable.
		return download{URL: postURL}, nil
	}

	filename := ResolveFilename(disposition, postURL, res.Header().Get("Content-Type"))
	localPath := filepath.Join(c.workDir, sanitize(filename))

	if err := writeStream(localPath, body); err != nil {
		return download{}, eris.Wrapf(err, "attach: save fedconnect document %s", filename)
	}

	return download{Filename: filename, URL: postURL, Path: localPath}, nil
}

// summaryURL swaps the listing page's final path segment for the document
// summary endpoint that serves file postbacks.
func summaryURL(listingURL string) string {
	u, err := url.Parse(listingURL)
	if err != nil {
		return listingURL
	}
	dir := strings.TrimRight(u.Path, "/")
	if i := strings.LastIndex(dir, "/"); i >= 0 {
		u.Path = dir[:i+1] + "summary.aspx"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
