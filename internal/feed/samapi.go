package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/solwatch/internal/fetcher"
	"github.com/sells-group/solwatch/internal/model"
)

// searchResponse mirrors the REST search API envelope.
type searchResponse struct {
	Embedded struct {
		Results []opportunity `json:"results"`
	} `json:"_embedded"`
	Page struct {
		TotalPages int `json:"totalPages"`
		Number     int `json:"number"`
	} `json:"page"`
}

type opportunity struct {
	ID                 string `json:"_id"`
	Title              string `json:"title"`
	SolicitationNumber string `json:"solicitationNumber"`
	Type               struct {
		Value string `json:"value"`
	} `json:"type"`
	OrganizationHierarchy []orgLevel    `json:"organizationHierarchy"`
	NAICS                 []codedEntry  `json:"naics"`
	PSC                   []codedEntry  `json:"psc"`
	TypeOfSetAside        string        `json:"typeOfSetAside"`
	PointOfContact        []pocEntry    `json:"pointOfContact"`
	Descriptions          []description `json:"descriptions"`
	ModifiedDate          string        `json:"modifiedDate"`
	PublishDate           string        `json:"publishDate"`
	URI                   string        `json:"uri"`
}

type orgLevel struct {
	Level int    `json:"level"`
	Name  string `json:"name"`
}

// codedEntry carries one or more classification code strings; the upstream
// sometimes nests several codes in one entry.
type codedEntry struct {
	Code []string `json:"code"`
}

type pocEntry struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

type description struct {
	LastModifiedDate string `json:"lastModifiedDate"`
	Content          string `json:"content"`
}

// SAMClient pages the REST opportunities search API.
type SAMClient struct {
	fetcher  fetcher.Fetcher
	baseURL  string
	apiKey   string
	pageSize int
}

// NewSAMClient creates a SAMClient. The API key is required; commands fail at
// startup when it is absent.
func NewSAMClient(f fetcher.Fetcher, baseURL, apiKey string, pageSize int) (*SAMClient, error) {
	if apiKey == "" {
		return nil, eris.New("samapi: API key not configured (sam.api_key)")
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	return &SAMClient{fetcher: f, baseURL: baseURL, apiKey: apiKey, pageSize: pageSize}, nil
}

// FetchWindow pages through results posted or modified within [since, until),
// newest first, stopping as soon as a page's oldest record falls before the
// window. Each page is normalized before the next is fetched. Individual
// malformed records are skipped, not fatal.
func (c *SAMClient) FetchWindow(ctx context.Context, since, until time.Time, typeFilter []model.NoticeType) ([]model.Notice, error) {
	log := zap.L().With(zap.String("component", "feed.samapi"))

	allow := make(map[model.NoticeType]bool, len(typeFilter))
	for _, t := range typeFilter {
		allow[t] = true
	}

	var notices []model.Notice
	page := 0
	for {
		select {
		case <-ctx.Done():
			return notices, ctx.Err()
		default:
		}

		resp, err := c.fetchPage(ctx, since, until, page)
		if err != nil {
			return notices, eris.Wrapf(err, "samapi: fetch page %d", page)
		}
		if len(resp.Embedded.Results) == 0 {
			break
		}

		pastWindow := false
		for _, opp := range resp.Embedded.Results {
			modified := parseAPITime(opp.ModifiedDate)
			if modified.IsZero() {
				modified = parseAPITime(opp.PublishDate)
			}
			if !modified.IsZero() && modified.Before(since) {
				pastWindow = true
				continue
			}

			n, ok := c.normalize(ctx, opp)
			if !ok {
				continue
			}
			if len(allow) > 0 && !allow[n.NoticeType] {
				continue
			}
			notices = append(notices, n)
		}

		log.Debug("fetched page",
			zap.Int("page", page),
			zap.Int("results", len(resp.Embedded.Results)),
			zap.Bool("past_window", pastWindow),
		)

		if pastWindow || page+1 >= resp.Page.TotalPages {
			break
		}
		page++
	}

	return notices, nil
}

func (c *SAMClient) fetchPage(ctx context.Context, since, until time.Time, page int) (*searchResponse, error) {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("postedFrom", since.Format("01/02/2006"))
	q.Set("postedTo", until.Format("01/02/2006"))
	q.Set("limit", fmt.Sprint(c.pageSize))
	q.Set("page", fmt.Sprint(page))

	body, err := c.fetcher.Download(ctx, c.baseURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrap(err, "samapi: read response body")
	}

	var resp searchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, eris.Wrap(err, "samapi: unmarshal response")
	}
	return &resp, nil
}

// normalize converts one REST result into the canonical notice shape.
func (c *SAMClient) normalize(ctx context.Context, opp opportunity) (model.Notice, bool) {
	noticeType, ok := MapAPICode(opp.Type.Value)
	if !ok {
		return model.Notice{}, false
	}
	if opp.SolicitationNumber == "" {
		zap.L().Warn("samapi: result has no solicitation number", zap.String("id", opp.ID))
		return model.Notice{}, false
	}

	n := model.Notice{
		NoticeType:         noticeType,
		SolNum:             opp.SolicitationNumber,
		Agency:             ProperCase(orgLevelName(opp.OrganizationHierarchy, 1)),
		Office:             ProperCase(orgLevelName(opp.OrganizationHierarchy, 2)),
		NAICSCode:          longestCode(opp.NAICS),
		ClassificationCode: longestCode(opp.PSC),
		Subject:            opp.Title,
		SetAside:           opp.TypeOfSetAside,
		URL:                opp.URI,
		PostedDate:         parseAPITime(opp.PublishDate),
		ModifiedDate:       parseAPITime(opp.ModifiedDate),
		Description:        latestDescription(opp.Descriptions),
	}

	var pocTexts []string
	for _, poc := range opp.PointOfContact {
		pocTexts = append(pocTexts, poc.Email, poc.FullName)
	}
	n.Emails = ExtractEmails(append(pocTexts, n.Description)...)
	if len(n.Emails) == 0 {
		n.Emails = ScrapeMailto(ctx, c.fetcher, n.URL)
	}

	return n, true
}

func orgLevelName(levels []orgLevel, level int) string {
	for _, l := range levels {
		if l.Level == level {
			return l.Name
		}
	}
	return ""
}

// longestCode picks the longest code string across all entries. Ties keep the
// first-seen code; input order is the only stable upstream signal.
func longestCode(entries []codedEntry) string {
	best := ""
	for _, e := range entries {
		for _, code := range e.Code {
			if len(code) > len(best) {
				best = code
			}
		}
	}
	return best
}

// latestDescription picks the entry with the most recent last-modified
// timestamp, falling back to the first non-empty content when timestamps are
// absent.
func latestDescription(descs []description) string {
	best := ""
	var bestTime time.Time
	for _, d := range descs {
		t := parseAPITime(d.LastModifiedDate)
		if !t.IsZero() && (bestTime.IsZero() || t.After(bestTime)) {
			bestTime = t
			best = d.Content
		}
	}
	if best != "" {
		return best
	}
	for _, d := range descs {
		if d.Content != "" {
			return d.Content
		}
	}
	return ""
}

// parseAPITime accepts the handful of timestamp layouts the API emits.
func parseAPITime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000-07:00",
		"2006-01-02T15:04:05-07:00",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
