package attach

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/solwatch/internal/extract"
	"github.com/sells-group/solwatch/internal/fetcher"
	"github.com/sells-group/solwatch/internal/model"
)

func newTestResolver(t *testing.T, ff *fakeFetcher) *Resolver {
	t.Helper()
	dir := t.TempDir()
	return NewResolver(ff, NewDownloader(ff, ff, dir), nil, extract.NewService(""))
}

func TestResolve(t *testing.T) {
	const (
		pageURL = "https://example.gov/notice/123"
		docURL  = "https://example.gov/files/sow.txt"
		deadURL = "https://example.gov/files/missing.pdf"
	)
	page := `<html><body>
		<div class="notice_attachment_ro">
			<a href="/files/sow.txt">Statement of Work</a>
			<a href="` + deadURL + `">Broken</a>
			<a href="mailto:someone@example.gov">contact</a>
		</div>
	</body></html>`

	ff := &fakeFetcher{
		heads: map[string]*fetcher.HeadInfo{
			docURL: {StatusCode: 200, ContentLength: 17, ContentType: "text/plain"},
		},
		bodies: map[string][]byte{
			pageURL: []byte(page),
			docURL:  []byte("statement of work"),
		},
	}
	r := newTestResolver(t, ff)

	notice := &model.Notice{SolNum: "ABC-1", URL: pageURL}
	attachments := r.Resolve(context.Background(), notice)
	require.Len(t, attachments, 2)

	assert.Equal(t, "sow.txt", attachments[0].Filename)
	assert.Equal(t, docURL, attachments[0].URL)
	assert.True(t, attachments[0].MachineReadable)
	assert.Equal(t, "statement of work", attachments[0].Text)
	assert.Nil(t, attachments[0].Prediction, "scoring fields stay unset")

	// The dead link becomes an unreadable attachment, not an error.
	assert.Equal(t, deadURL, attachments[1].URL)
	assert.False(t, attachments[1].MachineReadable)
	assert.Empty(t, attachments[1].Text)
}

func TestResolve_NoContainerMeansNoAttachments(t *testing.T) {
	const pageURL = "https://example.gov/notice/456"
	ff := &fakeFetcher{bodies: map[string][]byte{
		pageURL: []byte(`<html><body><p>No documents posted.</p></body></html>`),
	}}
	r := newTestResolver(t, ff)

	assert.Empty(t, r.Resolve(context.Background(), &model.Notice{SolNum: "X", URL: pageURL}))
}

func TestResolve_PageFetchFailureMeansNoAttachments(t *testing.T) {
	r := newTestResolver(t, &fakeFetcher{})
	assert.Empty(t, r.Resolve(context.Background(), &model.Notice{SolNum: "X", URL: "https://example.gov/down"}))
}

func TestResolve_NavyShortCircuit(t *testing.T) {
	const (
		pageURL  = "https://example.gov/notice/789"
		navyURL  = "https://www.neco.navy.mil/synopsis/detail.aspx?id=1"
		otherURL = "https://example.gov/files/ignored.pdf"
		fileURL  = "https://www.neco.navy.mil/upload/N00189/spec.txt"
	)
	page := `<html><body><div class="notice_attachment_ro">
		<a href="` + navyURL + `">Navy listing</a>
		<a href="` + otherURL + `">Duplicate</a>
	</div></body></html>`
	navyPage := `<html><body><table>
		<tr id="ctl00_mainContent_row0"><td><a href="/upload/N00189/spec.txt">spec.txt</a></td></tr>
		<tr id="footer"><td><a href="/help.aspx">help</a></td></tr>
	</table></body></html>`

	ff := &fakeFetcher{
		heads: map[string]*fetcher.HeadInfo{
			fileURL: {StatusCode: 200, ContentLength: 9, ContentType: "text/plain"},
		},
		bodies: map[string][]byte{
			pageURL: []byte(page),
			navyURL: []byte(navyPage),
			fileURL: []byte("navy spec"),
		},
	}
	r := newTestResolver(t, ff)

	attachments := r.Resolve(context.Background(), &model.Notice{SolNum: "N-1", URL: pageURL})
	require.Len(t, attachments, 1)
	assert.Equal(t, "spec.txt", attachments[0].Filename)
	assert.True(t, attachments[0].MachineReadable)
	assert.NotContains(t, ff.downloads, otherURL, "non-navy candidates are skipped")
}

func TestResolveAll(t *testing.T) {
	const (
		pageA = "https://example.gov/notice/a"
		pageB = "https://example.gov/notice/b"
		docA  = "https://example.gov/files/a.txt"
	)
	ff := &fakeFetcher{
		heads: map[string]*fetcher.HeadInfo{
			docA: {StatusCode: 200, ContentLength: 7, ContentType: "text/plain"},
		},
		bodies: map[string][]byte{
			pageA: []byte(`<div class="notice_attachment_ro"><a href="/files/a.txt">doc</a></div>`),
			pageB: []byte(`<div class="notice_attachment_ro"></div>`),
			docA:  []byte("alpha a"),
		},
	}
	r := newTestResolver(t, ff)

	notices := []model.Notice{
		{SolNum: "A", URL: pageA},
		{SolNum: "B", URL: pageB},
	}
	require.NoError(t, r.ResolveAll(context.Background(), notices, 2))

	require.Len(t, notices[0].Attachments, 1)
	assert.Equal(t, "a.txt", notices[0].Attachments[0].Filename)
	assert.Empty(t, notices[1].Attachments)
}

func TestIsNavyURL(t *testing.T) {
	assert.True(t, IsNavyURL("https://www.neco.navy.mil/x"))
	assert.False(t, IsNavyURL("https://example.gov/x"))
}
