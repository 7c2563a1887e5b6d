package attach

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFedConnectFetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/documents/listing.aspx", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "ASP.NET_SessionId", Value: "abc123"})
		w.Write([]byte(`<html><body><form>
			<input type="hidden" name="__VIEWSTATE" value="vs-token"/>
			<input type="hidden" name="__EVENTVALIDATION" value="ev-token"/>
			<a id="ctl00_grid_lnk0" href="javascript:__doPostBack('ctl00$grid$lnk0','doc-1')">Solicitation.pdf</a>
			<a id="ctl00_grid_lnk1" href="javascript:__doPostBack('ctl00$grid$lnk1','doc-2')">Withheld.pdf</a>
		</form></body></html>`))
	})
	mux.HandleFunc("/documents/summary.aspx", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "vs-token", r.PostFormValue("__VIEWSTATE"))
		assert.Equal(t, "ev-token", r.PostFormValue("__EVENTVALIDATION"))

		cookie, err := r.Cookie("ASP.NET_SessionId")
		require.NoError(t, err)
		assert.Equal(t, "abc123", cookie.Value)

		switch r.PostFormValue("__EVENTARGUMENT") {
		case "doc-1":
			assert.Equal(t, "ctl00$grid$lnk0", r.PostFormValue("__EVENTTARGET"))
			w.Header().Set("Content-Disposition", `attachment; filename="Solicitation.pdf"`)
			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte("%PDF-1.7 body"))
		default:
			// No Content-Disposition: the portal served a page, not a file.
			w.Write([]byte("<html>session page</html>"))
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewFedConnectClient(t.TempDir(), 10*time.Second)
	require.NoError(t, err)

	downloads, err := client.Fetch(context.Background(), srv.URL+"/documents/listing.aspx")
	require.NoError(t, err)
	require.Len(t, downloads, 2)

	assert.Equal(t, "Solicitation.pdf", downloads[0].Filename)
	assert.NotEmpty(t, downloads[0].Path)

	// The withheld document is recorded with no local file.
	assert.Empty(t, downloads[1].Filename)
	assert.Empty(t, downloads[1].Path)
	assert.Contains(t, downloads[1].URL, "summary.aspx")
}

func TestFedConnectFetch_NoViewState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>maintenance page</body></html>"))
	}))
	defer srv.Close()

	client, err := NewFedConnectClient(t.TempDir(), 10*time.Second)
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), srv.URL+"/documents/listing.aspx")
	assert.Error(t, err)
}

func TestSummaryURL(t *testing.T) {
	assert.Equal(t,
		"https://www.fedconnect.net/FedConnect/summary.aspx",
		summaryURL("https://www.fedconnect.net/FedConnect/PublicPages.aspx?doc=1"),
	)
}
