package attach

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveFilename(t *testing.T) {
	tests := []struct {
		name        string
		disposition string
		url         string
		contentType string
		want        string
	}{
		{
			name:        "content disposition wins",
			disposition: `attachment; filename="Amendment 0002.pdf"`,
			url:         "https://example.gov/download?id=99",
			contentType: "application/octet-stream",
			want:        "Amendment 0002.pdf",
		},
		{
			name: "url basename with known extension",
			url:  "https://example.gov/files/sow.docx?v=2",
			want: "sow.docx",
		},
		{
			name:        "mime type when url has no extension",
			url:         "https://example.gov/download/4471",
			contentType: "application/pdf",
			want:        "4471.pdf",
		},
		{
			name:        "charset parameter tolerated",
			url:         "https://example.gov/view/page",
			contentType: "text/html; charset=utf-8",
			want:        "page.html",
		},
		{
			name: "txt fallback",
			url:  "https://example.gov/download/4471",
			want: "4471.txt",
		},
		{
			name:        "disposition path stripped",
			disposition: `attachment; filename="/tmp/evil.pdf"`,
			url:         "https://example.gov/d",
			want:        "evil.pdf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveFilename(tt.disposition, tt.url, tt.contentType))
		})
	}
}
