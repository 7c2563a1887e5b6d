package feed

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFeed = `<PRESOL>
<DATE>0314
<YEAR>23
<AGENCY>JUSTICE, DEPARTMENT OF
<OFFICE>BUREAU OF PRISONS
<SOLNBR>15B30523Q00000001
<SUBJECT>Food Service Equipment
<DESC>Link To Document
</PRESOL>
<COMBINE>
<DATE>0314
<YEAR>23
<SOLNBR>W912DY23R0001
<SUBJECT>Base Maintenance
<DESC>Combined synopsis and
solicitation for base
maintenance services.
</COMBINE>
<ARCHIVE>
<DATE>0314
<YEAR>23
<SOLNBR>OLD0001
</ARCHIVE>
<AWARD>
<SOLNBR>FA860123C0001
<AWARDEE>Acme Corp
</AWARD>
<MOD>
<SOLNBR>N0018923Q0100
</MOD>
<AMDCSS>
<SOLNBR>SPE30023R0002
</AMDCSS>
<SRCSGT>
<SOLNBR>36C25723Q0500
</SRCSGT>
<UNARCHIVE>
<SOLNBR>OLD0002
</UNARCHIVE>
`

func TestCountEndTags(t *testing.T) {
	counts := CountEndTags(strings.Split(sampleFeed, "\n"))

	want := map[string]int{
		"PRESOL":    1,
		"COMBINE":   1,
		"ARCHIVE":   1,
		"AWARD":     1,
		"MOD":       1,
		"AMDCSS":    1,
		"SRCSGT":    1,
		"UNARCHIVE": 1,
	}
	assert.Equal(t, want, counts)
}

func TestParseFlatFeed(t *testing.T) {
	records, err := ParseFlatFeed(strings.NewReader(sampleFeed))
	require.NoError(t, err)

	counts := CountEndTags(strings.Split(sampleFeed, "\n"))
	for tag, n := range counts {
		assert.Len(t, records[tag], n, "record count for %s", tag)
	}

	require.Len(t, records["PRESOL"], 1)
	presol := records["PRESOL"][0]
	assert.Equal(t, "PRESOL", presol.Type)
	assert.Equal(t, "15B30523Q00000001", presol.Fields["SOLNBR"])
	assert.Equal(t, "JUSTICE, DEPARTMENT OF", presol.Fields["AGENCY"])

	// The spurious DESC duplicate is dropped, not kept as field text.
	_, hasDesc := presol.Fields["DESC"]
	assert.False(t, hasDesc)
}

func TestParseFlatFeed_ContinuationLines(t *testing.T) {
	records, err := ParseFlatFeed(strings.NewReader(sampleFeed))
	require.NoError(t, err)

	require.Len(t, records["COMBINE"], 1)
	desc := records["COMBINE"][0].Fields["DESC"]
	assert.Equal(t, "Combined synopsis and solicitation for base maintenance services.", desc)
}

func TestParseFlatFeed_StripsMarkup(t *testing.T) {
	feed := "<PRESOL>\n" +
		"<SOLNBR>X1\n" +
		"<DESC>Alpha&nbsp;bravo &amp; charlie<br/>delta\n" +
		"</PRESOL>\n"

	records, err := ParseFlatFeed(strings.NewReader(feed))
	require.NoError(t, err)

	require.Len(t, records["PRESOL"], 1)
	assert.Equal(t, "Alpha bravo & charlie delta", records["PRESOL"][0].Fields["DESC"])
}

func TestParseFlatFeed_UnterminatedRecordDropped(t *testing.T) {
	feed := "<PRESOL>\n<SOLNBR>X1\n</PRESOL>\n<MOD>\n<SOLNBR>X2\n"

	records, err := ParseFlatFeed(strings.NewReader(feed))
	require.NoError(t, err)

	assert.Len(t, records["PRESOL"], 1)
	assert.Empty(t, records["MOD"])
}

func TestMergeFragments(t *testing.T) {
	fragments := []fragment{
		{key: "A", text: "123"},
		{key: "B", text: "345"},
		{key: "C", text: "678"},
		{key: "C", text: "9"},
	}

	fields := mergeFragments(fragments)

	want := map[string]string{
		"A": "123",
		"B": "345",
		"C": "678 9",
	}
	assert.Equal(t, want, fields)
}

func TestMergeFragments_DropsLinkToDocument(t *testing.T) {
	fragments := []fragment{
		{key: "DESC", text: "Real description."},
		{key: "DESC", text: "Link To Document"},
	}

	fields := mergeFragments(fragments)
	assert.Equal(t, "Real description.", fields["DESC"])
}
