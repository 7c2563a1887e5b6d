package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/solwatch/internal/model"
)

func TestNoticesFromFlatFeed(t *testing.T) {
	records := map[string][]RawRecord{
		"PRESOL": {{
			Type: "PRESOL",
			Fields: map[string]string{
				"SOLNBR":   "15B30523Q00000001",
				"AGENCY":   "JUSTICE, DEPARTMENT OF",
				"OFFICE":   "BUREAU OF PRISONS",
				"CLASSCOD": "73",
				"NAICS":    "333415",
				"SUBJECT":  "Food Service Equipment",
				"DATE":     "0314",
				"YEAR":     "23",
				"EMAIL":    "buyer@bop.gov",
				"URL":      "https://example.gov/notice/1",
			},
		}},
		"ARCHIVE": {{
			Type:   "ARCHIVE",
			Fields: map[string]string{"SOLNBR": "OLD0001"},
		}},
		"MOD": {{
			Type:   "MOD",
			Fields: map[string]string{"SUBJECT": "orphan record, no number"},
		}},
	}

	notices := NoticesFromFlatFeed(records, nil)
	require.Len(t, notices, 1)

	n := notices[0]
	assert.Equal(t, model.TypePresolicitation, n.NoticeType)
	assert.Equal(t, "15B30523Q00000001", n.SolNum)
	assert.Equal(t, "Department of Justice", n.Agency)
	assert.Equal(t, "Bureau of Prisons", n.Office)
	assert.Equal(t, "333415", n.NAICSCode)
	assert.Equal(t, time.Date(2023, 3, 14, 0, 0, 0, 0, time.UTC), n.PostedDate)
	assert.Equal(t, []string{"buyer@bop.gov"}, n.Emails)
}

func TestNoticesFromFlatFeed_TypeFilter(t *testing.T) {
	records := map[string][]RawRecord{
		"PRESOL": {{Type: "PRESOL", Fields: map[string]string{"SOLNBR": "A1"}}},
		"AWARD":  {{Type: "AWARD", Fields: map[string]string{"SOLNBR": "B2"}}},
	}

	notices := NoticesFromFlatFeed(records, []model.NoticeType{model.TypePresolicitation})
	require.Len(t, notices, 1)
	assert.Equal(t, "A1", notices[0].SolNum)
}

func TestParseFeedDate(t *testing.T) {
	tests := []struct {
		mmdd, yy string
		want     time.Time
	}{
		{"0314", "23", time.Date(2023, 3, 14, 0, 0, 0, 0, time.UTC)},
		{"1231", "19", time.Date(2019, 12, 31, 0, 0, 0, 0, time.UTC)},
		{"314", "23", time.Time{}},
		{"0314", "2023", time.Time{}},
		{"1345", "23", time.Time{}},
		{"", "", time.Time{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseFeedDate(tt.mmdd, tt.yy), "parseFeedDate(%q, %q)", tt.mmdd, tt.yy)
	}
}

func TestMapFlatTag(t *testing.T) {
	for tag, want := range map[string]model.NoticeType{
		"PRESOL": model.TypePresolicitation,
		"MOD":    model.TypeModification,
		"AMDCSS": model.TypeModification,
		"JA":     model.TypeJustification,
	} {
		got, ok := MapFlatTag(tag)
		assert.True(t, ok, tag)
		assert.Equal(t, want, got, tag)
	}

	_, ok := MapFlatTag("ARCHIVE")
	assert.False(t, ok, "lifecycle tags are not notices")
}

func TestMapAPICode(t *testing.T) {
	got, ok := MapAPICode("k")
	assert.True(t, ok)
	assert.Equal(t, model.TypeCombined, got)

	_, ok = MapAPICode("z")
	assert.False(t, ok)
}
