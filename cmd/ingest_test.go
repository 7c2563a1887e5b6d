package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/solwatch/internal/model"
)

func TestParseTypeCodes(t *testing.T) {
	types, err := parseTypeCodes("p, k,o")
	require.NoError(t, err)
	assert.Equal(t, []model.NoticeType{
		model.TypePresolicitation, model.TypeCombined, model.TypeSolicitation,
	}, types)

	types, err = parseTypeCodes("")
	require.NoError(t, err)
	assert.Nil(t, types)

	_, err = parseTypeCodes("p,z")
	assert.Error(t, err)
}

func TestParseIngestOpts(t *testing.T) {
	cmd := ingestCmd
	require.NoError(t, cmd.Flags().Set("source", "sam"))
	require.NoError(t, cmd.Flags().Set("types", "o"))
	require.NoError(t, cmd.Flags().Set("from", "2020-05-01"))
	require.NoError(t, cmd.Flags().Set("to", "2020-05-08"))

	opts, err := parseIngestOpts(cmd)
	require.NoError(t, err)
	assert.Equal(t, "sam", opts.source)
	assert.Equal(t, []model.NoticeType{model.TypeSolicitation}, opts.types)
	assert.Equal(t, "2020-05-01", opts.since.Format("2006-01-02"))
	assert.Equal(t, "2020-05-08", opts.until.Format("2006-01-02"))
}

func TestParseIngestOpts_EmptyWindow(t *testing.T) {
	cmd := ingestCmd
	require.NoError(t, cmd.Flags().Set("from", "2020-05-08"))
	require.NoError(t, cmd.Flags().Set("to", "2020-05-01"))

	_, err := parseIngestOpts(cmd)
	assert.Error(t, err)
}

func TestParseIngestOpts_UnknownSource(t *testing.T) {
	cmd := ingestCmd
	require.NoError(t, cmd.Flags().Set("source", "rss"))
	_, err := parseIngestOpts(cmd)
	assert.Error(t, err)

	require.NoError(t, cmd.Flags().Set("source", "sam"))
}
