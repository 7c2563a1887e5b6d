// Package feed parses the two upstream notice representations, the legacy
// nightly pseudo-XML flat file and the SAM.gov REST search API, into the
// canonical Notice record.
package feed

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Record types appearing in the nightly flat file. The feed has no root
// element; each record is delimited by <TYPE> ... </TYPE> lines.
var FlatRecordTypes = []string{
	"PRESOL", "COMBINE", "ARCHIVE", "UNARCHIVE", "AWARD",
	"MOD", "AMDCSS", "SRCSGT", "SNOTE", "SSALE", "JA", "ITB",
}

// RawRecord is one record lifted out of the flat file: its record type and
// the merged subtag fields.
type RawRecord struct {
	Type   string
	Fields map[string]string
}

// fragment is one (subtag, text) pair accumulated while scanning a record.
// Continuation lines extend the most recent fragment's text.
type fragment struct {
	key  string
	text string
}

// accumulator tracks the parse state for the record currently open: which
// record type it is, which slot index it occupies for that type, and the
// ordered fragments seen so far.
type accumulator struct {
	recordType string
	slot       int
	fragments  []fragment
}

var subtagRe = regexp.MustCompile(`^<([A-Z0-9]+)>(.*)$`)

// markupReplacer strips the known HTML entity/tag vocabulary that upstream
// embeds inside field text.
var markupReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"<p>", " ",
	"</p>", " ",
	"<br>", " ",
	"<br/>", " ",
	"<br />", " ",
	"<strong>", "",
	"</strong>", "",
	"<em>", "",
	"</em>", "",
)

// spuriousDescText is a known-bad duplicate the upstream feed emits as a
// second DESC fragment; it is dropped rather than concatenated.
const spuriousDescText = "Link To Document"

// CountEndTags scans the feed once and counts closing tags per record type.
// The counts pre-size the per-type slot buffers for the parse pass.
func CountEndTags(lines []string) map[string]int {
	known := make(map[string]bool, len(FlatRecordTypes))
	for _, t := range FlatRecordTypes {
		known[t] = true
	}

	counts := make(map[string]int)
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "</") || !strings.HasSuffix(trimmed, ">") {
			continue
		}
		tag := trimmed[2 : len(trimmed)-1]
		if known[tag] {
			counts[tag]++
		}
	}
	return counts
}

// ParseFlatFeed streams the nightly flat file and returns records grouped by
// record type, in feed order. A malformed record never aborts the batch;
// whatever fields were accumulated before the fault are kept or the record is
// dropped, and scanning continues with the next record.
func ParseFlatFeed(r io.Reader) (map[string][]RawRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "feed: read flat feed")
	}

	counts := CountEndTags(lines)
	out := make(map[string][]RawRecord, len(counts))
	for tag, n := range counts {
		out[tag] = make([]RawRecord, 0, n)
	}

	known := make(map[string]bool, len(FlatRecordTypes))
	for _, t := range FlatRecordTypes {
		known[t] = true
	}

	var acc *accumulator
	for _, raw := range lines {
		line := strings.TrimRight(raw, "\r\n")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		// Closing tag for the open record: merge and advance the slot.
		if acc != nil && trimmed == "</"+acc.recordType+">" {
			out[acc.recordType] = append(out[acc.recordType], RawRecord{
				Type:   acc.recordType,
				Fields: mergeFragments(acc.fragments),
			})
			acc = nil
			continue
		}

		// Opening tag for a new record type.
		if m := subtagRe.FindStringSubmatch(trimmed); m != nil && known[m[1]] && m[2] == "" && acc == nil {
			acc = &accumulator{recordType: m[1], slot: len(out[m[1]])}
			continue
		}

		if acc == nil {
			// Text outside any record. The upstream feed occasionally leaks
			// stray lines between records; skip them.
			continue
		}

		cleaned := strings.TrimSpace(markupReplacer.Replace(line))
		if cleaned == "" {
			continue
		}

		if m := subtagRe.FindStringSubmatch(cleaned); m != nil {
			acc.fragments = append(acc.fragments, fragment{key: m[1], text: strings.TrimSpace(m[2])})
			continue
		}

		// Non-blank, not a tag: continuation of the previous subtag's text.
		if n := len(acc.fragments); n > 0 {
			last := &acc.fragments[n-1]
			if last.text == "" {
				last.text = cleaned
			} else {
				last.text += " " + cleaned
			}
		} else {
			zap.L().Debug("feed: continuation line before any subtag",
				zap.String("record_type", acc.recordType),
				zap.Int("slot", acc.slot),
			)
		}
	}

	if acc != nil {
		zap.L().Warn("feed: unterminated record at end of feed",
			zap.String("record_type", acc.recordType),
			zap.Int("slot", acc.slot),
		)
	}

	return out, nil
}

// mergeFragments folds ordered (subtag, text) pairs into a field map.
// Repeated subtags within one record merge by joining with a single space in
// first-seen order. The spurious "Link To Document" DESC duplicate is dropped.
func mergeFragments(fragments []fragment) map[string]string {
	fields := make(map[string]string, len(fragments))
	for _, f := range fragments {
		if f.key == "DESC" && f.text == spuriousDescText {
			continue
		}
		existing, ok := fields[f.key]
		switch {
		case !ok:
			fields[f.key] = f.text
		case f.text == "":
			// Nothing to merge.
		case existing == "":
			fields[f.key] = f.text
		default:
			fields[f.key] = existing + " " + f.text
		}
	}
	return fields
}
