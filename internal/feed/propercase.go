package feed

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Words kept lowercase mid-phrase by ProperCase.
var smallWords = map[string]bool{
	"the": true,
	"of":  true,
	"and": true,
}

var titleCaser = cases.Title(language.AmericanEnglish)

// ProperCase lowercases then title-cases a free-text organization name,
// keeping connective words lowercase except in the leading position. Inputs
// like "X, DEPARTMENT OF" are reordered to "Department of X" first, a pattern
// the upstream hierarchy uses for cabinet-level agencies.
func ProperCase(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if head, tail, ok := splitInvertedDepartment(s); ok {
		s = tail + " " + head
	}

	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		if i > 0 && smallWords[w] {
			continue
		}
		words[i] = titleCaser.String(w)
	}
	return strings.Join(words, " ")
}

// splitInvertedDepartment detects "X, DEPARTMENT OF" style names and returns
// the subject and the trailing descriptor for reordering.
func splitInvertedDepartment(s string) (head, tail string, ok bool) {
	idx := strings.LastIndex(s, ",")
	if idx < 0 {
		return "", "", false
	}
	head = strings.TrimSpace(s[:idx])
	tail = strings.TrimSpace(s[idx+1:])
	upper := strings.ToUpper(tail)
	if head == "" || !strings.HasSuffix(upper, " OF") {
		return "", "", false
	}
	return head, tail, true
}
