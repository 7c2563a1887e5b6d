package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProperCase(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"inverted department", "JUSTICE, DEPARTMENT OF", "Department of Justice"},
		{"inverted multi-word", "HOMELAND SECURITY, DEPARTMENT OF", "Department of Homeland Security"},
		{"plain office", "BUREAU OF PRISONS", "Bureau of Prisons"},
		{"leading small word capitalized", "THE PENTAGON", "The Pentagon"},
		{"connectives stay lowercase", "OFFICE OF THE SECRETARY AND STAFF", "Office of the Secretary and Staff"},
		{"already cased", "General Services Administration", "General Services Administration"},
		{"comma without of suffix", "WASHINGTON, DC OFFICE", "Washington, Dc Office"},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProperCase(tt.in))
		})
	}
}
