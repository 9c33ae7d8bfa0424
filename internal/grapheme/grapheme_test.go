package grapheme

import (
	"strings"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty", in: "", want: nil},
		{name: "ascii", in: "abc", want: []string{"a", "b", "c"}},
		{name: "combining mark", in: "éx", want: []string{"é", "x"}},
		{name: "zwj family", in: "👨‍👩‍👧!", want: []string{"👨‍👩‍👧", "!"}},
		{name: "flag pair", in: "🇯🇵🇺🇸", want: []string{"🇯🇵", "🇺🇸"}},
		{name: "skin tone", in: "👍🏽", want: []string{"👍🏽"}},
		{name: "crlf", in: "a\r\nb", want: []string{"a", "\r\n", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("Split(%q) = %q, want %q", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Split(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
				}
			}
			if joined := strings.Join(got, ""); joined != tt.in {
				t.Fatalf("joined clusters %q differ from input %q", joined, tt.in)
			}
			if Count(tt.in) != len(tt.want) {
				t.Fatalf("Count(%q) = %d, want %d", tt.in, Count(tt.in), len(tt.want))
			}
		})
	}
}
