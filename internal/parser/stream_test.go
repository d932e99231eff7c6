package parser

import (
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestPrepare(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain ascii", "a;b\n1;2\n", "a;b\n1;2\n"},
		{"bom stripped", "\xEF\xBB\xBFa;b", "a;b"},
		{"bom only", "\xEF\xBB\xBF", ""},
		{"short input", "ab", "ab"},
		{"valid multibyte kept", "café;日本", "café;日本"},
		{"invalid byte replaced", "a\xffb", "a?b"},
		{"truncated rune at eof", "ab\xe6\x97", "ab??"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(Prepare(strings.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

// Multi-byte runes split across reads must survive intact.
func TestPrepare_RuneSplitAcrossReads(t *testing.T) {
	input := "日本語;café"
	got, err := io.ReadAll(Prepare(iotest.OneByteReader(strings.NewReader(input))))
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != input {
		t.Errorf("got %q, want %q", got, input)
	}
}

func TestCountingReader(t *testing.T) {
	cr := NewCountingReader(strings.NewReader("hello world"))
	if _, err := io.Copy(io.Discard, cr); err != nil {
		t.Fatal(err)
	}
	if cr.BytesRead != 11 {
		t.Errorf("BytesRead = %d, want 11", cr.BytesRead)
	}
}
