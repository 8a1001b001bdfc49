package codec

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "ascii", text: `[{"id":"a","title":"Hello"}]`},
		{name: "multi-byte", text: "日本語のフィード — Ελληνικά — Привет"},
		{name: "emoji", text: "🚀📰👍🏽 family: 👨‍👩‍👧"},
		{name: "large", text: strings.Repeat("lorem ipsum dolor sit amet ✓ ", 100_000)},
		{name: "invalid utf-8 bytes", text: "ab\xe6\x97"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Compress(tt.text)
			if err != nil {
				t.Fatalf("compress: %v", err)
			}
			got, err := Decompress(data)
			if err != nil {
				t.Fatalf("decompress: %v", err)
			}
			if got != tt.text {
				t.Errorf("round trip mismatch: got %d bytes, want %d", len(got), len(tt.text))
			}
		})
	}
}

func TestDecompressErrors(t *testing.T) {
	valid, err := Compress("some text worth compressing, some text worth compressing")
	if err != nil {
		t.Fatalf("compress: %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{name: "not gzip", data: []byte("plain text")},
		{name: "empty", data: nil},
		{name: "truncated", data: valid[:len(valid)-6]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decompress(tt.data)
			var cerr *Error
			if !errors.As(err, &cerr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if diff := cmp.Diff("decompress", cerr.Op); diff != "" {
				t.Errorf("op mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
