// Package chunk maps a feed's stored text onto named files.
//
// A feed folder holds one metadata file and items.0.json.gzip,
// items.1.json.gzip, ... Each chunk carries a consecutive byte slice of the
// serialized item array, so chunks are only meaningful when concatenated in
// index order. The first missing index ends the sequence.
package chunk

import (
	"strconv"
	"strings"
)

// File names used inside a feed folder.
const (
	MetaFile     = "meta.json.gzip"
	ItemsPrefix  = "items."
	ItemsSuffix  = ".json.gzip"
	LegacyBase   = "feeds-data"
	LegacySuffix = ".frag.gzip"
)

// DefaultMaxBytes is the default budget of one chunk, measured on the
// uncompressed text.
const DefaultMaxBytes = 1024 * 1024

// ItemsFile returns the name of the chunk at index i.
func ItemsFile(i int) string {
	return ItemsPrefix + strconv.Itoa(i) + ItemsSuffix
}

// LegacyFile returns the name of legacy fragment i. Fragment 0 is the primary
// file and has no number.
func LegacyFile(i int) string {
	if i == 0 {
		return LegacyBase + LegacySuffix
	}
	return LegacyBase + "." + strconv.Itoa(i) + LegacySuffix
}

// IsDataFile reports whether name is a metadata, chunk or legacy fragment file.
func IsDataFile(name string) bool {
	switch {
	case name == MetaFile:
		return true
	case strings.HasPrefix(name, ItemsPrefix) && strings.HasSuffix(name, ItemsSuffix):
		return true
	case strings.HasPrefix(name, LegacyBase) && strings.HasSuffix(name, LegacySuffix):
		return true
	}
	return false
}

// Split cuts text into consecutive pieces of at most maxBytes bytes. Empty
// text yields no pieces. A non-positive budget falls back to DefaultMaxBytes.
func Split(text string, maxBytes int) []string {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if text == "" {
		return nil
	}
	parts := make([]string, 0, (len(text)+maxBytes-1)/maxBytes)
	for start := 0; start < len(text); start += maxBytes {
		end := min(start+maxBytes, len(text))
		parts = append(parts, text[start:end])
	}
	return parts
}

// Join reassembles pieces produced by Split.
func Join(parts []string) string {
	return strings.Join(parts, "")
}
