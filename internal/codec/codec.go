// Package codec compresses stored text with gzip.
package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Error is returned when a single buffer cannot be encoded or decoded.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Compress gzips text.
func Compress(text string) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := io.WriteString(zw, text); err != nil {
		_ = zw.Close()
		return nil, &Error{Op: "compress", Err: err}
	}
	if err := zw.Close(); err != nil {
		return nil, &Error{Op: "compress", Err: err}
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) (string, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return "", &Error{Op: "decompress", Err: err}
	}
	defer func() { _ = zr.Close() }()

	var out bytes.Buffer
	if _, err := io.Copy(&out, zr); err != nil {
		return "", &Error{Op: "decompress", Err: err}
	}
	return out.String(), nil
}
