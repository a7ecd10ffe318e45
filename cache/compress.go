package cache

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// compress gzips raw. The caller decides whether the result is worth keeping.
func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("compress cache value: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finish cache value compression: %w", err)
	}
	return buf.Bytes(), nil
}

// decompress restores a value produced by compress.
func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open compressed cache value: %w", err)
	}
	defer func() {
		_ = r.Close()
	}()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompress cache value: %w", err)
	}
	return raw, nil
}
