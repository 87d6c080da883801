package snapshot

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
)

// encodeFrames compresses a chunk of frames using gob encoding and gzip compression.
func encodeFrames(frames [][]float64) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := gob.NewEncoder(gz)
	if err := enc.Encode(frames); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeFrames decompresses and decodes a chunk written by encodeFrames.
func decodeFrames(blob []byte) ([][]float64, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty frame blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var frames [][]float64
	if err := gob.NewDecoder(gz).Decode(&frames); err != nil {
		return nil, fmt.Errorf("failed to decode frames: %w", err)
	}
	return frames, nil
}
