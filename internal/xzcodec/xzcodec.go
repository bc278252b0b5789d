// Package xzcodec compresses the index builder's intermediate checkpoint
// arrays (spec.md §5.3: the dense earliest-timestamp and max-leaf-timestamp
// arrays Stage A/B persist between runs) so a resumed builder run does not
// have to re-materialize them uncompressed on disk. Stage C's frontier set
// is not checkpointed here; it is written as the frontier_directories table.
//
// Grounded on the teacher's pkg/storage/storeDataPipeline.go, which wraps
// github.com/ulikunitz/xz's LZMA reader/writer around each chunk payload
// before it is persisted; this package follows the same
// compress-then-write / read-then-decompress shape but at whole-file
// granularity and using the xz container format rather than raw LZMA, so
// checkpoint files carry their own integrity check.
package xzcodec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/ulikunitz/xz"
)

// CompressBytes xz-compresses data.
func CompressBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("xzcodec: new writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("xzcodec: compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("xzcodec: close writer: %w", err)
	}
	return buf.Bytes(), nil
}

// DecompressBytes reverses CompressBytes.
func DecompressBytes(data []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("xzcodec: new reader: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, fmt.Errorf("xzcodec: decompress: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteUint64Checkpoint xz-compresses a dense array of uint64 (little
// endian) and writes it to path, following the write-then-rename
// discipline the builder uses for every checkpoint file so a crash mid
// write never leaves a truncated checkpoint that a resumed run would
// mistake for valid.
func WriteUint64Checkpoint(path string, values []uint64) error {
	raw := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(raw[i*8:], v)
	}
	compressed, err := CompressBytes(raw)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return fmt.Errorf("xzcodec: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("xzcodec: rename %s: %w", tmp, err)
	}
	return nil
}

// ReadUint64Checkpoint reverses WriteUint64Checkpoint.
func ReadUint64Checkpoint(path string) ([]uint64, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("xzcodec: read %s: %w", path, err)
	}
	raw, err := DecompressBytes(compressed)
	if err != nil {
		return nil, fmt.Errorf("xzcodec: decompress %s: %w", path, err)
	}
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("xzcodec: %s has truncated payload (%d bytes)", path, len(raw))
	}
	values := make([]uint64, len(raw)/8)
	for i := range values {
		values[i] = binary.LittleEndian.Uint64(raw[i*8:])
	}
	return values, nil
}
