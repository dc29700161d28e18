package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

const filePattern = "snapshot-*.bin"

func fileName(seq uint64) string {
	return fmt.Sprintf("snapshot-%020d.bin", seq)
}

// Writer stores snapshots in Dir. It is not safe for concurrent use.
type Writer struct {
	Dir string
	// Keep is how many snapshot files survive a write. Zero keeps all.
	Keep int

	enc *zstd.Encoder
}

func NewWriter(dir string, keep int) (*Writer, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("snapshot: zstd encoder: %w", err)
	}
	return &Writer{Dir: dir, Keep: keep, enc: enc}, nil
}

// Write stores s atomically and returns its path. A reader never sees a
// partial file: the data is synced under a temporary name first.
func (w *Writer) Write(s *Snapshot) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", err
	}
	raw, err := msgpack.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("snapshot: encode: %w", err)
	}
	data := w.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2))

	tmp, err := os.CreateTemp(w.Dir, "snapshot-*.tmp")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	path := filepath.Join(w.Dir, fileName(s.Seq))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	if w.Keep > 0 {
		if err := prune(w.Dir, w.Keep); err != nil {
			return path, err
		}
	}
	return path, nil
}

func (w *Writer) Close() error {
	return w.enc.Close()
}

func prune(dir string, keep int) error {
	paths, err := List(dir)
	if err != nil {
		return err
	}
	for i := 0; i < len(paths)-keep; i++ {
		if err := os.Remove(paths[i]); err != nil {
			return err
		}
	}
	return nil
}
