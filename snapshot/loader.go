package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

var ErrNoSnapshot = errors.New("snapshot: none found")

// List returns snapshot paths oldest first. Zero padded sequence numbers
// make lexical order match sequence order.
func List(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, filePattern))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot: zstd decoder: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot: decompress %s: %w", path, err)
	}
	var s Snapshot
	if err := msgpack.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("snapshot: decode %s: %w", path, err)
	}
	if s.Version != schemaVersion {
		return nil, fmt.Errorf("snapshot: %s has version %d, want %d", path, s.Version, schemaVersion)
	}
	return &s, nil
}

// Latest loads the newest snapshot in dir. It returns ErrNoSnapshot when
// the directory holds none or does not exist.
func Latest(dir string) (*Snapshot, string, error) {
	paths, err := List(dir)
	if err != nil {
		return nil, "", err
	}
	if len(paths) == 0 {
		return nil, "", ErrNoSnapshot
	}
	path := paths[len(paths)-1]
	s, err := Load(path)
	if err != nil {
		return nil, path, err
	}
	return s, path, nil
}

// SeqOf returns the sequence encoded in a snapshot file name.
func SeqOf(path string) (uint64, bool) {
	var seq uint64
	if _, err := fmt.Sscanf(filepath.Base(path), "snapshot-%d.bin", &seq); err != nil {
		return 0, false
	}
	return seq, true
}
