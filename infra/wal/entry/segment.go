package entry

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const segmentPattern = "segment-*.wal"

type segment struct {
	file   *os.File
	w      io.Writer
	index  int
	offset int64
	opened time.Time
}

type segmentFile struct {
	index int
	path  string
}

func segmentPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("segment-%06d.wal", index))
}

// listSegments returns the segments in dir ordered by index.
func listSegments(dir string) ([]segmentFile, error) {
	paths, err := filepath.Glob(filepath.Join(dir, segmentPattern))
	if err != nil {
		return nil, err
	}
	out := make([]segmentFile, 0, len(paths))
	for _, p := range paths {
		var idx int
		if _, err := fmt.Sscanf(filepath.Base(p), "segment-%d.wal", &idx); err != nil {
			continue
		}
		out = append(out, segmentFile{index: idx, path: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out, nil
}

func openSegment(dir string, index int) (*segment, error) {
	f, err := os.OpenFile(segmentPath(dir, index), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segment{file: f, w: f, index: index, offset: st.Size(), opened: time.Now()}, nil
}

// append writes one whole frame. A failed write is cut back to the
// previous frame boundary so later frames never follow a partial one.
func (s *segment) append(b []byte) error {
	n, err := s.w.Write(b)
	if err == nil {
		s.offset += int64(n)
		return nil
	}
	if n > 0 {
		if terr := s.file.Truncate(s.offset); terr != nil {
			return fmt.Errorf("%w: %w (rollback: %w)", errSegmentDamaged, err, terr)
		}
	}
	return err
}

func (s *segment) sync() error {
	return s.file.Sync()
}

func (s *segment) close() error {
	if err := s.file.Sync(); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}

// scanSegment reads every whole frame of a segment in order and returns
// the offset just past the last good one. A truncated or corrupt frame
// ends the scan with an error wrapping errTornTail.
func scanSegment(path string, fn func(*Record) error) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 64<<10)
	header := make([]byte, headerSize)
	var end int64
	for {
		rec, n, err := readRecord(br, header)
		switch {
		case errors.Is(err, io.EOF):
			return end, nil
		case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, ErrCorruptRecord):
			return end, fmt.Errorf("%w at offset %d: %w", errTornTail, end, err)
		case err != nil:
			return end, err
		}
		if fn != nil {
			if err := fn(rec); err != nil {
				return end, err
			}
		}
		end += n
	}
}

// maxSeqInSegment returns the highest sequence stored in a segment,
// ignoring a torn tail.
func maxSeqInSegment(path string) (uint64, error) {
	var highest uint64
	_, err := scanSegment(path, func(r *Record) error {
		if r.Seq > highest {
			highest = r.Seq
		}
		return nil
	})
	if errors.Is(err, errTornTail) {
		err = nil
	}
	return highest, err
}
