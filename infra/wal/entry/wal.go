package entry

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultSegmentSize = 64 << 20

type Config struct {
	Dir             string
	SegmentSize     int64
	SegmentDuration time.Duration
	// SyncEveryWrite fsyncs after each Append. Without it data reaches
	// disk on rotation, Sync and Close.
	SyncEveryWrite bool
	Logger         *zap.Logger
}

// WAL is an append-only command log split into numbered segments.
type WAL struct {
	mu      sync.Mutex
	dir     string
	segSize int64
	segDur  time.Duration
	fsync   bool
	log     *zap.Logger

	current *segment
	lastSeq uint64
	closed  bool
	failed  error
}

// Open resumes the highest existing segment, or creates segment 0. A torn
// frame at the end of that segment is cut off before appending.
func Open(cfg Config) (*WAL, error) {
	if cfg.Dir == "" {
		return nil, errors.New("entry wal: empty dir")
	}
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = defaultSegmentSize
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "entry-wal"))

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	segs, err := listSegments(cfg.Dir)
	if err != nil {
		return nil, err
	}

	index := 0
	if len(segs) > 0 {
		last := segs[len(segs)-1]
		index = last.index
		end, err := scanSegment(last.path, nil)
		if errors.Is(err, errTornTail) {
			log.Warn("truncating torn segment tail",
				zap.String("segment", last.path),
				zap.Int64("offset", end),
				zap.Error(err),
			)
			if err := os.Truncate(last.path, end); err != nil {
				return nil, fmt.Errorf("entry wal: truncate %s: %w", last.path, err)
			}
		} else if err != nil {
			return nil, fmt.Errorf("entry wal: scan %s: %w", last.path, err)
		}
	}

	lastSeq, err := lastSequence(segs)
	if err != nil {
		return nil, err
	}
	seg, err := openSegment(cfg.Dir, index)
	if err != nil {
		return nil, err
	}

	log.Info("opened",
		zap.String("dir", cfg.Dir),
		zap.Int("segment", index),
		zap.Uint64("last_seq", lastSeq),
	)
	return &WAL{
		dir:     cfg.Dir,
		segSize: cfg.SegmentSize,
		segDur:  cfg.SegmentDuration,
		fsync:   cfg.SyncEveryWrite,
		log:     log,
		current: seg,
		lastSeq: lastSeq,
	}, nil
}

// lastSequence finds the newest sequence, walking back over empty
// segments left behind by a rotation.
func lastSequence(segs []segmentFile) (uint64, error) {
	for i := len(segs) - 1; i >= 0; i-- {
		seq, err := maxSeqInSegment(segs[i].path)
		if err != nil {
			return 0, err
		}
		if seq > 0 {
			return seq, nil
		}
	}
	return 0, nil
}

// Append writes r to the active segment. Sequences must strictly
// increase across the life of the log.
func (w *WAL) Append(r *Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return os.ErrClosed
	}
	if r.Seq <= w.lastSeq {
		return fmt.Errorf("%w: %d after %d", ErrOutOfOrder, r.Seq, w.lastSeq)
	}

	if w.failed != nil {
		return fmt.Errorf("%w: %w", ErrFailed, w.failed)
	}

	if err := w.current.append(r.encode()); err != nil {
		if errors.Is(err, errSegmentDamaged) {
			w.fail(err)
		}
		return err
	}
	if w.fsync {
		if err := w.current.sync(); err != nil {
			// the frame may or may not be durable, so the log state is unknown
			w.fail(err)
			return err
		}
	}
	w.lastSeq = r.Seq

	if w.current.offset >= w.segSize ||
		(w.segDur > 0 && time.Since(w.current.opened) >= w.segDur) {
		// r is already written; the next Append reports the failure
		if err := w.rotate(); err != nil {
			w.fail(err)
		}
	}
	return nil
}

func (w *WAL) fail(err error) {
	w.failed = err
	w.log.Error("append failed, refusing further writes",
		zap.Int("segment", w.current.index), zap.Error(err))
}

func (w *WAL) rotate() error {
	if err := w.current.close(); err != nil {
		return err
	}
	next := w.current.index + 1
	seg, err := openSegment(w.dir, next)
	if err != nil {
		return err
	}
	w.current = seg
	w.log.Debug("rotated", zap.Int("segment", next))
	return nil
}

// LastSeq is the sequence of the newest record in the log.
func (w *WAL) LastSeq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeq
}

func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return os.ErrClosed
	}
	return w.current.sync()
}

// TruncateBefore deletes closed segments whose records are all at or
// below seq. The active segment is never removed.
func (w *WAL) TruncateBefore(seq uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	segs, err := listSegments(w.dir)
	if err != nil {
		return err
	}
	removed := 0
	for _, s := range segs {
		if s.index >= w.current.index {
			break
		}
		maxSeq, err := maxSeqInSegment(s.path)
		if err != nil {
			w.log.Warn("skipping unreadable segment", zap.String("segment", s.path), zap.Error(err))
			continue
		}
		if maxSeq > seq {
			break
		}
		if err := os.Remove(s.path); err != nil {
			return fmt.Errorf("entry wal: remove %s: %w", s.path, err)
		}
		removed++
	}
	if removed > 0 {
		w.log.Info("truncated", zap.Uint64("through_seq", seq), zap.Int("segments", removed))
	}
	return nil
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.current.close()
}
