// Package exit is the trade outbox: every trade the engine produces is
// stored here before anything tries to publish it, and stays until the
// publisher acknowledges it.
package exit

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"
)

// -------------------- State --------------------

type ExitState uint8

const (
	StateNew ExitState = iota
	StateSent
	StateAcked
	StateFailed
)

func (s ExitState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Record --------------------

var (
	ErrNotFound      = errors.New("exit wal: record not found")
	ErrCorruptRecord = errors.New("exit wal: corrupt record")
)

type ExitRecord struct {
	Seq         uint64
	State       ExitState
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

// value encoding: [state:1][retries:4][lastAttempt:8][payload]
const recordHeader = 1 + 4 + 8

func encodeRecord(r *ExitRecord) []byte {
	buf := make([]byte, recordHeader+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	copy(buf[recordHeader:], r.Payload)
	return buf
}

// decodeRecord copies b, which pebble only lends until the next call.
func decodeRecord(seq uint64, b []byte) (*ExitRecord, error) {
	if len(b) < recordHeader {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorruptRecord, len(b))
	}
	payload := make([]byte, len(b)-recordHeader)
	copy(payload, b[recordHeader:])
	return &ExitRecord{
		Seq:         seq,
		State:       ExitState(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     payload,
	}, nil
}

// -------------------- WAL --------------------

type ExitWAL struct {
	db  *pebble.DB
	log *zap.Logger

	mu   sync.Mutex
	last uint64
	now  func() time.Time
}

func Open(dir string, logger *zap.Logger) (*ExitWAL, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("exit wal: open %s: %w", dir, err)
	}
	w := &ExitWAL{db: db, log: logger.With(zap.String("component", "exit-wal")), now: time.Now}

	last, err := w.lastKey()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	w.last = last
	w.log.Info("opened", zap.String("dir", dir), zap.Uint64("last_seq", last))
	return w, nil
}

func (w *ExitWAL) Close() error {
	return w.db.Close()
}

func (w *ExitWAL) lastKey() (uint64, error) {
	iter, err := w.db.NewIter(keyBounds())
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseKey(iter.Key())
}

// -------------------- API --------------------

// Append stores payloads as NEW records in one synced batch and returns
// their sequence numbers in order.
func (w *ExitWAL) Append(payloads ...[]byte) ([]uint64, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	batch := w.db.NewBatch()
	defer batch.Close()

	seqs := make([]uint64, len(payloads))
	for i, p := range payloads {
		seq := w.last + uint64(i) + 1
		if err := batch.Set(keyFor(seq), encodeRecord(&ExitRecord{State: StateNew, Payload: p}), nil); err != nil {
			return nil, err
		}
		seqs[i] = seq
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return nil, fmt.Errorf("exit wal: append: %w", err)
	}
	w.last += uint64(len(payloads))
	return seqs, nil
}

func (w *ExitWAL) MarkSent(seq uint64) error {
	return w.update(seq, func(r *ExitRecord) { r.State = StateSent })
}

func (w *ExitWAL) MarkAcked(seq uint64) error {
	return w.update(seq, func(r *ExitRecord) { r.State = StateAcked })
}

// MarkFailed records a failed publish attempt and returns the new retry
// count.
func (w *ExitWAL) MarkFailed(seq uint64) (uint32, error) {
	var retries uint32
	err := w.update(seq, func(r *ExitRecord) {
		r.State = StateFailed
		r.Retries++
		retries = r.Retries
	})
	return retries, err
}

func (w *ExitWAL) update(seq uint64, fn func(*ExitRecord)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	rec, err := w.get(seq)
	if err != nil {
		return err
	}
	fn(rec)
	rec.LastAttempt = w.now().UnixNano()
	return w.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync)
}

// Get returns the current record for a sequence.
func (w *ExitWAL) Get(seq uint64) (*ExitRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.get(seq)
}

func (w *ExitWAL) get(seq uint64) (*ExitRecord, error) {
	val, closer, err := w.db.Get(keyFor(seq))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, seq)
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	return decodeRecord(seq, val)
}

// LastSeq is the sequence of the newest record ever appended.
func (w *ExitWAL) LastSeq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// -------------------- Scan --------------------

// ScanPending visits every record that is not ACKED, oldest first. SENT
// records are included: a crash between send and ack means the publish
// outcome is unknown, so delivery is at least once.
func (w *ExitWAL) ScanPending(fn func(rec *ExitRecord) error) error {
	return w.scan(func(rec *ExitRecord) error {
		if rec.State == StateAcked {
			return nil
		}
		return fn(rec)
	})
}

// ScanByState visits every record in the given state, oldest first.
func (w *ExitWAL) ScanByState(state ExitState, fn func(rec *ExitRecord) error) error {
	return w.scan(func(rec *ExitRecord) error {
		if rec.State != state {
			return nil
		}
		return fn(rec)
	})
}

// scan collects records first so fn may update the store.
func (w *ExitWAL) scan(fn func(rec *ExitRecord) error) error {
	iter, err := w.db.NewIter(keyBounds())
	if err != nil {
		return err
	}

	var recs []*ExitRecord
	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := parseKey(iter.Key())
		if err != nil {
			_ = iter.Close()
			return err
		}
		rec, err := decodeRecord(seq, iter.Value())
		if err != nil {
			_ = iter.Close()
			return err
		}
		recs = append(recs, rec)
	}
	if err := iter.Close(); err != nil {
		return err
	}

	for _, rec := range recs {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// DeleteAcked removes every ACKED record and returns how many were
// removed. The newest key is always kept so the sequence counter survives
// a restart.
func (w *ExitWAL) DeleteAcked() (int, error) {
	var acked []uint64
	if err := w.ScanByState(StateAcked, func(rec *ExitRecord) error {
		acked = append(acked, rec.Seq)
		return nil
	}); err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	batch := w.db.NewBatch()
	defer batch.Close()
	n := 0
	for _, seq := range acked {
		if seq == w.last {
			continue
		}
		if err := batch.Delete(keyFor(seq), nil); err != nil {
			return 0, err
		}
		n++
	}
	if n == 0 {
		return 0, nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("exit wal: delete acked: %w", err)
	}
	w.log.Debug("deleted acked records", zap.Int("count", n))
	return n, nil
}

// -------------------- Helpers --------------------

const keyPrefix = "trade/"

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, seq))
}

func keyBounds() *pebble.IterOptions {
	return &pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	}
}

func parseKey(b []byte) (uint64, error) {
	s := string(b)
	if len(s) <= len(keyPrefix) || s[:len(keyPrefix)] != keyPrefix {
		return 0, fmt.Errorf("%w: key %q", ErrCorruptRecord, s)
	}
	seq, err := strconv.ParseUint(s[len(keyPrefix):], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: key %q", ErrCorruptRecord, s)
	}
	return seq, nil
}
