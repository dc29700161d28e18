package service

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"matchbook/domain/orderbook"
	entrywal "matchbook/infra/wal/entry"
	"matchbook/snapshot"
)

type RecoveryStats struct {
	SnapshotSeq uint64
	Restored    int
	Replayed    int
	// Rejected counts logged commands the book refused again on replay.
	Rejected int
	LastSeq  uint64
}

/*
Recover rebuilds the book from the newest snapshot in snapshotDir and the
entry WAL records written after it. An unreadable snapshot falls back to
an older one the WAL still covers.

IMPORTANT:
- This MUST run before accepting traffic, on an empty book
- Trades produced during replay were already stored in the outbox the
  first time round; they are not stored again
*/
func (s *OrderService) Recover(snapshotDir, walDir string) (RecoveryStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats RecoveryStats
	if s.book.Len() > 0 {
		return stats, errors.New("service: recover needs an empty book")
	}

	snap, path, err := s.loadSnapshot(snapshotDir, walDir)
	switch {
	case errors.Is(err, snapshot.ErrNoSnapshot):
		s.log.Info("no snapshot, replaying full wal", zap.String("dir", snapshotDir))
	case err != nil:
		return stats, fmt.Errorf("service: load snapshot: %w", err)
	default:
		if err := snap.Restore(s.book); err != nil {
			return stats, err
		}
		stats.SnapshotSeq = snap.Seq
		stats.Restored = len(snap.Orders)
		s.log.Info("snapshot restored", zap.String("path", path), zap.Uint64("seq", snap.Seq), zap.Int("orders", stats.Restored))
	}

	lastSeq, err := entrywal.Replay(walDir, stats.SnapshotSeq, func(rec *entrywal.Record) error {
		applied, err := s.apply(rec)
		if err != nil {
			return err
		}
		stats.Replayed++
		if !applied {
			stats.Rejected++
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("service: replay: %w", err)
	}

	stats.LastSeq = max(lastSeq, stats.SnapshotSeq, s.entryWAL.LastSeq())
	s.seqGen.Reset(stats.LastSeq)
	s.updateBookGauges()

	s.log.Info("recovery completed",
		zap.Uint64("snapshot_seq", stats.SnapshotSeq),
		zap.Int("restored", stats.Restored),
		zap.Int("replayed", stats.Replayed),
		zap.Int("rejected", stats.Rejected),
		zap.Uint64("last_seq", stats.LastSeq),
	)
	return stats, nil
}

// loadSnapshot returns the newest snapshot that loads. An older one is
// only used while the WAL still holds every record after it; otherwise
// the newest load error is returned.
func (s *OrderService) loadSnapshot(snapshotDir, walDir string) (*snapshot.Snapshot, string, error) {
	paths, err := snapshot.List(snapshotDir)
	if err != nil {
		return nil, "", err
	}
	if len(paths) == 0 {
		return nil, "", snapshot.ErrNoSnapshot
	}

	var newestErr error
	for i := len(paths) - 1; i >= 0; i-- {
		snap, err := snapshot.Load(paths[i])
		if err != nil {
			s.log.Warn("skipping unreadable snapshot", zap.String("path", paths[i]), zap.Error(err))
			if newestErr == nil {
				newestErr = err
			}
			continue
		}
		if newestErr == nil {
			return snap, paths[i], nil
		}

		first, err := entrywal.FirstSeq(walDir)
		if err != nil {
			return nil, "", err
		}
		if first == 0 || first > snap.Seq+1 {
			s.log.Warn("older snapshot not covered by wal",
				zap.String("path", paths[i]), zap.Uint64("seq", snap.Seq), zap.Uint64("wal_first_seq", first))
			continue
		}
		s.log.Warn("recovering from older snapshot", zap.String("path", paths[i]), zap.Uint64("seq", snap.Seq))
		return snap, paths[i], nil
	}
	return nil, paths[len(paths)-1], newestErr
}

// apply replays one WAL record against the book. A command the book
// refuses is reported, not returned: it was refused the first time too.
func (s *OrderService) apply(rec *entrywal.Record) (bool, error) {
	var err error
	switch rec.Type {
	case entrywal.RecordPlace:
		cmd, derr := UnmarshalPlace(rec.Data)
		if derr != nil {
			return false, fmt.Errorf("seq %d: %w", rec.Seq, derr)
		}
		_, err = s.book.Submit(cmd.Order())

	case entrywal.RecordCancel:
		cmd, derr := UnmarshalCancel(rec.Data)
		if derr != nil {
			return false, fmt.Errorf("seq %d: %w", rec.Seq, derr)
		}
		err = s.book.Cancel(cmd.ID)

	default:
		return false, fmt.Errorf("seq %d: unknown record type %d", rec.Seq, rec.Type)
	}

	if errors.Is(err, orderbook.ErrPriceLevelNotFound) {
		return false, fmt.Errorf("seq %d: %w", rec.Seq, err)
	}
	if err != nil {
		s.log.Debug("replayed command refused", zap.Uint64("seq", rec.Seq), zap.Stringer("type", rec.Type), zap.Error(err))
		return false, nil
	}
	return true, nil
}
