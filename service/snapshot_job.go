package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"matchbook/snapshot"
)

// TakeSnapshot captures the book under the command lock, writes it
// without holding the lock, then drops the WAL segments older than every
// retained snapshot and the acked outbox records.
func (s *OrderService) TakeSnapshot(w *snapshot.Writer) (string, error) {
	s.mu.Lock()
	snap := snapshot.Capture(s.seqGen.Current(), s.book)
	s.mu.Unlock()

	path, err := w.Write(snap)
	if err != nil {
		return "", fmt.Errorf("service: write snapshot: %w", err)
	}
	s.metrics.SnapshotsTaken.Inc()

	floor := retainedFloor(w.Dir, snap.Seq)
	if err := s.entryWAL.TruncateBefore(floor); err != nil {
		s.log.Warn("wal truncation failed", zap.Uint64("seq", floor), zap.Error(err))
	}
	if s.exitWAL != nil {
		if _, err := s.exitWAL.DeleteAcked(); err != nil {
			s.log.Warn("outbox cleanup failed", zap.Error(err))
		}
	}
	s.log.Info("snapshot written", zap.String("path", path), zap.Uint64("seq", snap.Seq), zap.Int("orders", len(snap.Orders)))
	return path, nil
}

// retainedFloor is the sequence of the oldest snapshot still on disk. The
// WAL keeps everything after it so recovery can fall back that far.
func retainedFloor(dir string, newest uint64) uint64 {
	paths, err := snapshot.List(dir)
	if err != nil || len(paths) == 0 {
		return newest
	}
	if seq, ok := snapshot.SeqOf(paths[0]); ok && seq < newest {
		return seq
	}
	return newest
}

// StartSnapshotJob snapshots every interval until ctx is done. The
// returned channel is closed once the job has stopped.
func (s *OrderService) StartSnapshotJob(ctx context.Context, w *snapshot.Writer, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if _, err := s.TakeSnapshot(w); err != nil {
					s.log.Error("snapshot failed", zap.Error(err))
				}
			}
		}
	}()
	return done
}
