// Package sequence hands out the command sequence numbers written to the
// entry WAL.
package sequence

import "sync/atomic"

// Sequencer issues strictly increasing command sequence numbers. The
// first call to Next after New(n) or Reset(n) returns n+1.
type Sequencer struct {
	last atomic.Uint64
}

func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(start)
	return s
}

// Next reserves and returns the next sequence number.
func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current returns the last issued sequence number.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}

// Reset moves the sequencer to v. Recovery calls it with the last
// replayed sequence before the service accepts commands.
func (s *Sequencer) Reset(v uint64) {
	s.last.Store(v)
}
