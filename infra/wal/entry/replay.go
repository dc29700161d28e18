package entry

import (
	"errors"
	"fmt"
)

type ReplayHandler func(*Record) error

// Replay feeds every record with a sequence above after to fn, oldest
// first, and returns the highest sequence seen in the log. A torn frame
// at the end of the newest segment marks the end of the log; damage
// anywhere else is an error.
func Replay(dir string, after uint64, fn ReplayHandler) (lastSeq uint64, err error) {
	segs, err := listSegments(dir)
	if err != nil {
		return 0, err
	}

	for i, s := range segs {
		_, err := scanSegment(s.path, func(rec *Record) error {
			if rec.Seq <= lastSeq {
				return fmt.Errorf("%w: sequence %d after %d", ErrCorruptRecord, rec.Seq, lastSeq)
			}
			lastSeq = rec.Seq
			if rec.Seq <= after {
				return nil
			}
			return fn(rec)
		})
		if errors.Is(err, errTornTail) && i == len(segs)-1 {
			break
		}
		if err != nil {
			return lastSeq, fmt.Errorf("replay %s: %w", s.path, err)
		}
	}
	return lastSeq, nil
}

var errStopScan = errors.New("stop scan")

// FirstSeq returns the oldest sequence still in the log, or 0 when the
// log holds no records.
func FirstSeq(dir string) (uint64, error) {
	segs, err := listSegments(dir)
	if err != nil {
		return 0, err
	}
	for _, s := range segs {
		var first uint64
		_, err := scanSegment(s.path, func(rec *Record) error {
			first = rec.Seq
			return errStopScan
		})
		if first > 0 {
			return first, nil
		}
		if err != nil && !errors.Is(err, errTornTail) {
			return 0, fmt.Errorf("first seq %s: %w", s.path, err)
		}
	}
	return 0, nil
}
