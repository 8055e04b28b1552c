package storage

import "sync/atomic"

// sequencer hands out strictly increasing journal sequence numbers.
// After replay it is reset to the last sequence found on disk.
type sequencer struct {
	next atomic.Uint64
}

func (s *sequencer) Next() uint64 {
	return s.next.Add(1)
}

func (s *sequencer) Current() uint64 {
	return s.next.Load()
}

func (s *sequencer) Reset(v uint64) {
	s.next.Store(v)
}
