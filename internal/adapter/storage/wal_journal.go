package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rl1809/nft-market/internal/core/domain"
)

const defaultSegmentSize = 4 << 20

var ErrJournalClosed = errors.New("journal closed")

type WALConfig struct {
	Dir         string
	SegmentSize int64

	// NoSync skips the fsync after each append. Only for tests and
	// throwaway runs: an acknowledged event may be lost on power failure.
	NoSync bool
}

// FileJournal is an append-only journal made of size-rotated segment
// files. Each append is a CRC-protected frame holding one CBOR-encoded
// event.
type FileJournal struct {
	mu      sync.Mutex
	dir     string
	segSize int64
	sync    bool
	current *segment
	seq     sequencer
	closed  bool
}

func OpenFileJournal(cfg WALConfig) (*FileJournal, error) {
	if cfg.Dir == "" {
		return nil, errors.New("wal: directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: create dir: %w", err)
	}
	segSize := cfg.SegmentSize
	if segSize <= 0 {
		segSize = defaultSegmentSize
	}

	indexes, err := listSegments(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("wal: list segments: %w", err)
	}

	var lastSeq uint64
	for i, idx := range indexes {
		path := segmentPath(cfg.Dir, idx)
		validSize, err := forEachFrame(path, func(rec walRecord) error {
			if rec.Seq <= lastSeq {
				return fmt.Errorf("non-monotonic seq %d after %d", rec.Seq, lastSeq)
			}
			lastSeq = rec.Seq
			return nil
		})
		if err == nil {
			continue
		}
		// A crash in the middle of an append leaves a short frame at the
		// very end of the newest segment. Cut it off.
		if i == len(indexes)-1 && errors.Is(err, io.ErrUnexpectedEOF) {
			if err := os.Truncate(path, validSize); err != nil {
				return nil, fmt.Errorf("wal: truncate torn tail of segment %d: %w", idx, err)
			}
			continue
		}
		return nil, fmt.Errorf("wal: segment %d: %w", idx, err)
	}

	openIdx := 0
	if len(indexes) > 0 {
		openIdx = indexes[len(indexes)-1]
	}
	seg, err := openSegment(cfg.Dir, openIdx)
	if err != nil {
		return nil, fmt.Errorf("wal: open segment %d: %w", openIdx, err)
	}

	j := &FileJournal{
		dir:     cfg.Dir,
		segSize: segSize,
		sync:    !cfg.NoSync,
		current: seg,
	}
	j.seq.Reset(lastSeq)
	if seg.offset >= segSize {
		_ = j.rotateLocked()
	}
	return j, nil
}

func (j *FileJournal) Append(ctx context.Context, ev domain.Event) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return 0, ErrJournalClosed
	}

	seq := j.seq.Current() + 1
	ev.Seq = seq
	payload, err := encodeEvent(ev)
	if err != nil {
		return 0, fmt.Errorf("wal: encode seq %d: %w", seq, err)
	}

	frame := encodeFrame(walRecord{
		Type: ev.Type,
		Seq:  seq,
		Time: ev.At.UnixNano(),
		Data: payload,
	})
	if err := j.current.append(frame, j.sync); err != nil {
		return 0, fmt.Errorf("wal: append seq %d: %w", seq, err)
	}
	j.seq.Next()

	// The event is durable at this point. A failed rotation keeps writing
	// into the current segment and is retried on the next append.
	if j.current.offset >= j.segSize {
		_ = j.rotateLocked()
	}
	return seq, nil
}

func (j *FileJournal) rotateLocked() error {
	next, err := openSegment(j.dir, j.current.index+1)
	if err != nil {
		return err
	}
	_ = j.current.close()
	j.current = next
	return nil
}

func (j *FileJournal) Replay(ctx context.Context, afterSeq uint64, fn func(domain.Event) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	indexes, err := listSegments(j.dir)
	if err != nil {
		return fmt.Errorf("wal: list segments: %w", err)
	}

	var prev uint64
	for _, idx := range indexes {
		_, err := forEachFrame(segmentPath(j.dir, idx), func(rec walRecord) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if rec.Seq <= prev {
				return fmt.Errorf("non-monotonic seq %d after %d", rec.Seq, prev)
			}
			prev = rec.Seq
			if rec.Seq <= afterSeq {
				return nil
			}

			ev, err := decodeEvent(rec.Data)
			if err != nil {
				return fmt.Errorf("decode seq %d: %w", rec.Seq, err)
			}
			ev.Seq = rec.Seq
			return fn(ev)
		})
		if err != nil {
			return fmt.Errorf("wal: replay segment %d: %w", idx, err)
		}
	}
	return nil
}

// TruncateBefore deletes closed segments whose every event has
// Seq <= seq. The segment being written is never removed, and neither is
// the newest segment holding records, which carries the sequence forward
// across restarts.
func (j *FileJournal) TruncateBefore(ctx context.Context, seq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	indexes, err := listSegments(j.dir)
	if err != nil {
		return err
	}

	limit := j.current.index
	if j.current.offset == 0 {
		limit--
	}
	for _, idx := range indexes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if idx >= limit {
			break
		}
		path := segmentPath(j.dir, idx)

		var maxSeq uint64
		if _, err := forEachFrame(path, func(rec walRecord) error {
			maxSeq = rec.Seq
			return nil
		}); err != nil {
			return fmt.Errorf("wal: scan segment %d: %w", idx, err)
		}
		if maxSeq > seq {
			// later segments only hold larger sequences
			break
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("wal: remove segment %d: %w", idx, err)
		}
	}
	return nil
}

// LastSeq returns the sequence of the newest durable event.
func (j *FileJournal) LastSeq() uint64 {
	return j.seq.Current()
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	return j.current.close()
}

// forEachFrame calls fn for each frame in the segment at path and returns
// the byte size of the well-formed prefix it read.
func forEachFrame(path string, fn func(walRecord) error) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var valid int64
	for {
		rec, n, err := readFrame(r)
		if err == io.EOF {
			return valid, nil
		}
		if err != nil {
			return valid, err
		}
		if err := fn(rec); err != nil {
			return valid, err
		}
		valid += n
	}
}
