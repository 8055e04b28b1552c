package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/rl1809/nft-market/internal/core/domain"
)

const (
	eventKeyPrefix = "event/"

	// lastSeqKey survives truncation so sequences never restart
	lastSeqKey = "meta/last_seq"
)

// PebbleJournal stores the journal in an embedded pebble database, one
// key per event. Keys are zero-padded so lexical order is sequence order.
type PebbleJournal struct {
	mu     sync.Mutex
	db     *pebble.DB
	sync   *pebble.WriteOptions
	seq    sequencer
	closed bool
}

func OpenPebbleJournal(dir string, noSync bool) (*PebbleJournal, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble: open %s: %w", dir, err)
	}

	j := &PebbleJournal{db: db, sync: pebble.Sync}
	if noSync {
		j.sync = pebble.NoSync
	}

	last, err := j.lastSeq()
	if err != nil {
		db.Close()
		return nil, err
	}
	j.seq.Reset(last)
	return j, nil
}

func (j *PebbleJournal) lastSeq() (uint64, error) {
	val, closer, err := j.db.Get([]byte(lastSeqKey))
	if err == nil {
		defer closer.Close()
		if len(val) != 8 {
			return 0, fmt.Errorf("pebble: bad %s value", lastSeqKey)
		}
		return binary.BigEndian.Uint64(val), nil
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return 0, err
	}

	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(eventKeyPrefix),
		UpperBound: []byte(eventKeyPrefix + "~"),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseEventKey(iter.Key())
}

func (j *PebbleJournal) Append(ctx context.Context, ev domain.Event) (uint64, error) {
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
		return 0, fmt.Errorf("pebble: encode seq %d: %w", seq, err)
	}
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)

	batch := j.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(eventKey(seq), payload, nil); err != nil {
		return 0, err
	}
	if err := batch.Set([]byte(lastSeqKey), seqBytes[:], nil); err != nil {
		return 0, err
	}
	if err := batch.Commit(j.sync); err != nil {
		return 0, fmt.Errorf("pebble: commit seq %d: %w", seq, err)
	}
	j.seq.Next()
	return seq, nil
}

// LastSeq returns the sequence of the newest committed event.
func (j *PebbleJournal) LastSeq() uint64 {
	return j.seq.Current()
}

func (j *PebbleJournal) Replay(ctx context.Context, afterSeq uint64, fn func(domain.Event) error) error {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: eventKey(afterSeq + 1),
		UpperBound: []byte(eventKeyPrefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}

		seq, err := parseEventKey(iter.Key())
		if err != nil {
			return err
		}
		ev, err := decodeEvent(iter.Value())
		if err != nil {
			return fmt.Errorf("pebble: decode seq %d: %w", seq, err)
		}
		ev.Seq = seq
		if err := fn(ev); err != nil {
			return err
		}
	}
	return iter.Error()
}

// TruncateBefore deletes every event with Seq <= seq.
func (j *PebbleJournal) TruncateBefore(ctx context.Context, seq uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return j.db.DeleteRange(eventKey(0), eventKey(seq+1), j.sync)
}

func (j *PebbleJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

func eventKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", eventKeyPrefix, seq))
}

func parseEventKey(b []byte) (uint64, error) {
	seq, err := strconv.ParseUint(string(bytes.TrimPrefix(b, []byte(eventKeyPrefix))), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("pebble: bad event key %q: %w", b, err)
	}
	return seq, nil
}
