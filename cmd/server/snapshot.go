package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rl1809/nft-market/internal/core/ledger"
	"github.com/rl1809/nft-market/internal/port"
)

// snapshotter periodically persists ledger state and trims the journal
// behind it.
type snapshotter struct {
	ledger  *ledger.Ledger
	store   port.SnapshotStore
	journal port.Journal
	logger  *slog.Logger

	mu      sync.Mutex
	lastSeq uint64
}

func newSnapshotter(l *ledger.Ledger, store port.SnapshotStore, journal port.Journal, logger *slog.Logger) *snapshotter {
	return &snapshotter{ledger: l, store: store, journal: journal, logger: logger, lastSeq: l.LastSeq()}
}

func (s *snapshotter) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.take(ctx); err != nil {
				s.logger.Error("snapshot failed", "error", err)
			}
		}
	}
}

// take saves a snapshot if anything was committed since the last one.
func (s *snapshotter) take(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ledger.LastSeq() == s.lastSeq {
		return nil
	}

	state := s.ledger.Snapshot()
	if err := s.store.Save(ctx, state); err != nil {
		return fmt.Errorf("save snapshot seq %d: %w", state.Seq, err)
	}
	s.lastSeq = state.Seq

	if t, ok := s.journal.(port.Truncater); ok {
		if err := t.TruncateBefore(ctx, state.Seq); err != nil {
			return fmt.Errorf("truncate journal to seq %d: %w", state.Seq, err)
		}
	}
	s.logger.Info("snapshot saved", "seq", state.Seq, "items", len(state.Items))
	return nil
}
