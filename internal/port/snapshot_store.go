package port

import (
	"context"

	"github.com/rl1809/nft-market/internal/core/domain"
)

type SnapshotStore interface {
	// Save persists state, replacing any previous snapshot
	Save(ctx context.Context, state domain.LedgerState) error

	// Load returns the latest snapshot, or nil if none was saved
	Load(ctx context.Context) (*domain.LedgerState, error)
}
