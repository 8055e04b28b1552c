package port

import (
	"context"

	"github.com/rl1809/nft-market/internal/core/domain"
)

type Journal interface {
	// Append durably stores event and returns its sequence number.
	// Sequence numbers are strictly increasing across appends.
	Append(ctx context.Context, event domain.Event) (uint64, error)

	// Replay calls fn for every event with Seq > afterSeq in sequence order
	Replay(ctx context.Context, afterSeq uint64, fn func(domain.Event) error) error

	// LastSeq returns the sequence of the newest stored event, or 0 for an
	// empty journal. It survives truncation.
	LastSeq() uint64

	Close() error
}

// Truncater is implemented by journals that can drop events already
// covered by a snapshot.
type Truncater interface {
	TruncateBefore(ctx context.Context, seq uint64) error
}
