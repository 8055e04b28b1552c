package events

import (
	"context"
	"log/slog"

	"github.com/rl1809/nft-market/internal/core/domain"
)

// LogPublisher writes events to a logger instead of a broker.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, ev domain.Event) error {
	m := NewMessage(ev)
	p.logger.LogAttrs(ctx, slog.LevelInfo, "ledger event",
		slog.String("type", m.Type),
		slog.Uint64("seq", m.Seq),
		slog.Uint64("item_id", m.ItemID),
		slog.String("account", m.Account),
		slog.String("amount", m.Amount),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.Event) error { return nil }

func (NopPublisher) Close() error { return nil }
