package handler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/rl1809/nft-market/internal/adapter/storage"
	"github.com/rl1809/nft-market/internal/clock"
	"github.com/rl1809/nft-market/internal/core/domain"
	"github.com/rl1809/nft-market/internal/core/ledger"
	"github.com/rl1809/nft-market/internal/core/service"
)

// Mock Journal
type mockJournal struct {
	mu     sync.Mutex
	events []domain.Event
}

func (m *mockJournal) Append(ctx context.Context, event domain.Event) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.Seq = uint64(len(m.events) + 1)
	m.events = append(m.events, event)
	return event.Seq, nil
}

func (m *mockJournal) Replay(ctx context.Context, afterSeq uint64, fn func(domain.Event) error) error {
	return nil
}

func (m *mockJournal) LastSeq() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.events))
}

func (m *mockJournal) Close() error { return nil }

var (
	testFee   = domain.MustParseAmount("0.025")
	testPrice = domain.MustParseAmount("1.5")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) *service.MarketService {
	t.Helper()
	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	l, err := ledger.New(ledger.Config{
		EscrowIdentity: "market",
		TreasuryOwner:  "owner",
		ListingFee:     testFee,
	}, &mockJournal{}, ledger.WithClock(clk))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	svc := service.NewMarketService(l, storage.NewMemoryCache(clk, time.Hour), 1000, discardLogger())
	t.Cleanup(svc.Close)
	go func() {
		for range svc.Events() {
		}
	}()
	return svc
}

func seedListing(t *testing.T, svc *service.MarketService, seller string) domain.Item {
	t.Helper()
	item, err := svc.CreateListing(context.Background(), domain.Listing{
		AssetContract: "0xabc",
		TokenID:       "42",
		Seller:        domain.Identity(seller),
		Price:         testPrice,
	}, testFee)
	if err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	return item
}
