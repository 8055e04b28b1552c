package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rl1809/nft-market/internal/core/domain"
	"github.com/rl1809/nft-market/internal/port"
)

var _ port.SnapshotStore = (*FileSnapshotStore)(nil)

func sampleState() domain.LedgerState {
	return domain.LedgerState{
		Seq:               9,
		ListingFee:        domain.MustParseAmount("0.025"),
		TreasuryBalance:   domain.MustParseAmount("0.05"),
		TreasuryCollected: domain.MustParseAmount("0.05"),
		Items: []domain.ItemRecord{
			{
				ID: 1, AssetContract: "0xabc", TokenID: "1", Seller: "alice", Buyer: "bob",
				Price: domain.MustParseAmount("2"), State: domain.ItemSold,
				CreatedAt: baseTime, SoldAt: baseTime.Add(time.Minute),
			},
			{
				ID: 2, AssetContract: "0xabc", TokenID: "2", MetadataURI: "ipfs://2", Seller: "alice",
				Price: domain.MustParseAmount("3.5"), State: domain.ItemListed,
				CreatedAt: baseTime,
			},
		},
		Proceeds: map[domain.Identity]domain.Amount{"alice": domain.MustParseAmount("2")},
		TakenAt:  baseTime.Add(2 * time.Minute),
	}
}

func TestSnapshotStore_MissingReturnsNil(t *testing.T) {
	store, err := NewFileSnapshotStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	state, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state != nil {
		t.Errorf("expected nil state, got %+v", state)
	}
}

func TestSnapshotStore_SaveLoad(t *testing.T) {
	store, err := NewFileSnapshotStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	want := sampleState()

	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got.Seq != want.Seq || got.TreasuryBalance != want.TreasuryBalance || got.ListingFee != want.ListingFee {
		t.Errorf("header fields differ: got %+v", got)
	}
	if len(got.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got.Items))
	}
	if got.Items[0].Buyer != "bob" || got.Items[0].State != domain.ItemSold {
		t.Errorf("unexpected first item %+v", got.Items[0])
	}
	if !got.Items[0].SoldAt.Equal(want.Items[0].SoldAt) {
		t.Errorf("sold_at %v, want %v", got.Items[0].SoldAt, want.Items[0].SoldAt)
	}
	if got.Items[1].MetadataURI != "ipfs://2" || got.Items[1].State != domain.ItemListed {
		t.Errorf("unexpected second item %+v", got.Items[1])
	}
	if got.Proceeds["alice"] != domain.MustParseAmount("2") {
		t.Errorf("unexpected proceeds %v", got.Proceeds)
	}
}

func TestSnapshotStore_OverwriteKeepsLatest(t *testing.T) {
	store, err := NewFileSnapshotStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	first := sampleState()
	second := sampleState()
	second.Seq = 42
	store.Save(ctx, first)
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Seq != 42 {
		t.Errorf("expected seq 42, got %d", got.Seq)
	}
}

func TestSnapshotStore_DetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileSnapshotStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	if err := store.Save(ctx, sampleState()); err != nil {
		t.Fatalf("save: %v", err)
	}

	path := filepath.Join(dir, snapshotFile)
	data, _ := os.ReadFile(path)
	data[len(data)-1] ^= 0x01
	os.WriteFile(path, data, 0o644)

	_, err = store.Load(ctx)
	if !errors.Is(err, ErrSnapshotCorrupt) {
		t.Errorf("expected ErrSnapshotCorrupt, got %v", err)
	}
}

func TestSnapshotStore_BadHeader(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileSnapshotStore(dir)
	os.WriteFile(filepath.Join(dir, snapshotFile), []byte("nope"), 0o644)

	_, err := store.Load(context.Background())
	if !errors.Is(err, ErrSnapshotCorrupt) {
		t.Errorf("expected ErrSnapshotCorrupt, got %v", err)
	}
}
