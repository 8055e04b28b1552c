package storage

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/rl1809/nft-market/internal/clock"
	"github.com/rl1809/nft-market/internal/core/domain"
	"github.com/rl1809/nft-market/internal/core/ledger"
	"github.com/rl1809/nft-market/internal/port"
)

var testFee = domain.MustParseAmount("0.025")

func openLedger(t *testing.T, j port.Journal) *ledger.Ledger {
	t.Helper()
	l, err := ledger.New(ledger.Config{
		EscrowIdentity: "market",
		TreasuryOwner:  "owner",
		ListingFee:     testFee,
	}, j, ledger.WithClock(clock.Fake(baseTime)))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return l
}

func listItems(t *testing.T, l *ledger.Ledger, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := l.CreateListing(context.Background(), domain.Listing{
			AssetContract: "0xabc",
			TokenID:       "tok",
			Seller:        "alice",
			Price:         domain.MustParseAmount("1"),
		}, testFee)
		if err != nil {
			t.Fatalf("list %d: %v", i, err)
		}
	}
}

func TestLedger_RecoverFromFileJournalAndSnapshot(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	j, err := OpenFileJournal(WALConfig{Dir: dir + "/wal", NoSync: true})
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	snapshots, err := NewFileSnapshotStore(dir + "/snap")
	if err != nil {
		t.Fatalf("open snapshots: %v", err)
	}

	l := openLedger(t, j)
	listItems(t, l, 3)
	if _, err := l.SettleSale(ctx, 2, domain.MustParseAmount("1"), "bob"); err != nil {
		t.Fatalf("settle: %v", err)
	}

	state := l.Snapshot()
	if err := snapshots.Save(ctx, state); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	if err := j.TruncateBefore(ctx, state.Seq); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	// events after the snapshot live only in the journal
	listItems(t, l, 1)
	if _, err := l.SettleSale(ctx, 1, domain.MustParseAmount("1"), "carol"); err != nil {
		t.Fatalf("settle: %v", err)
	}
	j.Close()

	j, err = OpenFileJournal(WALConfig{Dir: dir + "/wal", NoSync: true})
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	defer j.Close()

	loaded, err := snapshots.Load(ctx)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	recovered := openLedger(t, j)
	replayed, err := recovered.Recover(ctx, loaded)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if replayed != 2 {
		t.Errorf("expected 2 replayed events, got %d", replayed)
	}

	if recovered.Count() != 4 {
		t.Errorf("expected 4 items, got %d", recovered.Count())
	}
	active := recovered.FetchActiveItems()
	if len(active) != 2 || active[0].ID != 3 || active[1].ID != 4 {
		t.Errorf("unexpected active items %+v", active)
	}
	if got := recovered.Proceeds("alice"); got != domain.MustParseAmount("2") {
		t.Errorf("expected proceeds 2, got %s", got)
	}
	if got := recovered.TreasuryBalance(); got != 4*testFee {
		t.Errorf("expected treasury %s, got %s", 4*testFee, got)
	}

	item, err := recovered.GetItem(1)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.Owner != "carol" || !item.Sold() {
		t.Errorf("expected item 1 sold to carol, got %+v", item)
	}

	// new writes continue the sequence
	listItems(t, recovered, 1)
	if recovered.LastSeq() != 7 {
		t.Errorf("expected last seq 7, got %d", recovered.LastSeq())
	}
}

func TestLedger_RecoverFromPebble(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	j, err := OpenPebbleJournal(dir, true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	l := openLedger(t, j)
	listItems(t, l, 2)
	l.SettleSale(ctx, 1, domain.MustParseAmount("1"), "bob")
	j.Close()

	j, err = OpenPebbleJournal(dir, true)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()

	recovered := openLedger(t, j)
	if _, err := recovered.Recover(ctx, nil); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if _, err := recovered.SettleSale(ctx, 1, domain.MustParseAmount("1"), "carol"); err == nil {
		t.Error("expected item 1 to stay sold after recovery")
	}
	if len(recovered.FetchActiveItems()) != 1 {
		t.Errorf("expected 1 active item")
	}
}

func TestLedger_RecoverRejectsWipedJournal(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	j, err := OpenFileJournal(WALConfig{Dir: dir + "/wal", NoSync: true})
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	snapshots, err := NewFileSnapshotStore(dir + "/snap")
	if err != nil {
		t.Fatalf("open snapshots: %v", err)
	}

	l := openLedger(t, j)
	listItems(t, l, 3)
	if err := snapshots.Save(ctx, l.Snapshot()); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	j.Close()

	if err := os.RemoveAll(dir + "/wal"); err != nil {
		t.Fatalf("remove wal: %v", err)
	}
	j, err = OpenFileJournal(WALConfig{Dir: dir + "/wal", NoSync: true})
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	defer j.Close()

	loaded, err := snapshots.Load(ctx)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	_, err = openLedger(t, j).Recover(ctx, loaded)
	if !errors.Is(err, ledger.ErrJournalBehind) {
		t.Fatalf("expected ErrJournalBehind, got %v", err)
	}
}

func TestLedger_RecoverAfterPebbleTruncation(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	j, err := OpenPebbleJournal(dir, true)
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	l := openLedger(t, j)
	listItems(t, l, 3)
	state := l.Snapshot()
	if err := j.TruncateBefore(ctx, state.Seq); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	j.Close()

	j, err = OpenPebbleJournal(dir, true)
	if err != nil {
		t.Fatalf("reopen pebble: %v", err)
	}
	defer j.Close()

	if j.LastSeq() != state.Seq {
		t.Fatalf("expected last seq %d after truncation, got %d", state.Seq, j.LastSeq())
	}
	recovered := openLedger(t, j)
	if _, err := recovered.Recover(ctx, &state); err != nil {
		t.Fatalf("recover: %v", err)
	}
	listItems(t, recovered, 1)
	if recovered.LastSeq() != state.Seq+1 {
		t.Errorf("expected last seq %d, got %d", state.Seq+1, recovered.LastSeq())
	}
}
