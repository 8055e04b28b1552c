package ledger

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/rl1809/nft-market/internal/core/domain"
)

func populate(t *testing.T, l *Ledger) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := l.CreateListing(ctx, listing("seller", oneUnit), fee); err != nil {
			t.Fatalf("CreateListing failed: %v", err)
		}
	}
	if _, err := l.SettleSale(ctx, 2, oneUnit, "buyer"); err != nil {
		t.Fatalf("SettleSale failed: %v", err)
	}
	if _, err := l.SettleSale(ctx, 4, oneUnit, "buyer"); err != nil {
		t.Fatalf("SettleSale failed: %v", err)
	}
	if err := l.WithdrawTreasury(ctx, ownerID, fee, ownerID); err != nil {
		t.Fatalf("WithdrawTreasury failed: %v", err)
	}
	if err := l.WithdrawProceeds(ctx, "seller", oneUnit); err != nil {
		t.Fatalf("WithdrawProceeds failed: %v", err)
	}
}

func TestRecover_FromJournal(t *testing.T) {
	j := &mockJournal{}
	original := newTestLedger(t, j)
	populate(t, original)

	restored := newTestLedger(t, j)
	replayed, err := restored.Recover(context.Background(), nil)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if replayed != 9 {
		t.Errorf("expected 9 replayed events, got %d", replayed)
	}

	if !reflect.DeepEqual(original.Snapshot(), restored.Snapshot()) {
		t.Errorf("state differs after recovery:\n%+v\n%+v", original.Snapshot(), restored.Snapshot())
	}
	if !reflect.DeepEqual(original.FetchActiveItems(), restored.FetchActiveItems()) {
		t.Error("active items differ after recovery")
	}

	// new ids continue after the recovered ones
	id, err := restored.CreateListing(context.Background(), listing("seller", oneUnit), fee)
	if err != nil {
		t.Fatalf("CreateListing after recovery failed: %v", err)
	}
	if id != 6 {
		t.Errorf("expected id 6, got %d", id)
	}
}

func TestRecover_FromSnapshotAndTail(t *testing.T) {
	ctx := context.Background()
	j := &mockJournal{}
	original := newTestLedger(t, j)
	populate(t, original)

	snap := original.Snapshot()

	id, _ := original.CreateListing(ctx, listing("late", 3*oneUnit), fee)
	if _, err := original.SettleSale(ctx, 1, oneUnit, "late-buyer"); err != nil {
		t.Fatalf("SettleSale failed: %v", err)
	}

	restored := newTestLedger(t, j)
	replayed, err := restored.Recover(ctx, &snap)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if replayed != 2 {
		t.Errorf("expected 2 tail events, got %d", replayed)
	}
	if !reflect.DeepEqual(original.Snapshot(), restored.Snapshot()) {
		t.Errorf("state differs after recovery")
	}

	item, err := restored.GetItem(id)
	if err != nil || item.Seller != "late" {
		t.Errorf("expected tail listing to be recovered, got %+v, %v", item, err)
	}
}

func TestRecover_RejectsUsedLedger(t *testing.T) {
	j := &mockJournal{}
	l := newTestLedger(t, j)
	populate(t, l)

	if _, err := l.Recover(context.Background(), nil); err == nil {
		t.Error("expected error recovering a ledger with state")
	}
}

func TestRecover_CorruptJournal(t *testing.T) {
	j := &mockJournal{events: []domain.Event{
		{Seq: 1, Type: domain.EventSaleSettled, ItemID: 1, Account: "buyer", Amount: oneUnit},
	}}
	l := newTestLedger(t, j)

	_, err := l.Recover(context.Background(), nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for sale of unknown item, got %v", err)
	}
}

func TestRecover_BadSnapshot(t *testing.T) {
	l := newTestLedger(t, &mockJournal{})
	snap := &domain.LedgerState{
		Items: []domain.ItemRecord{{ID: 2, Seller: "s", Price: oneUnit, State: domain.ItemListed}},
	}
	if _, err := l.Recover(context.Background(), snap); err == nil {
		t.Error("expected error for snapshot with id gap")
	}
}

func TestRecover_JournalBehindSnapshot(t *testing.T) {
	ctx := context.Background()
	original := newTestLedger(t, &mockJournal{})
	populate(t, original)
	snap := original.Snapshot()

	// journal directory wiped, snapshot kept
	l := newTestLedger(t, &mockJournal{})
	_, err := l.Recover(ctx, &snap)
	if !errors.Is(err, ErrJournalBehind) {
		t.Fatalf("expected ErrJournalBehind, got %v", err)
	}
	if l.Count() != 0 || l.LastSeq() != 0 {
		t.Errorf("expected untouched ledger, got %d items at seq %d", l.Count(), l.LastSeq())
	}
}

// restartedJournal reports a last seq it no longer numbers from, as a
// journal that lost its tail after the snapshot was taken.
type restartedJournal struct {
	*mockJournal
	reported uint64
}

func (j *restartedJournal) LastSeq() uint64 { return j.reported }

func TestCommit_RejectsSeqAtOrBelowLedger(t *testing.T) {
	ctx := context.Background()
	original := newTestLedger(t, &mockJournal{})
	for i := 0; i < 3; i++ {
		if _, err := original.CreateListing(ctx, listing("seller", oneUnit), fee); err != nil {
			t.Fatalf("CreateListing failed: %v", err)
		}
	}
	snap := original.Snapshot()

	j := &restartedJournal{mockJournal: &mockJournal{}, reported: snap.Seq}
	l, err := New(Config{EscrowIdentity: escrowID, TreasuryOwner: ownerID, ListingFee: fee}, j)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := l.Recover(ctx, &snap); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	_, err = l.CreateListing(ctx, listing("seller", oneUnit), fee)
	if !errors.Is(err, ErrJournalBehind) {
		t.Fatalf("expected ErrJournalBehind, got %v", err)
	}
	if l.Count() != 3 {
		t.Errorf("expected 3 items, got %d", l.Count())
	}
	if l.LastSeq() != snap.Seq {
		t.Errorf("expected seq to stay %d, got %d", snap.Seq, l.LastSeq())
	}
	if l.TreasuryBalance() != 3*fee {
		t.Errorf("expected treasury %s, got %s", 3*fee, l.TreasuryBalance())
	}
}
