package ledger

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/rl1809/nft-market/internal/core/domain"
)

// Snapshot copies the full ledger state. The copy is consistent with
// LastSeq: every event up to Seq is reflected and none after it.
func (l *Ledger) Snapshot() domain.LedgerState {
	l.mu.RLock()
	defer l.mu.RUnlock()

	state := domain.LedgerState{
		Seq:               l.lastSeq,
		ListingFee:        l.treasury.fee,
		TreasuryBalance:   l.treasury.balance,
		TreasuryCollected: l.treasury.collected,
		Items:             make([]domain.ItemRecord, 0, len(l.registry.items)),
		Proceeds:          maps.Clone(l.escrow.proceeds),
		TakenAt:           l.clock.Now(),
	}
	for _, rec := range l.registry.items {
		state.Items = append(state.Items, domain.ItemRecord{
			ID:            rec.id,
			AssetContract: rec.assetContract,
			TokenID:       rec.tokenID,
			MetadataURI:   rec.metadataURI,
			Seller:        rec.seller,
			Buyer:         rec.buyer,
			Price:         rec.price,
			State:         rec.state,
			CreatedAt:     rec.createdAt,
			SoldAt:        rec.soldAt,
		})
	}
	return state
}

// Recover loads snapshot (if any) and replays the journal after it. It
// must run on a fresh ledger before it serves requests. It returns the
// number of journal events replayed.
func (l *Ledger) Recover(ctx context.Context, snapshot *domain.LedgerState) (int, error) {
	l.commitMu.Lock()
	defer l.commitMu.Unlock()
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.registry.items) != 0 || l.lastSeq != 0 {
		return 0, errors.New("ledger: recover on a ledger that already has state")
	}

	if snapshot != nil {
		if last := l.journal.LastSeq(); last < snapshot.Seq {
			return 0, fmt.Errorf("%w: snapshot at seq %d, journal ends at %d", ErrJournalBehind, snapshot.Seq, last)
		}
		if err := l.restoreLocked(*snapshot); err != nil {
			return 0, fmt.Errorf("restore snapshot seq %d: %w", snapshot.Seq, err)
		}
	}

	replayed := 0
	err := l.journal.Replay(ctx, l.lastSeq, func(ev domain.Event) error {
		if err := l.apply(ev); err != nil {
			return fmt.Errorf("replay seq %d (%s): %w", ev.Seq, ev.Type, err)
		}
		replayed++
		return nil
	})
	if err != nil {
		return replayed, err
	}
	return replayed, nil
}

func (l *Ledger) restoreLocked(state domain.LedgerState) error {
	reg := newRegistry()
	active := newActiveIndex()

	for i, item := range state.Items {
		if item.ID != domain.ItemID(i+1) {
			return fmt.Errorf("item %d at position %d breaks id sequence", item.ID, i)
		}
		if item.Price <= 0 {
			return fmt.Errorf("%w: item %d price %s", domain.ErrInvalidListing, item.ID, item.Price)
		}

		rec := newRecord(item.ID, domain.Listing{
			AssetContract: item.AssetContract,
			TokenID:       item.TokenID,
			MetadataURI:   item.MetadataURI,
			Seller:        item.Seller,
			Price:         item.Price,
		}, item.CreatedAt)
		reg.insert(rec)

		switch item.State {
		case domain.ItemListed:
			active.add(item.ID)
		case domain.ItemSold:
			if item.Buyer.IsZero() {
				return fmt.Errorf("sold item %d has no buyer", item.ID)
			}
			reg.markSold(rec, item.Buyer, item.SoldAt)
		default:
			return fmt.Errorf("item %d has state %s", item.ID, item.State)
		}
	}

	if state.TreasuryBalance < 0 || state.TreasuryBalance > state.TreasuryCollected {
		return fmt.Errorf("treasury balance %s outside [0, %s]", state.TreasuryBalance, state.TreasuryCollected)
	}

	proceeds := make(map[domain.Identity]domain.Amount, len(state.Proceeds))
	for seller, amount := range state.Proceeds {
		if amount < 0 {
			return fmt.Errorf("negative proceeds %s for %s", amount, seller)
		}
		if amount > 0 {
			proceeds[seller] = amount
		}
	}

	l.registry = reg
	l.active = active
	l.treasury.balance = state.TreasuryBalance
	l.treasury.collected = state.TreasuryCollected
	l.escrow.proceeds = proceeds
	l.lastSeq = state.Seq
	return nil
}
