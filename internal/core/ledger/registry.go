package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rl1809/nft-market/internal/core/domain"
)

type record struct {
	// settleMu is held for the whole settlement attempt on this item, so
	// two buyers racing for the same id are serialized.
	settleMu sync.Mutex

	id            domain.ItemID
	assetContract string
	tokenID       string
	metadataURI   string
	seller        domain.Identity
	price         domain.Amount
	createdAt     time.Time

	// mutable, guarded by Ledger.mu
	state  domain.ItemState
	buyer  domain.Identity
	soldAt time.Time
}

func newRecord(id domain.ItemID, listing domain.Listing, at time.Time) *record {
	return &record{
		id:            id,
		assetContract: listing.AssetContract,
		tokenID:       listing.TokenID,
		metadataURI:   listing.MetadataURI,
		seller:        listing.Seller,
		price:         listing.Price,
		createdAt:     at,
		state:         domain.ItemListed,
	}
}

func (r *record) view(escrow domain.Identity) domain.Item {
	owner := escrow
	if r.state == domain.ItemSold {
		owner = r.buyer
	}
	return domain.Item{
		ID:            r.id,
		AssetContract: r.assetContract,
		TokenID:       r.tokenID,
		MetadataURI:   r.metadataURI,
		Seller:        r.seller,
		Owner:         owner,
		Price:         r.price,
		State:         r.state,
		CreatedAt:     r.createdAt,
		SoldAt:        r.soldAt,
	}
}

// registry holds items densely: items[i] has id i+1. Ids are never
// reused and items are never removed.
type registry struct {
	items    []*record
	bySeller map[domain.Identity][]domain.ItemID
	byOwner  map[domain.Identity][]domain.ItemID
}

func newRegistry() *registry {
	return &registry{
		bySeller: make(map[domain.Identity][]domain.ItemID),
		byOwner:  make(map[domain.Identity][]domain.ItemID),
	}
}

func (r *registry) nextID() domain.ItemID {
	return domain.ItemID(len(r.items) + 1)
}

func (r *registry) get(id domain.ItemID) (*record, bool) {
	if id == 0 || uint64(id) > uint64(len(r.items)) {
		return nil, false
	}
	return r.items[id-1], true
}

func (r *registry) insert(rec *record) {
	r.items = append(r.items, rec)
	r.bySeller[rec.seller] = append(r.bySeller[rec.seller], rec.id)
}

func (r *registry) markSold(rec *record, buyer domain.Identity, at time.Time) {
	rec.state = domain.ItemSold
	rec.buyer = buyer
	rec.soldAt = at
	r.byOwner[buyer] = append(r.byOwner[buyer], rec.id)
}

// CreateListing registers a new item and collects feePaid into the
// treasury in the same journaled event. price must be positive and feePaid
// must equal the current listing fee exactly.
func (l *Ledger) CreateListing(ctx context.Context, listing domain.Listing, feePaid domain.Amount) (domain.ItemID, error) {
	if listing.Seller.IsZero() {
		return 0, fmt.Errorf("%w: seller is required", domain.ErrInvalidListing)
	}
	if listing.Price <= 0 {
		return 0, fmt.Errorf("%w: price %s must be positive", domain.ErrInvalidListing, listing.Price)
	}
	if fee := l.CurrentFee(); feePaid != fee {
		return 0, fmt.Errorf("%w: fee paid %s, listing fee is %s", domain.ErrInvalidListing, feePaid, fee)
	}

	l.commitMu.Lock()
	defer l.commitMu.Unlock()

	// nextID and collected only move under commitMu, which we hold.
	l.mu.RLock()
	id := l.registry.nextID()
	collected := l.treasury.collected
	l.mu.RUnlock()

	if _, ok := collected.AddChecked(feePaid); !ok {
		return 0, fmt.Errorf("%w: treasury collected %s plus fee %s", domain.ErrAmountOverflow, collected, feePaid)
	}

	ev := domain.Event{
		Type:    domain.EventListingCreated,
		At:      l.clock.Now(),
		ItemID:  id,
		Listing: &listing,
		Fee:     feePaid,
	}
	if err := l.commitLocked(ctx, &ev); err != nil {
		return 0, err
	}
	return id, nil
}

func (l *Ledger) GetItem(id domain.ItemID) (domain.Item, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.registry.get(id)
	if !ok {
		return domain.Item{}, fmt.Errorf("%w: %d", domain.ErrNotFound, id)
	}
	return rec.view(l.escrow.identity), nil
}

// Count returns the number of items ever listed, sold ones included.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.registry.items)
}
