package ledger

import (
	"slices"

	"github.com/rl1809/nft-market/internal/core/domain"
)

// activeIndex is the sorted set of unsold item ids. It is updated in the
// same critical section that flips an item to sold, so a query never needs
// to scan sold history.
type activeIndex struct {
	ids []domain.ItemID
}

func newActiveIndex() *activeIndex {
	return &activeIndex{}
}

func (a *activeIndex) add(id domain.ItemID) {
	// ids are allocated in increasing order, so this is almost always an append
	if n := len(a.ids); n == 0 || a.ids[n-1] < id {
		a.ids = append(a.ids, id)
		return
	}
	i, found := slices.BinarySearch(a.ids, id)
	if !found {
		a.ids = slices.Insert(a.ids, i, id)
	}
}

func (a *activeIndex) remove(id domain.ItemID) {
	if i, found := slices.BinarySearch(a.ids, id); found {
		a.ids = slices.Delete(a.ids, i, i+1)
	}
}

func (a *activeIndex) len() int {
	return len(a.ids)
}

// FetchActiveItems returns every unsold item in ascending id order.
func (l *Ledger) FetchActiveItems() []domain.Item {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Item, 0, l.active.len())
	for _, id := range l.active.ids {
		rec, _ := l.registry.get(id)
		out = append(out, rec.view(l.escrow.identity))
	}
	return out
}

// FetchOwnedItems returns the items owner has bought, ascending by id.
func (l *Ledger) FetchOwnedItems(owner domain.Identity) []domain.Item {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := slices.Clone(l.registry.byOwner[owner])
	slices.Sort(ids)
	return l.viewsLocked(ids)
}

// FetchSellerItems returns every item seller has listed, sold or not.
func (l *Ledger) FetchSellerItems(seller domain.Identity) []domain.Item {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.viewsLocked(l.registry.bySeller[seller])
}

func (l *Ledger) viewsLocked(ids []domain.ItemID) []domain.Item {
	out := make([]domain.Item, 0, len(ids))
	for _, id := range ids {
		if rec, ok := l.registry.get(id); ok {
			out = append(out, rec.view(l.escrow.identity))
		}
	}
	return out
}
