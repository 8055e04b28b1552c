package ledger

import (
	"context"
	"fmt"

	"github.com/rl1809/nft-market/internal/core/domain"
)

// escrow holds sale proceeds owed to sellers.
type escrow struct {
	identity domain.Identity
	proceeds map[domain.Identity]domain.Amount
}

func newEscrow(identity domain.Identity) *escrow {
	return &escrow{
		identity: identity,
		proceeds: make(map[domain.Identity]domain.Amount),
	}
}

// credit adds amount to seller's proceeds. It fails, leaving the balance
// untouched, if the total would not fit in an Amount.
func (e *escrow) credit(seller domain.Identity, amount domain.Amount) error {
	total, ok := e.proceeds[seller].AddChecked(amount)
	if !ok {
		return fmt.Errorf("%w: proceeds of %s plus %s", domain.ErrAmountOverflow, seller, amount)
	}
	e.proceeds[seller] = total
	return nil
}

func (e *escrow) debit(seller domain.Identity, amount domain.Amount) error {
	if amount <= 0 {
		return fmt.Errorf("%w: withdrawal of %s", domain.ErrInvalidAmount, amount)
	}
	held := e.proceeds[seller]
	if amount > held {
		return fmt.Errorf("%w: %s holds %s, requested %s", domain.ErrInsufficientBalance, seller, held, amount)
	}
	if held == amount {
		delete(e.proceeds, seller)
		return nil
	}
	e.proceeds[seller] = held - amount
	return nil
}

// SettleSale exchanges payment for ownership of item id. On success the
// seller's proceeds grow by the price, the buyer becomes owner, and the
// item leaves the active index, all in one journaled event. Concurrent
// calls for the same id are serialized; every call after the first
// success fails with ErrAlreadySold.
func (l *Ledger) SettleSale(ctx context.Context, id domain.ItemID, payment domain.Amount, buyer domain.Identity) (domain.Receipt, error) {
	if buyer.IsZero() {
		return domain.Receipt{}, fmt.Errorf("%w: buyer", domain.ErrMissingIdentity)
	}

	l.mu.RLock()
	rec, ok := l.registry.get(id)
	l.mu.RUnlock()
	if !ok {
		return domain.Receipt{}, fmt.Errorf("%w: %d", domain.ErrNotFound, id)
	}

	rec.settleMu.Lock()
	defer rec.settleMu.Unlock()

	l.mu.RLock()
	state, price, seller := rec.state, rec.price, rec.seller
	l.mu.RUnlock()

	if state == domain.ItemSold {
		return domain.Receipt{}, fmt.Errorf("%w: %d", domain.ErrAlreadySold, id)
	}
	if payment != price {
		return domain.Receipt{}, fmt.Errorf("%w: paid %s, price %s", domain.ErrPaymentMismatch, payment, price)
	}

	l.commitMu.Lock()
	defer l.commitMu.Unlock()

	// proceeds only move under commitMu, which we hold
	if _, ok := l.Proceeds(seller).AddChecked(payment); !ok {
		return domain.Receipt{}, fmt.Errorf("%w: proceeds of %s plus %s", domain.ErrAmountOverflow, seller, payment)
	}

	ev := domain.Event{
		Type:      domain.EventSaleSettled,
		At:        l.clock.Now(),
		ItemID:    id,
		Account:   buyer,
		Amount:    payment,
		ReceiptID: l.newReceiptID(),
	}
	if err := l.commitLocked(ctx, &ev); err != nil {
		return domain.Receipt{}, err
	}

	return domain.Receipt{
		ID:        ev.ReceiptID,
		ItemID:    id,
		Buyer:     buyer,
		Seller:    seller,
		Amount:    payment,
		SettledAt: ev.At,
	}, nil
}

// Proceeds returns what the ledger currently owes seller.
func (l *Ledger) Proceeds(seller domain.Identity) domain.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.escrow.proceeds[seller]
}

func (l *Ledger) WithdrawProceeds(ctx context.Context, seller domain.Identity, amount domain.Amount) error {
	if seller.IsZero() {
		return fmt.Errorf("%w: seller", domain.ErrMissingIdentity)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: withdrawal of %s", domain.ErrInvalidAmount, amount)
	}

	l.commitMu.Lock()
	defer l.commitMu.Unlock()

	if held := l.Proceeds(seller); amount > held {
		return fmt.Errorf("%w: %s holds %s, requested %s", domain.ErrInsufficientBalance, seller, held, amount)
	}

	ev := domain.Event{
		Type:    domain.EventProceedsWithdrawn,
		At:      l.clock.Now(),
		Account: seller,
		Amount:  amount,
	}
	return l.commitLocked(ctx, &ev)
}
