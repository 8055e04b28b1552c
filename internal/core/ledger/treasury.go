package ledger

import (
	"context"
	"fmt"

	"github.com/rl1809/nft-market/internal/core/domain"
)

type treasury struct {
	owner     domain.Identity
	fee       domain.Amount
	balance   domain.Amount
	collected domain.Amount
}

func newTreasury(owner domain.Identity, fee domain.Amount) *treasury {
	return &treasury{owner: owner, fee: fee}
}

// collect adds a listing fee. balance never exceeds collected, so checking
// collected covers both.
func (t *treasury) collect(amount domain.Amount) error {
	collected, ok := t.collected.AddChecked(amount)
	if !ok {
		return fmt.Errorf("%w: treasury collected %s plus %s", domain.ErrAmountOverflow, t.collected, amount)
	}
	t.balance += amount
	t.collected = collected
	return nil
}

func (t *treasury) debit(amount domain.Amount) error {
	if amount <= 0 {
		return fmt.Errorf("%w: withdrawal of %s", domain.ErrInvalidAmount, amount)
	}
	if amount > t.balance {
		return fmt.Errorf("%w: treasury holds %s, requested %s", domain.ErrInsufficientBalance, t.balance, amount)
	}
	t.balance -= amount
	return nil
}

func (l *Ledger) CurrentFee() domain.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.treasury.fee
}

func (l *Ledger) TreasuryBalance() domain.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.treasury.balance
}

// TreasuryCollected returns the sum of all listing fees ever collected.
func (l *Ledger) TreasuryCollected() domain.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.treasury.collected
}

// WithdrawTreasury moves amount of accrued fees to to. Only the treasury
// owner may withdraw.
func (l *Ledger) WithdrawTreasury(ctx context.Context, caller domain.Identity, amount domain.Amount, to domain.Identity) error {
	if caller != l.treasury.owner {
		return fmt.Errorf("%w: %s is not the treasury owner", domain.ErrUnauthorized, caller)
	}
	if to.IsZero() {
		return fmt.Errorf("%w: recipient", domain.ErrMissingIdentity)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: withdrawal of %s", domain.ErrInvalidAmount, amount)
	}

	l.commitMu.Lock()
	defer l.commitMu.Unlock()

	if balance := l.TreasuryBalance(); amount > balance {
		return fmt.Errorf("%w: treasury holds %s, requested %s", domain.ErrInsufficientBalance, balance, amount)
	}

	ev := domain.Event{
		Type:    domain.EventTreasuryWithdrawn,
		At:      l.clock.Now(),
		Account: to,
		Amount:  amount,
	}
	return l.commitLocked(ctx, &ev)
}
