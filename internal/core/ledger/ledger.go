// Package ledger is the authoritative marketplace state: the item registry,
// the fee treasury, seller proceeds held in escrow, and the active listing
// index. Every mutation is first appended to a journal and then applied in
// memory, so journal order and apply order are always the same.
//
// Lock order is item settle lock, then commitMu, then mu. Readers only take
// mu for reading and therefore never observe a half-applied event.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/rl1809/nft-market/internal/clock"
	"github.com/rl1809/nft-market/internal/core/domain"
	"github.com/rl1809/nft-market/internal/port"
)

// ErrJournalBehind means the journal holds fewer events than the ledger
// state already reflects, so committed events would be lost on restart.
var ErrJournalBehind = errors.New("journal behind ledger state")

type Config struct {
	// EscrowIdentity is reported as the owner of every unsold item.
	EscrowIdentity domain.Identity

	// TreasuryOwner is the only identity allowed to withdraw listing fees.
	TreasuryOwner domain.Identity

	ListingFee domain.Amount
}

type Option func(*Ledger)

func WithClock(c clock.Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithReceiptIDs overrides how receipt ids are generated.
func WithReceiptIDs(fn func() string) Option {
	return func(l *Ledger) { l.newReceiptID = fn }
}

// Ledger serializes every commit, journal append included, behind one
// mutex. Settlements of different items do not wait on each other's item
// locks, but their writes still queue on the journal, so with fsync on
// write throughput is bounded by disk sync latency.
type Ledger struct {
	journal      port.Journal
	clock        clock.Clock
	newReceiptID func() string

	commitMu sync.Mutex
	onCommit []func(domain.Event)

	mu       sync.RWMutex
	registry *registry
	treasury *treasury
	escrow   *escrow
	active   *activeIndex
	lastSeq  uint64
}

func New(cfg Config, journal port.Journal, opts ...Option) (*Ledger, error) {
	if journal == nil {
		return nil, errors.New("ledger: journal is required")
	}
	if cfg.EscrowIdentity.IsZero() {
		return nil, errors.New("ledger: escrow identity is required")
	}
	if cfg.TreasuryOwner.IsZero() {
		return nil, errors.New("ledger: treasury owner is required")
	}
	if cfg.ListingFee < 0 {
		return nil, fmt.Errorf("ledger: negative listing fee %s", cfg.ListingFee)
	}

	l := &Ledger{
		journal:      journal,
		clock:        clock.Real(),
		newReceiptID: uuid.NewString,
		registry:     newRegistry(),
		treasury:     newTreasury(cfg.TreasuryOwner, cfg.ListingFee),
		escrow:       newEscrow(cfg.EscrowIdentity),
		active:       newActiveIndex(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// OnCommit registers fn to be called with every event after it has been
// journaled and applied. fn runs while the commit lock is held and must
// not block or call back into the ledger's write methods.
func (l *Ledger) OnCommit(fn func(domain.Event)) {
	l.commitMu.Lock()
	defer l.commitMu.Unlock()
	l.onCommit = append(l.onCommit, fn)
}

// LastSeq returns the journal sequence of the last applied event.
func (l *Ledger) LastSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastSeq
}

// commitLocked journals ev and applies it. The caller holds commitMu and
// has already validated ev against current state, so apply cannot fail
// unless memory and journal have diverged.
func (l *Ledger) commitLocked(ctx context.Context, ev *domain.Event) error {
	seq, err := l.journal.Append(ctx, *ev)
	if err != nil {
		return fmt.Errorf("journal append %s: %w", ev.Type, err)
	}
	ev.Seq = seq

	// A journal that numbers below what the ledger already holds has lost
	// events; applying would hide this commit from the next recovery.
	if last := l.LastSeq(); seq <= last {
		return fmt.Errorf("%w: appended seq %d, ledger is at %d", ErrJournalBehind, seq, last)
	}

	l.mu.Lock()
	err = l.apply(*ev)
	l.mu.Unlock()
	if err != nil {
		return fmt.Errorf("apply %s seq %d: %w", ev.Type, seq, err)
	}

	for _, fn := range l.onCommit {
		fn(*ev)
	}
	return nil
}

// apply mutates in-memory state for one event. It validates before it
// mutates, so a rejected event leaves state untouched. Caller holds mu.
func (l *Ledger) apply(ev domain.Event) error {
	var err error
	switch ev.Type {
	case domain.EventListingCreated:
		err = l.applyListing(ev)
	case domain.EventSaleSettled:
		err = l.applySale(ev)
	case domain.EventTreasuryWithdrawn:
		err = l.treasury.debit(ev.Amount)
	case domain.EventProceedsWithdrawn:
		err = l.escrow.debit(ev.Account, ev.Amount)
	default:
		err = fmt.Errorf("unknown event type %s", ev.Type)
	}
	if err != nil {
		return err
	}
	if ev.Seq > l.lastSeq {
		l.lastSeq = ev.Seq
	}
	return nil
}

func (l *Ledger) applyListing(ev domain.Event) error {
	if ev.Listing == nil {
		return fmt.Errorf("%w: event carries no listing", domain.ErrInvalidListing)
	}
	if next := l.registry.nextID(); ev.ItemID != next {
		return fmt.Errorf("item id %d out of order, expected %d", ev.ItemID, next)
	}
	if ev.Listing.Price <= 0 {
		return fmt.Errorf("%w: price %s", domain.ErrInvalidListing, ev.Listing.Price)
	}
	if ev.Fee < 0 {
		return fmt.Errorf("%w: fee %s", domain.ErrInvalidListing, ev.Fee)
	}

	if err := l.treasury.collect(ev.Fee); err != nil {
		return err
	}
	l.registry.insert(newRecord(ev.ItemID, *ev.Listing, ev.At))
	l.active.add(ev.ItemID)
	return nil
}

func (l *Ledger) applySale(ev domain.Event) error {
	rec, ok := l.registry.get(ev.ItemID)
	if !ok {
		return fmt.Errorf("%w: %d", domain.ErrNotFound, ev.ItemID)
	}
	if rec.state == domain.ItemSold {
		return fmt.Errorf("%w: %d", domain.ErrAlreadySold, ev.ItemID)
	}
	if ev.Amount != rec.price {
		return fmt.Errorf("%w: paid %s, price %s", domain.ErrPaymentMismatch, ev.Amount, rec.price)
	}
	if ev.Account.IsZero() {
		return fmt.Errorf("%w: buyer", domain.ErrMissingIdentity)
	}

	if err := l.escrow.credit(rec.seller, ev.Amount); err != nil {
		return err
	}
	l.registry.markSold(rec, ev.Account, ev.At)
	l.active.remove(ev.ItemID)
	return nil
}
