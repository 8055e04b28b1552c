package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rl1809/nft-market/internal/core/domain"
	"github.com/rl1809/nft-market/internal/core/ledger"
	"github.com/rl1809/nft-market/internal/port"
)

var ErrDuplicateRequest = errors.New("duplicate request")

const settleKeyPrefix = "settle:"

// MarketService is the entry point transports call into. It adds request
// idempotency and event fan-out on top of the ledger.
type MarketService struct {
	ledger *ledger.Ledger
	cache  port.IdempotencyCache
	logger *slog.Logger

	mu      sync.RWMutex
	events  chan domain.Event
	closed  bool
	dropped atomic.Uint64
}

func NewMarketService(l *ledger.Ledger, cache port.IdempotencyCache, queueSize int, logger *slog.Logger) *MarketService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MarketService{
		ledger: l,
		cache:  cache,
		logger: logger,
		events: make(chan domain.Event, queueSize),
	}
	l.OnCommit(s.enqueue)
	return s
}

// enqueue never blocks: a slow consumer must not stall the ledger, so a
// full queue drops the event.
func (s *MarketService) enqueue(ev domain.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.dropped.Add(1)
		s.logger.Warn("event queue full, dropping event",
			"seq", ev.Seq,
			"type", ev.Type.String(),
		)
	}
}

func (s *MarketService) CreateListing(ctx context.Context, listing domain.Listing, feePaid domain.Amount) (domain.Item, error) {
	id, err := s.ledger.CreateListing(ctx, listing, feePaid)
	if err != nil {
		s.logger.Debug("listing rejected", "seller", listing.Seller.String(), "error", err)
		return domain.Item{}, err
	}

	item, err := s.ledger.GetItem(id)
	if err != nil {
		return domain.Item{}, err
	}
	s.logger.Info("listing created",
		"item_id", uint64(id),
		"seller", item.Seller.String(),
		"price", item.Price.String(),
	)
	return item, nil
}

// SettleSale settles a purchase of item id. A non-empty requestID makes
// the call idempotent: a repeat of a settled or in-flight request fails
// with ErrDuplicateRequest, while a request the ledger rejected may be
// retried with the same id.
func (s *MarketService) SettleSale(ctx context.Context, requestID string, id domain.ItemID, payment domain.Amount, buyer domain.Identity) (domain.Receipt, error) {
	var key string
	if requestID != "" {
		key = settleKeyPrefix + requestID
		ok, err := s.cache.SetIdempotency(ctx, key)
		if err != nil {
			return domain.Receipt{}, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return domain.Receipt{}, ErrDuplicateRequest
		}
	}

	receipt, err := s.ledger.SettleSale(ctx, id, payment, buyer)
	if err != nil {
		if key != "" {
			if rerr := s.cache.ReleaseIdempotency(ctx, key); rerr != nil {
				s.logger.Warn("failed to release idempotency key", "key", key, "error", rerr)
			}
		}
		s.logger.Debug("settlement rejected", "item_id", uint64(id), "buyer", buyer.String(), "error", err)
		return domain.Receipt{}, err
	}

	if key != "" {
		if err := s.cache.CompleteIdempotency(ctx, key); err != nil {
			s.logger.Warn("failed to complete idempotency key", "key", key, "error", err)
		}
	}
	s.logger.Info("sale settled",
		"item_id", uint64(id),
		"buyer", buyer.String(),
		"seller", receipt.Seller.String(),
		"amount", receipt.Amount.String(),
		"receipt_id", receipt.ID,
	)
	return receipt, nil
}

func (s *MarketService) GetItem(id domain.ItemID) (domain.Item, error) {
	return s.ledger.GetItem(id)
}

func (s *MarketService) FetchActiveItems() []domain.Item {
	return s.ledger.FetchActiveItems()
}

func (s *MarketService) FetchOwnedItems(owner domain.Identity) []domain.Item {
	return s.ledger.FetchOwnedItems(owner)
}

func (s *MarketService) FetchSellerItems(seller domain.Identity) []domain.Item {
	return s.ledger.FetchSellerItems(seller)
}

func (s *MarketService) CurrentFee() domain.Amount {
	return s.ledger.CurrentFee()
}

func (s *MarketService) TreasuryBalance() domain.Amount {
	return s.ledger.TreasuryBalance()
}

func (s *MarketService) Proceeds(seller domain.Identity) domain.Amount {
	return s.ledger.Proceeds(seller)
}

func (s *MarketService) WithdrawProceeds(ctx context.Context, seller domain.Identity, amount domain.Amount) error {
	if err := s.ledger.WithdrawProceeds(ctx, seller, amount); err != nil {
		return err
	}
	s.logger.Info("proceeds withdrawn", "seller", seller.String(), "amount", amount.String())
	return nil
}

func (s *MarketService) WithdrawTreasury(ctx context.Context, caller domain.Identity, amount domain.Amount, to domain.Identity) error {
	if err := s.ledger.WithdrawTreasury(ctx, caller, amount, to); err != nil {
		s.logger.Warn("treasury withdrawal rejected", "caller", caller.String(), "error", err)
		return err
	}
	s.logger.Info("treasury withdrawn", "to", to.String(), "amount", amount.String())
	return nil
}

// Events returns the queue of committed ledger events. It is closed by
// Close.
func (s *MarketService) Events() <-chan domain.Event {
	return s.events
}

// Dropped reports how many events were discarded because the queue was full.
func (s *MarketService) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *MarketService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}
