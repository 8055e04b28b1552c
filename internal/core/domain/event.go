package domain

import (
	"fmt"
	"time"
)

type EventType uint8

const (
	EventListingCreated EventType = iota + 1
	EventSaleSettled
	EventTreasuryWithdrawn
	EventProceedsWithdrawn
)

func (t EventType) String() string {
	switch t {
	case EventListingCreated:
		return "listing_created"
	case EventSaleSettled:
		return "sale_settled"
	case EventTreasuryWithdrawn:
		return "treasury_withdrawn"
	case EventProceedsWithdrawn:
		return "proceeds_withdrawn"
	default:
		return fmt.Sprintf("event(%d)", uint8(t))
	}
}

func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *EventType) UnmarshalText(text []byte) error {
	for _, candidate := range []EventType{
		EventListingCreated,
		EventSaleSettled,
		EventTreasuryWithdrawn,
		EventProceedsWithdrawn,
	} {
		if candidate.String() == string(text) {
			*t = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown event type %q", string(text))
}

// Event is one committed ledger mutation. Events are the unit of the
// journal: replaying them in Seq order rebuilds the ledger exactly.
//
// Which fields are set depends on Type:
//   - EventListingCreated: ItemID, Listing, Fee
//   - EventSaleSettled: ItemID, Account (buyer), Amount, ReceiptID
//   - EventTreasuryWithdrawn: Account (recipient), Amount
//   - EventProceedsWithdrawn: Account (seller), Amount
type Event struct {
	Seq       uint64    `cbor:"seq" json:"seq"`
	Type      EventType `cbor:"type" json:"type"`
	At        time.Time `cbor:"at" json:"at"`
	ItemID    ItemID    `cbor:"item_id,omitempty" json:"item_id,omitempty"`
	Listing   *Listing  `cbor:"listing,omitempty" json:"listing,omitempty"`
	Fee       Amount    `cbor:"fee,omitempty" json:"fee,omitempty"`
	Account   Identity  `cbor:"account,omitempty" json:"account,omitempty"`
	Amount    Amount    `cbor:"amount,omitempty" json:"amount,omitempty"`
	ReceiptID string    `cbor:"receipt_id,omitempty" json:"receipt_id,omitempty"`
}
