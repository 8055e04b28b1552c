package domain

import (
	"fmt"
	"time"
)

type ItemID uint64

type ItemState uint8

const (
	ItemListed ItemState = iota + 1
	ItemSold
)

func (s ItemState) String() string {
	switch s {
	case ItemListed:
		return "listed"
	case ItemSold:
		return "sold"
	default:
		return "unknown"
	}
}

func (s ItemState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ItemState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "listed":
		*s = ItemListed
	case "sold":
		*s = ItemSold
	default:
		return fmt.Errorf("unknown item state %q", string(text))
	}
	return nil
}

// Listing is a seller's request to put one asset up for sale.
type Listing struct {
	AssetContract string   `cbor:"asset_contract" json:"asset_contract"`
	TokenID       string   `cbor:"token_id" json:"token_id"`
	MetadataURI   string   `cbor:"metadata_uri,omitempty" json:"metadata_uri,omitempty"`
	Seller        Identity `cbor:"seller" json:"seller"`
	Price         Amount   `cbor:"price" json:"price"`
}

// Item is a read view of a listed asset. Owner is the escrow identity
// while the item is Listed and the buyer once it is Sold.
type Item struct {
	ID            ItemID
	AssetContract string
	TokenID       string
	MetadataURI   string
	Seller        Identity
	Owner         Identity
	Price         Amount
	State         ItemState
	CreatedAt     time.Time
	SoldAt        time.Time
}

func (i Item) Sold() bool {
	return i.State == ItemSold
}
