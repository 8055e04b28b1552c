package domain

import "time"

// ItemRecord is the persisted form of an item inside a LedgerState.
type ItemRecord struct {
	ID            ItemID    `cbor:"id"`
	AssetContract string    `cbor:"asset_contract"`
	TokenID       string    `cbor:"token_id"`
	MetadataURI   string    `cbor:"metadata_uri,omitempty"`
	Seller        Identity  `cbor:"seller"`
	Buyer         Identity  `cbor:"buyer,omitempty"`
	Price         Amount    `cbor:"price"`
	State         ItemState `cbor:"state"`
	CreatedAt     time.Time `cbor:"created_at"`
	SoldAt        time.Time `cbor:"sold_at"`
}

// LedgerState is a point-in-time copy of the whole ledger, taken at
// journal sequence Seq. Items are ordered by ID.
type LedgerState struct {
	Seq               uint64              `cbor:"seq"`
	ListingFee        Amount              `cbor:"listing_fee"`
	TreasuryBalance   Amount              `cbor:"treasury_balance"`
	TreasuryCollected Amount              `cbor:"treasury_collected"`
	Items             []ItemRecord        `cbor:"items"`
	Proceeds          map[Identity]Amount `cbor:"proceeds"`
	TakenAt           time.Time           `cbor:"taken_at"`
}
