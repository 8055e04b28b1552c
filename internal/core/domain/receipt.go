package domain

import "time"

type Receipt struct {
	ID        string
	ItemID    ItemID
	Buyer     Identity
	Seller    Identity
	Amount    Amount
	SettledAt time.Time
}
