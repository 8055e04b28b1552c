package events

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/rl1809/nft-market/internal/core/domain"
)

const messageVersion = 1

// Message is the JSON body published for every committed ledger event.
// Consumers order messages by Seq; delivery across workers is unordered.
type Message struct {
	V         int             `json:"v"`
	Type      string          `json:"type"`
	Seq       uint64          `json:"seq"`
	At        time.Time       `json:"at"`
	ItemID    uint64          `json:"item_id,omitempty"`
	Listing   *domain.Listing `json:"listing,omitempty"`
	Fee       string          `json:"fee,omitempty"`
	Account   string          `json:"account,omitempty"`
	Amount    string          `json:"amount,omitempty"`
	ReceiptID string          `json:"receipt_id,omitempty"`
}

func NewMessage(ev domain.Event) Message {
	m := Message{
		V:         messageVersion,
		Type:      ev.Type.String(),
		Seq:       ev.Seq,
		At:        ev.At,
		ItemID:    uint64(ev.ItemID),
		Listing:   ev.Listing,
		Account:   ev.Account.String(),
		ReceiptID: ev.ReceiptID,
	}
	if ev.Fee != 0 {
		m.Fee = ev.Fee.String()
	}
	if ev.Amount != 0 {
		m.Amount = ev.Amount.String()
	}
	return m
}

// encode returns the partition key and JSON value for ev. Item events are
// keyed by item id, account events by account.
func encode(ev domain.Event) ([]byte, []byte, error) {
	value, err := json.Marshal(NewMessage(ev))
	if err != nil {
		return nil, nil, err
	}
	var key []byte
	if ev.ItemID != 0 {
		key = strconv.AppendUint(nil, uint64(ev.ItemID), 10)
	} else {
		key = []byte(ev.Account)
	}
	return key, value, nil
}
