package handler

import (
	"time"

	"github.com/rl1809/nft-market/internal/adapter/handler/pb"
	"github.com/rl1809/nft-market/internal/core/domain"
)

type ItemResponse struct {
	ID            uint64     `json:"id"`
	AssetContract string     `json:"asset_contract"`
	TokenID       string     `json:"token_id"`
	MetadataURI   string     `json:"metadata_uri,omitempty"`
	Seller        string     `json:"seller"`
	Owner         string     `json:"owner"`
	Price         string     `json:"price"`
	State         string     `json:"state"`
	Sold          bool       `json:"sold"`
	CreatedAt     time.Time  `json:"created_at"`
	SoldAt        *time.Time `json:"sold_at,omitempty"`
}

type ReceiptResponse struct {
	ID        string    `json:"id"`
	ItemID    uint64    `json:"item_id"`
	Buyer     string    `json:"buyer"`
	Seller    string    `json:"seller"`
	Amount    string    `json:"amount"`
	SettledAt time.Time `json:"settled_at"`
}

type CreateListingHTTPRequest struct {
	AssetContract string `json:"asset_contract"`
	TokenID       string `json:"token_id"`
	MetadataURI   string `json:"metadata_uri"`
	Seller        string `json:"seller"`
	Price         string `json:"price"`
	FeePaid       string `json:"fee_paid"`
}

type PurchaseHTTPRequest struct {
	RequestID string `json:"request_id"`
	Buyer     string `json:"buyer"`
	Payment   string `json:"payment"`
}

type WithdrawHTTPRequest struct {
	Amount string `json:"amount"`
}

type TreasuryWithdrawHTTPRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
	To     string `json:"to"`
}

type BalanceResponse struct {
	Identity string `json:"identity,omitempty"`
	Balance  string `json:"balance"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func toItemResponse(item domain.Item) ItemResponse {
	resp := ItemResponse{
		ID:            uint64(item.ID),
		AssetContract: item.AssetContract,
		TokenID:       item.TokenID,
		MetadataURI:   item.MetadataURI,
		Seller:        item.Seller.String(),
		Owner:         item.Owner.String(),
		Price:         item.Price.String(),
		State:         item.State.String(),
		Sold:          item.Sold(),
		CreatedAt:     item.CreatedAt,
	}
	if item.Sold() {
		soldAt := item.SoldAt
		resp.SoldAt = &soldAt
	}
	return resp
}

func toItemResponses(items []domain.Item) []ItemResponse {
	out := make([]ItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toItemResponse(item))
	}
	return out
}

func toReceiptResponse(r domain.Receipt) ReceiptResponse {
	return ReceiptResponse{
		ID:        r.ID,
		ItemID:    uint64(r.ItemID),
		Buyer:     r.Buyer.String(),
		Seller:    r.Seller.String(),
		Amount:    r.Amount.String(),
		SettledAt: r.SettledAt,
	}
}

func toPBItem(item domain.Item) *pb.Item {
	out := &pb.Item{
		Id:            uint64(item.ID),
		AssetContract: item.AssetContract,
		TokenId:       item.TokenID,
		MetadataUri:   item.MetadataURI,
		Seller:        item.Seller.String(),
		Owner:         item.Owner.String(),
		Price:         item.Price.String(),
		Sold:          item.Sold(),
		CreatedAt:     item.CreatedAt.Format(time.RFC3339Nano),
	}
	if item.Sold() {
		out.SoldAt = item.SoldAt.Format(time.RFC3339Nano)
	}
	return out
}
