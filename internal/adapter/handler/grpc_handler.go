package handler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/nft-market/internal/adapter/handler/pb"
	"github.com/rl1809/nft-market/internal/core/domain"
	"github.com/rl1809/nft-market/internal/core/service"
)

type GRPCHandler struct {
	marketService *service.MarketService
	logger        *slog.Logger
}

var _ pb.LedgerServer = (*GRPCHandler)(nil)

func NewGRPCHandler(marketService *service.MarketService, logger *slog.Logger) *GRPCHandler {
	return &GRPCHandler{marketService: marketService, logger: logger}
}

func (h *GRPCHandler) CreateListing(ctx context.Context, req *pb.CreateListingRequest) (*pb.Item, error) {
	price, err := domain.ParseAmount(req.Price)
	if err != nil {
		return nil, h.toStatus(fmt.Errorf("%w: price: %w", domain.ErrInvalidListing, err))
	}
	feePaid, err := domain.ParseAmount(req.FeePaid)
	if err != nil {
		return nil, h.toStatus(err)
	}

	item, err := h.marketService.CreateListing(ctx, domain.Listing{
		AssetContract: req.AssetContract,
		TokenID:       req.TokenId,
		MetadataURI:   req.MetadataUri,
		Seller:        domain.Identity(req.Seller),
		Price:         price,
	}, feePaid)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return toPBItem(item), nil
}

func (h *GRPCHandler) SettleSale(ctx context.Context, req *pb.SettleSaleRequest) (*pb.Receipt, error) {
	payment, err := domain.ParseAmount(req.Payment)
	if err != nil {
		return nil, h.toStatus(fmt.Errorf("%w: %w", domain.ErrPaymentMismatch, err))
	}

	receipt, err := h.marketService.SettleSale(ctx, req.RequestId, domain.ItemID(req.ItemId), payment, domain.Identity(req.Buyer))
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &pb.Receipt{
		Id:        receipt.ID,
		ItemId:    uint64(receipt.ItemID),
		Buyer:     receipt.Buyer.String(),
		Seller:    receipt.Seller.String(),
		Amount:    receipt.Amount.String(),
		SettledAt: receipt.SettledAt.Format(time.RFC3339Nano),
	}, nil
}

func (h *GRPCHandler) GetItem(ctx context.Context, req *pb.GetItemRequest) (*pb.Item, error) {
	item, err := h.marketService.GetItem(domain.ItemID(req.ItemId))
	if err != nil {
		return nil, h.toStatus(err)
	}
	return toPBItem(item), nil
}

func (h *GRPCHandler) FetchActiveItems(ctx context.Context, req *pb.FetchActiveItemsRequest) (*pb.ItemList, error) {
	items := h.marketService.FetchActiveItems()
	out := &pb.ItemList{Items: make([]*pb.Item, 0, len(items))}
	for _, item := range items {
		out.Items = append(out.Items, toPBItem(item))
	}
	return out, nil
}

func (h *GRPCHandler) CurrentFee(ctx context.Context, req *pb.CurrentFeeRequest) (*pb.Fee, error) {
	return &pb.Fee{Fee: h.marketService.CurrentFee().String()}, nil
}

func (h *GRPCHandler) toStatus(err error) error {
	m := classify(err)
	if m.code == codes.Internal {
		h.logger.Error("rpc failed", "error", err)
	}
	return status.Error(m.code, m.message)
}

// UnaryLogger logs every call with its duration and status code.
func UnaryLogger(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("rpc",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration", time.Since(start),
		)
		return resp, err
	}
}
