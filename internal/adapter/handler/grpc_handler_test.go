package handler

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/nft-market/internal/adapter/handler/pb"
	"github.com/rl1809/nft-market/internal/core/service"
)

func newTestClient(t *testing.T) (*pb.LedgerClient, *service.MarketService) {
	t.Helper()
	svc := newTestService(t)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(UnaryLogger(discardLogger())))
	pb.RegisterLedgerServer(srv, NewGRPCHandler(svc, discardLogger()))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return pb.NewLedgerClient(conn), svc
}

func TestGRPC_CreateListingAndSettle(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	fee, err := client.CurrentFee(ctx, &pb.CurrentFeeRequest{})
	if err != nil {
		t.Fatalf("current fee: %v", err)
	}
	if fee.Fee != "0.025" {
		t.Errorf("expected fee 0.025, got %s", fee.Fee)
	}

	item, err := client.CreateListing(ctx, &pb.CreateListingRequest{
		AssetContract: "0xabc",
		TokenId:       "5",
		MetadataUri:   "ipfs://5",
		Seller:        "alice",
		Price:         "1.5",
		FeePaid:       fee.Fee,
	})
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	if item.Id != 1 || item.Owner != "market" || item.MetadataUri != "ipfs://5" {
		t.Errorf("unexpected item %+v", item)
	}

	receipt, err := client.SettleSale(ctx, &pb.SettleSaleRequest{RequestId: "r1", ItemId: item.Id, Buyer: "bob", Payment: "1.5"})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if receipt.Seller != "alice" || receipt.Amount != "1.5" || receipt.Id == "" {
		t.Errorf("unexpected receipt %+v", receipt)
	}

	got, err := client.GetItem(ctx, &pb.GetItemRequest{ItemId: item.Id})
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if !got.Sold || got.Owner != "bob" || got.SoldAt == "" {
		t.Errorf("expected item sold to bob, got %+v", got)
	}

	active, err := client.FetchActiveItems(ctx, &pb.FetchActiveItemsRequest{})
	if err != nil {
		t.Fatalf("fetch active: %v", err)
	}
	if len(active.Items) != 0 {
		t.Errorf("expected no active items, got %d", len(active.Items))
	}
}

func TestGRPC_StatusCodes(t *testing.T) {
	client, svc := newTestClient(t)
	ctx := context.Background()
	seedListing(t, svc, "alice")

	tests := []struct {
		name string
		call func() error
		want codes.Code
	}{
		{"invalid price", func() error {
			_, err := client.CreateListing(ctx, &pb.CreateListingRequest{AssetContract: "0xabc", TokenId: "1", Seller: "alice", Price: "-1", FeePaid: "0.025"})
			return err
		}, codes.InvalidArgument},
		{"payment mismatch", func() error {
			_, err := client.SettleSale(ctx, &pb.SettleSaleRequest{ItemId: 1, Buyer: "bob", Payment: "2"})
			return err
		}, codes.InvalidArgument},
		{"not found", func() error {
			_, err := client.GetItem(ctx, &pb.GetItemRequest{ItemId: 77})
			return err
		}, codes.NotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if status.Code(err) != tt.want {
				t.Errorf("expected %s, got %v", tt.want, err)
			}
		})
	}

	if _, err := client.SettleSale(ctx, &pb.SettleSaleRequest{RequestId: "x", ItemId: 1, Buyer: "bob", Payment: "1.5"}); err != nil {
		t.Fatalf("settle: %v", err)
	}
	_, err := client.SettleSale(ctx, &pb.SettleSaleRequest{RequestId: "y", ItemId: 1, Buyer: "carol", Payment: "1.5"})
	if status.Code(err) != codes.FailedPrecondition {
		t.Errorf("expected FailedPrecondition for sold item, got %v", err)
	}
	_, err = client.SettleSale(ctx, &pb.SettleSaleRequest{RequestId: "x", ItemId: 1, Buyer: "bob", Payment: "1.5"})
	if status.Code(err) != codes.AlreadyExists {
		t.Errorf("expected AlreadyExists for replayed request, got %v", err)
	}
}

func TestGRPC_ConcurrentSettle(t *testing.T) {
	client, svc := newTestClient(t)
	ctx := context.Background()
	item := seedListing(t, svc, "alice")

	var successCount, soldCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.SettleSale(ctx, &pb.SettleSaleRequest{ItemId: uint64(item.ID), Buyer: "bob", Payment: "1.5"})
			switch status.Code(err) {
			case codes.OK:
				successCount.Add(1)
			case codes.FailedPrecondition:
				soldCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != 1 || soldCount.Load() != 39 {
		t.Errorf("expected 1 success and 39 sold, got %d and %d", successCount.Load(), soldCount.Load())
	}
}
