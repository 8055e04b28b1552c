package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/rl1809/nft-market/internal/adapter/handler/pb"
)

func main() {
	addr := pflag.String("addr", "localhost:50051", "gRPC address of the market server")
	items := pflag.Int("items", 20, "number of items to list")
	buyers := pflag.Int("buyers", 50, "concurrent buyers per item")
	price := pflag.String("price", "1.5", "price of every listed item")
	pflag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()
	client := pb.NewLedgerClient(conn)

	fee, err := client.CurrentFee(ctx, &pb.CurrentFeeRequest{})
	if err != nil {
		log.Fatalf("failed to read fee: %v", err)
	}

	runID := time.Now().UnixNano()
	ids := make([]uint64, 0, *items)
	for i := 0; i < *items; i++ {
		item, err := client.CreateListing(ctx, &pb.CreateListingRequest{
			AssetContract: "0xstress",
			TokenId:       fmt.Sprintf("%d-%d", runID, i),
			Seller:        "stress-seller",
			Price:         *price,
			FeePaid:       fee.Fee,
		})
		if err != nil {
			log.Fatalf("failed to list item %d: %v", i, err)
		}
		ids = append(ids, item.Id)
	}
	log.Printf("listed %d items", len(ids))

	// Counters
	var successCount atomic.Int32
	var soldCount atomic.Int32
	var otherCount atomic.Int32
	winners := make(map[uint64]int)
	var winnersMu sync.Mutex

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for _, id := range ids {
		for b := 0; b < *buyers; b++ {
			wg.Add(1)
			go func(itemID uint64, buyer int) {
				defer wg.Done()

				_, err := client.SettleSale(ctx, &pb.SettleSaleRequest{
					RequestId: fmt.Sprintf("stress-%d-%d-%d", runID, itemID, buyer),
					ItemId:    itemID,
					Buyer:     fmt.Sprintf("buyer-%d", buyer),
					Payment:   *price,
				})
				switch status.Code(err) {
				case codes.OK:
					successCount.Add(1)
					winnersMu.Lock()
					winners[itemID]++
					winnersMu.Unlock()
				case codes.FailedPrecondition:
					soldCount.Add(1)
				default:
					otherCount.Add(1)
					log.Printf("unexpected error for item %d: %v", itemID, err)
				}
			}(id, b)
		}
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	total := len(ids) * *buyers
	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Items:            %d\n", len(ids))
	fmt.Printf("Total Requests:   %d\n", total)
	fmt.Printf("Settled:          %d\n", successCount.Load())
	fmt.Printf("Already Sold:     %d\n", soldCount.Load())
	fmt.Printf("Other Errors:     %d\n", otherCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false

	// Assertions
	if int(successCount.Load()) == len(ids) && int(soldCount.Load()) == total-len(ids) {
		fmt.Printf("PASS: Exactly %d settlements succeeded, %d rejected as sold\n", len(ids), total-len(ids))
	} else {
		fmt.Printf("FAIL: Expected %d settled/%d sold, got %d/%d\n",
			len(ids), total-len(ids), successCount.Load(), soldCount.Load())
		failed = true
	}

	for _, id := range ids {
		if winners[id] != 1 {
			fmt.Printf("FAIL: item %d settled %d times\n", id, winners[id])
			failed = true
		}
	}

	// Verify none of the items are still active
	active, err := client.FetchActiveItems(ctx, &pb.FetchActiveItemsRequest{})
	if err != nil {
		log.Fatalf("failed to fetch active items: %v", err)
	}
	stillActive := 0
	listed := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		listed[id] = true
	}
	for _, item := range active.Items {
		if listed[item.Id] {
			stillActive++
		}
	}
	if stillActive == 0 {
		fmt.Println("PASS: No stress items remain active")
	} else {
		fmt.Printf("FAIL: %d stress items still active\n", stillActive)
		failed = true
	}

	if failed {
		os.Exit(1)
	}
}
