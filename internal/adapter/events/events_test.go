package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/rl1809/nft-market/internal/core/domain"
	"github.com/rl1809/nft-market/internal/port"
)

var (
	_ port.EventPublisher = (*KafkaPublisher)(nil)
	_ port.EventPublisher = (*SaramaPublisher)(nil)
	_ port.EventPublisher = (*LogPublisher)(nil)
	_ port.EventPublisher = NopPublisher{}
)

// Mock EventPublisher
type mockPublisher struct {
	mu        sync.Mutex
	published []domain.Event
	failFirst int
	calls     int
}

func (m *mockPublisher) Publish(ctx context.Context, ev domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.calls <= m.failFirst {
		return errors.New("broker unavailable")
	}
	m.published = append(m.published, ev)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var at = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func saleEvent(seq uint64) domain.Event {
	return domain.Event{
		Seq:       seq,
		Type:      domain.EventSaleSettled,
		At:        at,
		ItemID:    7,
		Account:   "bob",
		Amount:    domain.MustParseAmount("1.25"),
		ReceiptID: "r-1",
	}
}

func TestNewMessage_Sale(t *testing.T) {
	key, value, err := encode(saleEvent(3))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(key) != "7" {
		t.Errorf("expected key 7, got %q", key)
	}

	var m Message
	if err := json.Unmarshal(value, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.V != 1 || m.Type != "sale_settled" || m.Seq != 3 || m.Amount != "1.25" || m.Account != "bob" {
		t.Errorf("unexpected message %+v", m)
	}
	if m.Fee != "" {
		t.Errorf("sale message should carry no fee, got %q", m.Fee)
	}
}

func TestNewMessage_ListingAndWithdrawal(t *testing.T) {
	listing := domain.Event{
		Seq:    1,
		Type:   domain.EventListingCreated,
		At:     at,
		ItemID: 1,
		Listing: &domain.Listing{
			AssetContract: "0xabc", TokenID: "9", Seller: "alice", Price: domain.MustParseAmount("2"),
		},
		Fee: domain.MustParseAmount("0.025"),
	}
	_, value, err := encode(listing)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(value), `"fee":"0.025"`) || !strings.Contains(string(value), `"price":"2"`) {
		t.Errorf("unexpected listing body %s", value)
	}

	key, _, err := encode(domain.Event{Seq: 2, Type: domain.EventProceedsWithdrawn, At: at, Account: "alice", Amount: 1})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(key) != "alice" {
		t.Errorf("expected account key, got %q", key)
	}
}

func TestRunWorkers_PublishesAll(t *testing.T) {
	pub := &mockPublisher{}
	queue := make(chan domain.Event, 100)

	wg := RunWorkers(4, queue, pub, discardLogger())
	for i := 1; i <= 50; i++ {
		queue <- saleEvent(uint64(i))
	}
	close(queue)
	wg.Wait()

	if len(pub.published) != 50 {
		t.Errorf("expected 50 published events, got %d", len(pub.published))
	}
	seen := make(map[uint64]bool)
	for _, ev := range pub.published {
		if seen[ev.Seq] {
			t.Errorf("event %d published twice", ev.Seq)
		}
		seen[ev.Seq] = true
	}
}

func TestRunWorkers_RetriesFailures(t *testing.T) {
	pub := &mockPublisher{failFirst: 2}
	queue := make(chan domain.Event, 1)

	wg := RunWorkers(1, queue, pub, discardLogger())
	queue <- saleEvent(1)
	close(queue)
	wg.Wait()

	if pub.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", pub.calls)
	}
	if len(pub.published) != 1 {
		t.Errorf("expected event published after retries")
	}
}

func TestRunWorkers_GivesUp(t *testing.T) {
	pub := &mockPublisher{failFirst: 100}
	queue := make(chan domain.Event, 2)

	wg := RunWorkers(1, queue, pub, discardLogger())
	queue <- saleEvent(1)
	queue <- saleEvent(2)
	close(queue)
	wg.Wait()

	if pub.calls != 2*publishAttempts {
		t.Errorf("expected %d attempts, got %d", 2*publishAttempts, pub.calls)
	}
	if len(pub.published) != 0 {
		t.Errorf("expected nothing published")
	}
}

func TestSaramaPublisher_SendsKeyedMessage(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var m Message
		if err := json.Unmarshal(val, &m); err != nil {
			return err
		}
		if m.ItemID != 7 {
			return errors.New("wrong item id")
		}
		return nil
	})

	pub := newSaramaPublisher(producer, "ledger-events")
	if err := pub.Publish(context.Background(), saleEvent(1)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestSaramaPublisher_Failure(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := newSaramaPublisher(producer, "ledger-events")
	err := pub.Publish(context.Background(), saleEvent(1))
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Errorf("expected ErrOutOfBrokers, got %v", err)
	}
	pub.Close()
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	pub := NewLogPublisher(slog.New(slog.NewJSONHandler(&buf, nil)))

	if err := pub.Publish(context.Background(), saleEvent(4)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if line["type"] != "sale_settled" || line["seq"] != float64(4) {
		t.Errorf("unexpected log line %v", line)
	}
}
