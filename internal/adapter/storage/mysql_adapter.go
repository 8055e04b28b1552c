package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rl1809/nft-market/internal/core/domain"
)

//go:embed mysql_schema.sql
var mysqlSchema string

// MySQLAdapter is a journal backed by MySQL. Every event row is written in
// the same transaction as the projection tables it affects (market_items,
// treasury, seller_proceeds), so the projections are always exactly the
// fold of ledger_events. Events are kept forever as the audit trail.
type MySQLAdapter struct {
	db  *sql.DB
	mu  sync.Mutex
	seq sequencer
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// Init creates missing tables and loads the last journal sequence. It must
// be called before Append.
func (m *MySQLAdapter) Init(ctx context.Context) error {
	for _, stmt := range strings.Split(mysqlSchema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	var last sql.NullInt64
	if err := m.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM ledger_events`).Scan(&last); err != nil {
		return fmt.Errorf("query last seq: %w", err)
	}
	m.seq.Reset(uint64(last.Int64))
	return nil
}

func (m *MySQLAdapter) Append(ctx context.Context, ev domain.Event) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seq := m.seq.Current() + 1
	ev.Seq = seq
	payload, err := encodeEvent(ev)
	if err != nil {
		return 0, fmt.Errorf("encode event: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var itemID sql.NullInt64
	if ev.ItemID != 0 {
		itemID = sql.NullInt64{Int64: int64(ev.ItemID), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_events (seq, type, item_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		seq, ev.Type.String(), itemID, payload, ev.At,
	)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}

	if err := m.project(ctx, tx, ev); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	m.seq.Next()
	return seq, nil
}

func (m *MySQLAdapter) project(ctx context.Context, tx *sql.Tx, ev domain.Event) error {
	switch ev.Type {
	case domain.EventListingCreated:
		if ev.Listing == nil {
			return fmt.Errorf("%w: event carries no listing", domain.ErrInvalidListing)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO market_items (id, asset_contract, token_id, metadata_uri, seller, price, sold, created_at)
			VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
			uint64(ev.ItemID), ev.Listing.AssetContract, ev.Listing.TokenID, ev.Listing.MetadataURI,
			string(ev.Listing.Seller), int64(ev.Listing.Price), ev.At,
		)
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE treasury SET balance = balance + ?, collected = collected + ? WHERE id = 1`,
			int64(ev.Fee), int64(ev.Fee),
		)
		if err != nil {
			return fmt.Errorf("collect fee: %w", err)
		}

	case domain.EventSaleSettled:
		var seller string
		err := tx.QueryRowContext(ctx, `SELECT seller FROM market_items WHERE id = ?`, uint64(ev.ItemID)).Scan(&seller)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %d", domain.ErrNotFound, ev.ItemID)
		}
		if err != nil {
			return fmt.Errorf("query item: %w", err)
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE market_items
			SET sold = 1, buyer = ?, sold_at = ?, version = version + 1
			WHERE id = ? AND sold = 0 AND price = ?`,
			string(ev.Account), ev.At, uint64(ev.ItemID), int64(ev.Amount),
		)
		if err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return fmt.Errorf("%w: %d", domain.ErrAlreadySold, ev.ItemID)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO seller_proceeds (seller, balance) VALUES (?, ?)
			ON DUPLICATE KEY UPDATE balance = balance + VALUES(balance)`,
			seller, int64(ev.Amount),
		)
		if err != nil {
			return fmt.Errorf("credit proceeds: %w", err)
		}

	case domain.EventTreasuryWithdrawn:
		result, err := tx.ExecContext(ctx, `
			UPDATE treasury SET balance = balance - ? WHERE id = 1 AND balance >= ?`,
			int64(ev.Amount), int64(ev.Amount),
		)
		if err != nil {
			return fmt.Errorf("debit treasury: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return domain.ErrInsufficientBalance
		}

	case domain.EventProceedsWithdrawn:
		result, err := tx.ExecContext(ctx, `
			UPDATE seller_proceeds SET balance = balance - ? WHERE seller = ? AND balance >= ?`,
			int64(ev.Amount), string(ev.Account), int64(ev.Amount),
		)
		if err != nil {
			return fmt.Errorf("debit proceeds: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return domain.ErrInsufficientBalance
		}

	default:
		return fmt.Errorf("unknown event type %s", ev.Type)
	}
	return nil
}

func (m *MySQLAdapter) LastSeq() uint64 {
	return m.seq.Current()
}

func (m *MySQLAdapter) Replay(ctx context.Context, afterSeq uint64, fn func(domain.Event) error) error {
	rows, err := m.db.QueryContext(ctx, `
		SELECT seq, payload FROM ledger_events WHERE seq > ? ORDER BY seq`, afterSeq)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq     uint64
			payload []byte
		)
		if err := rows.Scan(&seq, &payload); err != nil {
			return fmt.Errorf("scan event: %w", err)
		}
		ev, err := decodeEvent(payload)
		if err != nil {
			return fmt.Errorf("decode seq %d: %w", seq, err)
		}
		ev.Seq = seq
		if err := fn(ev); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Close is a no-op; the caller owns the *sql.DB.
func (m *MySQLAdapter) Close() error {
	return nil
}
