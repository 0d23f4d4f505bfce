// Package batch keeps the terminal's open batch per acquirer host.
package batch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"go-pos-hostswitch/internal/payment"
)

var ErrNotFound = errors.New("batch: transaction not found")

// Store is the persistence boundary used by the settlement and sale
// workflows.
type Store interface {
	// Save records tx in the open batch of its host, replacing a stored
	// transaction with the same invoice number.
	Save(ctx context.Context, tx *payment.Transaction) (string, error)
	Get(ctx context.Context, hostIndex int, invoice uint32) (*payment.Transaction, error)
	// Pending lists the unsettled transactions of a host that go into
	// batch upload, in invoice order.
	Pending(ctx context.Context, hostIndex int) ([]*payment.Transaction, error)
	// Reversals lists the open transactions of a host still waiting for a
	// reversal, in invoice order.
	Reversals(ctx context.Context, hostIndex int) ([]*payment.Transaction, error)
	Totals(ctx context.Context, hostIndex int) (payment.BatchTotals, error)
	// MarkSettled closes the open batch of a host and reports how many
	// records it held.
	MarkSettled(ctx context.Context, hostIndex int) (int, error)
	Close() error
}

type category string

const (
	categorySale   category = "sale"
	categoryRefund category = "refund"
	categoryNone   category = "none"
)

func categorize(t payment.TransactionType) category {
	switch t {
	case payment.Refund:
		return categoryRefund
	case payment.Sale, payment.QuasiCash, payment.OfflineSale, payment.InstalmentSale,
		payment.PreAuthCompletionOnline, payment.PreAuthCompletionOffline:
		return categorySale
	}
	return categoryNone
}

// counted is 1 when a transaction in status s belongs in the totals,
// which holds for approved ones and ones waiting to be advised.
func counted(s payment.TransactionStatus) int {
	if s == payment.StatusApproved || s == payment.StatusToAdvise {
		return 1
	}
	return 0
}

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id             TEXT PRIMARY KEY,
	host_index     INTEGER NOT NULL,
	invoice_number INTEGER NOT NULL,
	batch_number   INTEGER NOT NULL,
	category       TEXT NOT NULL,
	counted        INTEGER NOT NULL,
	amount         INTEGER NOT NULL,
	settled        INTEGER NOT NULL DEFAULT 0,
	record         BLOB NOT NULL,
	updated_at     TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS transactions_open_invoice
	ON transactions (host_index, invoice_number) WHERE settled = 0;
`

// SQLiteStore is a Store in a single SQLite file. Records are kept as
// msgpack blobs next to the columns the queries filter on.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func Open(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open batch database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create batch schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Save(ctx context.Context, tx *payment.Transaction) (string, error) {
	record, err := msgpack.Marshal(tx)
	if err != nil {
		return "", fmt.Errorf("encode transaction: %w", err)
	}
	amount, _ := tx.TotalAmount()
	id := uuid.NewString()

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO transactions
			(id, host_index, invoice_number, batch_number, category, counted, amount, record, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (host_index, invoice_number) WHERE settled = 0 DO UPDATE SET
			batch_number = excluded.batch_number,
			category     = excluded.category,
			counted      = excluded.counted,
			amount       = excluded.amount,
			record       = excluded.record,
			updated_at   = excluded.updated_at
		RETURNING id`,
		id, tx.HostIndex, tx.InvoiceNumber, tx.BatchNumber, string(categorize(tx.Type)), counted(tx.Status),
		int64(amount), record, s.now().UTC().Format(time.RFC3339Nano),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("save transaction %d/%d: %w", tx.HostIndex, tx.InvoiceNumber, err)
	}
	return id, nil
}

func (s *SQLiteStore) Get(ctx context.Context, hostIndex int, invoice uint32) (*payment.Transaction, error) {
	var record []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM transactions WHERE host_index = ? AND invoice_number = ? AND settled = 0`,
		hostIndex, invoice).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %d/%d: %w", hostIndex, invoice, err)
	}
	return decode(record)
}

func (s *SQLiteStore) Pending(ctx context.Context, hostIndex int) ([]*payment.Transaction, error) {
	txs, err := s.list(ctx, `
		SELECT record FROM transactions
		WHERE host_index = ? AND settled = 0 AND counted = 1 AND category != ?
		ORDER BY invoice_number`, hostIndex, string(categoryNone))
	if err != nil {
		return nil, fmt.Errorf("list pending transactions: %w", err)
	}
	return txs, nil
}

func (s *SQLiteStore) Reversals(ctx context.Context, hostIndex int) ([]*payment.Transaction, error) {
	open, err := s.list(ctx, `
		SELECT record FROM transactions
		WHERE host_index = ? AND settled = 0 AND counted = 0
		ORDER BY invoice_number`, hostIndex)
	if err != nil {
		return nil, fmt.Errorf("list reversals: %w", err)
	}
	var out []*payment.Transaction
	for _, tx := range open {
		if tx.Status == payment.StatusToReverse {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *SQLiteStore) list(ctx context.Context, query string, args ...any) ([]*payment.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*payment.Transaction
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		tx, err := decode(record)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Totals(ctx context.Context, hostIndex int) (payment.BatchTotals, error) {
	var totals payment.BatchTotals
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, COUNT(*), COALESCE(SUM(amount), 0) FROM transactions
		WHERE host_index = ? AND settled = 0 AND counted = 1
		GROUP BY category`, hostIndex)
	if err != nil {
		return totals, fmt.Errorf("batch totals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c     string
			count uint32
			sum   uint64
		)
		if err := rows.Scan(&c, &count, &sum); err != nil {
			return totals, err
		}
		switch category(c) {
		case categorySale:
			totals.Sales = payment.BatchTotal{Count: count, Total: sum}
		case categoryRefund:
			totals.Refunds = payment.BatchTotal{Count: count, Total: sum}
		}
	}
	return totals, rows.Err()
}

func (s *SQLiteStore) MarkSettled(ctx context.Context, hostIndex int) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET settled = 1, updated_at = ? WHERE host_index = ? AND settled = 0`,
		s.now().UTC().Format(time.RFC3339Nano), hostIndex)
	if err != nil {
		return 0, fmt.Errorf("mark batch settled: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func decode(record []byte) (*payment.Transaction, error) {
	tx := new(payment.Transaction)
	if err := msgpack.Unmarshal(record, tx); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return tx, nil
}

// LastInvoice is the highest invoice number in any open batch, for
// seeding the invoice counter after a restart.
func (s *SQLiteStore) LastInvoice(ctx context.Context) (uint32, error) {
	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(invoice_number) FROM transactions WHERE settled = 0`).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("last invoice: %w", err)
	}
	return uint32(last.Int64), nil
}
