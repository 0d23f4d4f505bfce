package payment

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrTotalsOverflow is returned when a batch counter does not fit the
// reconciliation record.
var ErrTotalsOverflow = errors.New("batch totals exceed reconciliation field width")

const (
	maxReconciliationCount  = 999
	maxReconciliationAmount = 999999999999
)

// BatchTotal is a count of transactions and their summed amount.
type BatchTotal struct {
	Count uint32
	Total uint64
}

// Add accumulates rhs into t.
func (t *BatchTotal) Add(rhs BatchTotal) {
	t.Count += rhs.Count
	t.Total += rhs.Total
}

// BatchTotals is the reconciliation summary of one host batch.
type BatchTotals struct {
	Currency string
	Sales    BatchTotal
	Refunds  BatchTotal
}

// Reconciliation renders the DE63 settlement record: sales count and
// total, refunds count and total, then 60 zeros for the debit-side
// counters the terminal does not keep.
func Reconciliation(sales, refunds BatchTotal) ([]byte, error) {
	for _, t := range []BatchTotal{sales, refunds} {
		if t.Count > maxReconciliationCount || t.Total > maxReconciliationAmount {
			return nil, fmt.Errorf("%w: count %d total %d", ErrTotalsOverflow, t.Count, t.Total)
		}
	}
	return []byte(fmt.Sprintf("%03d%012d%03d%012d%s",
		sales.Count, sales.Total, refunds.Count, refunds.Total, strings.Repeat("0", 60))), nil
}

// SettlementData is the settlement request and response for one host.
type SettlementData struct {
	ProcessingCode string
	STAN           uint32
	TxDatetime     time.Time
	TPDU           string
	NII            uint32
	TID            string
	MID            string
	BatchNumber    uint32
	Summary        BatchTotals
	InvoiceNumber  uint32

	RRN          string
	ResponseCode string
}

// TestTransaction is a network-management echo.
type TestTransaction struct {
	ProcessingCode string
	STAN           uint32
	TPDU           string
	NII            uint32
	TID            string
	MID            string

	HostDatetime time.Time
	ResponseCode string
}

// TMKDownload requests the terminal master key from the host.
type TMKDownload struct {
	ProcessingCode string
	STAN           uint32
	TPDU           string
	NII            uint32
	TID            string
	MID            string

	TxDatetime   time.Time
	ResponseCode string
	TMK          []byte
}

// KeyExchange requests fresh working keys encrypted under the TMK.
type KeyExchange struct {
	ProcessingCode string
	STAN           uint32
	TPDU           string
	NII            uint32
	TID            string
	MID            string

	TxDatetime   time.Time
	ResponseCode string
	PINKey       []byte
	TLEKey       []byte
}
