package amex

import (
	"fmt"
	"time"

	"go-pos-hostswitch/internal/payment"
)

type TransactionType int

const (
	Sale TransactionType = iota
	Refund
	PreAuth
	OfflineSale
	PreAuthCompletion
	TcUpload
)

func (t TransactionType) String() string {
	switch t {
	case Sale:
		return "SALE"
	case Refund:
		return "REFUND"
	case PreAuth:
		return "PREAUTH"
	case OfflineSale:
		return "OFFLINE_SALE"
	case PreAuthCompletion:
		return "PREAUTH_COMPLETION"
	case TcUpload:
		return "TC_UPLOAD"
	}
	return fmt.Sprintf("TransactionType(%d)", int(t))
}

// TransactionStatus is the outcome of the transaction being followed up.
type TransactionStatus int

const (
	StatusOther TransactionStatus = iota
	StatusApproved
	StatusToAdvise
)

type InProgressStatus int

const (
	InProgressNone InProgressStatus = iota
	InProgressVoid
	InProgressCompletion
)

// Transaction is the Amex view of a cardholder transaction.
type Transaction struct {
	PAN               string
	ProcessingCode    string
	Amount            *payment.Amount
	PreauthAmount     *payment.Amount
	TipAmount         *payment.Amount
	OriginalTipAmount *payment.Amount
	STAN              uint32
	Expiry            string
	EntryMode         payment.EntryMode
	CardSequence      *uint32
	NII               uint32
	ConditionCode     payment.ConditionCode
	Track2            string
	Track1            string
	TID               string
	MID               string
	Amex4DBC          string
	PINBlock          []byte
	ICCData           []byte
	Type              TransactionType
	PreviousStatus    TransactionStatus
	InProgress        InProgressStatus
	IsAdjusted        bool
	TPDU              string
	InvoiceNumber     uint32
	BatchNumber       uint32
	TxDatetime        time.Time

	RRN          string
	AuthCode     string
	ResponseCode string
	IssuerScript []byte
}

func (t *Transaction) totalOriginal() (payment.Amount, bool) {
	return payment.Sum(t.Amount, t.OriginalTipAmount)
}

func (t *Transaction) total() (payment.Amount, bool) {
	return payment.Sum(t.Amount, t.OriginalTipAmount, t.TipAmount)
}

func (t *Transaction) totalPreauth() (payment.Amount, bool) {
	return payment.Sum(t.PreauthAmount, t.TipAmount)
}

// BatchTotals reconciles a batch in Amex terms: debits are sales and
// credits are refunds.
type BatchTotals struct {
	Currency string
	Debit    payment.BatchTotal
	Credit   payment.BatchTotal
}

type SettlementData struct {
	ProcessingCode string
	STAN           uint32
	TxDatetime     time.Time
	TPDU           string
	NII            uint32
	TID            string
	MID            string
	BatchNumber    uint32
	Totals         BatchTotals
	InvoiceNumber  uint32

	RRN          string
	ResponseCode string
}
