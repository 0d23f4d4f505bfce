package diners

import (
	"fmt"
	"time"

	"go-pos-hostswitch/internal/payment"
)

// TransactionType is the Diners message family of a transaction.
type TransactionType int

const (
	Authorization TransactionType = iota
	Sale
	OfflineSale
	Refund
	PreAuth
	SaleCompletion
	TcUpload
)

func (t TransactionType) String() string {
	switch t {
	case Authorization:
		return "AUTHORIZATION"
	case Sale:
		return "SALE"
	case OfflineSale:
		return "OFFLINE_SALE"
	case Refund:
		return "REFUND"
	case PreAuth:
		return "PREAUTH"
	case SaleCompletion:
		return "SALE_COMPLETION"
	case TcUpload:
		return "TC_UPLOAD"
	}
	return fmt.Sprintf("TransactionType(%d)", int(t))
}

func (t TransactionType) isPreAuthFamily() bool {
	return t == PreAuth || t == Authorization
}

// TransactionStatus is the subset of local outcomes Diners messages act on.
type TransactionStatus int

const (
	StatusInProgress TransactionStatus = iota
	StatusApproved
	StatusDeclined
	StatusNotAllowed
	StatusToAdvise
)

// InProgressStatus marks a follow-up running on a stored transaction.
type InProgressStatus int

const (
	InProgressNone InProgressStatus = iota
	InProgressVoid
	InProgressSaleCompletion
)

// Transaction is the Diners view of a cardholder transaction.
type Transaction struct {
	PAN                      string
	ProcessingCode           string
	Amount                   *payment.Amount
	PreauthAmount            *payment.Amount
	AdditionalAmount         *payment.Amount
	OriginalAdditionalAmount *payment.Amount
	IsPreauthCompleted       bool
	IsAdjusted               bool
	STAN                     uint32
	ExpirationDate           string
	EntryMode                payment.EntryMode
	PanSequenceNumber        *uint32
	NII                      uint32
	ConditionCode            payment.ConditionCode
	Track2                   string
	Track1                   string
	TID                      string
	MID                      string
	CVV                      string
	PINBlock                 []byte
	ICCData                  []byte
	AID                      string
	CardholderName           string
	Type                     TransactionType
	Status                   TransactionStatus
	PreviousStatus           TransactionStatus
	InProgress               InProgressStatus
	TPDU                     string
	InvoiceNumber            uint32
	BatchNumber              uint32
	TxDatetime               time.Time

	RRN               string
	AuthIDResponse    string
	ResponseCode      string
	IssuerEMVResponse []byte
}

func (t *Transaction) TotalOriginalAmount() (payment.Amount, bool) {
	return payment.Sum(t.Amount, t.OriginalAdditionalAmount)
}

func (t *Transaction) TotalAmount() (payment.Amount, bool) {
	return payment.Sum(t.Amount, t.OriginalAdditionalAmount, t.AdditionalAmount)
}

func (t *Transaction) TotalPreauthAmount() (payment.Amount, bool) {
	return payment.Sum(t.PreauthAmount, t.AdditionalAmount)
}

// BatchTotals is the reconciliation summary sent on settlement.
type BatchTotals struct {
	Currency string
	Sales    payment.BatchTotal
	Refunds  payment.BatchTotal
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
	Summary        BatchTotals
	InvoiceNumber  uint32

	RRN          string
	ResponseCode string
}

// TestTransaction is an 0800 echo.
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

// TMKDownload requests the terminal master key.
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
