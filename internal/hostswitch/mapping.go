package hostswitch

import (
	"errors"
	"fmt"
	"time"

	"go-pos-hostswitch/internal/amex"
	"go-pos-hostswitch/internal/diners"
	"go-pos-hostswitch/internal/payment"
)

// ErrUnsupported is returned when a canonical value has no counterpart
// in the bound protocol.
var ErrUnsupported = errors.New("hostswitch: not supported by protocol")

type direction uint8

const (
	inbound  direction = 1 << iota // canonical record to host record
	outbound                       // host record back to canonical record
	both     = inbound | outbound
)

// fieldMap binds one field of a host transaction record to the
// canonical record.
type fieldMap[H any] struct {
	canonical string
	host      string
	dir       direction
	in        func(h *H, tx *payment.Transaction) error
	out       func(tx *payment.Transaction, h *H)
}

// same binds two fields of identical type.
func same[H, V any](canonical, host string, dir direction, c func(*payment.Transaction) *V, p func(*H) *V) fieldMap[H] {
	return fieldMap[H]{
		canonical: canonical,
		host:      host,
		dir:       dir,
		in: func(h *H, tx *payment.Transaction) error {
			*p(h) = *c(tx)
			return nil
		},
		out: func(tx *payment.Transaction, h *H) { *c(tx) = *p(h) },
	}
}

// enum binds an enumerated field through a lookup table. Values missing
// from the table map to fallback, or fail when fallback is nil.
func enum[H any, C, P comparable](canonical, host string, c func(*payment.Transaction) *C, p func(*H) *P, table map[C]P, fallback *P) fieldMap[H] {
	return fieldMap[H]{
		canonical: canonical,
		host:      host,
		dir:       inbound,
		in: func(h *H, tx *payment.Transaction) error {
			v, ok := table[*c(tx)]
			switch {
			case ok:
				*p(h) = v
			case fallback != nil:
				*p(h) = *fallback
			default:
				return fmt.Errorf("%w: %s %v", ErrUnsupported, canonical, *c(tx))
			}
			return nil
		},
	}
}

func translate[H any](table []fieldMap[H], tx *payment.Transaction) (*H, error) {
	h := new(H)
	for _, f := range table {
		if f.dir&inbound == 0 {
			continue
		}
		if err := f.in(h, tx); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func writeBack[H any](table []fieldMap[H], h *H, tx *payment.Transaction) {
	for _, f := range table {
		if f.dir&outbound != 0 {
			f.out(tx, h)
		}
	}
}

var dinersTypes = map[payment.TransactionType]diners.TransactionType{
	payment.Sale:                     diners.Sale,
	payment.QuasiCash:                diners.Sale,
	payment.Refund:                   diners.Refund,
	payment.PreAuth:                  diners.PreAuth,
	payment.Authorization:            diners.Authorization,
	payment.OfflineSale:              diners.OfflineSale,
	payment.PreAuthCompletionOnline:  diners.SaleCompletion,
	payment.PreAuthCompletionOffline: diners.SaleCompletion,
	payment.TcUpload:                 diners.TcUpload,
}

var dinersStatuses = map[payment.TransactionStatus]diners.TransactionStatus{
	payment.StatusInProgress: diners.StatusInProgress,
	payment.StatusApproved:   diners.StatusApproved,
	payment.StatusDeclined:   diners.StatusDeclined,
	payment.StatusNotAllowed: diners.StatusNotAllowed,
	payment.StatusToAdvise:   diners.StatusToAdvise,
}

var dinersInProgress = map[payment.InProgressStatus]diners.InProgressStatus{
	payment.InProgressNone:       diners.InProgressNone,
	payment.InProgressVoid:       diners.InProgressVoid,
	payment.InProgressCompletion: diners.InProgressSaleCompletion,
}

var dinersDeclined = diners.StatusDeclined

type (
	ptx = payment.Transaction
	dtx = diners.Transaction
)

// dinersFields is the complete mapping between the canonical record and
// diners.Transaction.
var dinersFields = []fieldMap[dtx]{
	same("PAN", "PAN", inbound, func(t *ptx) *string { return &t.PAN }, func(d *dtx) *string { return &d.PAN }),
	same("ProcessingCode", "ProcessingCode", both, func(t *ptx) *string { return &t.ProcessingCode }, func(d *dtx) *string { return &d.ProcessingCode }),
	same("Amount", "Amount", both, func(t *ptx) **payment.Amount { return &t.Amount }, func(d *dtx) **payment.Amount { return &d.Amount }),
	same("PreauthAmount", "PreauthAmount", inbound, func(t *ptx) **payment.Amount { return &t.PreauthAmount }, func(d *dtx) **payment.Amount { return &d.PreauthAmount }),
	same("AdditionalAmount", "AdditionalAmount", inbound, func(t *ptx) **payment.Amount { return &t.AdditionalAmount }, func(d *dtx) **payment.Amount { return &d.AdditionalAmount }),
	same("OriginalAdditionalAmount", "OriginalAdditionalAmount", inbound, func(t *ptx) **payment.Amount { return &t.OriginalAdditionalAmount }, func(d *dtx) **payment.Amount { return &d.OriginalAdditionalAmount }),
	same("IsPreauthCompleted", "IsPreauthCompleted", inbound, func(t *ptx) *bool { return &t.IsPreauthCompleted }, func(d *dtx) *bool { return &d.IsPreauthCompleted }),
	same("IsAdjusted", "IsAdjusted", inbound, func(t *ptx) *bool { return &t.IsAdjusted }, func(d *dtx) *bool { return &d.IsAdjusted }),
	same("STAN", "STAN", inbound, func(t *ptx) *uint32 { return &t.STAN }, func(d *dtx) *uint32 { return &d.STAN }),
	same("ExpirationDate", "ExpirationDate", inbound, func(t *ptx) *string { return &t.ExpirationDate }, func(d *dtx) *string { return &d.ExpirationDate }),
	same("EntryMode", "EntryMode", inbound, func(t *ptx) *payment.EntryMode { return &t.EntryMode }, func(d *dtx) *payment.EntryMode { return &d.EntryMode }),
	same("PanSequenceNumber", "PanSequenceNumber", inbound, func(t *ptx) **uint32 { return &t.PanSequenceNumber }, func(d *dtx) **uint32 { return &d.PanSequenceNumber }),
	same("NII", "NII", inbound, func(t *ptx) *uint32 { return &t.NII }, func(d *dtx) *uint32 { return &d.NII }),
	same("ConditionCode", "ConditionCode", inbound, func(t *ptx) *payment.ConditionCode { return &t.ConditionCode }, func(d *dtx) *payment.ConditionCode { return &d.ConditionCode }),
	same("Track2", "Track2", inbound, func(t *ptx) *string { return &t.Track2 }, func(d *dtx) *string { return &d.Track2 }),
	same("Track1", "Track1", inbound, func(t *ptx) *string { return &t.Track1 }, func(d *dtx) *string { return &d.Track1 }),
	same("TID", "TID", inbound, func(t *ptx) *string { return &t.TID }, func(d *dtx) *string { return &d.TID }),
	same("MID", "MID", inbound, func(t *ptx) *string { return &t.MID }, func(d *dtx) *string { return &d.MID }),
	same("CVV", "CVV", inbound, func(t *ptx) *string { return &t.CVV }, func(d *dtx) *string { return &d.CVV }),
	same("PINBlock", "PINBlock", inbound, func(t *ptx) *[]byte { return &t.PINBlock }, func(d *dtx) *[]byte { return &d.PINBlock }),
	same("ICCData", "ICCData", inbound, func(t *ptx) *[]byte { return &t.ICCData }, func(d *dtx) *[]byte { return &d.ICCData }),
	same("AID", "AID", inbound, func(t *ptx) *string { return &t.AID }, func(d *dtx) *string { return &d.AID }),
	same("CardholderName", "CardholderName", inbound, func(t *ptx) *string { return &t.CardholderName }, func(d *dtx) *string { return &d.CardholderName }),
	enum("Type", "Type", func(t *ptx) *payment.TransactionType { return &t.Type }, func(d *dtx) *diners.TransactionType { return &d.Type }, dinersTypes, nil),
	enum("Status", "Status", func(t *ptx) *payment.TransactionStatus { return &t.Status }, func(d *dtx) *diners.TransactionStatus { return &d.Status }, dinersStatuses, &dinersDeclined),
	enum("PreviousStatus", "PreviousStatus", func(t *ptx) *payment.TransactionStatus { return &t.PreviousStatus }, func(d *dtx) *diners.TransactionStatus { return &d.PreviousStatus }, dinersStatuses, &dinersDeclined),
	enum("InProgress", "InProgress", func(t *ptx) *payment.InProgressStatus { return &t.InProgress }, func(d *dtx) *diners.InProgressStatus { return &d.InProgress }, dinersInProgress, nil),
	same("TPDU", "TPDU", inbound, func(t *ptx) *string { return &t.TPDU }, func(d *dtx) *string { return &d.TPDU }),
	same("InvoiceNumber", "InvoiceNumber", inbound, func(t *ptx) *uint32 { return &t.InvoiceNumber }, func(d *dtx) *uint32 { return &d.InvoiceNumber }),
	same("BatchNumber", "BatchNumber", inbound, func(t *ptx) *uint32 { return &t.BatchNumber }, func(d *dtx) *uint32 { return &d.BatchNumber }),
	same("TxDatetime", "TxDatetime", both, func(t *ptx) *time.Time { return &t.TxDatetime }, func(d *dtx) *time.Time { return &d.TxDatetime }),
	same("RRN", "RRN", both, func(t *ptx) *string { return &t.RRN }, func(d *dtx) *string { return &d.RRN }),
	same("AuthIDResponse", "AuthIDResponse", both, func(t *ptx) *string { return &t.AuthIDResponse }, func(d *dtx) *string { return &d.AuthIDResponse }),
	same("ResponseCode", "ResponseCode", both, func(t *ptx) *string { return &t.ResponseCode }, func(d *dtx) *string { return &d.ResponseCode }),
	same("IssuerEMVResponse", "IssuerEMVResponse", both, func(t *ptx) *[]byte { return &t.IssuerEMVResponse }, func(d *dtx) *[]byte { return &d.IssuerEMVResponse }),
}

var amexTypes = map[payment.TransactionType]amex.TransactionType{
	payment.Sale:                    amex.Sale,
	payment.QuasiCash:               amex.Sale,
	payment.Refund:                  amex.Refund,
	payment.PreAuth:                 amex.PreAuth,
	payment.OfflineSale:             amex.OfflineSale,
	payment.PreAuthCompletionOnline: amex.PreAuthCompletion,
	payment.TcUpload:                amex.TcUpload,
}

var amexStatuses = map[payment.TransactionStatus]amex.TransactionStatus{
	payment.StatusApproved: amex.StatusApproved,
	payment.StatusToAdvise: amex.StatusToAdvise,
}

var amexInProgress = map[payment.InProgressStatus]amex.InProgressStatus{
	payment.InProgressNone:       amex.InProgressNone,
	payment.InProgressVoid:       amex.InProgressVoid,
	payment.InProgressCompletion: amex.InProgressCompletion,
}

var amexOther = amex.StatusOther

type atx = amex.Transaction

// amexFields maps the canonical record onto amex.Transaction. The CVV
// travels as the Amex four-digit batch code and the tip fields carry
// the additional amounts.
var amexFields = []fieldMap[atx]{
	same("PAN", "PAN", inbound, func(t *ptx) *string { return &t.PAN }, func(a *atx) *string { return &a.PAN }),
	same("ProcessingCode", "ProcessingCode", both, func(t *ptx) *string { return &t.ProcessingCode }, func(a *atx) *string { return &a.ProcessingCode }),
	same("Amount", "Amount", both, func(t *ptx) **payment.Amount { return &t.Amount }, func(a *atx) **payment.Amount { return &a.Amount }),
	same("PreauthAmount", "PreauthAmount", inbound, func(t *ptx) **payment.Amount { return &t.PreauthAmount }, func(a *atx) **payment.Amount { return &a.PreauthAmount }),
	same("AdditionalAmount", "TipAmount", inbound, func(t *ptx) **payment.Amount { return &t.AdditionalAmount }, func(a *atx) **payment.Amount { return &a.TipAmount }),
	same("OriginalAdditionalAmount", "OriginalTipAmount", inbound, func(t *ptx) **payment.Amount { return &t.OriginalAdditionalAmount }, func(a *atx) **payment.Amount { return &a.OriginalTipAmount }),
	same("STAN", "STAN", inbound, func(t *ptx) *uint32 { return &t.STAN }, func(a *atx) *uint32 { return &a.STAN }),
	same("ExpirationDate", "Expiry", inbound, func(t *ptx) *string { return &t.ExpirationDate }, func(a *atx) *string { return &a.Expiry }),
	same("EntryMode", "EntryMode", inbound, func(t *ptx) *payment.EntryMode { return &t.EntryMode }, func(a *atx) *payment.EntryMode { return &a.EntryMode }),
	same("PanSequenceNumber", "CardSequence", inbound, func(t *ptx) **uint32 { return &t.PanSequenceNumber }, func(a *atx) **uint32 { return &a.CardSequence }),
	same("NII", "NII", inbound, func(t *ptx) *uint32 { return &t.NII }, func(a *atx) *uint32 { return &a.NII }),
	same("ConditionCode", "ConditionCode", inbound, func(t *ptx) *payment.ConditionCode { return &t.ConditionCode }, func(a *atx) *payment.ConditionCode { return &a.ConditionCode }),
	same("Track2", "Track2", inbound, func(t *ptx) *string { return &t.Track2 }, func(a *atx) *string { return &a.Track2 }),
	same("Track1", "Track1", inbound, func(t *ptx) *string { return &t.Track1 }, func(a *atx) *string { return &a.Track1 }),
	same("TID", "TID", inbound, func(t *ptx) *string { return &t.TID }, func(a *atx) *string { return &a.TID }),
	same("MID", "MID", inbound, func(t *ptx) *string { return &t.MID }, func(a *atx) *string { return &a.MID }),
	same("CVV", "Amex4DBC", inbound, func(t *ptx) *string { return &t.CVV }, func(a *atx) *string { return &a.Amex4DBC }),
	same("PINBlock", "PINBlock", inbound, func(t *ptx) *[]byte { return &t.PINBlock }, func(a *atx) *[]byte { return &a.PINBlock }),
	same("ICCData", "ICCData", inbound, func(t *ptx) *[]byte { return &t.ICCData }, func(a *atx) *[]byte { return &a.ICCData }),
	enum("Type", "Type", func(t *ptx) *payment.TransactionType { return &t.Type }, func(a *atx) *amex.TransactionType { return &a.Type }, amexTypes, nil),
	enum("PreviousStatus", "PreviousStatus", func(t *ptx) *payment.TransactionStatus { return &t.PreviousStatus }, func(a *atx) *amex.TransactionStatus { return &a.PreviousStatus }, amexStatuses, &amexOther),
	enum("InProgress", "InProgress", func(t *ptx) *payment.InProgressStatus { return &t.InProgress }, func(a *atx) *amex.InProgressStatus { return &a.InProgress }, amexInProgress, nil),
	same("IsAdjusted", "IsAdjusted", inbound, func(t *ptx) *bool { return &t.IsAdjusted }, func(a *atx) *bool { return &a.IsAdjusted }),
	same("TPDU", "TPDU", inbound, func(t *ptx) *string { return &t.TPDU }, func(a *atx) *string { return &a.TPDU }),
	same("InvoiceNumber", "InvoiceNumber", inbound, func(t *ptx) *uint32 { return &t.InvoiceNumber }, func(a *atx) *uint32 { return &a.InvoiceNumber }),
	same("BatchNumber", "BatchNumber", inbound, func(t *ptx) *uint32 { return &t.BatchNumber }, func(a *atx) *uint32 { return &a.BatchNumber }),
	same("TxDatetime", "TxDatetime", both, func(t *ptx) *time.Time { return &t.TxDatetime }, func(a *atx) *time.Time { return &a.TxDatetime }),
	same("RRN", "RRN", both, func(t *ptx) *string { return &t.RRN }, func(a *atx) *string { return &a.RRN }),
	same("AuthIDResponse", "AuthCode", both, func(t *ptx) *string { return &t.AuthIDResponse }, func(a *atx) *string { return &a.AuthCode }),
	same("ResponseCode", "ResponseCode", both, func(t *ptx) *string { return &t.ResponseCode }, func(a *atx) *string { return &a.ResponseCode }),
	same("IssuerEMVResponse", "IssuerScript", both, func(t *ptx) *[]byte { return &t.IssuerEMVResponse }, func(a *atx) *[]byte { return &a.IssuerScript }),
}

func dinersSettlement(s *payment.SettlementData) *diners.SettlementData {
	return &diners.SettlementData{
		STAN:          s.STAN,
		TxDatetime:    s.TxDatetime,
		TPDU:          s.TPDU,
		NII:           s.NII,
		TID:           s.TID,
		MID:           s.MID,
		BatchNumber:   s.BatchNumber,
		InvoiceNumber: s.InvoiceNumber,
		RRN:           s.RRN,
		Summary: diners.BatchTotals{
			Currency: s.Summary.Currency,
			Sales:    s.Summary.Sales,
			Refunds:  s.Summary.Refunds,
		},
	}
}

func amexSettlement(s *payment.SettlementData) *amex.SettlementData {
	return &amex.SettlementData{
		STAN:          s.STAN,
		TxDatetime:    s.TxDatetime,
		TPDU:          s.TPDU,
		NII:           s.NII,
		TID:           s.TID,
		MID:           s.MID,
		BatchNumber:   s.BatchNumber,
		InvoiceNumber: s.InvoiceNumber,
		RRN:           s.RRN,
		Totals: amex.BatchTotals{
			Currency: s.Summary.Currency,
			Debit:    s.Summary.Sales,
			Credit:   s.Summary.Refunds,
		},
	}
}

// settlementResult is the part of a host settlement record copied back.
type settlementResult struct {
	processingCode string
	when           time.Time
	rrn            string
	responseCode   string
}

func (r settlementResult) apply(s *payment.SettlementData) {
	s.ProcessingCode = r.processingCode
	s.TxDatetime = r.when
	s.RRN = r.rrn
	s.ResponseCode = r.responseCode
}
