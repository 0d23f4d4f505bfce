package fdms

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"go-pos-hostswitch/internal/iso8583"
	"go-pos-hostswitch/internal/payment"
)

const (
	ProcessingCodeSettlement       = "920000"
	ProcessingCodeSettlementUpload = "960000"
	ProcessingCodeKeyDownload      = "920000"
	ProcessingCodeKeyExchange      = "930000"
	ProcessingCodeEchoTest         = "990000"
)

var networkMandatory = []int{FieldProcessingCode, FieldNII, FieldResponseCode, FieldTerminalID}

func network(mti int, code string, stan, nii uint32, tid, mid string) *iso8583.Apdu {
	req := iso8583.New(Spec)
	req.SetMTI(mti)
	req.SetString(FieldProcessingCode, code)
	req.SetInt(FieldSTAN, uint64(stan))
	req.SetInt(FieldNII, uint64(nii))
	req.SetString(FieldTerminalID, tid)
	if mid != "" {
		req.SetString(FieldMerchantID, mid)
	}
	return req
}

func approvedCode(resp *iso8583.Apdu) (string, error) {
	code, err := text(resp, FieldResponseCode)
	if err != nil {
		return "", err
	}
	if code != "00" {
		return code, fmt.Errorf("%w: response code %s", ErrNotApproved, code)
	}
	return code, nil
}

var uploadMTI = map[payment.TransactionType]int{
	payment.Sale:                     200,
	payment.QuasiCash:                200,
	payment.InstalmentSale:           200,
	payment.Refund:                   200,
	payment.OfflineSale:              220,
	payment.PreAuthCompletionOnline:  220,
	payment.PreAuthCompletionOffline: 220,
}

// BuildBatchUpload restates one stored transaction under a fresh batch
// STAN. DE60 carries the original MTI and STAN.
func BuildBatchUpload(tx *payment.Transaction, batchSTAN uint32) (*iso8583.Apdu, error) {
	mti, ok := uploadMTI[tx.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot be uploaded", ErrNoProcessingCode, tx.Type)
	}
	code, err := ProcessingCode(tx.Type, false)
	if err != nil {
		return nil, err
	}
	amount, ok := tx.TotalAmount()
	if !ok {
		return nil, fmt.Errorf("%w: batch upload", ErrMissingAmount)
	}
	tx.ProcessingCode = code

	req := network(320, code, batchSTAN, tx.NII, tx.TID, tx.MID)
	if tx.PAN != "" {
		req.SetString(FieldPAN, tx.PAN)
	}
	req.SetInt(FieldAmount, uint64(amount))
	if !tx.TxDatetime.IsZero() {
		req.SetString(FieldTimeLocal, iso8583.IsoTime(tx.TxDatetime))
		req.SetString(FieldDateLocal, iso8583.IsoDate(tx.TxDatetime))
	}
	if tx.ExpirationDate != "" {
		req.SetString(FieldDateExpiration, tx.ExpirationDate)
	}
	req.SetString(FieldPOSEntryMode, tx.EntryMode.POSEntryMode())
	if tx.RRN != "" {
		req.SetString(FieldRRN, tx.RRN)
	}
	if tx.AuthIDResponse != "" {
		req.SetString(FieldAuthorizationID, tx.AuthIDResponse)
	}
	if tx.ResponseCode != "" {
		req.SetString(FieldResponseCode, tx.ResponseCode)
	}
	req.SetString(Field60, fmt.Sprintf("%04d%06d%s", mti, tx.STAN, strings.Repeat(" ", 12)))
	req.SetString(Field62, fmt.Sprintf("%06d", tx.InvoiceNumber))
	if err := req.Err(); err != nil {
		return nil, err
	}
	return req, nil
}

func ReadBatchUpload(resp *iso8583.Apdu, tx *payment.Transaction) error {
	c := correlation{processingCode: tx.ProcessingCode, nii: tx.NII, tid: tx.TID}
	if err := validate(resp, 330, networkMandatory, c); err != nil {
		return err
	}
	_, err := approvedCode(resp)
	return err
}

func BuildSettlement(s *payment.SettlementData, afterBatchUpload bool) (*iso8583.Apdu, error) {
	code := ProcessingCodeSettlement
	if afterBatchUpload {
		code = ProcessingCodeSettlementUpload
	}
	s.ProcessingCode = code
	totals, err := payment.Reconciliation(s.Summary.Sales, s.Summary.Refunds)
	if err != nil {
		return nil, err
	}

	req := network(500, code, s.STAN, s.NII, s.TID, s.MID)
	req.SetString(Field60, fmt.Sprintf("%06d", s.BatchNumber))
	req.SetBytes(Field63, totals)
	if err := req.Err(); err != nil {
		return nil, err
	}
	return req, nil
}

func ReadSettlement(resp *iso8583.Apdu, s *payment.SettlementData) error {
	c := correlation{processingCode: s.ProcessingCode, stan: s.STAN, checkSTAN: true, nii: s.NII, tid: s.TID}
	if err := validate(resp, 510, append([]int{FieldSTAN}, networkMandatory...), c); err != nil {
		return err
	}
	dt, ok, err := hostDatetime(resp)
	if err != nil {
		return err
	}
	code, err := text(resp, FieldResponseCode)
	if err != nil {
		return err
	}
	var rrn string
	if resp.HasField(FieldRRN) {
		if rrn, err = text(resp, FieldRRN); err != nil {
			return err
		}
	}
	if ok {
		s.TxDatetime = dt
	}
	s.ResponseCode = code
	s.RRN = rrn
	return nil
}

func BuildEchoTest(t *payment.TestTransaction) (*iso8583.Apdu, error) {
	if t.ProcessingCode == "" {
		t.ProcessingCode = ProcessingCodeEchoTest
	}
	req := network(800, t.ProcessingCode, t.STAN, t.NII, t.TID, t.MID)
	if err := req.Err(); err != nil {
		return nil, err
	}
	return req, nil
}

func ReadEchoTest(resp *iso8583.Apdu, t *payment.TestTransaction) error {
	c := correlation{processingCode: t.ProcessingCode, nii: t.NII, tid: t.TID}
	if err := validate(resp, 810, networkMandatory, c); err != nil {
		return err
	}
	dt, ok, err := hostDatetime(resp)
	if err != nil {
		return err
	}
	code, err := text(resp, FieldResponseCode)
	if err != nil {
		return err
	}
	if ok {
		t.HostDatetime = dt
	}
	t.ResponseCode = code
	return nil
}

const (
	tmkOffset = 2
	tmkLength = 16
)

func BuildTMKDownload(k *payment.TMKDownload) (*iso8583.Apdu, error) {
	k.ProcessingCode = ProcessingCodeKeyDownload
	req := network(800, k.ProcessingCode, k.STAN, k.NII, k.TID, k.MID)
	if err := req.Err(); err != nil {
		return nil, err
	}
	return req, nil
}

// ReadTMKDownload accepts only an approved answer. The encrypted
// terminal master key sits at a fixed offset in DE62.
func ReadTMKDownload(resp *iso8583.Apdu, k *payment.TMKDownload) error {
	c := correlation{processingCode: k.ProcessingCode, nii: k.NII, tid: k.TID}
	if err := validate(resp, 810, append([]int{Field62}, networkMandatory...), c); err != nil {
		return err
	}
	code, err := approvedCode(resp)
	if err != nil {
		return err
	}
	f62, err := resp.GetBytes(Field62)
	if err != nil {
		return err
	}
	if len(f62) < tmkOffset+tmkLength {
		return fmt.Errorf("%w %d: %d bytes, TMK needs %d", ErrMalformedField, Field62, len(f62), tmkOffset+tmkLength)
	}
	dt, ok, err := hostDatetime(resp)
	if err != nil {
		return err
	}
	if ok {
		k.TxDatetime = dt
	}
	k.ResponseCode = code
	k.TMK = bytes.Clone(f62[tmkOffset : tmkOffset+tmkLength])
	return nil
}

// Key table entries in DE63 are a two-character tag, a three-digit
// length and the value. Tag KP carries the PIN key then the TLE key.
const (
	keyTagWorkingKeys = "KP"
	keyLength         = 16
)

func BuildKeyExchange(k *payment.KeyExchange) (*iso8583.Apdu, error) {
	k.ProcessingCode = ProcessingCodeKeyExchange
	req := network(800, k.ProcessingCode, k.STAN, k.NII, k.TID, k.MID)
	if err := req.Err(); err != nil {
		return nil, err
	}
	return req, nil
}

func ReadKeyExchange(resp *iso8583.Apdu, k *payment.KeyExchange) error {
	c := correlation{processingCode: k.ProcessingCode, stan: k.STAN, checkSTAN: true, nii: k.NII, tid: k.TID}
	mandatory := append([]int{FieldSTAN, Field63}, networkMandatory...)
	if err := validate(resp, 810, mandatory, c); err != nil {
		return err
	}
	code, err := approvedCode(resp)
	if err != nil {
		return err
	}
	table, err := resp.GetBytes(Field63)
	if err != nil {
		return err
	}
	keys, err := parseKeyTable(table)
	if err != nil {
		return err
	}
	kp, ok := keys[keyTagWorkingKeys]
	if !ok || len(kp) < 2*keyLength {
		return fmt.Errorf("%w %d: tag %s missing or short", ErrMalformedField, Field63, keyTagWorkingKeys)
	}
	dt, ok, err := hostDatetime(resp)
	if err != nil {
		return err
	}
	if ok {
		k.TxDatetime = dt
	}
	k.ResponseCode = code
	k.PINKey = bytes.Clone(kp[:keyLength])
	k.TLEKey = bytes.Clone(kp[keyLength : 2*keyLength])
	return nil
}

func parseKeyTable(b []byte) (map[string][]byte, error) {
	table := make(map[string][]byte)
	for len(b) > 0 {
		if len(b) < 5 {
			return nil, fmt.Errorf("%w %d: truncated tag header", ErrMalformedField, Field63)
		}
		tag := string(b[:2])
		n, err := strconv.Atoi(string(b[2:5]))
		if err != nil || n < 0 || len(b) < 5+n {
			return nil, fmt.Errorf("%w %d: bad length for tag %s", ErrMalformedField, Field63, tag)
		}
		table[tag] = b[5 : 5+n]
		b = b[5+n:]
	}
	return table, nil
}
