package diners

import (
	"fmt"

	"go-pos-hostswitch/internal/iso8583"
	"go-pos-hostswitch/internal/payment"
)

// BuildSettlementRequest closes the batch. After a batch upload the
// host expects the 960000 processing code.
func BuildSettlementRequest(s *SettlementData, afterBatchUpload bool) (*iso8583.Apdu, error) {
	code := ProcessingCodeSettlement
	if afterBatchUpload {
		code = ProcessingCodeSettlementUpload
	}
	s.ProcessingCode = code
	totals, err := payment.Reconciliation(s.Summary.Sales, s.Summary.Refunds)
	if err != nil {
		return nil, err
	}

	req := newRequest(500)
	req.SetString(FieldProcessingCode, code)
	req.SetInt(FieldSTAN, uint64(s.STAN))
	req.SetInt(FieldNII, uint64(s.NII))
	setTerminal(req, s.TID, s.MID)
	setNumber6(req, Field60, s.BatchNumber)
	req.SetBytes(Field63, totals)
	return finish(req)
}

func ReadSettlementResponse(resp *iso8583.Apdu, s *SettlementData) error {
	c := correlation{processingCode: s.ProcessingCode, stan: s.STAN, checkSTAN: true, nii: s.NII, tid: s.TID}
	if err := validate(resp, 510, []int{FieldProcessingCode, FieldSTAN, FieldNII, FieldResponseCode, FieldTerminalID}, c); err != nil {
		return err
	}
	dt, ok, err := optionalHostDatetime(resp)
	if err != nil {
		return err
	}
	code, err := text(resp, FieldResponseCode)
	if err != nil {
		return err
	}
	rrn, err := optionalText(resp, FieldRRN)
	if err != nil {
		return err
	}
	if ok {
		s.TxDatetime = dt
	}
	s.ResponseCode = code
	s.RRN = rrn
	return nil
}

// BuildEchoTestRequest checks the link. An empty processing code
// defaults to 990000.
func BuildEchoTestRequest(t *TestTransaction) (*iso8583.Apdu, error) {
	if t.ProcessingCode == "" {
		t.ProcessingCode = ProcessingCodeEchoTest
	}
	req := newRequest(800)
	req.SetString(FieldProcessingCode, t.ProcessingCode)
	req.SetInt(FieldNII, uint64(t.NII))
	setTerminal(req, t.TID, t.MID)
	return finish(req)
}

func ReadEchoTestResponse(resp *iso8583.Apdu, t *TestTransaction) error {
	c := correlation{processingCode: t.ProcessingCode, nii: t.NII, tid: t.TID}
	if err := validate(resp, 810, networkMandatory, c); err != nil {
		return err
	}
	dt, ok, err := optionalHostDatetime(resp)
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

func BuildKeyDownloadRequest(k *TMKDownload) (*iso8583.Apdu, error) {
	k.ProcessingCode = ProcessingCodeKeyDownload

	req := newRequest(800)
	req.SetString(FieldProcessingCode, k.ProcessingCode)
	req.SetInt(FieldNII, uint64(k.NII))
	setTerminal(req, k.TID, k.MID)
	return finish(req)
}

// tmkOffset and tmkLength locate the encrypted TMK inside DE62.
const (
	tmkOffset = 2
	tmkLength = 16
)

var keyDownloadMandatory = []int{FieldProcessingCode, FieldNII, FieldResponseCode, FieldTerminalID, Field62}

// ReadKeyDownloadResponse accepts only an approved answer carrying the
// encrypted terminal master key.
func ReadKeyDownloadResponse(resp *iso8583.Apdu, k *TMKDownload) error {
	c := correlation{processingCode: k.ProcessingCode, nii: k.NII, tid: k.TID}
	if err := validate(resp, 810, keyDownloadMandatory, c); err != nil {
		return err
	}
	code, err := text(resp, FieldResponseCode)
	if err != nil {
		return err
	}
	if code != "00" {
		return fmt.Errorf("%w: response code %s", ErrNotApproved, code)
	}
	dt, ok, err := optionalHostDatetime(resp)
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

	if ok {
		k.TxDatetime = dt
	}
	k.ResponseCode = code
	k.TMK = append([]byte(nil), f62[tmkOffset:tmkOffset+tmkLength]...)
	return nil
}
