package diners

import (
	"fmt"
	"strings"

	"go-pos-hostswitch/internal/iso8583"
)

// advice builds the shared head of 0220/0320 messages: card, amount,
// original transaction time and POS data.
func advice(mti int, code string, tx *Transaction) (*iso8583.Apdu, error) {
	amount, ok := tx.TotalAmount()
	if !ok {
		return nil, ErrMissingAmount
	}
	tx.ProcessingCode = code

	req := newRequest(mti)
	setPAN(req, tx)
	req.SetString(FieldProcessingCode, code)
	setAmount(req, amount)
	req.SetInt(FieldSTAN, uint64(tx.STAN))
	setDateTime(req, tx.TxDatetime)
	if err := setPOS(req, tx); err != nil {
		return nil, err
	}
	return req, nil
}

func BuildOfflineSaleRequest(tx *Transaction) (*iso8583.Apdu, error) {
	code, err := ProcessingCode(tx.Type, false)
	if err != nil {
		return nil, err
	}
	req, err := advice(220, code, tx)
	if err != nil {
		return nil, err
	}
	setExpiry(req, tx)
	if tx.Type == SaleCompletion {
		req.SetString(FieldRRN, tx.RRN)
		req.SetString(FieldResponseCode, tx.ResponseCode)
	}
	req.SetString(FieldAuthorizationID, tx.AuthIDResponse)
	setTerminal(req, tx.TID, tx.MID)
	setNumber6(req, Field60, tx.BatchNumber)
	setNumber6(req, Field62, tx.InvoiceNumber)
	return finish(req)
}

func ReadOfflineSaleResponse(resp *iso8583.Apdu, tx *Transaction) error {
	if err := validate(resp, 230, adviceMandatory, txCorrelation(tx)); err != nil {
		return err
	}
	rrn, err := text(resp, FieldRRN)
	if err != nil {
		return err
	}
	code, err := text(resp, FieldResponseCode)
	if err != nil {
		return err
	}
	tx.RRN = rrn
	tx.ResponseCode = code
	return nil
}

// BuildSaleCompletionRequest completes a preauthorization the host
// already approved, quoting its RRN and approval code.
func BuildSaleCompletionRequest(tx *Transaction) (*iso8583.Apdu, error) {
	code, err := ProcessingCode(tx.Type, false)
	if err != nil {
		return nil, err
	}
	req, err := advice(220, code, tx)
	if err != nil {
		return nil, err
	}
	setExpiry(req, tx)
	req.SetString(FieldRRN, tx.RRN)
	req.SetString(FieldAuthorizationID, tx.AuthIDResponse)
	req.SetString(FieldResponseCode, tx.ResponseCode)
	setTerminal(req, tx.TID, tx.MID)
	setNumber6(req, Field60, tx.BatchNumber)
	setNumber6(req, Field62, tx.InvoiceNumber)
	return finish(req)
}

func ReadSaleCompletionResponse(resp *iso8583.Apdu, tx *Transaction) error {
	if err := validate(resp, 210, financialMandatory, txCorrelation(tx)); err != nil {
		return err
	}
	dt, err := hostDatetime(resp)
	if err != nil {
		return err
	}
	authID, err := optionalText(resp, FieldAuthorizationID)
	if err != nil {
		return err
	}
	code, err := text(resp, FieldResponseCode)
	if err != nil {
		return err
	}
	tx.TxDatetime = dt
	if authID != "" {
		tx.AuthIDResponse = authID
	}
	tx.ResponseCode = code
	return nil
}

// BuildTipAdjustRequest restates an approved sale with its new tip.
// DE60 carries the total before the adjustment.
func BuildTipAdjustRequest(tx *Transaction) (*iso8583.Apdu, error) {
	req, err := advice(220, ProcessingCodeTipAdjust, tx)
	if err != nil {
		return nil, err
	}
	setDateTime(req, now())
	setExpiry(req, tx)
	req.SetString(FieldRRN, tx.RRN)
	req.SetString(FieldAuthorizationID, tx.AuthIDResponse)
	req.SetString(FieldResponseCode, tx.ResponseCode)
	setTerminal(req, tx.TID, tx.MID)
	if tx.AdditionalAmount != nil {
		setTextAmount(req, FieldAdditionalAmount, *tx.AdditionalAmount)
	}
	if orig, ok := tx.TotalOriginalAmount(); ok {
		setTextAmount(req, Field60, orig)
	}
	setNumber6(req, Field62, tx.InvoiceNumber)
	return finish(req)
}

func ReadTipAdjustResponse(resp *iso8583.Apdu, tx *Transaction) error {
	if err := validate(resp, 230, adviceMandatory, txCorrelation(tx)); err != nil {
		return err
	}
	code, err := text(resp, FieldResponseCode)
	if err != nil {
		return err
	}
	rrn, err := text(resp, FieldRRN)
	if err != nil {
		return err
	}
	if resp.HasField(Field60) {
		amount, err := textAmount(resp, Field60)
		if err != nil {
			return err
		}
		tx.Amount = &amount
	}
	tx.ResponseCode = code
	tx.RRN = rrn
	return nil
}

// BuildTcUploadRequest sends the chip transaction certificate of an
// approved transaction.
func BuildTcUploadRequest(tx *Transaction) (*iso8583.Apdu, error) {
	code, err := ProcessingCode(TcUpload, false)
	if err != nil {
		return nil, err
	}
	req, err := advice(320, code, tx)
	if err != nil {
		return nil, err
	}
	req.SetString(FieldRRN, tx.RRN)
	req.SetString(FieldResponseCode, tx.ResponseCode)
	setTerminal(req, tx.TID, tx.MID)
	setBytes(req, FieldICCData, tx.ICCData)
	setNumber6(req, Field62, tx.InvoiceNumber)
	return finish(req)
}

func ReadTcUploadResponse(resp *iso8583.Apdu, tx *Transaction) error {
	if err := validate(resp, 330, financialMandatory, txCorrelation(tx)); err != nil {
		return err
	}
	dt, err := hostDatetime(resp)
	if err != nil {
		return err
	}
	code, err := text(resp, FieldResponseCode)
	if err != nil {
		return err
	}
	tx.TxDatetime = dt
	tx.ResponseCode = code
	return nil
}

// originalMTI is the message class a batch upload restates.
var originalMTI = map[TransactionType]string{
	Sale:           "0200",
	Refund:         "0200",
	OfflineSale:    "0220",
	SaleCompletion: "0220",
	PreAuth:        "0100",
	Authorization:  "0100",
}

// BuildBatchUploadRequest restates one stored transaction under the
// batch upload STAN. DE60 holds the original MTI and STAN.
func BuildBatchUploadRequest(tx *Transaction, batchSTAN uint32) (*iso8583.Apdu, error) {
	code, err := ProcessingCode(tx.Type, false)
	if err != nil {
		return nil, err
	}
	mti, ok := originalMTI[tx.Type]
	if !ok {
		return nil, fmt.Errorf("%w: no batch upload for %s", ErrNoProcessingCode, tx.Type)
	}
	amount, ok := requestAmount(tx)
	if !ok {
		return nil, ErrMissingAmount
	}
	tx.ProcessingCode = code

	req := newRequest(320)
	setPAN(req, tx)
	req.SetString(FieldProcessingCode, code)
	setAmount(req, amount)
	req.SetInt(FieldSTAN, uint64(batchSTAN))
	setDateTime(req, tx.TxDatetime)
	setExpiry(req, tx)
	if err := setPOS(req, tx); err != nil {
		return nil, err
	}
	req.Unset(FieldPANSequenceNumber)
	req.SetString(FieldRRN, tx.RRN)
	req.SetString(FieldAuthorizationID, tx.AuthIDResponse)
	setTerminal(req, tx.TID, tx.MID)
	req.SetString(Field60, fmt.Sprintf("%s%06d%s", mti, tx.STAN, strings.Repeat(" ", 12)))
	setNumber6(req, Field62, tx.InvoiceNumber)
	return finish(req)
}

// ReadBatchUploadResponse accepts only an approved answer. The STAN is
// the batch upload one and is not compared with the stored transaction.
func ReadBatchUploadResponse(resp *iso8583.Apdu, tx *Transaction) error {
	c := txCorrelation(tx)
	c.checkSTAN = false
	if err := validate(resp, 330, networkMandatory, c); err != nil {
		return err
	}
	code, err := text(resp, FieldResponseCode)
	if err != nil {
		return err
	}
	if code != "00" {
		return fmt.Errorf("%w: response code %s", ErrNotApproved, code)
	}
	return nil
}
