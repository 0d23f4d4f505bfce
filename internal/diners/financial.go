package diners

import (
	"go-pos-hostswitch/internal/iso8583"
)

// authorization builds the shared body of sale, refund and preauth
// requests. Clear PAN and expiry travel only for keyed entry.
func authorization(mti int, tx *Transaction) (*iso8583.Apdu, error) {
	code, err := ProcessingCode(tx.Type, false)
	if err != nil {
		return nil, err
	}
	amount, ok := requestAmount(tx)
	if !ok {
		return nil, ErrMissingAmount
	}
	tx.ProcessingCode = code

	req := newRequest(mti)
	if tx.EntryMode.IsKeyed() {
		setPAN(req, tx)
		setExpiry(req, tx)
	}
	req.SetString(FieldProcessingCode, code)
	setAmount(req, amount)
	req.SetInt(FieldSTAN, uint64(tx.STAN))
	if err := setPOS(req, tx); err != nil {
		return nil, err
	}
	if tx.Track2 != "" {
		req.SetString(FieldTrack2, tx.Track2)
	}
	setTerminal(req, tx.TID, tx.MID)
	return req, nil
}

// withCardholderData adds the fields a refund never carries.
func withCardholderData(req *iso8583.Apdu, tx *Transaction) {
	if tx.CVV != "" {
		req.SetString(FieldAdditionalDataPrivate, tx.CVV)
	}
	setBytes(req, FieldPINBlock, tx.PINBlock)
	setBytes(req, FieldICCData, tx.ICCData)
	setNumber6(req, Field60, tx.BatchNumber)
}

func BuildSaleRequest(tx *Transaction) (*iso8583.Apdu, error) {
	req, err := authorization(200, tx)
	if err != nil {
		return nil, err
	}
	withCardholderData(req, tx)
	setNumber6(req, Field62, tx.InvoiceNumber)
	return finish(req)
}

func ReadSaleResponse(resp *iso8583.Apdu, tx *Transaction) error {
	if err := validate(resp, 210, financialMandatory, txCorrelation(tx)); err != nil {
		return err
	}
	return copyAuthorization(resp, tx)
}

func BuildRefundRequest(tx *Transaction) (*iso8583.Apdu, error) {
	req, err := authorization(200, tx)
	if err != nil {
		return nil, err
	}
	return finish(req)
}

func ReadRefundResponse(resp *iso8583.Apdu, tx *Transaction) error {
	if err := validate(resp, 210, financialMandatory, txCorrelation(tx)); err != nil {
		return err
	}
	return copyAuthorization(resp, tx)
}

func BuildPreAuthRequest(tx *Transaction) (*iso8583.Apdu, error) {
	req, err := authorization(100, tx)
	if err != nil {
		return nil, err
	}
	withCardholderData(req, tx)
	setNumber6(req, Field62, tx.InvoiceNumber)
	return finish(req)
}

func ReadPreAuthResponse(resp *iso8583.Apdu, tx *Transaction) error {
	if err := validate(resp, 110, financialMandatory, txCorrelation(tx)); err != nil {
		return err
	}
	return copyAuthorization(resp, tx)
}

// copyAuthorization stores the host's answer on tx.
func copyAuthorization(resp *iso8583.Apdu, tx *Transaction) error {
	dt, err := hostDatetime(resp)
	if err != nil {
		return err
	}
	rrn, err := text(resp, FieldRRN)
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
	var emv []byte
	if resp.HasField(FieldICCData) {
		if emv, err = resp.GetBytes(FieldICCData); err != nil {
			return err
		}
	}

	tx.TxDatetime = dt
	tx.RRN = rrn
	if authID != "" {
		tx.AuthIDResponse = authID
	}
	tx.ResponseCode = code
	tx.IssuerEMVResponse = emv
	return nil
}

// cancellation builds the shared body of voids and reversals.
func cancellation(mti int, code string, tx *Transaction) *iso8583.Apdu {
	tx.ProcessingCode = code

	req := newRequest(mti)
	setPAN(req, tx)
	req.SetString(FieldProcessingCode, code)
	if amount, ok := cancelAmount(tx); ok {
		setAmount(req, amount)
	}
	req.SetInt(FieldSTAN, uint64(tx.STAN))
	setExpiry(req, tx)
	return req
}

func withAdjustment(req *iso8583.Apdu, tx *Transaction) {
	if !carriesAdjustment(tx) {
		return
	}
	setTextAmount(req, FieldAdditionalAmount, *tx.AdditionalAmount)
	if orig, ok := tx.TotalOriginalAmount(); ok {
		setTextAmount(req, Field60, orig)
	}
}

func BuildVoidRequest(tx *Transaction) (*iso8583.Apdu, error) {
	code, err := ProcessingCode(tx.Type, true)
	if err != nil {
		return nil, err
	}
	req := cancellation(200, code, tx)
	setDateTime(req, now())
	if err := setPOS(req, tx); err != nil {
		return nil, err
	}
	req.SetString(FieldRRN, tx.RRN)
	setTerminal(req, tx.TID, tx.MID)
	setBytes(req, FieldPINBlock, tx.PINBlock)
	withAdjustment(req, tx)
	setNumber6(req, Field62, tx.InvoiceNumber)
	return finish(req)
}

func ReadVoidResponse(resp *iso8583.Apdu, tx *Transaction) error {
	if err := validate(resp, 210, financialMandatory, txCorrelation(tx)); err != nil {
		return err
	}
	return copyCancellation(resp, tx)
}

// BuildReversalRequest reverses tx. The processing code is the void
// variant only while a void is in progress.
func BuildReversalRequest(tx *Transaction) (*iso8583.Apdu, error) {
	code, err := ProcessingCode(tx.Type, tx.InProgress == InProgressVoid)
	if err != nil {
		return nil, err
	}
	req := cancellation(400, code, tx)
	setDateTime(req, tx.TxDatetime)
	if err := setPOS(req, tx); err != nil {
		return nil, err
	}
	if tx.RRN != "" {
		req.SetString(FieldRRN, tx.RRN)
	}
	setTerminal(req, tx.TID, tx.MID)
	setBytes(req, FieldPINBlock, tx.PINBlock)
	withAdjustment(req, tx)
	setBytes(req, FieldICCData, tx.ICCData)
	setNumber6(req, Field62, tx.InvoiceNumber)
	return finish(req)
}

func ReadReversalResponse(resp *iso8583.Apdu, tx *Transaction) error {
	if err := validate(resp, 410, financialMandatory, txCorrelation(tx)); err != nil {
		return err
	}
	return copyCancellation(resp, tx)
}

func copyCancellation(resp *iso8583.Apdu, tx *Transaction) error {
	dt, err := hostDatetime(resp)
	if err != nil {
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
	authID, err := optionalText(resp, FieldAuthorizationID)
	if err != nil {
		return err
	}

	tx.TxDatetime = dt
	tx.RRN = rrn
	tx.ResponseCode = code
	if authID != "" {
		tx.AuthIDResponse = authID
	}
	return nil
}
