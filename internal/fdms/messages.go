package fdms

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go-pos-hostswitch/internal/iso8583"
	"go-pos-hostswitch/internal/payment"
)

var (
	ErrNoProcessingCode  = errors.New("fdms: no processing code for transaction")
	ErrMissingAmount     = errors.New("fdms: amount required")
	ErrNotApproved       = errors.New("fdms: host did not approve")
	ErrMalformedField    = errors.New("fdms: malformed field")
	ErrInvalidInstalment = errors.New("fdms: invalid instalment plan")
)

var now = time.Now

// Kind is a request/response pair built from a payment.Transaction.
type Kind int

const (
	KindSale Kind = iota
	KindQuasiCash
	KindRefund
	KindPreAuth
	KindVoid
	KindReversal
	KindOfflineSale
	KindCompletion
	KindTipAdjust
	KindTcUpload
	KindPreAuthCancellation
	KindInstalmentSale
)

type actionKey struct {
	typ  payment.TransactionType
	void bool
}

var actionCodes = map[actionKey]string{
	{payment.Sale, false}:                     "00",
	{payment.Authorization, false}:            "00",
	{payment.OfflineSale, false}:              "00",
	{payment.PreAuthCompletionOnline, false}:  "00",
	{payment.PreAuthCompletionOffline, false}: "00",
	{payment.InstalmentSale, false}:           "00",
	{payment.QuasiCash, false}:                "11",
	{payment.Refund, false}:                   "20",
	{payment.PreAuth, false}:                  "30",
	{payment.TcUpload, false}:                 "94",

	{payment.Sale, true}:                     "02",
	{payment.OfflineSale, true}:              "02",
	{payment.PreAuthCompletionOnline, true}:  "02",
	{payment.PreAuthCompletionOffline, true}: "02",
	{payment.InstalmentSale, true}:           "02",
	{payment.QuasiCash, true}:                "02",
	{payment.Refund, true}:                   "22",
}

// ProcessingCode derives DE3 for a transaction type. Unlisted
// combinations are an error.
func ProcessingCode(typ payment.TransactionType, void bool) (string, error) {
	code, ok := actionCodes[actionKey{typ, void}]
	if !ok {
		return "", fmt.Errorf("%w: %s void=%t", ErrNoProcessingCode, typ, void)
	}
	return code + "0000", nil
}

// call is the state a request layout draws its values from.
type call struct {
	tx     *payment.Transaction
	op     *operation
	code   string
	amount *payment.Amount
	when   time.Time
}

// source writes one data element of a request. A source that has
// nothing to send leaves the field absent.
type source func(req *iso8583.Apdu, c *call) error

type copier func(resp *iso8583.Apdu, tx *payment.Transaction) error

type clock int

const (
	clockNone clock = iota
	clockNow
	clockOriginal
)

type operation struct {
	name      string
	mti       int
	respMTI   int
	code      func(tx *payment.Transaction) (string, error)
	amount    func(tx *payment.Transaction) (payment.Amount, bool)
	optional  bool // DE4 may be omitted
	dcc       bool // has enquiry and allowed variants
	keyedOnly bool // clear PAN and expiry only for keyed entry
	clock     clock
	adjusts   func(tx *payment.Transaction) bool
	layout    []int
	overrides map[int]source
	mandatory []int
	copies    []copier
}

var (
	authorizationLayout = []int{
		FieldPAN, FieldProcessingCode, FieldAmount, FieldSTAN, FieldDateExpiration,
		FieldPOSEntryMode, FieldPANSequenceNumber, FieldNII, FieldPOSConditionCode, FieldTrack2,
		FieldTerminalID, FieldMerchantID, FieldAdditionalData, FieldPINBlock, FieldICCData,
		Field60, Field62,
	}
	refundLayout = []int{
		FieldPAN, FieldProcessingCode, FieldAmount, FieldSTAN, FieldDateExpiration,
		FieldPOSEntryMode, FieldPANSequenceNumber, FieldNII, FieldPOSConditionCode, FieldTrack2,
		FieldTerminalID, FieldMerchantID, Field62,
	}
	cancelLayout = []int{
		FieldPAN, FieldProcessingCode, FieldAmount, FieldSTAN, FieldTimeLocal, FieldDateLocal,
		FieldDateExpiration, FieldPOSEntryMode, FieldPANSequenceNumber, FieldNII,
		FieldPOSConditionCode, FieldRRN, FieldTerminalID, FieldMerchantID, FieldPINBlock,
		FieldAdditionalAmount, Field60, Field62,
	}
	adviceLayout = []int{
		FieldPAN, FieldProcessingCode, FieldAmount, FieldSTAN, FieldTimeLocal, FieldDateLocal,
		FieldDateExpiration, FieldPOSEntryMode, FieldPANSequenceNumber, FieldNII,
		FieldPOSConditionCode, FieldRRN, FieldAuthorizationID, FieldResponseCode,
		FieldTerminalID, FieldMerchantID, Field60, Field62,
	}
)

var (
	financialMandatory = []int{FieldProcessingCode, FieldSTAN, FieldTimeLocal, FieldDateLocal, FieldNII, FieldRRN, FieldResponseCode, FieldTerminalID}
	adviceMandatory    = []int{FieldProcessingCode, FieldSTAN, FieldNII, FieldRRN, FieldResponseCode, FieldTerminalID}
)

var authorizationCopies = []copier{copyDatetime, copyRRN, copyAuthID, copyResponseCode, copyIssuerData}

var operations = map[Kind]*operation{
	KindSale: {
		name:   "sale", mti: 200, respMTI: 210, code: tableCode(false), amount: requestAmount, keyedOnly: true, dcc: true,
		layout: authorizationLayout, mandatory: financialMandatory, copies: authorizationCopies,
	},
	KindQuasiCash: {
		name:   "quasi cash", mti: 200, respMTI: 210, code: tableCode(false), amount: requestAmount, keyedOnly: true,
		layout: authorizationLayout, mandatory: financialMandatory, copies: authorizationCopies,
	},
	KindInstalmentSale: {
		name:      "instalment sale", mti: 200, respMTI: 210, code: tableCode(false), amount: requestAmount, keyedOnly: true,
		layout:    authorizationLayout, overrides: map[int]source{FieldAdditionalData: instalmentPlan},
		mandatory: financialMandatory, copies: authorizationCopies,
	},
	KindRefund: {
		name:   "refund", mti: 200, respMTI: 210, code: tableCode(false), amount: requestAmount, keyedOnly: true,
		layout: refundLayout, mandatory: financialMandatory,
		copies: []copier{copyDatetime, copyRRN, copyAuthID, copyResponseCode},
	},
	KindPreAuth: {
		name:   "preauth", mti: 100, respMTI: 110, code: tableCode(false), amount: requestAmount, keyedOnly: true, dcc: true,
		layout: authorizationLayout, mandatory: financialMandatory, copies: authorizationCopies,
	},
	KindPreAuthCancellation: {
		name:      "preauth cancellation", mti: 100, respMTI: 110, code: fixedCode("020000"), amount: preauthAmount,
		clock:     clockOriginal, layout: cancelLayout, overrides: map[int]source{Field60: nil, FieldAdditionalAmount: nil},
		mandatory: financialMandatory, copies: []copier{copyDatetime, copyRRN, copyAuthID, copyResponseCode},
	},
	KindVoid: {
		name:      "void", mti: 200, respMTI: 210, code: tableCode(true), amount: cancelAmount, optional: true,
		clock:     clockNow, adjusts: carriesAdjustment, layout: cancelLayout, overrides: map[int]source{Field60: originalTotal},
		mandatory: financialMandatory, copies: []copier{copyDatetime, copyRRN, copyAuthID, copyResponseCode},
	},
	KindReversal: {
		name:      "reversal", mti: 400, respMTI: 410, code: reversalCode, amount: cancelAmount, optional: true,
		clock:     clockOriginal, adjusts: carriesAdjustment, layout: append(append([]int(nil), cancelLayout...), FieldICCData),
		overrides: map[int]source{Field60: originalTotal},
		mandatory: financialMandatory, copies: []copier{copyDatetime, copyRRN, copyAuthID, copyResponseCode},
	},
	KindOfflineSale: {
		name:      "offline sale", mti: 220, respMTI: 230, code: tableCode(false), amount: totalAmount,
		clock:     clockOriginal, layout: adviceLayout, dcc: true,
		overrides: map[int]source{FieldRRN: completionOnly(FieldRRN), FieldResponseCode: completionOnly(FieldResponseCode)},
		mandatory: adviceMandatory, copies: []copier{copyRRN, copyResponseCode},
	},
	KindCompletion: {
		name:      "preauth completion", mti: 220, respMTI: 210, code: tableCode(false), amount: totalAmount,
		clock:     clockOriginal, layout: adviceLayout, dcc: true,
		mandatory: financialMandatory, copies: []copier{copyDatetime, copyAuthID, copyResponseCode},
	},
	KindTipAdjust: {
		name:      "tip adjust", mti: 220, respMTI: 230, code: fixedCode("020000"), amount: totalAmount,
		clock:     clockNow, adjusts: hasTip,
		layout:    append(append([]int(nil), adviceLayout...), FieldAdditionalAmount),
		overrides: map[int]source{Field60: originalTotal},
		mandatory: adviceMandatory, copies: []copier{copyRRN, copyResponseCode, copyAdjustedAmount},
	},
	KindTcUpload: {
		name:  "tc upload", mti: 320, respMTI: 330, code: fixedCode("940000"), amount: totalAmount,
		clock: clockOriginal, layout: []int{
			FieldPAN, FieldProcessingCode, FieldAmount, FieldSTAN, FieldTimeLocal, FieldDateLocal,
			FieldPOSEntryMode, FieldPANSequenceNumber, FieldNII, FieldPOSConditionCode, FieldRRN,
			FieldResponseCode, FieldTerminalID, FieldMerchantID, FieldICCData, Field62,
		},
		mandatory: financialMandatory, copies: []copier{copyDatetime, copyResponseCode},
	},
}

func tableCode(void bool) func(*payment.Transaction) (string, error) {
	return func(tx *payment.Transaction) (string, error) { return ProcessingCode(tx.Type, void) }
}

func reversalCode(tx *payment.Transaction) (string, error) {
	return ProcessingCode(tx.Type, tx.InProgress == payment.InProgressVoid)
}

func fixedCode(code string) func(*payment.Transaction) (string, error) {
	return func(*payment.Transaction) (string, error) { return code, nil }
}

func requestAmount(tx *payment.Transaction) (payment.Amount, bool) { return tx.RequestAmount() }
func totalAmount(tx *payment.Transaction) (payment.Amount, bool)   { return tx.TotalAmount() }
func preauthAmount(tx *payment.Transaction) (payment.Amount, bool) { return tx.TotalPreauthAmount() }

// cancelAmount is DE4 of a void or reversal, chosen by the outcome of
// the transaction being cancelled. Other outcomes send no amount.
func cancelAmount(tx *payment.Transaction) (payment.Amount, bool) {
	if tx.Type.IsPreAuthFamily() {
		return tx.TotalPreauthAmount()
	}
	switch tx.PreviousStatus {
	case payment.StatusApproved:
		return tx.TotalAmount()
	case payment.StatusToAdvise:
		return tx.TotalOriginalAmount()
	}
	return 0, false
}

func carriesAdjustment(tx *payment.Transaction) bool {
	return tx.PreviousStatus == payment.StatusApproved && tx.IsAdjusted && tx.AdditionalAmount != nil
}

func hasTip(tx *payment.Transaction) bool { return tx.AdditionalAmount != nil }

var sources = map[int]source{
	FieldPAN: func(req *iso8583.Apdu, c *call) error {
		if c.tx.PAN != "" && c.clearCard() {
			req.SetString(FieldPAN, c.tx.PAN)
		}
		return nil
	},
	FieldProcessingCode: func(req *iso8583.Apdu, c *call) error {
		req.SetString(FieldProcessingCode, c.code)
		return nil
	},
	FieldAmount: func(req *iso8583.Apdu, c *call) error {
		if c.amount != nil {
			req.SetInt(FieldAmount, uint64(*c.amount))
		}
		return nil
	},
	FieldSTAN: func(req *iso8583.Apdu, c *call) error {
		req.SetInt(FieldSTAN, uint64(c.tx.STAN))
		return nil
	},
	FieldTimeLocal: func(req *iso8583.Apdu, c *call) error {
		if !c.when.IsZero() {
			req.SetString(FieldTimeLocal, iso8583.IsoTime(c.when))
		}
		return nil
	},
	FieldDateLocal: func(req *iso8583.Apdu, c *call) error {
		if !c.when.IsZero() {
			req.SetString(FieldDateLocal, iso8583.IsoDate(c.when))
		}
		return nil
	},
	FieldDateExpiration: func(req *iso8583.Apdu, c *call) error {
		if c.tx.ExpirationDate != "" && c.clearCard() {
			req.SetString(FieldDateExpiration, c.tx.ExpirationDate)
		}
		return nil
	},
	FieldPOSEntryMode: func(req *iso8583.Apdu, c *call) error {
		req.SetString(FieldPOSEntryMode, c.tx.EntryMode.POSEntryMode())
		return nil
	},
	FieldPANSequenceNumber: func(req *iso8583.Apdu, c *call) error {
		if c.tx.PanSequenceNumber != nil {
			req.SetInt(FieldPANSequenceNumber, uint64(*c.tx.PanSequenceNumber))
		}
		return nil
	},
	FieldNII: func(req *iso8583.Apdu, c *call) error {
		req.SetInt(FieldNII, uint64(c.tx.NII))
		return nil
	},
	FieldPOSConditionCode: func(req *iso8583.Apdu, c *call) error {
		req.SetString(FieldPOSConditionCode, c.tx.ConditionCode.POSConditionCode())
		return nil
	},
	FieldTrack2:           optionalString(FieldTrack2, func(tx *payment.Transaction) string { return tx.Track2 }),
	FieldRRN:              optionalString(FieldRRN, func(tx *payment.Transaction) string { return tx.RRN }),
	FieldAuthorizationID:  optionalString(FieldAuthorizationID, func(tx *payment.Transaction) string { return tx.AuthIDResponse }),
	FieldResponseCode:     optionalString(FieldResponseCode, func(tx *payment.Transaction) string { return tx.ResponseCode }),
	FieldTerminalID:       optionalString(FieldTerminalID, func(tx *payment.Transaction) string { return tx.TID }),
	FieldMerchantID:       optionalString(FieldMerchantID, func(tx *payment.Transaction) string { return tx.MID }),
	FieldAdditionalData:   optionalString(FieldAdditionalData, func(tx *payment.Transaction) string { return tx.CVV }),
	FieldPINBlock:         optionalBytes(FieldPINBlock, func(tx *payment.Transaction) []byte { return tx.PINBlock }),
	FieldICCData:          optionalBytes(FieldICCData, func(tx *payment.Transaction) []byte { return tx.ICCData }),
	FieldAdditionalAmount: adjustedTip,
	Field60: func(req *iso8583.Apdu, c *call) error {
		req.SetString(Field60, fmt.Sprintf("%06d", c.tx.BatchNumber))
		return nil
	},
	Field62: func(req *iso8583.Apdu, c *call) error {
		req.SetString(Field62, fmt.Sprintf("%06d", c.tx.InvoiceNumber))
		return nil
	},
}

func optionalString(field int, get func(*payment.Transaction) string) source {
	return func(req *iso8583.Apdu, c *call) error {
		if v := get(c.tx); v != "" {
			req.SetString(field, v)
		}
		return nil
	}
}

func optionalBytes(field int, get func(*payment.Transaction) []byte) source {
	return func(req *iso8583.Apdu, c *call) error {
		if v := get(c.tx); len(v) > 0 {
			req.SetBytes(field, v)
		}
		return nil
	}
}

// completionOnly sends the authorization reference of an offline
// completion; a plain offline sale has none.
func completionOnly(field int) source {
	return func(req *iso8583.Apdu, c *call) error {
		if c.tx.Type != payment.PreAuthCompletionOffline {
			return nil
		}
		return sources[field](req, c)
	}
}

func (c *call) clearCard() bool {
	return !c.op.keyedOnly || c.tx.EntryMode.IsKeyed()
}

func (c *call) adjusting() bool {
	return c.op.adjusts != nil && c.op.adjusts(c.tx)
}

// adjustedTip restates the current tip on adjusted cancellations and
// tip adjustments.
func adjustedTip(req *iso8583.Apdu, c *call) error {
	if c.adjusting() {
		req.SetString(FieldAdditionalAmount, fmt.Sprintf("%012d", uint64(*c.tx.AdditionalAmount)))
	}
	return nil
}

// originalTotal puts the pre-adjustment total in DE60.
func originalTotal(req *iso8583.Apdu, c *call) error {
	if !c.adjusting() {
		return nil
	}
	if orig, ok := c.tx.TotalOriginalAmount(); ok {
		req.SetString(Field60, fmt.Sprintf("%012d", uint64(orig)))
	}
	return nil
}

// instalmentPlan fills DE48 with the number of months followed by the
// plan identifier.
func instalmentPlan(req *iso8583.Apdu, c *call) error {
	months, plan := c.tx.InstalmentMonths, c.tx.InstalmentPlan
	if months == 0 || months > 99 || plan == "" {
		return fmt.Errorf("%w: %d months, plan %q", ErrInvalidInstalment, months, plan)
	}
	req.SetString(FieldAdditionalData, fmt.Sprintf("%02d%s", months, plan))
	return nil
}

// Build renders the request for kind and stamps the derived processing
// code on tx for response correlation.
func Build(kind Kind, tx *payment.Transaction) (*iso8583.Apdu, error) {
	return BuildDCC(kind, DCCNone, tx)
}

// BuildDCC is Build with a currency conversion block in DE63. Only
// sale, offline sale, preauth and preauth completion have DCC flows.
func BuildDCC(kind Kind, mode DCCMode, tx *payment.Transaction) (*iso8583.Apdu, error) {
	op, ok := operations[kind]
	if !ok {
		return nil, fmt.Errorf("fdms: unknown message kind %d", int(kind))
	}
	if mode != DCCNone && !op.dcc {
		return nil, fmt.Errorf("%w: %s has no dcc flow", ErrInvalidDCC, op.name)
	}
	code, err := op.code(tx)
	if err != nil {
		return nil, err
	}
	c := &call{tx: tx, op: op, code: code}
	if amount, ok := op.amount(tx); ok {
		c.amount = &amount
	} else if !op.optional {
		return nil, fmt.Errorf("%w: %s", ErrMissingAmount, op.name)
	}
	switch op.clock {
	case clockNow:
		c.when = now()
	case clockOriginal:
		c.when = tx.TxDatetime
	}

	req := iso8583.New(Spec)
	req.SetMTI(op.mti)
	for _, field := range op.layout {
		src, overridden := op.overrides[field]
		if !overridden {
			src = sources[field]
		}
		if src == nil {
			continue
		}
		if err := src(req, c); err != nil {
			return nil, err
		}
	}
	if mode != DCCNone {
		block, err := dccRequest(mode, tx)
		if err != nil {
			return nil, err
		}
		req.SetBytes(Field63, block)
	}
	if err := req.Err(); err != nil {
		return nil, err
	}
	tx.ProcessingCode = code
	return req, nil
}

// Read validates the response to kind against tx and copies the host's
// answer onto it. Nothing is copied from a rejected response.
func Read(kind Kind, resp *iso8583.Apdu, tx *payment.Transaction) error {
	op, ok := operations[kind]
	if !ok {
		return fmt.Errorf("fdms: unknown message kind %d", int(kind))
	}
	c := correlation{processingCode: tx.ProcessingCode, stan: tx.STAN, checkSTAN: true, nii: tx.NII, tid: tx.TID}
	if err := validate(resp, op.respMTI, op.mandatory, c); err != nil {
		return err
	}
	staged := *tx
	copies := op.copies
	if op.dcc {
		copies = append(copies[:len(copies):len(copies)], copyDCCOffer)
	}
	for _, cp := range copies {
		if err := cp(resp, &staged); err != nil {
			return err
		}
	}
	*tx = staged
	return nil
}

type correlation struct {
	processingCode string
	stan           uint32
	checkSTAN      bool
	nii            uint32
	tid            string
}

func validate(resp *iso8583.Apdu, mti int, mandatory []int, c correlation) error {
	if err := iso8583.ExpectMTI(resp, mti); err != nil {
		return err
	}
	if err := iso8583.RequireFields(resp, mandatory...); err != nil {
		return err
	}
	if err := iso8583.MatchString(resp, FieldProcessingCode, c.processingCode); err != nil {
		return err
	}
	if c.checkSTAN {
		if err := iso8583.MatchInt(resp, FieldSTAN, uint64(c.stan)); err != nil {
			return err
		}
	}
	if err := iso8583.MatchInt(resp, FieldNII, uint64(c.nii)); err != nil {
		return err
	}
	return iso8583.MatchString(resp, FieldTerminalID, c.tid)
}

func text(resp *iso8583.Apdu, field int) (string, error) {
	s, err := resp.GetString(field)
	return strings.TrimRight(s, " "), err
}

func hostDatetime(resp *iso8583.Apdu) (time.Time, bool, error) {
	if !resp.HasField(FieldDateLocal) || !resp.HasField(FieldTimeLocal) {
		return time.Time{}, false, nil
	}
	date, err := resp.GetString(FieldDateLocal)
	if err != nil {
		return time.Time{}, false, err
	}
	hms, err := resp.GetString(FieldTimeLocal)
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := iso8583.HostDatetime(date, hms, now())
	return t, err == nil, err
}

func copyDatetime(resp *iso8583.Apdu, tx *payment.Transaction) error {
	t, ok, err := hostDatetime(resp)
	if ok {
		tx.TxDatetime = t
	}
	return err
}

func copyRRN(resp *iso8583.Apdu, tx *payment.Transaction) error {
	if !resp.HasField(FieldRRN) {
		return nil
	}
	rrn, err := text(resp, FieldRRN)
	tx.RRN = rrn
	return err
}

func copyAuthID(resp *iso8583.Apdu, tx *payment.Transaction) error {
	if !resp.HasField(FieldAuthorizationID) {
		return nil
	}
	id, err := text(resp, FieldAuthorizationID)
	tx.AuthIDResponse = id
	return err
}

func copyResponseCode(resp *iso8583.Apdu, tx *payment.Transaction) error {
	code, err := text(resp, FieldResponseCode)
	tx.ResponseCode = code
	return err
}

func copyIssuerData(resp *iso8583.Apdu, tx *payment.Transaction) error {
	if !resp.HasField(FieldICCData) {
		return nil
	}
	b, err := resp.GetBytes(FieldICCData)
	tx.IssuerEMVResponse = append([]byte(nil), b...)
	return err
}

// copyAdjustedAmount takes the host's new base amount from DE60 when
// the host restates it.
func copyAdjustedAmount(resp *iso8583.Apdu, tx *payment.Transaction) error {
	if !resp.HasField(Field60) {
		return nil
	}
	s, err := resp.GetString(Field60)
	if err != nil {
		return err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return fmt.Errorf("%w %d: %v", ErrMalformedField, Field60, err)
	}
	tx.Amount = payment.AmountOf(v)
	return nil
}
