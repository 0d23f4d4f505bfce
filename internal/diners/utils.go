package diners

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
	ErrNoProcessingCode = errors.New("diners: no processing code for transaction")
	ErrMissingAmount    = errors.New("diners: amount required")
	ErrNotApproved      = errors.New("diners: host did not approve")
	ErrMalformedField   = errors.New("diners: malformed field")
)

// Fixed processing codes outside the transaction table.
const (
	ProcessingCodeTipAdjust        = "020000"
	ProcessingCodeSettlement       = "920000"
	ProcessingCodeSettlementUpload = "960000"
	ProcessingCodeKeyDownload      = "920000"
	ProcessingCodeEchoTest         = "990000"
)

// flowDigitControl completes every table-derived processing code.
// TODO: confirm per-acquirer flow digits with Diners certification.
const flowDigitControl = "0000"

type actionKey struct {
	typ  TransactionType
	void bool
}

var actionCodes = map[actionKey]string{
	{Authorization, false}:  "00",
	{Sale, false}:           "00",
	{OfflineSale, false}:    "00",
	{SaleCompletion, false}: "00",
	{Refund, false}:         "20",
	{PreAuth, false}:        "30",
	{TcUpload, false}:       "94",

	{Sale, true}:           "02",
	{OfflineSale, true}:    "02",
	{SaleCompletion, true}: "02",
	{Refund, true}:         "22",
}

// ProcessingCode derives DE3 from the transaction type and whether the
// message cancels it. Combinations outside the table are an error.
func ProcessingCode(typ TransactionType, void bool) (string, error) {
	code, ok := actionCodes[actionKey{typ, void}]
	if !ok {
		return "", fmt.Errorf("%w: %s void=%t", ErrNoProcessingCode, typ, void)
	}
	return code + flowDigitControl, nil
}

// amountRule selects DE4 of a void or reversal.
type amountRule int

const (
	omitAmount amountRule = iota
	useTotal
	useTotalOriginal
)

// cancelAmountRules is keyed by the outcome of the transaction being
// cancelled. Statuses not listed send no amount.
var cancelAmountRules = map[TransactionStatus]amountRule{
	StatusApproved: useTotal,
	StatusToAdvise: useTotalOriginal,
}

// cancelAmount is DE4 for voids and reversals. Preauthorizations always
// carry their preauthorized total.
func cancelAmount(tx *Transaction) (payment.Amount, bool) {
	if tx.Type.isPreAuthFamily() {
		return tx.TotalPreauthAmount()
	}
	switch cancelAmountRules[tx.PreviousStatus] {
	case useTotal:
		return tx.TotalAmount()
	case useTotalOriginal:
		return tx.TotalOriginalAmount()
	}
	return 0, false
}

// requestAmount is DE4 of an authorization request.
func requestAmount(tx *Transaction) (payment.Amount, bool) {
	if tx.Type.isPreAuthFamily() {
		return tx.TotalPreauthAmount()
	}
	return tx.TotalAmount()
}

// carriesAdjustment reports whether a cancellation must restate the tip.
func carriesAdjustment(tx *Transaction) bool {
	return tx.PreviousStatus == StatusApproved && tx.IsAdjusted && tx.AdditionalAmount != nil
}

var now = time.Now

func newRequest(mti int) *iso8583.Apdu {
	req := iso8583.New(Spec)
	req.SetMTI(mti)
	return req
}

func finish(req *iso8583.Apdu) (*iso8583.Apdu, error) {
	if err := req.Err(); err != nil {
		return nil, err
	}
	return req, nil
}

func setDateTime(req *iso8583.Apdu, t time.Time) {
	req.SetString(FieldTimeLocal, iso8583.IsoTime(t))
	req.SetString(FieldDateLocal, iso8583.IsoDate(t))
}

func setPOS(req *iso8583.Apdu, tx *Transaction) error {
	req.SetString(FieldPOSEntryMode, tx.EntryMode.POSEntryMode())
	if tx.PanSequenceNumber != nil {
		req.SetInt(FieldPANSequenceNumber, uint64(*tx.PanSequenceNumber))
	}
	req.SetInt(FieldNII, uint64(tx.NII))
	req.SetString(FieldPOSConditionCode, tx.ConditionCode.POSConditionCode())
	return nil
}

func setTerminal(req *iso8583.Apdu, tid, mid string) {
	req.SetString(FieldTerminalID, tid)
	req.SetString(FieldMerchantID, mid)
}

func setPAN(req *iso8583.Apdu, tx *Transaction) {
	if tx.PAN != "" {
		req.SetString(FieldPAN, tx.PAN)
	}
}

func setExpiry(req *iso8583.Apdu, tx *Transaction) {
	if tx.ExpirationDate != "" {
		req.SetString(FieldDateExpiration, tx.ExpirationDate)
	}
}

func setAmount(req *iso8583.Apdu, a payment.Amount) {
	req.SetInt(FieldAmount, uint64(a))
}

// setTextAmount writes an amount into a text field as 12 zero-padded digits.
func setTextAmount(req *iso8583.Apdu, field int, a payment.Amount) {
	req.SetString(field, fmt.Sprintf("%012d", uint64(a)))
}

func setNumber6(req *iso8583.Apdu, field int, n uint32) {
	req.SetString(field, fmt.Sprintf("%06d", n))
}

func setBytes(req *iso8583.Apdu, field int, b []byte) {
	if len(b) > 0 {
		req.SetBytes(field, b)
	}
}

// correlation is what a response must echo back from its request.
type correlation struct {
	processingCode string
	stan           uint32
	checkSTAN      bool
	nii            uint32
	tid            string
}

func (c correlation) verify(resp *iso8583.Apdu) error {
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

func txCorrelation(tx *Transaction) correlation {
	return correlation{processingCode: tx.ProcessingCode, stan: tx.STAN, checkSTAN: true, nii: tx.NII, tid: tx.TID}
}

func validate(resp *iso8583.Apdu, mti int, mandatory []int, c correlation) error {
	if err := iso8583.ExpectMTI(resp, mti); err != nil {
		return err
	}
	if err := iso8583.RequireFields(resp, mandatory...); err != nil {
		return err
	}
	return c.verify(resp)
}

var (
	financialMandatory = []int{
		FieldProcessingCode, FieldSTAN, FieldTimeLocal, FieldDateLocal,
		FieldNII, FieldRRN, FieldResponseCode, FieldTerminalID,
	}
	adviceMandatory = []int{
		FieldProcessingCode, FieldSTAN, FieldNII, FieldRRN, FieldResponseCode, FieldTerminalID,
	}
	networkMandatory = []int{
		FieldProcessingCode, FieldNII, FieldResponseCode, FieldTerminalID,
	}
)

func hostDatetime(resp *iso8583.Apdu) (time.Time, error) {
	date, err := resp.GetString(FieldDateLocal)
	if err != nil {
		return time.Time{}, err
	}
	clock, err := resp.GetString(FieldTimeLocal)
	if err != nil {
		return time.Time{}, err
	}
	return iso8583.HostDatetime(date, clock, now())
}

// optionalHostDatetime returns the zero time when DE12/DE13 are absent.
func optionalHostDatetime(resp *iso8583.Apdu) (time.Time, bool, error) {
	if !resp.HasField(FieldDateLocal) || !resp.HasField(FieldTimeLocal) {
		return time.Time{}, false, nil
	}
	t, err := hostDatetime(resp)
	return t, err == nil, err
}

func text(resp *iso8583.Apdu, field int) (string, error) {
	s, err := resp.GetString(field)
	return strings.TrimRight(s, " "), err
}

func optionalText(resp *iso8583.Apdu, field int) (string, error) {
	if !resp.HasField(field) {
		return "", nil
	}
	return text(resp, field)
}

func textAmount(resp *iso8583.Apdu, field int) (payment.Amount, error) {
	s, err := resp.GetString(field)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w %d: %v", ErrMalformedField, field, err)
	}
	return payment.Amount(v), nil
}
