package amex

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
	ErrNoProcessingCode = errors.New("amex: no processing code for transaction")
	ErrMissingAmount    = errors.New("amex: amount required")
	ErrNotApproved      = errors.New("amex: host did not approve")
)

var now = time.Now

// Kind is a request/response pair that operates on a Transaction.
type Kind int

const (
	KindSale Kind = iota
	KindRefund
	KindPreAuth
	KindVoid
	KindReversal
	KindOfflineSale
	KindCompletion
	KindTipAdjust
	KindTcUpload
)

type (
	step   func(req *iso8583.Apdu, tx *Transaction, cfg Config) error
	copier func(resp *iso8583.Apdu, tx *Transaction) error
)

type message struct {
	name      string
	mti       int
	respMTI   int
	code      func(tx *Transaction) (string, error)
	amount    func(tx *Transaction) (payment.Amount, bool)
	optional  bool // DE4 may be omitted
	steps     []step
	mandatory []int
	copies    []copier
}

var (
	financialMandatory = []int{FieldProcessingCode, FieldSTAN, FieldTimeLocal, FieldDateLocal, FieldNII, FieldRRN, FieldResponseCode, FieldTerminalID}
	adviceMandatory    = []int{FieldProcessingCode, FieldSTAN, FieldNII, FieldRRN, FieldResponseCode, FieldTerminalID}
	uploadMandatory    = []int{FieldProcessingCode, FieldNII, FieldResponseCode, FieldTerminalID}
)

var messages = map[Kind]message{
	KindSale: {
		name:      "sale", mti: 200, respMTI: 210, code: tableCode(false), amount: requestAmount,
		steps:     []step{keyedCard, pos, track2, terminal, country, cardholderData, routing, invoice},
		mandatory: financialMandatory,
		copies:    []copier{copyDatetime, copyRRN, copyAuthCode, copyResponseCode, copyIssuerScript},
	},
	KindRefund: {
		name:      "refund", mti: 200, respMTI: 210, code: tableCode(false), amount: requestAmount,
		steps:     []step{keyedCard, pos, track2, terminal, country, routing, invoice},
		mandatory: financialMandatory,
		copies:    []copier{copyDatetime, copyRRN, copyAuthCode, copyResponseCode},
	},
	KindPreAuth: {
		name:      "preauth", mti: 100, respMTI: 110, code: tableCode(false), amount: requestAmount,
		steps:     []step{keyedCard, pos, track2, terminal, country, cardholderData, routing, invoice},
		mandatory: financialMandatory,
		copies:    []copier{copyDatetime, copyRRN, copyAuthCode, copyResponseCode, copyIssuerScript},
	},
	KindVoid: {
		name:      "void", mti: 200, respMTI: 210, code: tableCode(true), amount: cancelAmount, optional: true,
		steps:     []step{pan, expiry, currentTime, pos, rrn, terminal, country, pin, adjustment, routing, invoice},
		mandatory: financialMandatory,
		copies:    []copier{copyDatetime, copyRRN, copyAuthCode, copyResponseCode},
	},
	KindReversal: {
		name:      "reversal", mti: 400, respMTI: 410, code: reversalCode, amount: cancelAmount, optional: true,
		steps:     []step{pan, expiry, originalTime, pos, optionalRRN, terminal, country, pin, adjustment, icc, routing, invoice},
		mandatory: financialMandatory,
		copies:    []copier{copyDatetime, copyRRN, copyAuthCode, copyResponseCode},
	},
	KindOfflineSale: {
		name:      "offline sale", mti: 220, respMTI: 230, code: tableCode(false), amount: total,
		steps:     []step{pan, expiry, originalTime, pos, authCode, terminal, country, routing, batch, invoice},
		mandatory: adviceMandatory,
		copies:    []copier{copyRRN, copyResponseCode},
	},
	KindCompletion: {
		name:      "preauth completion", mti: 220, respMTI: 210, code: tableCode(false), amount: total,
		steps:     []step{pan, expiry, originalTime, pos, rrn, authCode, responseCode, terminal, country, routing, batch, invoice},
		mandatory: financialMandatory,
		copies:    []copier{copyDatetime, copyAuthCode, copyResponseCode},
	},
	KindTipAdjust: {
		name:      "tip adjust", mti: 220, respMTI: 230, code: fixedCode("020000"), amount: total,
		steps:     []step{pan, expiry, currentTime, pos, rrn, authCode, responseCode, terminal, country, tip, routing, invoice},
		mandatory: adviceMandatory,
		copies:    []copier{copyResponseCode, copyRRN, copyAdjustedAmount},
	},
	KindTcUpload: {
		name:      "tc upload", mti: 320, respMTI: 330, code: fixedCode("940000"), amount: total,
		steps:     []step{pan, originalTime, pos, rrn, responseCode, terminal, icc, routing, invoice},
		mandatory: financialMandatory,
		copies:    []copier{copyDatetime, copyResponseCode},
	},
}

type actionKey struct {
	typ  TransactionType
	void bool
}

var actionCodes = map[actionKey]string{
	{Sale, false}:              "00",
	{OfflineSale, false}:       "00",
	{PreAuthCompletion, false}: "00",
	{Refund, false}:            "20",
	{PreAuth, false}:           "30",
	{TcUpload, false}:          "94",
	{Sale, true}:               "02",
	{OfflineSale, true}:        "02",
	{PreAuthCompletion, true}:  "02",
	{Refund, true}:             "22",
}

// ProcessingCode derives DE3. Unlisted combinations are an error.
func ProcessingCode(typ TransactionType, void bool) (string, error) {
	code, ok := actionCodes[actionKey{typ, void}]
	if !ok {
		return "", fmt.Errorf("%w: %s void=%t", ErrNoProcessingCode, typ, void)
	}
	return code + "0000", nil
}

func tableCode(void bool) func(*Transaction) (string, error) {
	return func(tx *Transaction) (string, error) { return ProcessingCode(tx.Type, void) }
}

func reversalCode(tx *Transaction) (string, error) {
	return ProcessingCode(tx.Type, tx.InProgress == InProgressVoid)
}

func fixedCode(code string) func(*Transaction) (string, error) {
	return func(*Transaction) (string, error) { return code, nil }
}

func requestAmount(tx *Transaction) (payment.Amount, bool) {
	if tx.Type == PreAuth {
		return tx.totalPreauth()
	}
	return tx.total()
}

func total(tx *Transaction) (payment.Amount, bool) { return tx.total() }

// cancelAmount follows the outcome of the transaction being cancelled:
// approved sends the current total, an advice the original one, and
// anything else no amount.
func cancelAmount(tx *Transaction) (payment.Amount, bool) {
	if tx.Type == PreAuth {
		return tx.totalPreauth()
	}
	switch tx.PreviousStatus {
	case StatusApproved:
		return tx.total()
	case StatusToAdvise:
		return tx.totalOriginal()
	}
	return 0, false
}

func keyedCard(req *iso8583.Apdu, tx *Transaction, cfg Config) error {
	if tx.EntryMode.IsKeyed() {
		_ = pan(req, tx, cfg)
		_ = expiry(req, tx, cfg)
	}
	return nil
}

func pan(req *iso8583.Apdu, tx *Transaction, _ Config) error {
	if tx.PAN != "" {
		req.SetString(FieldPAN, tx.PAN)
	}
	return nil
}

func expiry(req *iso8583.Apdu, tx *Transaction, _ Config) error {
	if tx.Expiry != "" {
		req.SetString(FieldDateExpiration, tx.Expiry)
	}
	return nil
}

func setTime(req *iso8583.Apdu, t time.Time) {
	req.SetString(FieldTimeLocal, iso8583.IsoTime(t))
	req.SetString(FieldDateLocal, iso8583.IsoDate(t))
}

func currentTime(req *iso8583.Apdu, _ *Transaction, _ Config) error {
	setTime(req, now())
	return nil
}

func originalTime(req *iso8583.Apdu, tx *Transaction, _ Config) error {
	setTime(req, tx.TxDatetime)
	return nil
}

func pos(req *iso8583.Apdu, tx *Transaction, _ Config) error {
	req.SetString(FieldPOSEntryMode, tx.EntryMode.POSEntryMode())
	if tx.CardSequence != nil {
		req.SetInt(FieldCardSequence, uint64(*tx.CardSequence))
	}
	req.SetInt(FieldNII, uint64(tx.NII))
	req.SetString(FieldPOSConditionCode, tx.ConditionCode.POSConditionCode())
	return nil
}

func track2(req *iso8583.Apdu, tx *Transaction, _ Config) error {
	if tx.Track2 != "" {
		req.SetString(FieldTrack2, tx.Track2)
	}
	return nil
}

func rrn(req *iso8583.Apdu, tx *Transaction, _ Config) error {
	req.SetString(FieldRRN, tx.RRN)
	return nil
}

func optionalRRN(req *iso8583.Apdu, tx *Transaction, cfg Config) error {
	if tx.RRN != "" {
		return rrn(req, tx, cfg)
	}
	return nil
}

func authCode(req *iso8583.Apdu, tx *Transaction, _ Config) error {
	req.SetString(FieldAuthorizationCode, tx.AuthCode)
	return nil
}

func responseCode(req *iso8583.Apdu, tx *Transaction, _ Config) error {
	req.SetString(FieldResponseCode, tx.ResponseCode)
	return nil
}

func terminal(req *iso8583.Apdu, tx *Transaction, _ Config) error {
	req.SetString(FieldTerminalID, tx.TID)
	req.SetString(FieldMerchantID, tx.MID)
	return nil
}

func country(req *iso8583.Apdu, _ *Transaction, cfg Config) error {
	req.SetInt(FieldCountryCode, uint64(cfg.CountryCode))
	return nil
}

func routing(req *iso8583.Apdu, _ *Transaction, cfg Config) error {
	req.SetString(FieldRouting, cfg.routing())
	return nil
}

// cardholderData adds the 4DBC, PIN block and chip data of a card-present
// authorization.
func cardholderData(req *iso8583.Apdu, tx *Transaction, cfg Config) error {
	if tx.Amex4DBC != "" {
		req.SetString(Field4DBC, tx.Amex4DBC)
	}
	_ = pin(req, tx, cfg)
	return icc(req, tx, cfg)
}

func pin(req *iso8583.Apdu, tx *Transaction, _ Config) error {
	if len(tx.PINBlock) > 0 {
		req.SetBytes(FieldPINBlock, tx.PINBlock)
	}
	return nil
}

func icc(req *iso8583.Apdu, tx *Transaction, _ Config) error {
	if len(tx.ICCData) > 0 {
		req.SetBytes(FieldICCData, tx.ICCData)
	}
	return nil
}

func textAmount(a payment.Amount) string { return fmt.Sprintf("%012d", uint64(a)) }

// adjustment restates the tip of an adjusted, approved transaction.
func adjustment(req *iso8583.Apdu, tx *Transaction, _ Config) error {
	if tx.PreviousStatus != StatusApproved || !tx.IsAdjusted || tx.TipAmount == nil {
		return nil
	}
	req.SetString(FieldTipAmount, textAmount(*tx.TipAmount))
	if orig, ok := tx.totalOriginal(); ok {
		req.SetString(Field60, textAmount(orig))
	}
	return nil
}

func tip(req *iso8583.Apdu, tx *Transaction, _ Config) error {
	if tx.TipAmount != nil {
		req.SetString(FieldTipAmount, textAmount(*tx.TipAmount))
	}
	if orig, ok := tx.totalOriginal(); ok {
		req.SetString(Field60, textAmount(orig))
	}
	return nil
}

func batch(req *iso8583.Apdu, tx *Transaction, _ Config) error {
	req.SetString(Field60, fmt.Sprintf("%06d", tx.BatchNumber))
	return nil
}

func invoice(req *iso8583.Apdu, tx *Transaction, _ Config) error {
	req.SetString(FieldInvoice, fmt.Sprintf("%06d", tx.InvoiceNumber))
	return nil
}

// Build encodes the request of kind for tx and caches its processing
// code on tx.
func Build(kind Kind, tx *Transaction, cfg Config) (*iso8583.Apdu, error) {
	m, ok := messages[kind]
	if !ok {
		return nil, fmt.Errorf("amex: unknown message kind %d", kind)
	}
	code, err := m.code(tx)
	if err != nil {
		return nil, err
	}
	amount, hasAmount := m.amount(tx)
	if !hasAmount && !m.optional {
		return nil, fmt.Errorf("%w: %s", ErrMissingAmount, m.name)
	}
	tx.ProcessingCode = code

	req := iso8583.New(Spec)
	req.SetMTI(m.mti)
	req.SetString(FieldProcessingCode, code)
	if hasAmount {
		req.SetInt(FieldAmount, uint64(amount))
	}
	req.SetInt(FieldSTAN, uint64(tx.STAN))
	for _, s := range m.steps {
		if err := s(req, tx, cfg); err != nil {
			return nil, fmt.Errorf("amex %s: %w", m.name, err)
		}
	}
	if err := req.Err(); err != nil {
		return nil, fmt.Errorf("amex %s: %w", m.name, err)
	}
	return req, nil
}

// Read validates the response to a request of kind and copies the
// host's answer onto tx.
func Read(kind Kind, resp *iso8583.Apdu, tx *Transaction) error {
	m, ok := messages[kind]
	if !ok {
		return fmt.Errorf("amex: unknown message kind %d", kind)
	}
	if err := validate(resp, m.respMTI, m.mandatory, tx.ProcessingCode, tx.STAN, true, tx.NII, tx.TID); err != nil {
		return err
	}
	for _, c := range m.copies {
		if err := c(resp, tx); err != nil {
			return err
		}
	}
	return nil
}

func validate(resp *iso8583.Apdu, mti int, mandatory []int, code string, stan uint32, checkSTAN bool, nii uint32, tid string) error {
	if err := iso8583.ExpectMTI(resp, mti); err != nil {
		return err
	}
	if err := iso8583.RequireFields(resp, mandatory...); err != nil {
		return err
	}
	if err := iso8583.MatchString(resp, FieldProcessingCode, code); err != nil {
		return err
	}
	if checkSTAN {
		if err := iso8583.MatchInt(resp, FieldSTAN, uint64(stan)); err != nil {
			return err
		}
	}
	if err := iso8583.MatchInt(resp, FieldNII, uint64(nii)); err != nil {
		return err
	}
	return iso8583.MatchString(resp, FieldTerminalID, tid)
}

func hostTime(resp *iso8583.Apdu) (time.Time, error) {
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

func copyDatetime(resp *iso8583.Apdu, tx *Transaction) error {
	t, err := hostTime(resp)
	if err != nil {
		return err
	}
	tx.TxDatetime = t
	return nil
}

func copyRRN(resp *iso8583.Apdu, tx *Transaction) error {
	v, err := resp.GetString(FieldRRN)
	if err != nil {
		return err
	}
	tx.RRN = v
	return nil
}

func copyAuthCode(resp *iso8583.Apdu, tx *Transaction) error {
	if !resp.HasField(FieldAuthorizationCode) {
		return nil
	}
	v, err := resp.GetString(FieldAuthorizationCode)
	if err != nil {
		return err
	}
	if v != "" {
		tx.AuthCode = v
	}
	return nil
}

func copyResponseCode(resp *iso8583.Apdu, tx *Transaction) error {
	v, err := resp.GetString(FieldResponseCode)
	if err != nil {
		return err
	}
	tx.ResponseCode = v
	return nil
}

func copyIssuerScript(resp *iso8583.Apdu, tx *Transaction) error {
	if !resp.HasField(FieldICCData) {
		tx.IssuerScript = nil
		return nil
	}
	v, err := resp.GetBytes(FieldICCData)
	if err != nil {
		return err
	}
	tx.IssuerScript = v
	return nil
}

func copyAdjustedAmount(resp *iso8583.Apdu, tx *Transaction) error {
	if !resp.HasField(Field60) {
		return nil
	}
	v, err := resp.GetString(Field60)
	if err != nil {
		return err
	}
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return fmt.Errorf("amex: field 60 amount %q: %w", v, err)
	}
	a := payment.Amount(n)
	tx.Amount = &a
	return nil
}

var uploadMTI = map[TransactionType]string{
	Sale:              "0200",
	Refund:            "0200",
	OfflineSale:       "0220",
	PreAuthCompletion: "0220",
}

// BuildBatchUpload restates a stored transaction under batchSTAN.
func BuildBatchUpload(tx *Transaction, batchSTAN uint32, cfg Config) (*iso8583.Apdu, error) {
	code, err := ProcessingCode(tx.Type, false)
	if err != nil {
		return nil, err
	}
	mti, ok := uploadMTI[tx.Type]
	if !ok {
		return nil, fmt.Errorf("%w: no batch upload for %s", ErrNoProcessingCode, tx.Type)
	}
	amount, ok := tx.total()
	if !ok {
		return nil, ErrMissingAmount
	}
	tx.ProcessingCode = code

	req := iso8583.New(Spec)
	req.SetMTI(320)
	req.SetString(FieldProcessingCode, code)
	req.SetInt(FieldAmount, uint64(amount))
	req.SetInt(FieldSTAN, uint64(batchSTAN))
	for _, s := range []step{pan, originalTime, expiry, pos, rrn, authCode, terminal, country, routing, invoice} {
		if err := s(req, tx, cfg); err != nil {
			return nil, err
		}
	}
	req.SetString(Field60, fmt.Sprintf("%s%06d%s", mti, tx.STAN, strings.Repeat(" ", 12)))
	if err := req.Err(); err != nil {
		return nil, err
	}
	return req, nil
}

// ReadBatchUpload requires an approval; the STAN is not compared.
func ReadBatchUpload(resp *iso8583.Apdu, tx *Transaction) error {
	if err := validate(resp, 330, uploadMandatory, tx.ProcessingCode, 0, false, tx.NII, tx.TID); err != nil {
		return err
	}
	code, err := resp.GetString(FieldResponseCode)
	if err != nil {
		return err
	}
	if code != "00" {
		return fmt.Errorf("%w: response code %s", ErrNotApproved, code)
	}
	return nil
}

// BuildSettlement closes the batch with debit and credit totals in DE63.
func BuildSettlement(s *SettlementData, afterBatchUpload bool, cfg Config) (*iso8583.Apdu, error) {
	s.ProcessingCode = "920000"
	if afterBatchUpload {
		s.ProcessingCode = "960000"
	}
	req := iso8583.New(Spec)
	req.SetMTI(500)
	req.SetString(FieldProcessingCode, s.ProcessingCode)
	req.SetInt(FieldSTAN, uint64(s.STAN))
	req.SetInt(FieldNII, uint64(s.NII))
	req.SetString(FieldTerminalID, s.TID)
	req.SetString(FieldMerchantID, s.MID)
	req.SetInt(FieldCountryCode, uint64(cfg.CountryCode))
	req.SetString(Field60, fmt.Sprintf("%06d", s.BatchNumber))
	req.SetString(FieldRouting, cfg.routing())
	req.SetString(FieldInvoice, fmt.Sprintf("%06d", s.InvoiceNumber))
	totals, err := payment.Reconciliation(s.Totals.Debit, s.Totals.Credit)
	if err != nil {
		return nil, err
	}
	req.SetBytes(Field63, totals)
	if err := req.Err(); err != nil {
		return nil, err
	}
	return req, nil
}

func ReadSettlement(resp *iso8583.Apdu, s *SettlementData) error {
	mandatory := []int{FieldProcessingCode, FieldSTAN, FieldNII, FieldResponseCode, FieldTerminalID}
	if err := validate(resp, 510, mandatory, s.ProcessingCode, s.STAN, true, s.NII, s.TID); err != nil {
		return err
	}
	if resp.HasField(FieldDateLocal) && resp.HasField(FieldTimeLocal) {
		t, err := hostTime(resp)
		if err != nil {
			return err
		}
		s.TxDatetime = t
	}
	code, err := resp.GetString(FieldResponseCode)
	if err != nil {
		return err
	}
	s.ResponseCode = code
	if resp.HasField(FieldRRN) {
		if s.RRN, err = resp.GetString(FieldRRN); err != nil {
			return err
		}
	}
	return nil
}
