package payment

import "time"

// Amount is a value in minor currency units.
type Amount uint64

// AmountOf returns a pointer to v, for optional amount fields.
func AmountOf(v uint64) *Amount {
	a := Amount(v)
	return &a
}

// Transaction is the acquirer-independent record of one cardholder
// transaction. Optional values are pointers or empty slices/strings;
// the response block is filled only after a host round trip.
type Transaction struct {
	HostIndex int `msgpack:"host_index"`

	PAN                      string            `msgpack:"pan,omitempty"`
	ProcessingCode           string            `msgpack:"processing_code,omitempty"`
	Amount                   *Amount           `msgpack:"amount,omitempty"`
	PreauthAmount            *Amount           `msgpack:"preauth_amount,omitempty"`
	AdditionalAmount         *Amount           `msgpack:"additional_amount,omitempty"`
	OriginalAdditionalAmount *Amount           `msgpack:"original_additional_amount,omitempty"`
	STAN                     uint32            `msgpack:"stan"`
	ExpirationDate           string            `msgpack:"expiration_date,omitempty"`
	EntryMode                EntryMode         `msgpack:"entry_mode"`
	PanSequenceNumber        *uint32           `msgpack:"pan_sequence_number,omitempty"`
	NII                      uint32            `msgpack:"nii"`
	ConditionCode            ConditionCode     `msgpack:"condition_code"`
	Track2                   string            `msgpack:"-"`
	Track1                   string            `msgpack:"-"`
	TID                      string            `msgpack:"tid"`
	MID                      string            `msgpack:"mid"`
	CVV                      string            `msgpack:"-"`
	PINBlock                 []byte            `msgpack:"-"`
	ICCData                  []byte            `msgpack:"icc_data,omitempty"`
	AID                      string            `msgpack:"aid,omitempty"`
	CardholderName           string            `msgpack:"cardholder_name,omitempty"`
	Type                     TransactionType   `msgpack:"type"`
	Status                   TransactionStatus `msgpack:"status"`
	PreviousStatus           TransactionStatus `msgpack:"previous_status"`
	InProgress               InProgressStatus  `msgpack:"in_progress"`
	TPDU                     string            `msgpack:"tpdu"`
	InvoiceNumber            uint32            `msgpack:"invoice_number"`
	BatchNumber              uint32            `msgpack:"batch_number"`
	IsPreauthCompleted       bool              `msgpack:"is_preauth_completed"`
	IsAdjusted               bool              `msgpack:"is_adjusted"`
	InstalmentMonths         uint32            `msgpack:"instalment_months,omitempty"`
	InstalmentPlan           string            `msgpack:"instalment_plan,omitempty"`
	DCC                      *DCCOffer         `msgpack:"dcc,omitempty"`
	TxDatetime               time.Time         `msgpack:"tx_datetime"`

	RRN               string `msgpack:"rrn,omitempty"`
	AuthIDResponse    string `msgpack:"auth_id_response,omitempty"`
	ResponseCode      string `msgpack:"response_code,omitempty"`
	IssuerEMVResponse []byte `msgpack:"issuer_emv_response,omitempty"`
}

// DCCOffer is a dynamic currency conversion quote: the cardholder's
// billing currency, the amount in that currency and the rate applied.
// Rate is eight digits, the first giving the decimal position.
type DCCOffer struct {
	Currency string `msgpack:"currency"`
	Amount   Amount `msgpack:"amount"`
	Rate     string `msgpack:"rate"`
}

// Sum adds the present extras to base. The result is absent when base is.
func Sum(base *Amount, extras ...*Amount) (Amount, bool) {
	if base == nil {
		return 0, false
	}
	total := *base
	for _, e := range extras {
		if e != nil {
			total += *e
		}
	}
	return total, true
}

// TotalOriginalAmount is the base amount plus the tip that was on the
// transaction before the last adjustment. Absent when the base is absent.
func (t *Transaction) TotalOriginalAmount() (Amount, bool) {
	return Sum(t.Amount, t.OriginalAdditionalAmount)
}

// TotalAmount is TotalOriginalAmount plus the current additional amount.
// It never falls back to the preauthorization amount.
func (t *Transaction) TotalAmount() (Amount, bool) {
	return Sum(t.Amount, t.OriginalAdditionalAmount, t.AdditionalAmount)
}

// TotalPreauthAmount is the preauthorization amount plus the additional
// amount. Absent when no preauthorization amount is set.
func (t *Transaction) TotalPreauthAmount() (Amount, bool) {
	return Sum(t.PreauthAmount, t.AdditionalAmount)
}

// RequestAmount picks the total that belongs on the wire for the
// transaction's type.
func (t *Transaction) RequestAmount() (Amount, bool) {
	if t.Type.IsPreAuthFamily() {
		return t.TotalPreauthAmount()
	}
	return t.TotalAmount()
}

// Approved reports whether the host answered with response code 00.
func (t *Transaction) Approved() bool { return t.ResponseCode == "00" }
