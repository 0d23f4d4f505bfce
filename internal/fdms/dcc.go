package fdms

import (
	"errors"
	"fmt"
	"strconv"

	"go-pos-hostswitch/internal/iso8583"
	"go-pos-hostswitch/internal/payment"
)

var ErrInvalidDCC = errors.New("fdms: invalid dcc offer")

// DCCMode selects the dynamic currency conversion flow of a request.
type DCCMode int

const (
	DCCNone DCCMode = iota
	// DCCEnquiry asks the host to quote the cardholder's currency.
	DCCEnquiry
	// DCCAllowed sends the quote the cardholder accepted.
	DCCAllowed
)

func (m DCCMode) String() string {
	switch m {
	case DCCNone:
		return "none"
	case DCCEnquiry:
		return "enquiry"
	case DCCAllowed:
		return "allowed"
	}
	return fmt.Sprintf("DCCMode(%d)", int(m))
}

// The DCC block travels in the DE63 tag table under tag DC. A request
// carries E for an enquiry or A followed by the accepted offer; the
// host answers with the offer: currency(3) amount(12) rate(8).
const (
	dccTag       = "DC"
	dccOfferLen  = 3 + 12 + 8
	maxDCCAmount = 999999999999
)

func tagEntry(tag, value string) []byte {
	return []byte(fmt.Sprintf("%s%03d%s", tag, len(value), value))
}

func digits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func dccRequest(mode DCCMode, tx *payment.Transaction) ([]byte, error) {
	switch mode {
	case DCCEnquiry:
		return tagEntry(dccTag, "E"), nil
	case DCCAllowed:
		o := tx.DCC
		if o == nil {
			return nil, fmt.Errorf("%w: no offer accepted", ErrInvalidDCC)
		}
		if !digits(o.Currency, 3) || !digits(o.Rate, 8) || o.Amount > maxDCCAmount {
			return nil, fmt.Errorf("%w: currency %q rate %q amount %d", ErrInvalidDCC, o.Currency, o.Rate, o.Amount)
		}
		return tagEntry(dccTag, fmt.Sprintf("A%s%012d%s", o.Currency, uint64(o.Amount), o.Rate)), nil
	}
	return nil, fmt.Errorf("%w: mode %s", ErrInvalidDCC, mode)
}

// copyDCCOffer takes the host's conversion quote when the response
// carries one.
func copyDCCOffer(resp *iso8583.Apdu, tx *payment.Transaction) error {
	if !resp.HasField(Field63) {
		return nil
	}
	b, err := resp.GetBytes(Field63)
	if err != nil {
		return err
	}
	table, err := parseKeyTable(b)
	if err != nil {
		return err
	}
	v, ok := table[dccTag]
	if !ok {
		return nil
	}
	offer := string(v)
	if len(offer) != dccOfferLen || !digits(offer, dccOfferLen) {
		return fmt.Errorf("%w %d: dcc offer %q", ErrMalformedField, Field63, offer)
	}
	amount, err := strconv.ParseUint(offer[3:15], 10, 64)
	if err != nil {
		return fmt.Errorf("%w %d: %v", ErrMalformedField, Field63, err)
	}
	tx.DCC = &payment.DCCOffer{Currency: offer[:3], Amount: payment.Amount(amount), Rate: offer[15:]}
	return nil
}
