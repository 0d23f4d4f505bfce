// Package amex implements the Amex Direct acquirer dialect.
package amex

import (
	"errors"
	"fmt"

	"go-pos-hostswitch/internal/iso8583"
)

const (
	FieldPAN               = 2
	FieldProcessingCode    = 3
	FieldAmount            = 4
	FieldSTAN              = 11
	FieldTimeLocal         = 12
	FieldDateLocal         = 13
	FieldDateExpiration    = 14
	FieldCountryCode       = 19
	FieldPOSEntryMode      = 22
	FieldCardSequence      = 23
	FieldNII               = 24
	FieldPOSConditionCode  = 25
	FieldTrack2            = 35
	FieldRRN               = 37
	FieldAuthorizationCode = 38
	FieldResponseCode      = 39
	FieldTerminalID        = 41
	FieldMerchantID        = 42
	FieldTrack1            = 45
	Field4DBC              = 48
	FieldCurrencyCode      = 49
	FieldPINBlock          = 52
	FieldTipAmount         = 54
	FieldICCData           = 55
	Field60                = 60
	FieldRouting           = 61
	FieldInvoice           = 62
	Field63                = 63
)

var Spec = iso8583.NewSpec("amex",
	iso8583.FieldSpec{Num: FieldPAN, Name: "PAN", Codec: iso8583.VarNumeric(2, 19), Mask: iso8583.MaskPAN},
	iso8583.FieldSpec{Num: FieldProcessingCode, Name: "Processing code", Codec: iso8583.FixedNumeric(6)},
	iso8583.FieldSpec{Num: FieldAmount, Name: "Amount", Codec: iso8583.FixedNumeric(12)},
	iso8583.FieldSpec{Num: FieldSTAN, Name: "STAN", Codec: iso8583.FixedNumeric(6)},
	iso8583.FieldSpec{Num: FieldTimeLocal, Name: "Local time", Codec: iso8583.FixedNumeric(6)},
	iso8583.FieldSpec{Num: FieldDateLocal, Name: "Local date", Codec: iso8583.FixedNumeric(4)},
	iso8583.FieldSpec{Num: FieldDateExpiration, Name: "Expiration date", Codec: iso8583.FixedNumeric(4), Mask: iso8583.MaskRedact},
	iso8583.FieldSpec{Num: FieldCountryCode, Name: "Acquiring country", Codec: iso8583.FixedNumeric(3)},
	iso8583.FieldSpec{Num: FieldPOSEntryMode, Name: "POS entry mode", Codec: iso8583.FixedNumeric(3)},
	iso8583.FieldSpec{Num: FieldCardSequence, Name: "Card sequence number", Codec: iso8583.FixedNumeric(3)},
	iso8583.FieldSpec{Num: FieldNII, Name: "NII", Codec: iso8583.FixedNumeric(3)},
	iso8583.FieldSpec{Num: FieldPOSConditionCode, Name: "POS condition code", Codec: iso8583.FixedNumeric(2)},
	iso8583.FieldSpec{Num: FieldTrack2, Name: "Track 2", Codec: iso8583.Track2(2, 37), Mask: iso8583.MaskRedact},
	iso8583.FieldSpec{Num: FieldRRN, Name: "RRN", Codec: iso8583.FixedAns(12, ' ')},
	iso8583.FieldSpec{Num: FieldAuthorizationCode, Name: "Approval code", Codec: iso8583.FixedAns(6, ' ')},
	iso8583.FieldSpec{Num: FieldResponseCode, Name: "Response code", Codec: iso8583.FixedAns(2, ' ')},
	iso8583.FieldSpec{Num: FieldTerminalID, Name: "TID", Codec: iso8583.FixedAns(8, ' ')},
	iso8583.FieldSpec{Num: FieldMerchantID, Name: "MID", Codec: iso8583.FixedAns(15, ' ')},
	iso8583.FieldSpec{Num: FieldTrack1, Name: "Track 1", Codec: iso8583.VarAns(2, 76), Mask: iso8583.MaskRedact},
	iso8583.FieldSpec{Num: Field4DBC, Name: "4DBC", Codec: iso8583.VarAns(3, 4), Mask: iso8583.MaskRedact},
	iso8583.FieldSpec{Num: FieldCurrencyCode, Name: "Currency code", Codec: iso8583.FixedNumeric(3)},
	iso8583.FieldSpec{Num: FieldPINBlock, Name: "PIN block", Codec: iso8583.FixedBinary(64), Mask: iso8583.MaskRedact},
	iso8583.FieldSpec{Num: FieldTipAmount, Name: "Tip amount", Codec: iso8583.VarAns(3, 12)},
	iso8583.FieldSpec{Num: FieldICCData, Name: "ICC data", Codec: iso8583.VarBytes(3, 255)},
	iso8583.FieldSpec{Num: Field60, Name: "Private use 60", Codec: iso8583.VarAns(3, 22)},
	iso8583.FieldSpec{Num: FieldRouting, Name: "Origin and routing", Codec: iso8583.VarAns(3, 32)},
	iso8583.FieldSpec{Num: FieldInvoice, Name: "Invoice", Codec: iso8583.VarAns(3, 6)},
	iso8583.FieldSpec{Num: Field63, Name: "Reconciliation totals", Codec: iso8583.VarBytes(3, 120)},
)

// Config identifies the terminal to the Amex network.
type Config struct {
	Origin           string `yaml:"origin"`
	CountryCode      uint32 `yaml:"country_code"`
	Region           string `yaml:"region"`
	RoutingIndicator string `yaml:"routing_indicator"`
}

var ErrInvalidConfig = errors.New("amex: invalid config")

func (c Config) Validate() error {
	switch {
	case c.Origin == "":
		return fmt.Errorf("%w: origin is required", ErrInvalidConfig)
	case c.CountryCode == 0 || c.CountryCode > 999:
		return fmt.Errorf("%w: country code %d", ErrInvalidConfig, c.CountryCode)
	case len(c.Region) != 3:
		return fmt.Errorf("%w: region %q must be 3 characters", ErrInvalidConfig, c.Region)
	case len(c.RoutingIndicator) != 2:
		return fmt.Errorf("%w: routing indicator %q must be 2 characters", ErrInvalidConfig, c.RoutingIndicator)
	}
	return nil
}

// routing renders DE61: origin, region and routing indicator.
func (c Config) routing() string {
	return c.Origin + c.Region + c.RoutingIndicator
}
