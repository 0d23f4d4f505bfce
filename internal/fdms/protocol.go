// Package fdms implements the FDMS BASE24 dialect used by the generic
// acquirer host. Unlike the direct acquirers it works on the canonical
// payment records with no translation step.
package fdms

import "go-pos-hostswitch/internal/iso8583"

const (
	FieldPAN               = 2
	FieldProcessingCode    = 3
	FieldAmount            = 4
	FieldSTAN              = 11
	FieldTimeLocal         = 12
	FieldDateLocal         = 13
	FieldDateExpiration    = 14
	FieldPOSEntryMode      = 22
	FieldPANSequenceNumber = 23
	FieldNII               = 24
	FieldPOSConditionCode  = 25
	FieldTrack2            = 35
	FieldRRN               = 37
	FieldAuthorizationID   = 38
	FieldResponseCode      = 39
	FieldTerminalID        = 41
	FieldMerchantID        = 42
	FieldAdditionalData    = 48
	FieldCurrencyCode      = 49
	FieldPINBlock          = 52
	FieldAdditionalAmount  = 54
	FieldICCData           = 55
	Field60                = 60
	Field62                = 62
	Field63                = 63
)

var Spec = iso8583.NewSpec("fdms",
	iso8583.FieldSpec{Num: FieldPAN, Name: "PAN", Codec: iso8583.VarNumeric(2, 19), Mask: iso8583.MaskPAN},
	iso8583.FieldSpec{Num: FieldProcessingCode, Name: "Processing code", Codec: iso8583.FixedNumeric(6)},
	iso8583.FieldSpec{Num: FieldAmount, Name: "Amount", Codec: iso8583.FixedNumeric(12)},
	iso8583.FieldSpec{Num: FieldSTAN, Name: "STAN", Codec: iso8583.FixedNumeric(6)},
	iso8583.FieldSpec{Num: FieldTimeLocal, Name: "Local time", Codec: iso8583.FixedNumeric(6)},
	iso8583.FieldSpec{Num: FieldDateLocal, Name: "Local date", Codec: iso8583.FixedNumeric(4)},
	iso8583.FieldSpec{Num: FieldDateExpiration, Name: "Expiration date", Codec: iso8583.FixedNumeric(4), Mask: iso8583.MaskRedact},
	iso8583.FieldSpec{Num: FieldPOSEntryMode, Name: "POS entry mode", Codec: iso8583.FixedNumeric(3)},
	iso8583.FieldSpec{Num: FieldPANSequenceNumber, Name: "PAN sequence number", Codec: iso8583.FixedNumeric(3)},
	iso8583.FieldSpec{Num: FieldNII, Name: "NII", Codec: iso8583.FixedNumeric(3)},
	iso8583.FieldSpec{Num: FieldPOSConditionCode, Name: "POS condition code", Codec: iso8583.FixedNumeric(2)},
	iso8583.FieldSpec{Num: FieldTrack2, Name: "Track 2", Codec: iso8583.Track2(2, 37), Mask: iso8583.MaskRedact},
	iso8583.FieldSpec{Num: FieldRRN, Name: "RRN", Codec: iso8583.FixedAns(12, ' ')},
	iso8583.FieldSpec{Num: FieldAuthorizationID, Name: "Authorization ID", Codec: iso8583.FixedAns(6, ' ')},
	iso8583.FieldSpec{Num: FieldResponseCode, Name: "Response code", Codec: iso8583.FixedAns(2, ' ')},
	iso8583.FieldSpec{Num: FieldTerminalID, Name: "TID", Codec: iso8583.FixedAns(8, ' ')},
	iso8583.FieldSpec{Num: FieldMerchantID, Name: "MID", Codec: iso8583.FixedAns(15, ' ')},
	iso8583.FieldSpec{Num: FieldAdditionalData, Name: "Additional data", Codec: iso8583.VarAns(3, 81), Mask: iso8583.MaskRedact},
	iso8583.FieldSpec{Num: FieldCurrencyCode, Name: "Currency code", Codec: iso8583.FixedNumeric(3)},
	iso8583.FieldSpec{Num: FieldPINBlock, Name: "PIN block", Codec: iso8583.FixedBinary(64), Mask: iso8583.MaskRedact},
	iso8583.FieldSpec{Num: FieldAdditionalAmount, Name: "Additional amount", Codec: iso8583.VarAns(3, 12)},
	iso8583.FieldSpec{Num: FieldICCData, Name: "ICC data", Codec: iso8583.VarBytes(3, 999)},
	iso8583.FieldSpec{Num: Field60, Name: "Private use 60", Codec: iso8583.VarAns(3, 22)},
	iso8583.FieldSpec{Num: Field62, Name: "Private use 62", Codec: iso8583.VarAns(3, 999), Mask: iso8583.MaskRedact},
	iso8583.FieldSpec{Num: Field63, Name: "Private use 63", Codec: iso8583.VarBytes(3, 999), Mask: iso8583.MaskRedact},
)
