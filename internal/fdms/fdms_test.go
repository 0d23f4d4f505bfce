package fdms

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-pos-hostswitch/internal/iso8583"
	"go-pos-hostswitch/internal/payment"
	"go-pos-hostswitch/internal/transport/transporttest"
)

func freezeClock(t *testing.T) {
	t.Helper()
	prev := now
	now = func() time.Time { return time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { now = prev })
}

func reply(t *testing.T, req *iso8583.Apdu, mti int, extra map[int]string) *iso8583.Apdu {
	t.Helper()
	resp := iso8583.New(Spec)
	resp.SetMTI(mti)
	for _, f := range []int{FieldProcessingCode, FieldSTAN, FieldNII, FieldTerminalID} {
		if req.HasField(f) {
			v, err := req.GetString(f)
			require.NoError(t, err)
			resp.SetString(f, v)
		}
	}
	for f, v := range extra {
		resp.SetString(f, v)
	}
	data, err := resp.Pack()
	require.NoError(t, err)
	parsed, err := iso8583.Parse(Spec, data)
	require.NoError(t, err)
	return parsed
}

var approval = map[int]string{
	FieldTimeLocal:       "110000",
	FieldDateLocal:       "1015",
	FieldRRN:             "FD0000000001",
	FieldAuthorizationID: "777777",
	FieldResponseCode:    "00",
}

func swipedSale() *payment.Transaction {
	return &payment.Transaction{
		PAN:            "5500000000000004",
		ExpirationDate: "2712",
		Amount:         payment.AmountOf(4200),
		STAN:           77,
		EntryMode:      payment.EntryMagstripe,
		NII:            10,
		Track2:         "5500000000000004=27121010000000000",
		TID:            "FDMS0001",
		MID:            "FDMSMERCHANT001",
		Type:           payment.Sale,
		TPDU:           "6000100000",
		InvoiceNumber:  12,
		BatchNumber:    2,
	}
}

func TestProcessingCode(t *testing.T) {
	tests := []struct {
		typ  payment.TransactionType
		void bool
		want string
	}{
		{payment.Sale, false, "000000"},
		{payment.QuasiCash, false, "110000"},
		{payment.InstalmentSale, false, "000000"},
		{payment.Refund, true, "220000"},
		{payment.PreAuth, false, "300000"},
		{payment.TcUpload, false, "940000"},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			code, err := ProcessingCode(tt.typ, tt.void)
			require.NoError(t, err)
			assert.Equal(t, tt.want, code)
		})
	}

	_, err := ProcessingCode(payment.PreAuth, true)
	assert.ErrorIs(t, err, ErrNoProcessingCode)
}

func TestSwipedSaleOmitsClearPAN(t *testing.T) {
	tx := swipedSale()
	req, err := Build(KindSale, tx)
	require.NoError(t, err)

	mti, _ := req.MTI()
	assert.Equal(t, 200, mti)
	assert.False(t, req.HasField(FieldPAN))
	assert.False(t, req.HasField(FieldDateExpiration))
	assert.True(t, req.HasField(FieldTrack2))
	entry, _ := req.GetString(FieldPOSEntryMode)
	assert.Equal(t, "022", entry)
	batch, _ := req.GetString(Field60)
	assert.Equal(t, "000002", batch)
	assert.Equal(t, "000000", tx.ProcessingCode)

	require.NoError(t, Read(KindSale, reply(t, req, 210, approval), tx))
	assert.Equal(t, "FD0000000001", tx.RRN)
	assert.Equal(t, "777777", tx.AuthIDResponse)
	assert.Equal(t, "00", tx.ResponseCode)
}

func TestRejectedResponseLeavesRecord(t *testing.T) {
	tx := swipedSale()
	_, err := Build(KindSale, tx)
	require.NoError(t, err)

	resp := iso8583.New(Spec)
	resp.SetMTI(210)
	resp.SetString(FieldProcessingCode, "000000")
	resp.SetInt(FieldSTAN, 77)
	resp.SetInt(FieldNII, 11)
	resp.SetString(FieldTerminalID, "FDMS0001")
	for f, v := range approval {
		resp.SetString(f, v)
	}
	assert.ErrorIs(t, Read(KindSale, resp, tx), iso8583.ErrMismatch)
	assert.Empty(t, tx.RRN)
	assert.Empty(t, tx.ResponseCode)
}

func TestQuasiCashAndInstalment(t *testing.T) {
	tx := swipedSale()
	tx.Type = payment.QuasiCash
	req, err := Build(KindQuasiCash, tx)
	require.NoError(t, err)
	code, _ := req.GetString(FieldProcessingCode)
	assert.Equal(t, "110000", code)

	tx = swipedSale()
	tx.Type = payment.InstalmentSale
	_, err = Build(KindInstalmentSale, tx)
	assert.ErrorIs(t, err, ErrInvalidInstalment)

	tx.InstalmentMonths = 6
	tx.InstalmentPlan = "P01"
	req, err = Build(KindInstalmentSale, tx)
	require.NoError(t, err)
	plan, _ := req.GetString(FieldAdditionalData)
	assert.Equal(t, "06P01", plan)
}

func TestPreAuthCancellation(t *testing.T) {
	tx := swipedSale()
	tx.Type = payment.PreAuthCancellation
	tx.Amount = nil
	tx.PreauthAmount = payment.AmountOf(9000)
	tx.RRN = "FD0000000009"
	tx.TxDatetime = time.Date(2026, 10, 14, 18, 30, 0, 0, time.UTC)

	req, err := Build(KindPreAuthCancellation, tx)
	require.NoError(t, err)
	mti, _ := req.MTI()
	assert.Equal(t, 100, mti)
	code, _ := req.GetString(FieldProcessingCode)
	assert.Equal(t, "020000", code)
	amount, _ := req.GetInt(FieldAmount)
	assert.Equal(t, uint64(9000), amount)
	hms, _ := req.GetString(FieldTimeLocal)
	assert.Equal(t, "183000", hms)
	assert.False(t, req.HasField(Field60))

	require.NoError(t, Read(KindPreAuthCancellation, reply(t, req, 110, approval), tx))
	assert.Equal(t, "00", tx.ResponseCode)
}

func TestVoidAndReversalAmounts(t *testing.T) {
	freezeClock(t)
	tests := []struct {
		name     string
		previous payment.TransactionStatus
		adjusted bool
		amount   uint64
		present  bool
		tip      bool
	}{
		{"approved", payment.StatusApproved, false, 4300, true, false},
		{"approved adjusted", payment.StatusApproved, true, 4300, true, true},
		{"to advise", payment.StatusToAdvise, false, 4200, true, false},
		{"declined", payment.StatusDeclined, false, 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := swipedSale()
			tx.AdditionalAmount = payment.AmountOf(100)
			tx.PreviousStatus = tt.previous
			tx.IsAdjusted = tt.adjusted
			tx.RRN = "FD0000000001"

			req, err := Build(KindVoid, tx)
			require.NoError(t, err)
			assert.Equal(t, tt.present, req.HasField(FieldAmount))
			if tt.present {
				amount, _ := req.GetInt(FieldAmount)
				assert.Equal(t, tt.amount, amount)
			}
			assert.Equal(t, tt.tip, req.HasField(FieldAdditionalAmount))
			assert.True(t, req.HasField(FieldPAN))
			date, _ := req.GetString(FieldDateLocal)
			assert.Equal(t, "1015", date)
			code, _ := req.GetString(FieldProcessingCode)
			assert.Equal(t, "020000", code)
		})
	}

	tx := swipedSale()
	tx.PreviousStatus = payment.StatusApproved
	tx.InProgress = payment.InProgressNone
	req, err := Build(KindReversal, tx)
	require.NoError(t, err)
	code, _ := req.GetString(FieldProcessingCode)
	assert.Equal(t, "000000", code)
	mti, _ := req.MTI()
	assert.Equal(t, 400, mti)
}

func TestOfflineSaleAndCompletion(t *testing.T) {
	tx := swipedSale()
	tx.Type = payment.OfflineSale
	tx.RRN = "FD0000000003"
	tx.AuthIDResponse = "123456"
	tx.ResponseCode = "00"
	req, err := Build(KindOfflineSale, tx)
	require.NoError(t, err)
	assert.False(t, req.HasField(FieldRRN))
	assert.False(t, req.HasField(FieldResponseCode))
	assert.True(t, req.HasField(FieldAuthorizationID))

	tx.Type = payment.PreAuthCompletionOffline
	req, err = Build(KindOfflineSale, tx)
	require.NoError(t, err)
	assert.True(t, req.HasField(FieldRRN))
	assert.True(t, req.HasField(FieldResponseCode))

	require.NoError(t, Read(KindOfflineSale, reply(t, req, 230, map[int]string{
		FieldRRN: "FD0000000004", FieldResponseCode: "00",
	}), tx))
	assert.Equal(t, "FD0000000004", tx.RRN)
}

func TestTipAdjust(t *testing.T) {
	freezeClock(t)
	tx := swipedSale()
	tx.AdditionalAmount = payment.AmountOf(800)
	tx.RRN = "FD0000000001"
	req, err := Build(KindTipAdjust, tx)
	require.NoError(t, err)
	tip, _ := req.GetString(FieldAdditionalAmount)
	assert.Equal(t, "000000000800", tip)
	orig, _ := req.GetString(Field60)
	assert.Equal(t, "000000004200", orig)
	amount, _ := req.GetInt(FieldAmount)
	assert.Equal(t, uint64(5000), amount)

	resp := reply(t, req, 230, map[int]string{FieldRRN: "FD0000000001", FieldResponseCode: "00", Field60: "000000005000"})
	require.NoError(t, Read(KindTipAdjust, resp, tx))
	assert.Equal(t, payment.Amount(5000), *tx.Amount)
}

func TestBatchUpload(t *testing.T) {
	tx := swipedSale()
	tx.Type = payment.OfflineSale
	req, err := BuildBatchUpload(tx, 500)
	require.NoError(t, err)
	stan, _ := req.GetInt(FieldSTAN)
	assert.Equal(t, uint64(500), stan)
	f60, _ := req.GetString(Field60)
	assert.Equal(t, "0220000077"+strings.Repeat(" ", 12), f60)

	assert.ErrorIs(t, ReadBatchUpload(reply(t, req, 330, map[int]string{FieldResponseCode: "05"}), tx), ErrNotApproved)
	require.NoError(t, ReadBatchUpload(reply(t, req, 330, map[int]string{FieldResponseCode: "00"}), tx))

	tx.Type = payment.PreAuth
	_, err = BuildBatchUpload(tx, 501)
	assert.ErrorIs(t, err, ErrNoProcessingCode)
}

func TestSettlement(t *testing.T) {
	s := &payment.SettlementData{STAN: 90, NII: 10, TID: "FDMS0001", MID: "FDMSMERCHANT001", BatchNumber: 2,
		Summary: payment.BatchTotals{Sales: payment.BatchTotal{Count: 3, Total: 12600}, Refunds: payment.BatchTotal{Count: 1, Total: 500}}}

	req, err := BuildSettlement(s, false)
	require.NoError(t, err)
	totals, _ := req.GetBytes(Field63)
	assert.Equal(t, "003000000012600001000000000500"+strings.Repeat("0", 60), string(totals))

	require.NoError(t, ReadSettlement(reply(t, req, 510, map[int]string{FieldResponseCode: "95"}), s))
	assert.Equal(t, "95", s.ResponseCode)

	req, err = BuildSettlement(s, true)
	require.NoError(t, err)
	code, _ := req.GetString(FieldProcessingCode)
	assert.Equal(t, "960000", code)
}

func TestNetworkManagement(t *testing.T) {
	echo := &payment.TestTransaction{NII: 10, TID: "FDMS0001"}
	req, err := BuildEchoTest(echo)
	require.NoError(t, err)
	assert.Equal(t, "990000", echo.ProcessingCode)
	require.NoError(t, ReadEchoTest(reply(t, req, 810, map[int]string{FieldResponseCode: "00"}), echo))
	assert.Equal(t, "00", echo.ResponseCode)

	tmk := &payment.TMKDownload{NII: 10, TID: "FDMS0001"}
	req, err = BuildTMKDownload(tmk)
	require.NoError(t, err)
	require.NoError(t, ReadTMKDownload(reply(t, req, 810, map[int]string{
		FieldResponseCode: "00", Field62: "XX0123456789ABCDEFtrailer",
	}), tmk))
	assert.Equal(t, []byte("0123456789ABCDEF"), tmk.TMK)

	tmk = &payment.TMKDownload{NII: 10, TID: "FDMS0001"}
	req, err = BuildTMKDownload(tmk)
	require.NoError(t, err)
	assert.ErrorIs(t, ReadTMKDownload(reply(t, req, 810, map[int]string{
		FieldResponseCode: "00", Field62: "XX0123",
	}), tmk), ErrMalformedField)
	assert.Nil(t, tmk.TMK)
}

func TestKeyExchange(t *testing.T) {
	k := &payment.KeyExchange{STAN: 5, NII: 10, TID: "FDMS0001"}
	req, err := BuildKeyExchange(k)
	require.NoError(t, err)
	code, _ := req.GetString(FieldProcessingCode)
	assert.Equal(t, "930000", code)

	table := "TL004abcd" + "KP032" + "PPPPPPPPPPPPPPPP" + "TTTTTTTTTTTTTTTT"
	require.NoError(t, ReadKeyExchange(reply(t, req, 810, map[int]string{FieldResponseCode: "00", Field63: table}), k))
	assert.Equal(t, []byte("PPPPPPPPPPPPPPPP"), k.PINKey)
	assert.Equal(t, []byte("TTTTTTTTTTTTTTTT"), k.TLEKey)

	_, err = parseKeyTable([]byte("KP099short"))
	assert.ErrorIs(t, err, ErrMalformedField)

	k = &payment.KeyExchange{STAN: 6, NII: 10, TID: "FDMS0001"}
	req, err = BuildKeyExchange(k)
	require.NoError(t, err)
	assert.ErrorIs(t, ReadKeyExchange(reply(t, req, 810, map[int]string{FieldResponseCode: "00", Field63: "TL004abcd"}), k), ErrMalformedField)
}

func TestHostRunsOverSession(t *testing.T) {
	fake := transporttest.New(func(sent []byte) []byte {
		req, err := iso8583.Parse(Spec, sent[5:])
		require.NoError(t, err)
		data, err := reply(t, req, 210, approval).Pack()
		require.NoError(t, err)
		return append(append([]byte(nil), sent[:5]...), data...)
	})
	h := NewHost(fake.Factory(), zerolog.Nop())
	require.True(t, h.PreConnect("fdms"))
	require.True(t, h.WaitForConnection(time.Second))

	tx := swipedSale()
	assert.Equal(t, Completed, h.AuthorizeSale(tx))
	assert.Equal(t, "FD0000000001", tx.RRN)

	tx = swipedSale()
	tx.Type = payment.InstalmentSale
	assert.Equal(t, PermFailure, h.AuthorizeInstalmentSale(tx))
	assert.Equal(t, 1, fake.Exchanges())
}

func TestDCCBlock(t *testing.T) {
	tx := swipedSale()
	req, err := BuildDCC(KindSale, DCCEnquiry, tx)
	require.NoError(t, err)
	block, err := req.GetBytes(Field63)
	require.NoError(t, err)
	assert.Equal(t, "DC001E", string(block))

	plain, err := Build(KindSale, swipedSale())
	require.NoError(t, err)
	assert.False(t, plain.HasField(Field63))

	_, err = BuildDCC(KindSale, DCCAllowed, swipedSale())
	assert.ErrorIs(t, err, ErrInvalidDCC)

	bad := swipedSale()
	bad.DCC = &payment.DCCOffer{Currency: "USD", Amount: 1500, Rate: "41234567"}
	_, err = BuildDCC(KindSale, DCCAllowed, bad)
	assert.ErrorIs(t, err, ErrInvalidDCC)

	_, err = BuildDCC(KindRefund, DCCEnquiry, swipedSale())
	assert.ErrorIs(t, err, ErrInvalidDCC)

	accepted := swipedSale()
	accepted.DCC = &payment.DCCOffer{Currency: "840", Amount: 1500, Rate: "41234567"}
	req, err = BuildDCC(KindPreAuth, DCCAllowed, accepted)
	require.NoError(t, err)
	block, _ = req.GetBytes(Field63)
	assert.Equal(t, "DC024A84000000000150041234567", string(block))
}

func TestReadDCCOffer(t *testing.T) {
	freezeClock(t)
	tx := swipedSale()
	req, err := BuildDCC(KindSale, DCCEnquiry, tx)
	require.NoError(t, err)

	withOffer := func(offer string) *iso8583.Apdu {
		fields := map[int]string{Field63: offer}
		for k, v := range approval {
			fields[k] = v
		}
		return reply(t, req, 210, fields)
	}

	require.NoError(t, Read(KindSale, withOffer("DC023978000000004150"+"10912345"), tx))
	require.NotNil(t, tx.DCC)
	assert.Equal(t, payment.DCCOffer{Currency: "978", Amount: 4150, Rate: "10912345"}, *tx.DCC)

	other := swipedSale()
	_, err = BuildDCC(KindSale, DCCEnquiry, other)
	require.NoError(t, err)
	assert.ErrorIs(t, Read(KindSale, withOffer("DC005EURXX"), other), ErrMalformedField)
	assert.Nil(t, other.DCC)
	assert.Empty(t, other.ResponseCode)
}
