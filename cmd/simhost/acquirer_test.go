package main

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-pos-hostswitch/internal/diners"
	"go-pos-hostswitch/internal/fdms"
	"go-pos-hostswitch/internal/iso8583"
)

func frame(t *testing.T, req *iso8583.Apdu) []byte {
	t.Helper()
	body, err := req.Pack()
	require.NoError(t, err)
	return append([]byte{0x60, 0x01, 0x23, 0x00, 0x00}, body...)
}

func newTestAcquirer(t *testing.T, protocol string, reconcile bool) *acquirer {
	t.Helper()
	a, err := newAcquirer(protocol, reconcile, zerolog.Nop())
	require.NoError(t, err)
	a.now = func() time.Time { return time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC) }
	return a
}

func TestUnknownProtocol(t *testing.T) {
	_, err := newAcquirer("visa", false, zerolog.Nop())
	assert.Error(t, err)
}

func TestAnswerSale(t *testing.T) {
	a := newTestAcquirer(t, "diners", false)
	req := iso8583.New(diners.Spec)
	req.SetMTI(200)
	req.SetString(diners.FieldProcessingCode, "000000")
	req.SetInt(diners.FieldAmount, 2500)
	req.SetInt(diners.FieldSTAN, 17)
	req.SetInt(diners.FieldNII, 123)
	req.SetString(diners.FieldTerminalID, "TERM0001")

	out, err := a.answer(frame(t, req))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x00, 0x00, 0x01, 0x23}, out[:tpduLen])

	resp, err := iso8583.Parse(diners.Spec, out[tpduLen:])
	require.NoError(t, err)
	mti, _ := resp.MTI()
	assert.Equal(t, 210, mti)
	stan, _ := resp.GetInt(diners.FieldSTAN)
	assert.Equal(t, uint64(17), stan)
	tid, _ := resp.GetString(diners.FieldTerminalID)
	assert.Equal(t, "TERM0001", tid)
	code, _ := resp.GetString(diners.FieldResponseCode)
	assert.Equal(t, "00", code)
	rrn, _ := resp.GetString(diners.FieldRRN)
	assert.Equal(t, "000000000001", rrn)
	auth, _ := resp.GetString(diners.FieldAuthorizationID)
	assert.Equal(t, "SIM000", auth)
	local, _ := resp.GetString(diners.FieldTimeLocal)
	assert.Equal(t, "093000", local)
}

func TestAnswerSettlementWithReconcile(t *testing.T) {
	a := newTestAcquirer(t, "fdms", true)
	settle := func(code string) string {
		req := iso8583.New(fdms.Spec)
		req.SetMTI(500)
		req.SetString(fdms.FieldProcessingCode, code)
		req.SetInt(fdms.FieldSTAN, 5)
		req.SetInt(fdms.FieldNII, 10)
		req.SetString(fdms.FieldTerminalID, "FDMS0001")
		out, err := a.answer(frame(t, req))
		require.NoError(t, err)
		resp, err := iso8583.Parse(fdms.Spec, out[tpduLen:])
		require.NoError(t, err)
		rc, _ := resp.GetString(fdms.FieldResponseCode)
		return rc
	}
	assert.Equal(t, "95", settle("920000"))
	assert.Equal(t, "00", settle("960000"))
}

func TestAnswerKeyExchange(t *testing.T) {
	a := newTestAcquirer(t, "fdms", false)
	req := iso8583.New(fdms.Spec)
	req.SetMTI(800)
	req.SetString(fdms.FieldProcessingCode, fdms.ProcessingCodeKeyExchange)
	req.SetInt(fdms.FieldSTAN, 9)
	req.SetInt(fdms.FieldNII, 10)
	req.SetString(fdms.FieldTerminalID, "FDMS0001")

	out, err := a.answer(frame(t, req))
	require.NoError(t, err)
	resp, err := iso8583.Parse(fdms.Spec, out[tpduLen:])
	require.NoError(t, err)
	table, err := resp.GetBytes(fdms.Field63)
	require.NoError(t, err)
	assert.Equal(t, "KP032"+simPINKey+simTLEKey, string(table))
	assert.False(t, resp.HasField(fdms.FieldRRN))
}

func TestAnswerRejectsShortFrame(t *testing.T) {
	a := newTestAcquirer(t, "amex", false)
	_, err := a.answer([]byte{0x60, 0x00, 0x01})
	assert.Error(t, err)
}

func TestAnswerDCCEnquiry(t *testing.T) {
	a := newTestAcquirer(t, "fdms", false)
	req := iso8583.New(fdms.Spec)
	req.SetMTI(200)
	req.SetString(fdms.FieldProcessingCode, "000000")
	req.SetInt(fdms.FieldAmount, 1000)
	req.SetInt(fdms.FieldSTAN, 3)
	req.SetInt(fdms.FieldNII, 10)
	req.SetString(fdms.FieldTerminalID, "FDMS0001")
	req.SetBytes(fdms.Field63, []byte("DC001E"))

	out, err := a.answer(frame(t, req))
	require.NoError(t, err)
	resp, err := iso8583.Parse(fdms.Spec, out[tpduLen:])
	require.NoError(t, err)
	offer, err := resp.GetBytes(fdms.Field63)
	require.NoError(t, err)
	assert.Equal(t, simDCCOffer, string(offer))
}
