package hostswitch

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-pos-hostswitch/internal/amex"
	"go-pos-hostswitch/internal/diners"
	"go-pos-hostswitch/internal/fdms"
	"go-pos-hostswitch/internal/iso8583"
	"go-pos-hostswitch/internal/payment"
	"go-pos-hostswitch/internal/transport"
	"go-pos-hostswitch/internal/transport/transporttest"
)

type directory map[int]HostDefinition

func (d directory) HostDefinition(index int) (HostDefinition, bool) {
	def, ok := d[index]
	return def, ok
}

var hosts = directory{
	1: {Index: 1, Name: "fdms", Protocol: ProtocolFDMS, TPDU: "6000100000", NII: 10, TID: "FDMS0001"},
	2: {Index: 2, Name: "amex", Protocol: ProtocolAmex, TPDU: "6003210000", NII: 321, TID: "AMEX0001"},
	3: {Index: 3, Name: "diners", Protocol: ProtocolDiners, TPDU: "6001230000", NII: 123, TID: "TERM0001"},
}

var amexConfig = amex.Config{Origin: "POS01", CountryCode: 458, Region: "APA", RoutingIndicator: "01"}

// acquirer answers every request with mti+10, echoing the correlation
// fields. codes picks the response code of the n-th exchange (from 1).
func acquirer(t *testing.T, spec *iso8583.Spec, codes func(n int) string) transporttest.Responder {
	var mu sync.Mutex
	n := 0
	return func(sent []byte) []byte {
		mu.Lock()
		n++
		code := codes(n)
		mu.Unlock()

		req, err := iso8583.Parse(spec, sent[5:])
		require.NoError(t, err)
		mti, _ := req.MTI()
		resp := iso8583.New(spec)
		resp.SetMTI(mti + 10)
		for _, f := range []int{3, 11, 24, 41} {
			if req.HasField(f) {
				v, err := req.GetString(f)
				require.NoError(t, err)
				resp.SetString(f, v)
			}
		}
		resp.SetString(12, "101530")
		resp.SetString(13, "1015")
		resp.SetString(37, "123456789012")
		resp.SetString(38, "A1B2C3")
		resp.SetString(39, code)
		data, err := resp.Pack()
		require.NoError(t, err)
		return append(append([]byte(nil), sent[:5]...), data...)
	}
}

func approveAll(int) string { return "00" }

func newSwitch(fake *transporttest.Fake, opts ...Option) *HostSwitch {
	return New(hosts, NewCounters(100, 0), NewFactories(fake.Factory(), amexConfig, zerolog.Nop()), opts...)
}

func sale(def HostDefinition) *payment.Transaction {
	return &payment.Transaction{
		HostIndex:      def.Index,
		PAN:            "4000000000000002",
		ExpirationDate: "2812",
		Amount:         payment.AmountOf(1050),
		STAN:           42,
		EntryMode:      payment.EntryManual,
		NII:            def.NII,
		TID:            def.TID,
		MID:            "MERCHANT0000001",
		CVV:            "1234",
		Type:           payment.Sale,
		TPDU:           def.TPDU,
		InvoiceNumber:  7,
		BatchNumber:    3,
	}
}

func TestStatusConversion(t *testing.T) {
	assert.Equal(t, Completed, convert(dinersResults, diners.Completed))
	assert.Equal(t, TransientFailure, convert(amexResults, amex.TransientFailure))
	assert.Equal(t, PermFailure, convert(fdmsResults, fdms.PermFailure))
	assert.Equal(t, PermFailure, convert(dinersResults, diners.Status(42)))
	assert.Equal(t, PermFailure, convert(amexResults, amex.Status(-1)))
	assert.Equal(t, "TRANSIENT_FAILURE", TransientFailure.String())
}

func TestParseProtocol(t *testing.T) {
	for name, want := range map[string]Protocol{"fdms": ProtocolFDMS, " Amex ": ProtocolAmex, "DINERS": ProtocolDiners} {
		got, err := ParseProtocol(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseProtocol("visa")
	assert.Error(t, err)
}

func TestSequenceWraps(t *testing.T) {
	s := NewSequence(999998)
	assert.Equal(t, uint32(999999), s.Next())
	assert.Equal(t, uint32(1), s.Next())
	assert.Equal(t, uint32(1), s.Last())

	assert.Equal(t, uint32(1), NewSequence(0).Next())
	assert.Equal(t, uint32(1), NewSequence(999999).Next())
}

func TestUnboundSwitchNeverTouchesTransport(t *testing.T) {
	fake := transporttest.New(acquirer(t, diners.Spec, approveAll))
	var events []Event
	sw := newSwitch(fake, WithObserver(func(ev Event) { events = append(events, ev) }))

	tx := sale(hosts[3])
	ops := map[string]func() Status{
		"sale":                 func() Status { return sw.AuthorizeSale(tx) },
		"quasi cash":           func() Status { return sw.AuthorizeQuasiCash(tx) },
		"void":                 func() Status { return sw.PerformVoid(tx) },
		"reversal":             func() Status { return sw.SendReversal(tx) },
		"refund":               func() Status { return sw.AuthorizeRefund(tx) },
		"offline sale":         func() Status { return sw.PerformOfflineSale(tx) },
		"preauth":              func() Status { return sw.AuthorizePreAuth(tx) },
		"preauth completion":   func() Status { return sw.AuthorizePreAuthCompletion(tx) },
		"tip adjust":           func() Status { return sw.PerformTipAdjust(tx) },
		"tc upload":            func() Status { return sw.PerformTcUpload(tx) },
		"preauth cancellation": func() Status { return sw.PreAuthCancellation(tx) },
		"instalment sale":      func() Status { return sw.InstalmentSale(tx) },
		"settlement":           func() Status { return sw.PerformSettlement(&payment.SettlementData{}, false) },
		"test transaction":     func() Status { return sw.PerformTestTransaction(&payment.TestTransaction{}) },
		"tmk download":         func() Status { return sw.TMKDownload(&payment.TMKDownload{}) },
		"key exchange":         func() Status { return sw.KeyExchange(&payment.KeyExchange{}) },
		"batch upload": func() Status {
			st, n := sw.PerformBatchUpload([]*payment.Transaction{tx})
			assert.Zero(t, n)
			return st
		},
		"empty batch upload": func() Status {
			st, _ := sw.PerformBatchUpload(nil)
			return st
		},
	}

	check := func(t *testing.T) {
		for name, op := range ops {
			assert.Equal(t, PermFailure, op(), name)
		}
		assert.Zero(t, fake.Calls())
		assert.Empty(t, tx.ResponseCode)
	}

	t.Run("never connected", check)

	t.Run("unknown host", func(t *testing.T) {
		assert.False(t, sw.PreConnect(99))
		check(t)
	})

	t.Run("pre-connect failed", func(t *testing.T) {
		failing := transporttest.New(nil)
		failing.PreConnectStatus = transport.StatusError
		sw := New(hosts, NewCounters(0, 0), NewFactories(failing.Factory(), amexConfig, zerolog.Nop()))
		assert.False(t, sw.PreConnect(3))
		_, bound := sw.BoundProtocol()
		assert.False(t, bound)
		assert.Equal(t, PermFailure, sw.AuthorizeSale(tx))
		assert.Equal(t, 0, failing.Exchanges())
	})

	for _, ev := range events {
		assert.False(t, ev.Bound)
		assert.Equal(t, PermFailure, ev.Status)
	}
}

func TestBatchUploadStopsAtFirstFailure(t *testing.T) {
	const failAt = 3
	fake := transporttest.New(acquirer(t, diners.Spec, func(n int) string {
		if n == failAt {
			return "05"
		}
		return "00"
	}))
	counters := NewCounters(500, 0)
	sw := New(hosts, counters, NewFactories(fake.Factory(), amexConfig, zerolog.Nop()))
	require.True(t, sw.PreConnect(3))
	require.True(t, sw.WaitForConnection())

	var txs []*payment.Transaction
	for i := 0; i < 5; i++ {
		tx := sale(hosts[3])
		tx.STAN = uint32(10 + i)
		tx.RRN = "123456789012"
		tx.AuthIDResponse = "A1B2C3"
		txs = append(txs, tx)
	}

	st, uploaded := sw.PerformBatchUpload(txs)
	assert.Equal(t, PermFailure, st)
	assert.Equal(t, failAt-1, uploaded)
	assert.Equal(t, failAt, fake.Exchanges())
	assert.Equal(t, uint32(500+failAt), counters.STAN.Last())

	st, uploaded = sw.PerformBatchUpload(txs[uploaded:])
	assert.Equal(t, Completed, st)
	assert.Equal(t, 5-(failAt-1), uploaded)
	assert.Equal(t, 5+1, fake.Exchanges())
}

func TestBatchUploadEmpty(t *testing.T) {
	fake := transporttest.New(acquirer(t, diners.Spec, approveAll))
	sw := newSwitch(fake)
	require.True(t, sw.PreConnect(3))

	st, n := sw.PerformBatchUpload(nil)
	assert.Equal(t, Completed, st)
	assert.Zero(t, n)
	assert.Zero(t, fake.Exchanges())
}

func TestDinersSaleCopiesResponse(t *testing.T) {
	fake := transporttest.New(acquirer(t, diners.Spec, approveAll))
	var events []Event
	sw := newSwitch(fake, WithObserver(func(ev Event) { events = append(events, ev) }))
	require.True(t, sw.PreConnect(3))
	require.True(t, sw.WaitForConnection())
	p, ok := sw.BoundProtocol()
	require.True(t, ok)
	assert.Equal(t, ProtocolDiners, p)

	tx := sale(hosts[3])
	assert.Equal(t, Completed, sw.AuthorizeSale(tx))
	assert.Equal(t, "000000", tx.ProcessingCode)
	assert.Equal(t, "123456789012", tx.RRN)
	assert.Equal(t, "A1B2C3", tx.AuthIDResponse)
	assert.Equal(t, "00", tx.ResponseCode)

	require.Len(t, events, 1)
	assert.Equal(t, "sale", events[0].Operation)
	assert.Equal(t, 3, events[0].HostIndex)
	assert.True(t, events[0].Bound)
	assert.Equal(t, Completed, events[0].Status)
}

func TestDinersUnsupportedType(t *testing.T) {
	fake := transporttest.New(acquirer(t, diners.Spec, approveAll))
	sw := newSwitch(fake)
	require.True(t, sw.PreConnect(3))

	tx := sale(hosts[3])
	tx.Type = payment.InstalmentSale
	assert.Equal(t, PermFailure, sw.AuthorizeSale(tx))
	assert.Zero(t, fake.Exchanges())

	assert.Equal(t, PermFailure, sw.KeyExchange(&payment.KeyExchange{}))
	assert.Zero(t, fake.Exchanges())
}

func TestDinersTestTransactionUsesEchoCode(t *testing.T) {
	fake := transporttest.New(acquirer(t, diners.Spec, approveAll))
	sw := newSwitch(fake)
	require.True(t, sw.PreConnect(3))

	echo := &payment.TestTransaction{ProcessingCode: "123456", STAN: 9, TPDU: "6001230000", NII: 123, TID: "TERM0001"}
	assert.Equal(t, Completed, sw.PerformTestTransaction(echo))
	assert.Equal(t, "990000", echo.ProcessingCode)
	assert.Equal(t, "00", echo.ResponseCode)
}

func TestAmexSaleRenamesFields(t *testing.T) {
	fake := transporttest.New(acquirer(t, amex.Spec, approveAll))
	sw := newSwitch(fake)
	require.True(t, sw.PreConnect(2))

	tx := sale(hosts[2])
	tx.PAN = "371449635398431"
	assert.Equal(t, Completed, sw.AuthorizeSale(tx))
	assert.Equal(t, "A1B2C3", tx.AuthIDResponse)
	assert.Equal(t, "123456789012", tx.RRN)

	req, err := iso8583.Parse(amex.Spec, fake.Sent[0][5:])
	require.NoError(t, err)
	dbc, err := req.GetString(amex.Field4DBC)
	require.NoError(t, err)
	assert.Equal(t, "1234", dbc)

	assert.Equal(t, PermFailure, sw.PerformTestTransaction(&payment.TestTransaction{}))
	assert.Equal(t, PermFailure, sw.InstalmentSale(tx))
	assert.Equal(t, 1, fake.Exchanges())
}

func TestSettlementAssignsInvoice(t *testing.T) {
	fake := transporttest.New(acquirer(t, fdms.Spec, func(int) string { return "95" }))
	counters := NewCounters(0, 41)
	sw := New(hosts, counters, NewFactories(fake.Factory(), amexConfig, zerolog.Nop()))
	require.True(t, sw.PreConnect(1))

	s := &payment.SettlementData{STAN: 5, TPDU: "6000100000", NII: 10, TID: "FDMS0001", BatchNumber: 2,
		Summary: payment.BatchTotals{Sales: payment.BatchTotal{Count: 1, Total: 4200}}}
	assert.Equal(t, Completed, sw.PerformSettlement(s, false))
	assert.Equal(t, uint32(42), s.InvoiceNumber)
	assert.Equal(t, "95", s.ResponseCode)
	assert.Equal(t, "920000", s.ProcessingCode)
}

func TestTransientFailureUnbinds(t *testing.T) {
	fake := transporttest.New(nil)
	sw := newSwitch(fake)
	require.True(t, sw.PreConnect(1))
	require.True(t, sw.WaitForConnection())

	assert.Equal(t, TransientFailure, sw.AuthorizeSale(sale(hosts[1])))
	_, bound := sw.BoundProtocol()
	assert.False(t, bound)

	calls := fake.Calls()
	assert.Equal(t, PermFailure, sw.AuthorizeSale(sale(hosts[1])))
	assert.Equal(t, calls, fake.Calls())
}

func TestWaitTimeoutAndDisconnect(t *testing.T) {
	fake := transporttest.New(nil)
	fake.WaitStatus = transport.StatusNotConnected
	sw := newSwitch(fake, WithWaitTimeout(time.Millisecond))
	assert.False(t, sw.WaitForConnection())

	require.True(t, sw.PreConnect(2))
	assert.False(t, sw.WaitForConnection())
	_, bound := sw.BoundHost()
	assert.False(t, bound)

	require.True(t, sw.PreConnect(2))
	assert.True(t, sw.Disconnect())
	assert.True(t, sw.Disconnect())
	_, bound = sw.BoundProtocol()
	assert.False(t, bound)
}

// unmappedCanonical lists canonical fields a protocol has no room for.
var unmappedCanonical = map[string][]string{
	"diners": {"HostIndex", "InstalmentMonths", "InstalmentPlan", "DCC"},
	"amex":   {"HostIndex", "InstalmentMonths", "InstalmentPlan", "DCC", "Status", "AID", "CardholderName", "IsPreauthCompleted"},
}

func fieldNames(v any) []string {
	typ := reflect.TypeOf(v)
	names := make([]string, 0, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		names = append(names, typ.Field(i).Name)
	}
	return names
}

func checkMapping[H any](t *testing.T, protocol string, table []fieldMap[H]) {
	var host H
	canonical := map[string]bool{}
	mapped := map[string]bool{}
	for _, f := range table {
		assert.False(t, mapped[f.host], "%s mapped twice", f.host)
		mapped[f.host] = true
		canonical[f.canonical] = true
		assert.NotZero(t, f.dir, f.host)
	}
	assert.ElementsMatch(t, fieldNames(host), keys(mapped), "every %s field is mapped", protocol)

	want := map[string]bool{}
	for _, name := range fieldNames(payment.Transaction{}) {
		want[name] = true
	}
	for _, name := range unmappedCanonical[protocol] {
		assert.False(t, canonical[name], "%s is listed as unmapped", name)
		delete(want, name)
	}
	assert.ElementsMatch(t, keys(want), keys(canonical))
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestMappingTablesAreComplete(t *testing.T) {
	checkMapping(t, "diners", dinersFields)
	checkMapping(t, "amex", amexFields)
}

func TestResponseFieldsCopyBack(t *testing.T) {
	responses := []string{"ProcessingCode", "Amount", "TxDatetime", "RRN", "AuthIDResponse", "ResponseCode", "IssuerEMVResponse"}
	for _, table := range []struct {
		name string
		out  []string
	}{
		{"diners", outboundOf(dinersFields)},
		{"amex", outboundOf(amexFields)},
	} {
		assert.ElementsMatch(t, responses, table.out, table.name)
	}
}

func outboundOf[H any](table []fieldMap[H]) []string {
	var out []string
	for _, f := range table {
		if f.dir&outbound != 0 {
			out = append(out, f.canonical)
		}
	}
	return out
}

func TestTranslateFallbacks(t *testing.T) {
	tx := sale(hosts[3])
	tx.Status = payment.TransactionStatus(99)
	d, err := translate(dinersFields, tx)
	require.NoError(t, err)
	assert.Equal(t, diners.StatusDeclined, d.Status)

	tx.PreviousStatus = payment.StatusDeclined
	a, err := translate(amexFields, tx)
	require.NoError(t, err)
	assert.Equal(t, amex.StatusOther, a.PreviousStatus)
	assert.Equal(t, "1234", a.Amex4DBC)

	tx.Type = payment.Authorization
	_, err = translate(amexFields, tx)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestRebindDisconnectsPreviousHost(t *testing.T) {
	links := map[string]*transporttest.Fake{
		"diners": transporttest.New(nil),
		"amex":   transporttest.New(nil),
	}
	tf := func(name string) transport.Client { return links[name] }
	sw := New(hosts, NewCounters(100, 0), NewFactories(tf, amexConfig, zerolog.Nop()))

	require.True(t, sw.PreConnect(3))
	require.True(t, sw.PreConnect(2))
	assert.Equal(t, 1, links["diners"].Disconnects)
	assert.Equal(t, 0, links["amex"].Disconnects)
	p, ok := sw.BoundProtocol()
	require.True(t, ok)
	assert.Equal(t, ProtocolAmex, p)
}

// dccAcquirer approves with respMTI and records DE63 of every request.
// It quotes an offer to enquiries.
func dccAcquirer(t *testing.T, spec *iso8583.Spec, respMTI int, seen *[]string) transporttest.Responder {
	return func(sent []byte) []byte {
		req, err := iso8583.Parse(spec, sent[5:])
		require.NoError(t, err)
		var block []byte
		if req.HasField(63) {
			block, _ = req.GetBytes(63)
		}
		*seen = append(*seen, string(block))

		resp := iso8583.New(spec)
		resp.SetMTI(respMTI)
		for _, f := range []int{3, 11, 24, 41} {
			if req.HasField(f) {
				v, err := req.GetString(f)
				require.NoError(t, err)
				resp.SetString(f, v)
			}
		}
		resp.SetString(12, "101530")
		resp.SetString(13, "1015")
		resp.SetString(37, "123456789012")
		resp.SetString(38, "A1B2C3")
		resp.SetString(39, "00")
		if string(block) == "DC001E" {
			resp.SetBytes(63, []byte("DC023"+"840"+"000000001500"+"41234567"))
		}
		data, err := resp.Pack()
		require.NoError(t, err)
		return append(append([]byte(nil), sent[:5]...), data...)
	}
}

func TestDCCVariants(t *testing.T) {
	dcc := []struct {
		name    string
		call    func(*HostSwitch, *payment.Transaction) Status
		typ     payment.TransactionType
		mti     string
		respMTI int
	}{
		{"sale enquiry", (*HostSwitch).AuthorizeSaleWithDCCEnquiry, payment.Sale, "0200", 210},
		{"sale allowed", (*HostSwitch).AuthorizeSaleWithDCCAllowed, payment.Sale, "0200", 210},
		{"offline enquiry", (*HostSwitch).PerformOfflineWithDCCEnquiry, payment.OfflineSale, "0220", 230},
		{"offline allowed", (*HostSwitch).PerformOfflineWithDCCAllowed, payment.OfflineSale, "0220", 230},
		{"preauth enquiry", (*HostSwitch).AuthorizePreAuthWithDCCEnquiry, payment.PreAuth, "0100", 110},
		{"preauth allowed", (*HostSwitch).AuthorizePreAuthWithDCCAllowed, payment.PreAuth, "0100", 110},
		{"completion enquiry", (*HostSwitch).AuthorizePreAuthCompletionWithDCCEnquiry, payment.PreAuthCompletionOnline, "0220", 210},
		{"completion allowed", (*HostSwitch).AuthorizePreAuthCompletionWithDCCAllowed, payment.PreAuthCompletionOnline, "0220", 210},
	}
	transaction := func(def HostDefinition, typ payment.TransactionType) *payment.Transaction {
		tx := sale(def)
		tx.Type = typ
		tx.PreauthAmount = payment.AmountOf(1050)
		tx.TxDatetime = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
		tx.RRN = "123456789012"
		tx.AuthIDResponse = "A1B2C3"
		tx.ResponseCode = "00"
		return tx
	}

	specs := map[int]*iso8583.Spec{1: fdms.Spec, 2: amex.Spec, 3: diners.Spec}
	for _, index := range []int{1, 2, 3} {
		def := hosts[index]
		for _, tt := range dcc {
			t.Run(def.Name+" "+tt.name, func(t *testing.T) {
				var seen []string
				fake := transporttest.New(dccAcquirer(t, specs[index], tt.respMTI, &seen))
				sw := newSwitch(fake)
				require.True(t, sw.PreConnect(index))
				require.True(t, sw.WaitForConnection())

				tx := transaction(def, tt.typ)
				if strings.HasSuffix(tt.name, "allowed") {
					tx.DCC = &payment.DCCOffer{Currency: "840", Amount: 1500, Rate: "41234567"}
				}
				assert.Equal(t, Completed, tt.call(sw, tx))
				require.Len(t, seen, 1)
				assert.Equal(t, tt.mti, mtiOf(t, fake.Sent[0]))

				switch {
				case def.Protocol != ProtocolFDMS:
					assert.Empty(t, seen[0], "no conversion block")
				case strings.HasSuffix(tt.name, "enquiry"):
					assert.Equal(t, "DC001E", seen[0])
					require.NotNil(t, tx.DCC)
					assert.Equal(t, payment.DCCOffer{Currency: "840", Amount: 1500, Rate: "41234567"}, *tx.DCC)
				default:
					assert.Equal(t, "DC024A84000000000150041234567", seen[0])
				}
			})
		}
	}
}

func mtiOf(t *testing.T, frame []byte) string {
	t.Helper()
	require.Greater(t, len(frame), 7)
	return fmt.Sprintf("%02X%02X", frame[5], frame[6])
}

func TestFDMSDCCAllowedWithoutOfferFails(t *testing.T) {
	fake := transporttest.New(acquirer(t, fdms.Spec, approveAll))
	sw := newSwitch(fake)
	require.True(t, sw.PreConnect(1))
	require.True(t, sw.WaitForConnection())

	tx := sale(hosts[1])
	assert.Equal(t, PermFailure, sw.AuthorizeSaleWithDCCAllowed(tx))
	assert.Equal(t, 0, fake.Exchanges())
	_, bound := sw.BoundProtocol()
	assert.True(t, bound)
}
