package fdms

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"go-pos-hostswitch/internal/iso8583"
	"go-pos-hostswitch/internal/online"
	"go-pos-hostswitch/internal/payment"
	"go-pos-hostswitch/internal/transport"
)

type Status int

const (
	Completed Status = iota
	TransientFailure
	PermFailure
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "COMPLETED"
	case TransientFailure:
		return "TRANSIENT_FAILURE"
	case PermFailure:
		return "PERM_FAILURE"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

var results = map[online.Result]Status{
	online.Completed:        Completed,
	online.TransientFailure: TransientFailure,
	online.PermFailure:      PermFailure,
}

// Host runs FDMS messages for the generic acquirer over one session.
type Host struct {
	session *online.Session
	log     zerolog.Logger
}

func NewHost(factory transport.Factory, log zerolog.Logger, opts ...online.Option) *Host {
	log = log.With().Str("component", "fdms").Logger()
	return &Host{session: online.NewSession(factory, log, opts...), log: log}
}

func (h *Host) PreConnect(hostName string) bool              { return h.session.PreConnect(hostName) }
func (h *Host) WaitForConnection(timeout time.Duration) bool { return h.session.WaitForConnection(timeout) }
func (h *Host) Disconnect() bool                             { return h.session.Disconnect() }

func (h *Host) run(name string, tpdu string, build func() (*iso8583.Apdu, error), read online.Reader) Status {
	req, err := build()
	if err != nil {
		h.log.Error().Err(err).Str("message", name).Msg("build request")
		return PermFailure
	}
	st, ok := results[h.session.Exchange(req, tpdu, read)]
	if !ok {
		st = PermFailure
	}
	h.log.Info().Str("message", name).Stringer("status", st).Msg("exchange done")
	return st
}

func (h *Host) perform(kind Kind, tx *payment.Transaction) Status {
	return h.run(operations[kind].name, tx.TPDU,
		func() (*iso8583.Apdu, error) { return Build(kind, tx) },
		func(resp *iso8583.Apdu) error { return Read(kind, resp, tx) })
}

func (h *Host) AuthorizeSale(tx *payment.Transaction) Status           { return h.perform(KindSale, tx) }
func (h *Host) AuthorizeQuasiCash(tx *payment.Transaction) Status      { return h.perform(KindQuasiCash, tx) }
func (h *Host) AuthorizeInstalmentSale(tx *payment.Transaction) Status { return h.perform(KindInstalmentSale, tx) }
func (h *Host) AuthorizeRefund(tx *payment.Transaction) Status         { return h.perform(KindRefund, tx) }
func (h *Host) AuthorizePreAuth(tx *payment.Transaction) Status        { return h.perform(KindPreAuth, tx) }
func (h *Host) PerformVoid(tx *payment.Transaction) Status             { return h.perform(KindVoid, tx) }
func (h *Host) SendReversal(tx *payment.Transaction) Status            { return h.perform(KindReversal, tx) }
func (h *Host) PerformOfflineSale(tx *payment.Transaction) Status      { return h.perform(KindOfflineSale, tx) }
func (h *Host) AuthorizeCompletion(tx *payment.Transaction) Status     { return h.perform(KindCompletion, tx) }
func (h *Host) SendTipAdjust(tx *payment.Transaction) Status           { return h.perform(KindTipAdjust, tx) }
func (h *Host) PerformTcUpload(tx *payment.Transaction) Status         { return h.perform(KindTcUpload, tx) }

func (h *Host) performDCC(kind Kind, mode DCCMode, tx *payment.Transaction) Status {
	return h.run(operations[kind].name+" dcc "+mode.String(), tx.TPDU,
		func() (*iso8583.Apdu, error) { return BuildDCC(kind, mode, tx) },
		func(resp *iso8583.Apdu) error { return Read(kind, resp, tx) })
}

func (h *Host) AuthorizeSaleWithDCCEnquiry(tx *payment.Transaction) Status {
	return h.performDCC(KindSale, DCCEnquiry, tx)
}

func (h *Host) AuthorizeSaleWithDCCAllowed(tx *payment.Transaction) Status {
	return h.performDCC(KindSale, DCCAllowed, tx)
}

func (h *Host) PerformOfflineWithDCCEnquiry(tx *payment.Transaction) Status {
	return h.performDCC(KindOfflineSale, DCCEnquiry, tx)
}

func (h *Host) PerformOfflineWithDCCAllowed(tx *payment.Transaction) Status {
	return h.performDCC(KindOfflineSale, DCCAllowed, tx)
}

func (h *Host) AuthorizePreAuthWithDCCEnquiry(tx *payment.Transaction) Status {
	return h.performDCC(KindPreAuth, DCCEnquiry, tx)
}

func (h *Host) AuthorizePreAuthWithDCCAllowed(tx *payment.Transaction) Status {
	return h.performDCC(KindPreAuth, DCCAllowed, tx)
}

func (h *Host) AuthorizeCompletionWithDCCEnquiry(tx *payment.Transaction) Status {
	return h.performDCC(KindCompletion, DCCEnquiry, tx)
}

func (h *Host) AuthorizeCompletionWithDCCAllowed(tx *payment.Transaction) Status {
	return h.performDCC(KindCompletion, DCCAllowed, tx)
}

func (h *Host) PerformPreAuthCancellation(tx *payment.Transaction) Status {
	return h.perform(KindPreAuthCancellation, tx)
}

func (h *Host) PerformBatchUpload(tx *payment.Transaction, batchSTAN uint32) Status {
	return h.run("batch upload", tx.TPDU,
		func() (*iso8583.Apdu, error) { return BuildBatchUpload(tx, batchSTAN) },
		func(resp *iso8583.Apdu) error { return ReadBatchUpload(resp, tx) })
}

func (h *Host) PerformSettlement(s *payment.SettlementData, afterBatchUpload bool) Status {
	return h.run("settlement", s.TPDU,
		func() (*iso8583.Apdu, error) { return BuildSettlement(s, afterBatchUpload) },
		func(resp *iso8583.Apdu) error { return ReadSettlement(resp, s) })
}

func (h *Host) PerformTestTransaction(t *payment.TestTransaction) Status {
	return h.run("echo test", t.TPDU,
		func() (*iso8583.Apdu, error) { return BuildEchoTest(t) },
		func(resp *iso8583.Apdu) error { return ReadEchoTest(resp, t) })
}

func (h *Host) PerformTMKDownload(k *payment.TMKDownload) Status {
	return h.run("tmk download", k.TPDU,
		func() (*iso8583.Apdu, error) { return BuildTMKDownload(k) },
		func(resp *iso8583.Apdu) error { return ReadTMKDownload(resp, k) })
}

func (h *Host) PerformKeyExchange(k *payment.KeyExchange) Status {
	return h.run("key exchange", k.TPDU,
		func() (*iso8583.Apdu, error) { return BuildKeyExchange(k) },
		func(resp *iso8583.Apdu) error { return ReadKeyExchange(resp, k) })
}
