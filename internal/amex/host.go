package amex

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"go-pos-hostswitch/internal/iso8583"
	"go-pos-hostswitch/internal/online"
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

// Host runs Amex Direct messages over one session.
type Host struct {
	cfg     Config
	session *online.Session
	log     zerolog.Logger
}

func NewHost(cfg Config, factory transport.Factory, log zerolog.Logger, opts ...online.Option) *Host {
	log = log.With().Str("component", "amex").Logger()
	return &Host{cfg: cfg, session: online.NewSession(factory, log, opts...), log: log}
}

func (h *Host) PreConnect(hostName string) bool              { return h.session.PreConnect(hostName) }
func (h *Host) WaitForConnection(timeout time.Duration) bool { return h.session.WaitForConnection(timeout) }
func (h *Host) Disconnect() bool                             { return h.session.Disconnect() }

func (h *Host) exchange(name string, req *iso8583.Apdu, err error, tpdu string, read online.Reader) Status {
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

func (h *Host) perform(kind Kind, tx *Transaction) Status {
	req, err := Build(kind, tx, h.cfg)
	return h.exchange(messages[kind].name, req, err, tx.TPDU, func(resp *iso8583.Apdu) error {
		return Read(kind, resp, tx)
	})
}

func (h *Host) AuthorizeSale(tx *Transaction) Status     { return h.perform(KindSale, tx) }
func (h *Host) AuthorizeRefund(tx *Transaction) Status   { return h.perform(KindRefund, tx) }
func (h *Host) AuthorizePreAuth(tx *Transaction) Status  { return h.perform(KindPreAuth, tx) }
func (h *Host) PerformVoid(tx *Transaction) Status       { return h.perform(KindVoid, tx) }
func (h *Host) SendReversal(tx *Transaction) Status      { return h.perform(KindReversal, tx) }
func (h *Host) SendOfflineSale(tx *Transaction) Status   { return h.perform(KindOfflineSale, tx) }
func (h *Host) PerformCompletion(tx *Transaction) Status { return h.perform(KindCompletion, tx) }
func (h *Host) SendTipAdjust(tx *Transaction) Status     { return h.perform(KindTipAdjust, tx) }
func (h *Host) PerformTcUpload(tx *Transaction) Status   { return h.perform(KindTcUpload, tx) }

func (h *Host) PerformBatchUpload(tx *Transaction, batchSTAN uint32) Status {
	req, err := BuildBatchUpload(tx, batchSTAN, h.cfg)
	return h.exchange("batch upload", req, err, tx.TPDU, func(resp *iso8583.Apdu) error {
		return ReadBatchUpload(resp, tx)
	})
}

func (h *Host) PerformSettlement(s *SettlementData, afterBatchUpload bool) Status {
	req, err := BuildSettlement(s, afterBatchUpload, h.cfg)
	return h.exchange("settlement", req, err, s.TPDU, func(resp *iso8583.Apdu) error {
		return ReadSettlement(resp, s)
	})
}
