package diners

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"go-pos-hostswitch/internal/iso8583"
	"go-pos-hostswitch/internal/online"
	"go-pos-hostswitch/internal/transport"
)

// Status is the outcome of one Diners operation.
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

func statusOf(r online.Result) Status {
	if s, ok := results[r]; ok {
		return s
	}
	return PermFailure
}

// Host runs Diners Direct messages over one session.
type Host struct {
	session *online.Session
	log     zerolog.Logger
}

func NewHost(factory transport.Factory, log zerolog.Logger, opts ...online.Option) *Host {
	log = log.With().Str("component", "diners").Logger()
	return &Host{session: online.NewSession(factory, log, opts...), log: log}
}

func (h *Host) PreConnect(hostName string) bool              { return h.session.PreConnect(hostName) }
func (h *Host) WaitForConnection(timeout time.Duration) bool { return h.session.WaitForConnection(timeout) }
func (h *Host) Disconnect() bool                             { return h.session.Disconnect() }

func perform[T any](h *Host, name string, req *iso8583.Apdu, err error, tpdu string, read func(*iso8583.Apdu, T) error, msg T) Status {
	if err != nil {
		h.log.Error().Err(err).Str("message", name).Msg("build request")
		return PermFailure
	}
	st := statusOf(h.session.Exchange(req, tpdu, func(resp *iso8583.Apdu) error {
		return read(resp, msg)
	}))
	h.log.Info().Str("message", name).Stringer("status", st).Msg("exchange done")
	return st
}

func (h *Host) AuthorizeSale(tx *Transaction) Status {
	req, err := BuildSaleRequest(tx)
	return perform(h, "sale", req, err, tx.TPDU, ReadSaleResponse, tx)
}

func (h *Host) AuthorizeRefund(tx *Transaction) Status {
	req, err := BuildRefundRequest(tx)
	return perform(h, "refund", req, err, tx.TPDU, ReadRefundResponse, tx)
}

func (h *Host) AuthorizePreAuth(tx *Transaction) Status {
	req, err := BuildPreAuthRequest(tx)
	return perform(h, "preauth", req, err, tx.TPDU, ReadPreAuthResponse, tx)
}

func (h *Host) PerformVoid(tx *Transaction) Status {
	req, err := BuildVoidRequest(tx)
	return perform(h, "void", req, err, tx.TPDU, ReadVoidResponse, tx)
}

func (h *Host) SendReversal(tx *Transaction) Status {
	req, err := BuildReversalRequest(tx)
	return perform(h, "reversal", req, err, tx.TPDU, ReadReversalResponse, tx)
}

func (h *Host) SendOfflineSale(tx *Transaction) Status {
	req, err := BuildOfflineSaleRequest(tx)
	return perform(h, "offline sale", req, err, tx.TPDU, ReadOfflineSaleResponse, tx)
}

func (h *Host) PerformSaleCompletion(tx *Transaction) Status {
	req, err := BuildSaleCompletionRequest(tx)
	return perform(h, "sale completion", req, err, tx.TPDU, ReadSaleCompletionResponse, tx)
}

func (h *Host) SendTipAdjust(tx *Transaction) Status {
	req, err := BuildTipAdjustRequest(tx)
	return perform(h, "tip adjust", req, err, tx.TPDU, ReadTipAdjustResponse, tx)
}

func (h *Host) PerformTcUpload(tx *Transaction) Status {
	req, err := BuildTcUploadRequest(tx)
	return perform(h, "tc upload", req, err, tx.TPDU, ReadTcUploadResponse, tx)
}

func (h *Host) PerformBatchUpload(tx *Transaction, batchSTAN uint32) Status {
	req, err := BuildBatchUploadRequest(tx, batchSTAN)
	return perform(h, "batch upload", req, err, tx.TPDU, ReadBatchUploadResponse, tx)
}

func (h *Host) PerformSettlement(s *SettlementData, afterBatchUpload bool) Status {
	req, err := BuildSettlementRequest(s, afterBatchUpload)
	return perform(h, "settlement", req, err, s.TPDU, ReadSettlementResponse, s)
}

func (h *Host) PerformTestTransaction(t *TestTransaction) Status {
	req, err := BuildEchoTestRequest(t)
	return perform(h, "echo test", req, err, t.TPDU, ReadEchoTestResponse, t)
}

func (h *Host) PerformTMKDownload(k *TMKDownload) Status {
	req, err := BuildKeyDownloadRequest(k)
	return perform(h, "key download", req, err, k.TPDU, ReadKeyDownloadResponse, k)
}
