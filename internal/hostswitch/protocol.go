package hostswitch

import (
	"time"

	"github.com/rs/zerolog"

	"go-pos-hostswitch/internal/amex"
	"go-pos-hostswitch/internal/diners"
	"go-pos-hostswitch/internal/fdms"
	"go-pos-hostswitch/internal/online"
	"go-pos-hostswitch/internal/payment"
	"go-pos-hostswitch/internal/transport"
)

// HostProtocol is one acquirer dialect seen through canonical records.
// Operations a dialect lacks return PermFailure without touching the link.
type HostProtocol interface {
	PreConnect(hostName string) bool
	WaitForConnection(timeout time.Duration) bool
	Disconnect() bool

	AuthorizeSale(tx *payment.Transaction) Status
	AuthorizeQuasiCash(tx *payment.Transaction) Status
	PerformVoid(tx *payment.Transaction) Status
	SendReversal(tx *payment.Transaction) Status
	AuthorizeRefund(tx *payment.Transaction) Status
	PerformOfflineSale(tx *payment.Transaction) Status
	AuthorizePreAuth(tx *payment.Transaction) Status
	AuthorizePreAuthCompletion(tx *payment.Transaction) Status
	PerformTipAdjust(tx *payment.Transaction) Status
	PerformTcUpload(tx *payment.Transaction) Status
	PerformBatchUpload(tx *payment.Transaction, batchSTAN uint32) Status
	PerformSettlement(s *payment.SettlementData, afterBatchUpload bool) Status
	PerformTestTransaction(t *payment.TestTransaction) Status
	TMKDownload(k *payment.TMKDownload) Status
	PreAuthCancellation(tx *payment.Transaction) Status
	InstalmentSale(tx *payment.Transaction) Status
	KeyExchange(k *payment.KeyExchange) Status

	// Dynamic currency conversion variants. Only FDMS runs a conversion
	// flow; the direct acquirers treat them as the plain operation.
	AuthorizeSaleWithDCCEnquiry(tx *payment.Transaction) Status
	AuthorizeSaleWithDCCAllowed(tx *payment.Transaction) Status
	PerformOfflineWithDCCEnquiry(tx *payment.Transaction) Status
	PerformOfflineWithDCCAllowed(tx *payment.Transaction) Status
	AuthorizePreAuthWithDCCEnquiry(tx *payment.Transaction) Status
	AuthorizePreAuthWithDCCAllowed(tx *payment.Transaction) Status
	AuthorizePreAuthCompletionWithDCCEnquiry(tx *payment.Transaction) Status
	AuthorizePreAuthCompletionWithDCCAllowed(tx *payment.Transaction) Status
}

// Factory creates the protocol implementation used for a host.
type Factory func(def HostDefinition) HostProtocol

type Factories map[Protocol]Factory

// NewFactories builds the three acquirer hosts on top of one transport
// factory.
func NewFactories(tf transport.Factory, amexCfg amex.Config, log zerolog.Logger, opts ...online.Option) Factories {
	return Factories{
		ProtocolFDMS: func(HostDefinition) HostProtocol {
			return NewFDMS(fdms.NewHost(tf, log, opts...))
		},
		ProtocolAmex: func(HostDefinition) HostProtocol {
			return NewAmex(amex.NewHost(amexCfg, tf, log, opts...), log)
		},
		ProtocolDiners: func(HostDefinition) HostProtocol {
			return NewDiners(diners.NewHost(tf, log, opts...), log)
		},
	}
}

var (
	_ HostProtocol = (*FDMS)(nil)
	_ HostProtocol = (*Amex)(nil)
	_ HostProtocol = (*Diners)(nil)
)

var fdmsResults = map[fdms.Status]Status{
	fdms.Completed:        Completed,
	fdms.TransientFailure: TransientFailure,
	fdms.PermFailure:      PermFailure,
}

// FDMS needs no translation: the generic host reads canonical records.
type FDMS struct {
	host *fdms.Host
}

func NewFDMS(h *fdms.Host) *FDMS { return &FDMS{host: h} }

func (p *FDMS) PreConnect(hostName string) bool              { return p.host.PreConnect(hostName) }
func (p *FDMS) WaitForConnection(timeout time.Duration) bool { return p.host.WaitForConnection(timeout) }
func (p *FDMS) Disconnect() bool                             { return p.host.Disconnect() }

func (p *FDMS) AuthorizeSale(tx *payment.Transaction) Status {
	return convert(fdmsResults, p.host.AuthorizeSale(tx))
}

func (p *FDMS) AuthorizeQuasiCash(tx *payment.Transaction) Status {
	return convert(fdmsResults, p.host.AuthorizeQuasiCash(tx))
}

func (p *FDMS) PerformVoid(tx *payment.Transaction) Status {
	return convert(fdmsResults, p.host.PerformVoid(tx))
}

func (p *FDMS) SendReversal(tx *payment.Transaction) Status {
	return convert(fdmsResults, p.host.SendReversal(tx))
}

func (p *FDMS) AuthorizeRefund(tx *payment.Transaction) Status {
	return convert(fdmsResults, p.host.AuthorizeRefund(tx))
}

func (p *FDMS) PerformOfflineSale(tx *payment.Transaction) Status {
	return convert(fdmsResults, p.host.PerformOfflineSale(tx))
}

func (p *FDMS) AuthorizePreAuth(tx *payment.Transaction) Status {
	return convert(fdmsResults, p.host.AuthorizePreAuth(tx))
}

func (p *FDMS) AuthorizePreAuthCompletion(tx *payment.Transaction) Status {
	return convert(fdmsResults, p.host.AuthorizeCompletion(tx))
}

func (p *FDMS) PerformTipAdjust(tx *payment.Transaction) Status {
	return convert(fdmsResults, p.host.SendTipAdjust(tx))
}

func (p *FDMS) PerformTcUpload(tx *payment.Transaction) Status {
	return convert(fdmsResults, p.host.PerformTcUpload(tx))
}

func (p *FDMS) PerformBatchUpload(tx *payment.Transaction, batchSTAN uint32) Status {
	return convert(fdmsResults, p.host.PerformBatchUpload(tx, batchSTAN))
}

func (p *FDMS) PerformSettlement(s *payment.SettlementData, afterBatchUpload bool) Status {
	return convert(fdmsResults, p.host.PerformSettlement(s, afterBatchUpload))
}

func (p *FDMS) PerformTestTransaction(t *payment.TestTransaction) Status {
	return convert(fdmsResults, p.host.PerformTestTransaction(t))
}

func (p *FDMS) TMKDownload(k *payment.TMKDownload) Status {
	return convert(fdmsResults, p.host.PerformTMKDownload(k))
}

func (p *FDMS) PreAuthCancellation(tx *payment.Transaction) Status {
	return convert(fdmsResults, p.host.PerformPreAuthCancellation(tx))
}

func (p *FDMS) InstalmentSale(tx *payment.Transaction) Status {
	return convert(fdmsResults, p.host.AuthorizeInstalmentSale(tx))
}

func (p *FDMS) KeyExchange(k *payment.KeyExchange) Status {
	return convert(fdmsResults, p.host.PerformKeyExchange(k))
}
