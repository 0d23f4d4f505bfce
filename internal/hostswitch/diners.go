package hostswitch

import (
	"time"

	"github.com/rs/zerolog"

	"go-pos-hostswitch/internal/diners"
	"go-pos-hostswitch/internal/payment"
)

var dinersResults = map[diners.Status]Status{
	diners.Completed:        Completed,
	diners.TransientFailure: TransientFailure,
	diners.PermFailure:      PermFailure,
}

// Diners runs canonical records through the Diners Direct host.
type Diners struct {
	host *diners.Host
	log  zerolog.Logger
}

func NewDiners(h *diners.Host, log zerolog.Logger) *Diners {
	return &Diners{host: h, log: log.With().Str("component", "hostswitch").Stringer("protocol", ProtocolDiners).Logger()}
}

func (p *Diners) PreConnect(hostName string) bool              { return p.host.PreConnect(hostName) }
func (p *Diners) WaitForConnection(timeout time.Duration) bool { return p.host.WaitForConnection(timeout) }
func (p *Diners) Disconnect() bool                             { return p.host.Disconnect() }

type dinersCall func(h *diners.Host, tx *diners.Transaction) diners.Status

func (p *Diners) run(op string, tx *payment.Transaction, call dinersCall) Status {
	d, err := translate(dinersFields, tx)
	if err != nil {
		p.log.Error().Err(err).Str("operation", op).Msg("translate transaction")
		return PermFailure
	}
	st := call(p.host, d)
	writeBack(dinersFields, d, tx)
	return convert(dinersResults, st)
}

func (p *Diners) unsupported(op string) Status {
	p.log.Warn().Str("operation", op).Msg("operation not supported")
	return PermFailure
}

func (p *Diners) AuthorizeSale(tx *payment.Transaction) Status {
	return p.run("sale", tx, (*diners.Host).AuthorizeSale)
}

func (p *Diners) AuthorizeQuasiCash(tx *payment.Transaction) Status {
	return p.run("quasi cash", tx, (*diners.Host).AuthorizeSale)
}

func (p *Diners) PerformVoid(tx *payment.Transaction) Status {
	return p.run("void", tx, (*diners.Host).PerformVoid)
}

func (p *Diners) SendReversal(tx *payment.Transaction) Status {
	return p.run("reversal", tx, (*diners.Host).SendReversal)
}

func (p *Diners) AuthorizeRefund(tx *payment.Transaction) Status {
	return p.run("refund", tx, (*diners.Host).AuthorizeRefund)
}

func (p *Diners) PerformOfflineSale(tx *payment.Transaction) Status {
	return p.run("offline sale", tx, (*diners.Host).SendOfflineSale)
}

func (p *Diners) AuthorizePreAuth(tx *payment.Transaction) Status {
	return p.run("preauth", tx, (*diners.Host).AuthorizePreAuth)
}

func (p *Diners) AuthorizePreAuthCompletion(tx *payment.Transaction) Status {
	return p.run("preauth completion", tx, (*diners.Host).PerformSaleCompletion)
}

func (p *Diners) PerformTipAdjust(tx *payment.Transaction) Status {
	return p.run("tip adjust", tx, (*diners.Host).SendTipAdjust)
}

func (p *Diners) PerformTcUpload(tx *payment.Transaction) Status {
	return p.run("tc upload", tx, (*diners.Host).PerformTcUpload)
}

func (p *Diners) PerformBatchUpload(tx *payment.Transaction, batchSTAN uint32) Status {
	return p.run("batch upload", tx, func(h *diners.Host, d *diners.Transaction) diners.Status {
		return h.PerformBatchUpload(d, batchSTAN)
	})
}

func (p *Diners) PerformSettlement(s *payment.SettlementData, afterBatchUpload bool) Status {
	d := dinersSettlement(s)
	st := p.host.PerformSettlement(d, afterBatchUpload)
	settlementResult{d.ProcessingCode, d.TxDatetime, d.RRN, d.ResponseCode}.apply(s)
	return convert(dinersResults, st)
}

// PerformTestTransaction always sends the echo processing code.
func (p *Diners) PerformTestTransaction(t *payment.TestTransaction) Status {
	d := &diners.TestTransaction{
		ProcessingCode: diners.ProcessingCodeEchoTest,
		STAN:           t.STAN,
		TPDU:           t.TPDU,
		NII:            t.NII,
		TID:            t.TID,
		MID:            t.MID,
	}
	st := p.host.PerformTestTransaction(d)
	t.ProcessingCode = d.ProcessingCode
	t.HostDatetime = d.HostDatetime
	t.ResponseCode = d.ResponseCode
	return convert(dinersResults, st)
}

func (p *Diners) TMKDownload(k *payment.TMKDownload) Status {
	d := &diners.TMKDownload{STAN: k.STAN, TPDU: k.TPDU, NII: k.NII, TID: k.TID, MID: k.MID}
	st := p.host.PerformTMKDownload(d)
	k.ProcessingCode = d.ProcessingCode
	k.TxDatetime = d.TxDatetime
	k.ResponseCode = d.ResponseCode
	k.TMK = d.TMK
	return convert(dinersResults, st)
}

func (p *Diners) PreAuthCancellation(*payment.Transaction) Status { return p.unsupported("preauth cancellation") }
func (p *Diners) InstalmentSale(*payment.Transaction) Status      { return p.unsupported("instalment sale") }
func (p *Diners) KeyExchange(*payment.KeyExchange) Status         { return p.unsupported("key exchange") }
