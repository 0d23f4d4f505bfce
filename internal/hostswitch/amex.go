package hostswitch

import (
	"time"

	"github.com/rs/zerolog"

	"go-pos-hostswitch/internal/amex"
	"go-pos-hostswitch/internal/payment"
)

var amexResults = map[amex.Status]Status{
	amex.Completed:        Completed,
	amex.TransientFailure: TransientFailure,
	amex.PermFailure:      PermFailure,
}

// Amex runs canonical records through the Amex Direct host.
type Amex struct {
	host *amex.Host
	log  zerolog.Logger
}

func NewAmex(h *amex.Host, log zerolog.Logger) *Amex {
	return &Amex{host: h, log: log.With().Str("component", "hostswitch").Stringer("protocol", ProtocolAmex).Logger()}
}

func (p *Amex) PreConnect(hostName string) bool              { return p.host.PreConnect(hostName) }
func (p *Amex) WaitForConnection(timeout time.Duration) bool { return p.host.WaitForConnection(timeout) }
func (p *Amex) Disconnect() bool                             { return p.host.Disconnect() }

type amexCall func(h *amex.Host, tx *amex.Transaction) amex.Status

func (p *Amex) run(op string, tx *payment.Transaction, call amexCall) Status {
	a, err := translate(amexFields, tx)
	if err != nil {
		p.log.Error().Err(err).Str("operation", op).Msg("translate transaction")
		return PermFailure
	}
	st := call(p.host, a)
	writeBack(amexFields, a, tx)
	return convert(amexResults, st)
}

func (p *Amex) unsupported(op string) Status {
	p.log.Warn().Str("operation", op).Msg("operation not supported")
	return PermFailure
}

func (p *Amex) AuthorizeSale(tx *payment.Transaction) Status {
	return p.run("sale", tx, (*amex.Host).AuthorizeSale)
}

func (p *Amex) AuthorizeQuasiCash(tx *payment.Transaction) Status {
	return p.run("quasi cash", tx, (*amex.Host).AuthorizeSale)
}

func (p *Amex) PerformVoid(tx *payment.Transaction) Status {
	return p.run("void", tx, (*amex.Host).PerformVoid)
}

func (p *Amex) SendReversal(tx *payment.Transaction) Status {
	return p.run("reversal", tx, (*amex.Host).SendReversal)
}

func (p *Amex) AuthorizeRefund(tx *payment.Transaction) Status {
	return p.run("refund", tx, (*amex.Host).AuthorizeRefund)
}

func (p *Amex) PerformOfflineSale(tx *payment.Transaction) Status {
	return p.run("offline sale", tx, (*amex.Host).SendOfflineSale)
}

func (p *Amex) AuthorizePreAuth(tx *payment.Transaction) Status {
	return p.run("preauth", tx, (*amex.Host).AuthorizePreAuth)
}

func (p *Amex) AuthorizePreAuthCompletion(tx *payment.Transaction) Status {
	return p.run("preauth completion", tx, (*amex.Host).PerformCompletion)
}

func (p *Amex) PerformTipAdjust(tx *payment.Transaction) Status {
	return p.run("tip adjust", tx, (*amex.Host).SendTipAdjust)
}

func (p *Amex) PerformTcUpload(tx *payment.Transaction) Status {
	return p.run("tc upload", tx, (*amex.Host).PerformTcUpload)
}

func (p *Amex) PerformBatchUpload(tx *payment.Transaction, batchSTAN uint32) Status {
	return p.run("batch upload", tx, func(h *amex.Host, a *amex.Transaction) amex.Status {
		return h.PerformBatchUpload(a, batchSTAN)
	})
}

func (p *Amex) PerformSettlement(s *payment.SettlementData, afterBatchUpload bool) Status {
	a := amexSettlement(s)
	st := p.host.PerformSettlement(a, afterBatchUpload)
	settlementResult{a.ProcessingCode, a.TxDatetime, a.RRN, a.ResponseCode}.apply(s)
	return convert(amexResults, st)
}

func (p *Amex) PerformTestTransaction(*payment.TestTransaction) Status { return p.unsupported("test transaction") }
func (p *Amex) TMKDownload(*payment.TMKDownload) Status                { return p.unsupported("tmk download") }
func (p *Amex) PreAuthCancellation(*payment.Transaction) Status        { return p.unsupported("preauth cancellation") }
func (p *Amex) InstalmentSale(*payment.Transaction) Status             { return p.unsupported("instalment sale") }
func (p *Amex) KeyExchange(*payment.KeyExchange) Status                { return p.unsupported("key exchange") }
