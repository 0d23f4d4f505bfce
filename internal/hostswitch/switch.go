package hostswitch

import (
	"time"

	"github.com/rs/zerolog"

	"go-pos-hostswitch/internal/payment"
)

// DefaultWaitTimeout bounds WaitForConnection.
const DefaultWaitTimeout = 30 * time.Second

// Event describes one dispatched operation.
type Event struct {
	Operation string
	HostIndex int
	Protocol  Protocol
	Bound     bool
	Status    Status
	Duration  time.Duration
}

// Observer is told about every dispatched operation. It runs on the
// dispatching goroutine and must not block.
type Observer func(Event)

// Option configures a HostSwitch.
type Option func(*HostSwitch)

func WithLogger(log zerolog.Logger) Option {
	return func(s *HostSwitch) { s.log = log }
}

func WithObserver(o Observer) Option {
	return func(s *HostSwitch) { s.observe = o }
}

// WithWaitTimeout overrides DefaultWaitTimeout.
func WithWaitTimeout(d time.Duration) Option {
	return func(s *HostSwitch) {
		if d > 0 {
			s.wait = d
		}
	}
}

// binding is the host a switch is currently talking to.
type binding struct {
	def  HostDefinition
	host HostProtocol
}

// HostSwitch routes canonical operations to the protocol of the bound
// host. It is unbound until PreConnect succeeds and becomes unbound again
// on Disconnect, a failed connection or a transient failure. While
// unbound every operation is PermFailure and no transport is touched.
//
// A HostSwitch serves one terminal session; callers serialize access.
type HostSwitch struct {
	dir       HostDirectory
	counters  Counters
	factories Factories
	hosts     map[Protocol]HostProtocol
	wait      time.Duration
	log       zerolog.Logger
	observe   Observer

	bound *binding
}

func New(dir HostDirectory, counters Counters, factories Factories, opts ...Option) *HostSwitch {
	s := &HostSwitch{
		dir:       dir,
		counters:  counters,
		factories: factories,
		hosts:     make(map[Protocol]HostProtocol),
		wait:      DefaultWaitTimeout,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("component", "hostswitch").Logger()
	return s
}

// host returns the cached implementation of a protocol, creating it on
// first use.
func (s *HostSwitch) host(def HostDefinition) HostProtocol {
	if h, ok := s.hosts[def.Protocol]; ok {
		return h
	}
	factory, ok := s.factories[def.Protocol]
	if !ok {
		return nil
	}
	h := factory(def)
	if h != nil {
		s.hosts[def.Protocol] = h
	}
	return h
}

// PreConnect binds the switch to the host at index and starts its link.
// A previously bound host is disconnected first.
func (s *HostSwitch) PreConnect(hostIndex int) bool {
	if s.bound != nil {
		s.bound.host.Disconnect()
		s.bound = nil
	}
	def, ok := s.dir.HostDefinition(hostIndex)
	if !ok {
		s.log.Error().Int("host_index", hostIndex).Msg("unknown host")
		return false
	}
	h := s.host(def)
	if h == nil {
		s.log.Error().Int("host_index", hostIndex).Stringer("protocol", def.Protocol).Msg("no implementation for protocol")
		return false
	}
	if !h.PreConnect(def.Name) {
		s.log.Warn().Int("host_index", hostIndex).Str("host", def.Name).Msg("pre-connect failed")
		return false
	}
	s.bound = &binding{def: def, host: h}
	s.log.Info().Int("host_index", hostIndex).Str("host", def.Name).Stringer("protocol", def.Protocol).Msg("bound")
	return true
}

// WaitForConnection waits for the bound link. Failure unbinds the switch.
func (s *HostSwitch) WaitForConnection() bool {
	b := s.bound
	if b == nil {
		return false
	}
	if !b.host.WaitForConnection(s.wait) {
		s.bound = nil
		return false
	}
	return true
}

// Disconnect tears down the bound link and unbinds the switch.
func (s *HostSwitch) Disconnect() bool {
	b := s.bound
	s.bound = nil
	if b == nil {
		return true
	}
	return b.host.Disconnect()
}

// BoundProtocol reports the protocol of the bound host.
func (s *HostSwitch) BoundProtocol() (Protocol, bool) {
	if s.bound == nil {
		return 0, false
	}
	return s.bound.def.Protocol, true
}

// BoundHost reports the definition of the bound host.
func (s *HostSwitch) BoundHost() (HostDefinition, bool) {
	if s.bound == nil {
		return HostDefinition{}, false
	}
	return s.bound.def, true
}

func (s *HostSwitch) dispatch(op string, call func(HostProtocol) Status) Status {
	b := s.bound
	if b == nil {
		s.log.Warn().Str("operation", op).Msg("no host bound")
		s.notify(Event{Operation: op, Status: PermFailure})
		return PermFailure
	}
	start := time.Now()
	st := call(b.host)
	ev := Event{
		Operation: op,
		HostIndex: b.def.Index,
		Protocol:  b.def.Protocol,
		Bound:     true,
		Status:    st,
		Duration:  time.Since(start),
	}
	if st == TransientFailure {
		s.bound = nil
		s.log.Warn().Str("operation", op).Int("host_index", b.def.Index).Msg("transient failure, unbound")
	}
	s.notify(ev)
	return st
}

func (s *HostSwitch) notify(ev Event) {
	if s.observe != nil {
		s.observe(ev)
	}
}

type txCall func(h HostProtocol, tx *payment.Transaction) Status

func (s *HostSwitch) transaction(op string, tx *payment.Transaction, call txCall) Status {
	return s.dispatch(op, func(h HostProtocol) Status { return call(h, tx) })
}

func (s *HostSwitch) AuthorizeSale(tx *payment.Transaction) Status {
	return s.transaction("sale", tx, HostProtocol.AuthorizeSale)
}

func (s *HostSwitch) AuthorizeQuasiCash(tx *payment.Transaction) Status {
	return s.transaction("quasi cash", tx, HostProtocol.AuthorizeQuasiCash)
}

func (s *HostSwitch) PerformVoid(tx *payment.Transaction) Status {
	return s.transaction("void", tx, HostProtocol.PerformVoid)
}

func (s *HostSwitch) SendReversal(tx *payment.Transaction) Status {
	return s.transaction("reversal", tx, HostProtocol.SendReversal)
}

func (s *HostSwitch) AuthorizeRefund(tx *payment.Transaction) Status {
	return s.transaction("refund", tx, HostProtocol.AuthorizeRefund)
}

func (s *HostSwitch) PerformOfflineSale(tx *payment.Transaction) Status {
	return s.transaction("offline sale", tx, HostProtocol.PerformOfflineSale)
}

func (s *HostSwitch) AuthorizePreAuth(tx *payment.Transaction) Status {
	return s.transaction("preauth", tx, HostProtocol.AuthorizePreAuth)
}

func (s *HostSwitch) AuthorizePreAuthCompletion(tx *payment.Transaction) Status {
	return s.transaction("preauth completion", tx, HostProtocol.AuthorizePreAuthCompletion)
}

func (s *HostSwitch) PerformTipAdjust(tx *payment.Transaction) Status {
	return s.transaction("tip adjust", tx, HostProtocol.PerformTipAdjust)
}

func (s *HostSwitch) PerformTcUpload(tx *payment.Transaction) Status {
	return s.transaction("tc upload", tx, HostProtocol.PerformTcUpload)
}

func (s *HostSwitch) PreAuthCancellation(tx *payment.Transaction) Status {
	return s.transaction("preauth cancellation", tx, HostProtocol.PreAuthCancellation)
}

func (s *HostSwitch) InstalmentSale(tx *payment.Transaction) Status {
	return s.transaction("instalment sale", tx, HostProtocol.InstalmentSale)
}

// PerformBatchUpload uploads txs in order, one exchange each under a new
// trace number, and stops at the first one that does not complete. It
// returns that status and how many transactions were uploaded, so a
// later call can resume with txs[n:].
func (s *HostSwitch) PerformBatchUpload(txs []*payment.Transaction) (Status, int) {
	if s.bound == nil {
		return s.dispatch("batch upload", nil), 0
	}
	for i, tx := range txs {
		st := s.dispatch("batch upload", func(h HostProtocol) Status {
			return h.PerformBatchUpload(tx, s.counters.NextSTAN())
		})
		if st != Completed {
			s.log.Warn().Int("uploaded", i).Int("pending", len(txs)-i).Stringer("status", st).Msg("batch upload stopped")
			return st, i
		}
	}
	return Completed, len(txs)
}

// PerformSettlement closes the batch. A zero invoice number is replaced
// with the next one from the counters.
func (s *HostSwitch) PerformSettlement(sd *payment.SettlementData, afterBatchUpload bool) Status {
	return s.dispatch("settlement", func(h HostProtocol) Status {
		if sd.InvoiceNumber == 0 {
			sd.InvoiceNumber = s.counters.NextInvoice()
		}
		return h.PerformSettlement(sd, afterBatchUpload)
	})
}

func (s *HostSwitch) PerformTestTransaction(t *payment.TestTransaction) Status {
	return s.dispatch("test transaction", func(h HostProtocol) Status { return h.PerformTestTransaction(t) })
}

func (s *HostSwitch) TMKDownload(k *payment.TMKDownload) Status {
	return s.dispatch("tmk download", func(h HostProtocol) Status { return h.TMKDownload(k) })
}

func (s *HostSwitch) KeyExchange(k *payment.KeyExchange) Status {
	return s.dispatch("key exchange", func(h HostProtocol) Status { return h.KeyExchange(k) })
}
