package hostswitch

import "sync/atomic"

// HostDefinition is one configured acquirer host.
type HostDefinition struct {
	Index    int
	Name     string
	Protocol Protocol
	Endpoint string
	TLS      bool
	TPDU     string
	NII      uint32
	TID      string
	MID      string
	Currency string
}

// HostDirectory looks up host definitions by terminal host index.
type HostDirectory interface {
	HostDefinition(index int) (HostDefinition, bool)
}

// Counters hands out trace and invoice numbers.
type Counters interface {
	NextSTAN() uint32
	NextInvoice() uint32
}

// maxSequence is the largest six-digit trace number; the next one is 1.
const maxSequence = 999999

// Sequence is a six-digit counter that never yields 0.
type Sequence struct {
	v atomic.Uint32
}

// NewSequence starts a sequence whose next value follows last.
func NewSequence(last uint32) *Sequence {
	s := &Sequence{}
	s.v.Store(last % (maxSequence + 1))
	return s
}

func (s *Sequence) Next() uint32 {
	for {
		old := s.v.Load()
		next := old%maxSequence + 1
		if s.v.CompareAndSwap(old, next) {
			return next
		}
	}
}

// Last returns the most recently issued value.
func (s *Sequence) Last() uint32 { return s.v.Load() }

// SequenceCounters implements Counters with two independent sequences.
type SequenceCounters struct {
	STAN    *Sequence
	Invoice *Sequence
}

func NewCounters(lastSTAN, lastInvoice uint32) *SequenceCounters {
	return &SequenceCounters{STAN: NewSequence(lastSTAN), Invoice: NewSequence(lastInvoice)}
}

func (c *SequenceCounters) NextSTAN() uint32    { return c.STAN.Next() }
func (c *SequenceCounters) NextInvoice() uint32 { return c.Invoice.Next() }
