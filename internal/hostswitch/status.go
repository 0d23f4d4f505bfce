package hostswitch

import (
	"fmt"
	"strings"
)

// Status is the protocol-independent outcome of a dispatched operation.
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

// convert maps a protocol status through table. Values missing from the
// table are a permanent failure.
func convert[S comparable](table map[S]Status, s S) Status {
	if out, ok := table[s]; ok {
		return out
	}
	return PermFailure
}

// Protocol is the acquirer dialect a host speaks.
type Protocol int

const (
	ProtocolFDMS Protocol = iota
	ProtocolAmex
	ProtocolDiners
)

var protocolNames = map[Protocol]string{
	ProtocolFDMS:   "fdms",
	ProtocolAmex:   "amex",
	ProtocolDiners: "diners",
}

func (p Protocol) String() string {
	if n, ok := protocolNames[p]; ok {
		return n
	}
	return fmt.Sprintf("Protocol(%d)", int(p))
}

// ParseProtocol accepts the names used in host definition files.
func ParseProtocol(s string) (Protocol, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, n := range protocolNames {
		if n == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown host protocol %q", s)
}
