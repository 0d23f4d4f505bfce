package transport

import "time"

// Status is the outcome of a transport call.
type Status int

const (
	StatusOK Status = iota
	StatusConnected
	StatusNotConnected
	StatusTimeout
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusConnected:
		return "CONNECTED"
	case StatusNotConnected:
		return "NOT_CONNECTED"
	case StatusTimeout:
		return "TIMEOUT"
	}
	return "ERROR"
}

// Client is a byte-stream link to one acquirer host. One message is
// written per Send and one is returned per Receive.
type Client interface {
	// PreConnect starts opening the link without waiting for it.
	PreConnect() Status
	// WaitConnected blocks until the link is up or timeout elapses.
	WaitConnected(timeout time.Duration) Status
	// Send writes one message and reports how many bytes of it went out.
	Send(msg []byte) (int, Status)
	// Receive reads one message of at most max bytes.
	Receive(max int) ([]byte, Status)
	// Disconnect tears the link down. Calling it twice is harmless.
	Disconnect() Status
}

// Factory returns the client for a configured host name, or nil when the
// name is unknown.
type Factory func(hostName string) Client
